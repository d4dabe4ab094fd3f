package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	anchorapp "watergrid-cloud/internal/anchor/application"
	anchor "watergrid-cloud/internal/anchor/domain"
	anchormemory "watergrid-cloud/internal/anchor/infrastructure/memory"
	anchorrepo "watergrid-cloud/internal/anchor/infrastructure/postgres"
	apihttp "watergrid-cloud/internal/api/http"
	"watergrid-cloud/internal/audit"
	"watergrid-cloud/internal/auth"
	eventapp "watergrid-cloud/internal/eventstore/application"
	eventstore "watergrid-cloud/internal/eventstore/domain"
	eventmemory "watergrid-cloud/internal/eventstore/infrastructure/memory"
	eventrepo "watergrid-cloud/internal/eventstore/infrastructure/postgres"
	eventinterfaces "watergrid-cloud/internal/eventstore/interfaces"
	"watergrid-cloud/internal/ledger"
	"watergrid-cloud/internal/ledger/hederaadapter"
	ledgermemory "watergrid-cloud/internal/ledger/memory"
	"watergrid-cloud/internal/observability/metrics"
	payoutapp "watergrid-cloud/internal/payout/application"
	payout "watergrid-cloud/internal/payout/domain"
	payoutmemory "watergrid-cloud/internal/payout/infrastructure/memory"
	payoutrepo "watergrid-cloud/internal/payout/infrastructure/postgres"
	settlementapp "watergrid-cloud/internal/settlement/application"
	settlement "watergrid-cloud/internal/settlement/domain"
	settlementmemory "watergrid-cloud/internal/settlement/infrastructure/memory"
	settlementrepo "watergrid-cloud/internal/settlement/infrastructure/postgres"
	settlementinterfaces "watergrid-cloud/internal/settlement/interfaces"
	"watergrid-cloud/internal/worker"
	wells "watergrid-cloud/internal/wells/domain"
	wellsmemory "watergrid-cloud/internal/wells/infrastructure/memory"
	wellsrepo "watergrid-cloud/internal/wells/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	var (
		db                   *sql.DB
		eventRepository      eventstore.Repository
		settlementRepository settlement.Repository
		payoutRepository     payout.Repository
		anchorRepository     anchor.Repository
		wellRepository       wells.Repository
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		eventRepository = eventrepo.NewEventRepository(db)
		settlementRepository = settlementrepo.NewRepository(db)
		payoutRepository = payoutrepo.NewRepository(db)
		anchorRepository = anchorrepo.NewRepository(db)
		wellRepository = wellsrepo.NewRepository(db)
	} else {
		logger.Printf("DATABASE_URL not set, running with in-memory stores")
		eventRepository = eventmemory.NewEventRepository()
		settlementRepository = settlementmemory.NewRepository()
		payoutRepository = payoutmemory.NewRepository()
		anchorRepository = anchormemory.NewRepository()
		wellRepository = wellsmemory.NewRepository()
	}

	metrics.Init()

	var gateway ledger.Gateway
	if cfg.MirrorBaseURL != "" {
		client, err := hederaadapter.NewClient(cfg.MirrorBaseURL, cfg.MirrorAPIKey)
		if err != nil {
			logger.Fatalf("ledger client error: %v", err)
		}
		gateway = client
	} else {
		logger.Printf("MIRROR_BASE_URL not set, running with in-memory ledger gateway")
		gateway = ledgermemory.NewGateway()
	}

	ingestService, err := eventapp.NewIngestService(eventRepository, nil, logger)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	workerCfg, err := worker.LoadConfig()
	if err != nil {
		logger.Fatalf("worker config error: %v", err)
	}
	policy := payout.Policy{
		OperatorBps:     workerCfg.Shares.OperatorBps,
		InvestorPoolBps: workerCfg.Shares.InvestorPoolBps,
		PlatformBps:     workerCfg.Shares.PlatformBps,
	}
	distributor, err := payoutapp.NewDistributor(payoutRepository, wellRepository, gateway, policy, cfg.PlatformAccount, nil, logger)
	if err != nil {
		logger.Fatalf("distributor error: %v", err)
	}

	tariffRate, err := decimal.NewFromString(workerCfg.TariffPerLiter)
	if err != nil {
		logger.Fatalf("tariff rate error: %v", err)
	}
	lifecyclePublisher, err := settlementinterfaces.NewLedgerPublisher(gateway, ingestService, wellRepository, cfg.DefaultTopicID)
	if err != nil {
		logger.Fatalf("lifecycle publisher error: %v", err)
	}
	settlementService, err := settlementapp.NewService(settlementRepository, eventRepository, distributor, lifecyclePublisher, tariffRate, nil, logger)
	if err != nil {
		logger.Fatalf("settlement service error: %v", err)
	}

	anchorBuilder, err := anchorapp.NewBuilder(eventRepository, anchorRepository, gateway, wellRepository, cfg.DefaultTopicID, nil, logger)
	if err != nil {
		logger.Fatalf("anchor builder error: %v", err)
	}

	reporter, err := audit.NewReporter(eventRepository, settlementRepository, anchorRepository, nil)
	if err != nil {
		logger.Fatalf("audit reporter error: %v", err)
	}

	for _, topicID := range cfg.PollTopics {
		poller, err := eventinterfaces.NewTopicPoller(gateway, ingestService, topicID, cfg.PollInterval, logger)
		if err != nil {
			logger.Fatalf("topic poller error: %v", err)
		}
		go poller.Start(context.Background())
	}

	scheduler := worker.NewScheduler(settlementService, anchorBuilder, distributor, settlementRepository, workerCfg, logger)
	go scheduler.Start(context.Background())

	authPolicy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), authPolicy)

	wellsHandler := apihttp.NewWellsHandler(wellRepository)
	settlementsHandler := apihttp.NewSettlementsHandler(settlementService, payoutRepository)
	reportsHandler := apihttp.NewReportsHandler(reporter)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/wells", wellsHandler)
	mux.Handle("/api/v1/wells/", wellsHandler)
	mux.Handle("/api/v1/events", apihttp.NewEventsHandler(ingestService, eventRepository))
	mux.Handle("/api/v1/settlements", settlementsHandler)
	mux.Handle("/api/v1/settlements/", settlementsHandler)
	mux.Handle("/api/v1/anchors", apihttp.NewAnchorsHandler(anchorBuilder, anchorRepository))
	mux.Handle("/api/v1/reports", reportsHandler)
	mux.Handle("/api/v1/reports/export", reportsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	MirrorBaseURL   string
	MirrorAPIKey    string
	DefaultTopicID  string
	PollTopics      []string
	PollInterval    time.Duration
	PlatformAccount string
	JWTSecret       string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		MirrorBaseURL:   getenvDefault("MIRROR_BASE_URL", ""),
		MirrorAPIKey:    getenvDefault("MIRROR_API_KEY", ""),
		DefaultTopicID:  getenvDefault("LEDGER_DEFAULT_TOPIC", "0.0.9001"),
		PollTopics:      splitCSV(getenvDefault("LEDGER_TOPICS", "")),
		PollInterval:    getenvDuration("LEDGER_POLL_INTERVAL", 10*time.Second),
		PlatformAccount: getenvDefault("PLATFORM_ACCOUNT", ""),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if len(cfg.PollTopics) == 0 && cfg.DefaultTopicID != "" {
		cfg.PollTopics = []string{cfg.DefaultTopicID}
	}
	if cfg.PlatformAccount == "" {
		log.Fatal("PLATFORM_ACCOUNT is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
