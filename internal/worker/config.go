package worker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PayoutShares defines the revenue split in basis points.
type PayoutShares struct {
	OperatorBps     int `yaml:"operator_bps"`
	InvestorPoolBps int `yaml:"investor_pool_bps"`
	PlatformBps     int `yaml:"platform_bps"`
}

// ScheduleConfig defines the daily settlement cadence.
type ScheduleConfig struct {
	DailyAt    string   `yaml:"daily_at"`
	Wells      []string `yaml:"wells"`
	PeriodDays int      `yaml:"period_days"`
}

// Config defines worker configuration.
type Config struct {
	Schedule       ScheduleConfig `yaml:"schedule"`
	Shares         PayoutShares   `yaml:"shares"`
	TariffPerLiter string         `yaml:"tariff_per_liter"`
	AnchorBatch    int            `yaml:"anchor_batch"`
	RetryEvery     time.Duration  `yaml:"retry_every"`
	AutoApprove    bool           `yaml:"auto_approve"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Shares: PayoutShares{
			OperatorBps:     5000,
			InvestorPoolBps: 4000,
			PlatformBps:     1000,
		},
		TariffPerLiter: getenvDefault("TARIFF_PER_LITER", "0.002"),
		AnchorBatch:    getenvIntDefault("ANCHOR_BATCH", 256),
		RetryEvery:     getenvDurationDefault("WORKER_RETRY_EVERY", 5*time.Minute),
		AutoApprove:    getenvBoolDefault("WORKER_AUTO_APPROVE", false),
	}

	if path := os.Getenv("WORKER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("WORKER_DAILY_AT", "02:00")
	}
	if len(cfg.Schedule.Wells) == 0 {
		cfg.Schedule.Wells = splitCSV(getenvDefault("WORKER_WELLS", ""))
	}
	if cfg.Schedule.PeriodDays <= 0 {
		cfg.Schedule.PeriodDays = getenvIntDefault("WORKER_PERIOD_DAYS", 1)
	}
	if cfg.AnchorBatch <= 0 {
		return cfg, errors.New("worker: anchor batch must be positive")
	}
	if _, _, err := parseDailyAt(cfg.Schedule.DailyAt); err != nil {
		return cfg, fmt.Errorf("worker: daily_at %q is not HH:MM: %w", cfg.Schedule.DailyAt, err)
	}
	if err := validateShares(cfg.Shares); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateShares(s PayoutShares) error {
	if s.OperatorBps < 0 || s.InvestorPoolBps < 0 || s.PlatformBps < 0 {
		return errors.New("worker: negative share")
	}
	total := s.OperatorBps + s.InvestorPoolBps + s.PlatformBps
	if total != 10000 {
		return fmt.Errorf("worker: shares must sum to 10000 bps, got %d", total)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
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
