package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	anchorapp "watergrid-cloud/internal/anchor/application"
	anchor "watergrid-cloud/internal/anchor/domain"
	"watergrid-cloud/internal/audit"
	eventapp "watergrid-cloud/internal/eventstore/application"
	eventstore "watergrid-cloud/internal/eventstore/domain"
	"watergrid-cloud/internal/observability/metrics"
	payout "watergrid-cloud/internal/payout/domain"
	settlementapp "watergrid-cloud/internal/settlement/application"
	settlement "watergrid-cloud/internal/settlement/domain"
	wells "watergrid-cloud/internal/wells/domain"
)

const timeLayout = time.RFC3339

// WellsHandler serves well registration and listing.
type WellsHandler struct {
	repo wells.Repository
}

// NewWellsHandler constructs a WellsHandler.
func NewWellsHandler(repo wells.Repository) *WellsHandler {
	return &WellsHandler{repo: repo}
}

type wellRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Location        string `json:"location"`
	TopicID         string `json:"topicId"`
	TokenID         string `json:"tokenId"`
	TreasuryAccount string `json:"treasuryAccount"`
}

type wellView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Location        string    `json:"location"`
	TopicID         string    `json:"topicId"`
	TokenID         string    `json:"tokenId"`
	TreasuryAccount string    `json:"treasuryAccount"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toWellView(w wells.Well) wellView {
	return wellView{
		ID:              w.ID,
		Name:            w.Name,
		Location:        w.Location,
		TopicID:         w.TopicID,
		TokenID:         w.TokenID,
		TreasuryAccount: w.TreasuryAcct,
		CreatedAt:       w.CreatedAt,
	}
}

// ServeHTTP handles /api/v1/wells and /api/v1/wells/{id}/memberships.
func (h *WellsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Path == "/api/v1/wells" {
		switch r.Method {
		case http.MethodPost:
			h.create(w, r)
		case http.MethodGet:
			h.list(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/wells/")
	parts := strings.Split(rest, "/")
	if len(parts) == 2 && parts[1] == "memberships" {
		switch r.Method {
		case http.MethodPost:
			h.addMembership(w, r, parts[0])
		case http.MethodGet:
			h.listMemberships(w, r, parts[0])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	http.NotFound(w, r)
}

func (h *WellsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req wellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Name == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}
	well := wells.Well{
		ID:           req.ID,
		Name:         req.Name,
		Location:     req.Location,
		TopicID:      req.TopicID,
		TokenID:      req.TokenID,
		TreasuryAcct: req.TreasuryAccount,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.repo.CreateWell(r.Context(), well); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, toWellView(well))
}

func (h *WellsHandler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.ListWells(r.Context())
	if err != nil {
		http.Error(w, "list wells error", http.StatusInternalServerError)
		return
	}
	views := make([]wellView, 0, len(all))
	for _, well := range all {
		views = append(views, toWellView(well))
	}
	writeJSON(w, http.StatusOK, views)
}

type membershipRequest struct {
	UserID           string `json:"userId"`
	Account          string `json:"account"`
	Role             string `json:"role"`
	ShareBasisPoints int    `json:"shareBasisPoints"`
}

type membershipView struct {
	WellID           string    `json:"wellId"`
	UserID           string    `json:"userId"`
	Account          string    `json:"account"`
	Role             string    `json:"role"`
	ShareBasisPoints int       `json:"shareBasisPoints"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (h *WellsHandler) addMembership(w http.ResponseWriter, r *http.Request, wellID string) {
	var req membershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	membership := wells.Membership{
		WellID:           wellID,
		UserID:           req.UserID,
		Account:          req.Account,
		Role:             wells.Role(req.Role),
		ShareBasisPoints: req.ShareBasisPoints,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.repo.AddMembership(r.Context(), membership); err != nil {
		switch {
		case errors.Is(err, wells.ErrWellNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, wells.ErrInvestorSharesExceeded),
			errors.Is(err, wells.ErrInvalidShare),
			errors.Is(err, wells.ErrInvalidRole):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "add membership error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *WellsHandler) listMemberships(w http.ResponseWriter, r *http.Request, wellID string) {
	memberships, err := h.repo.ListMemberships(r.Context(), wellID)
	if err != nil {
		http.Error(w, "list memberships error", http.StatusInternalServerError)
		return
	}
	views := make([]membershipView, 0, len(memberships))
	for _, m := range memberships {
		views = append(views, membershipView{
			WellID:           m.WellID,
			UserID:           m.UserID,
			Account:          m.Account,
			Role:             string(m.Role),
			ShareBasisPoints: m.ShareBasisPoints,
			CreatedAt:        m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// EventsHandler serves local event ingestion and event log queries.
type EventsHandler struct {
	ingest *eventapp.IngestService
	repo   eventstore.Repository
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(ingest *eventapp.IngestService, repo eventstore.Repository) *EventsHandler {
	return &EventsHandler{ingest: ingest, repo: repo}
}

type eventView struct {
	MessageID          string          `json:"messageId"`
	WellID             string          `json:"wellId"`
	Type               string          `json:"type"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	ConsensusTimestamp *time.Time      `json:"consensusTimestamp,omitempty"`
	SequenceNumber     *int64          `json:"sequenceNumber,omitempty"`
	ReceivedAt         time.Time       `json:"receivedAt"`
}

func toEventView(e eventstore.LedgerEvent) eventView {
	return eventView{
		MessageID:          e.MessageID,
		WellID:             e.WellID,
		Type:               string(e.Type),
		Payload:            e.RawPayload,
		ConsensusTimestamp: e.ConsensusTimestamp,
		SequenceNumber:     e.SequenceNumber,
		ReceivedAt:         e.ReceivedAt,
	}
}

// ServeHTTP handles /api/v1/events.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.ingest == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.post(w, r)
	case http.MethodGet:
		h.query(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *EventsHandler) post(w http.ResponseWriter, r *http.Request) {
	var msg eventapp.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg.MessageID == "" {
		msg.MessageID = eventstore.NewMessageID()
	}
	accepted, err := h.ingest.IngestLocal(r.Context(), msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status := http.StatusCreated
	if !accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"messageId": msg.MessageID,
		"accepted":  accepted,
	})
}

func (h *EventsHandler) query(w http.ResponseWriter, r *http.Request) {
	q := eventstore.Query{
		WellID: r.URL.Query().Get("well_id"),
		Type:   eventstore.EventType(r.URL.Query().Get("type")),
	}
	var err error
	if q.From, err = parseOptionalTimeQuery(r, "from"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.To, err = parseOptionalTimeQuery(r, "to"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := h.repo.List(r.Context(), q)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, toEventView(event))
	}
	writeJSON(w, http.StatusOK, views)
}

// SettlementsHandler serves the settlement lifecycle.
type SettlementsHandler struct {
	service *settlementapp.Service
	payouts payout.Repository
}

// NewSettlementsHandler constructs a SettlementsHandler.
func NewSettlementsHandler(service *settlementapp.Service, payouts payout.Repository) *SettlementsHandler {
	return &SettlementsHandler{service: service, payouts: payouts}
}

type settlementRequest struct {
	WellID      string `json:"wellId"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type settlementView struct {
	ID                string    `json:"id"`
	WellID            string    `json:"wellId"`
	PeriodStart       time.Time `json:"periodStart"`
	PeriodEnd         time.Time `json:"periodEnd"`
	UsageTotal        int64     `json:"usageTotal"`
	GrossRevenueMinor int64     `json:"grossRevenueMinor"`
	Status            string    `json:"status"`
	RejectReason      string    `json:"rejectReason,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toSettlementView(s *settlement.Settlement) settlementView {
	period := s.Period()
	return settlementView{
		ID:                s.ID(),
		WellID:            s.WellID(),
		PeriodStart:       period.Start,
		PeriodEnd:         period.End,
		UsageTotal:        s.UsageTotal(),
		GrossRevenueMinor: s.GrossRevenueMinor(),
		Status:            string(s.Status()),
		RejectReason:      s.RejectReason(),
		CreatedAt:         s.CreatedAt(),
		UpdatedAt:         s.UpdatedAt(),
	}
}

type payoutView struct {
	SettlementID     string    `json:"settlementId"`
	RecipientAccount string    `json:"recipientAccount"`
	UserID           string    `json:"userId,omitempty"`
	Role             string    `json:"role"`
	AmountMinor      int64     `json:"amountMinor"`
	Status           string    `json:"status"`
	ExternalTxID     string    `json:"externalTxId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toPayoutView(p payout.Payout) payoutView {
	return payoutView{
		SettlementID:     p.SettlementID,
		RecipientAccount: p.RecipientAccount,
		UserID:           p.UserID,
		Role:             string(p.Role),
		AmountMinor:      p.AmountMinor,
		Status:           string(p.Status),
		ExternalTxID:     p.ExternalTxID,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// ServeHTTP handles /api/v1/settlements and /api/v1/settlements/{id}/...
func (h *SettlementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Path == "/api/v1/settlements" {
		switch r.Method {
		case http.MethodPost:
			h.request(w, r)
		case http.MethodGet:
			h.list(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/settlements/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.get(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "payouts" && r.Method == http.MethodGet:
		h.listPayouts(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.transition(w, r, parts[0], parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (h *SettlementsHandler) request(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WellID == "" {
		http.Error(w, "wellId is required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(timeLayout, req.PeriodStart)
	if err != nil {
		http.Error(w, "periodStart must be RFC3339", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(timeLayout, req.PeriodEnd)
	if err != nil {
		http.Error(w, "periodEnd must be RFC3339", http.StatusBadRequest)
		return
	}
	created, err := h.service.RequestSettlement(r.Context(), req.WellID, start, end)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementView(created))
}

func (h *SettlementsHandler) list(w http.ResponseWriter, r *http.Request) {
	wellID := r.URL.Query().Get("well_id")
	all, err := h.service.ListByWell(r.Context(), wellID)
	if err != nil {
		http.Error(w, "list settlements error", http.StatusInternalServerError)
		return
	}
	views := make([]settlementView, 0, len(all))
	for _, s := range all {
		views = append(views, toSettlementView(s))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *SettlementsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	aggregate, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementView(aggregate))
}

func (h *SettlementsHandler) listPayouts(w http.ResponseWriter, r *http.Request, id string) {
	if h.payouts == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	all, err := h.payouts.ListBySettlement(r.Context(), id)
	if err != nil {
		http.Error(w, "list payouts error", http.StatusInternalServerError)
		return
	}
	views := make([]payoutView, 0, len(all))
	for _, p := range all {
		views = append(views, toPayoutView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *SettlementsHandler) transition(w http.ResponseWriter, r *http.Request, id, action string) {
	var (
		aggregate *settlement.Settlement
		err       error
	)
	switch action {
	case "approve":
		aggregate, err = h.service.Approve(r.Context(), id)
	case "reject":
		var req rejectRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		aggregate, err = h.service.Reject(r.Context(), id, req.Reason)
	case "execute":
		aggregate, err = h.service.Execute(r.Context(), id)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementView(aggregate))
}

func writeSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrSettlementNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, settlement.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, settlement.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, settlement.ErrInvalidPeriod), errors.Is(err, settlement.ErrEmptyWellID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "settlement error", http.StatusInternalServerError)
	}
}

// AnchorsHandler serves anchor builds and queries.
type AnchorsHandler struct {
	builder *anchorapp.Builder
	repo    anchor.Repository
}

// NewAnchorsHandler constructs an AnchorsHandler.
func NewAnchorsHandler(builder *anchorapp.Builder, repo anchor.Repository) *AnchorsHandler {
	return &AnchorsHandler{builder: builder, repo: repo}
}

type anchorBuildRequest struct {
	WellID    string `json:"wellId"`
	MaxLeaves int    `json:"maxLeaves"`
}

type anchorView struct {
	ID           string    `json:"id"`
	WellID       string    `json:"wellId"`
	MerkleRoot   string    `json:"merkleRoot"`
	LeafCount    int       `json:"leafCount"`
	LeafEventIDs []string  `json:"leafEventIds,omitempty"`
	AnchoredAt   time.Time `json:"anchoredAt"`
	AnchorTxID   string    `json:"anchorTxId,omitempty"`
}

func toAnchorView(record anchor.AnchorRecord) anchorView {
	return anchorView{
		ID:           record.ID,
		WellID:       record.WellID,
		MerkleRoot:   record.MerkleRoot,
		LeafCount:    record.LeafCount,
		LeafEventIDs: record.LeafEventIDs,
		AnchoredAt:   record.AnchoredAt,
		AnchorTxID:   record.AnchorTxID,
	}
}

// ServeHTTP handles /api/v1/anchors.
func (h *AnchorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.builder == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.build(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *AnchorsHandler) build(w http.ResponseWriter, r *http.Request) {
	var req anchorBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WellID == "" {
		http.Error(w, "wellId is required", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("preview") == "true" {
		manifest, err := h.builder.Preview(r.Context(), req.WellID, req.MaxLeaves)
		if err != nil {
			writeAnchorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"merkleRoot":   manifest.MerkleRoot,
			"leafCount":    manifest.LeafCount,
			"leafEventIds": manifest.LeafEventIDs,
		})
		return
	}

	record, err := h.builder.Execute(r.Context(), req.WellID, req.MaxLeaves)
	if err != nil {
		writeAnchorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnchorView(*record))
}

func (h *AnchorsHandler) list(w http.ResponseWriter, r *http.Request) {
	wellID := r.URL.Query().Get("well_id")
	records, err := h.repo.ListByWell(r.Context(), wellID)
	if err != nil {
		http.Error(w, "list anchors error", http.StatusInternalServerError)
		return
	}
	views := make([]anchorView, 0, len(records))
	for _, record := range records {
		views = append(views, toAnchorView(record))
	}
	writeJSON(w, http.StatusOK, views)
}

func writeAnchorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, anchor.ErrNoLeaves):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, eventstore.ErrLeavesClaimed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "anchor error", http.StatusInternalServerError)
	}
}

// ReportsHandler serves audit report queries and exports.
type ReportsHandler struct {
	reporter *audit.Reporter
}

// NewReportsHandler constructs a ReportsHandler.
func NewReportsHandler(reporter *audit.Reporter) *ReportsHandler {
	return &ReportsHandler{reporter: reporter}
}

// ServeHTTP handles /api/v1/reports and /api/v1/reports/export.
func (h *ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.reporter == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/reports":
		h.report(w, r)
	case "/api/v1/reports/export":
		h.export(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *ReportsHandler) report(w http.ResponseWriter, r *http.Request) {
	wellID := r.URL.Query().Get("well_id")
	asOf, err := parseOptionalTimeQuery(r, "as_of")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, err := h.reporter.Report(r.Context(), wellID, asOf)
	if err != nil {
		http.Error(w, "report error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportsHandler) export(w http.ResponseWriter, r *http.Request) {
	format, err := audit.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wellID := r.URL.Query().Get("well_id")
	report, err := h.reporter.Report(r.Context(), wellID, time.Time{})
	if err != nil {
		http.Error(w, "report error", http.StatusInternalServerError)
		return
	}
	rows, err := h.reporter.Rows(r.Context(), wellID)
	if err != nil {
		http.Error(w, "report rows error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	switch format {
	case audit.FormatCSV:
		err = audit.WriteCSV(w, rows)
	case audit.FormatXLSX:
		var data []byte
		if data, err = audit.BuildXLSX(report, rows); err == nil {
			_, err = w.Write(data)
		}
	case audit.FormatPDF:
		var data []byte
		if data, err = audit.BuildPDF(report, rows); err == nil {
			_, err = w.Write(data)
		}
	default:
		err = audit.WriteJSON(w, report, rows)
	}
	if err != nil {
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport(string(format))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseOptionalTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
