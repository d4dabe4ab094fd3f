package audit

import (
	"context"
	"errors"
	"time"

	anchor "watergrid-cloud/internal/anchor/domain"
	eventstore "watergrid-cloud/internal/eventstore/domain"
	settlement "watergrid-cloud/internal/settlement/domain"
)

// Report is an aggregated audit snapshot. Purely read-side.
type Report struct {
	WellID          string               `json:"wellId,omitempty"`
	AsOf            time.Time            `json:"asOf"`
	EventCount      int64                `json:"eventCount"`
	SettlementCount int64                `json:"settlementCount"`
	AnchorCount     int64                `json:"anchorCount"`
	LatestAnchor    *anchor.AnchorRecord `json:"latestAnchor,omitempty"`
}

// Row is one line of the flat tabular export. Section discriminates between
// event, settlement and anchor rows.
type Row struct {
	Section      string    `json:"section"`
	TxID         string    `json:"txId"`
	Type         string    `json:"type"`
	TS           time.Time `json:"ts"`
	WellID       string    `json:"wellId"`
	VolumeLiters int64     `json:"volumeLiters"`
}

const (
	SectionEvent      = "event"
	SectionSettlement = "settlement"
	SectionAnchor     = "anchor"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Reporter aggregates counts and snapshots across the stores.
type Reporter struct {
	events      eventstore.Repository
	settlements settlement.Repository
	anchors     anchor.Repository
	clock       Clock
}

// NewReporter constructs a reporter.
func NewReporter(events eventstore.Repository, settlements settlement.Repository, anchors anchor.Repository, clock Clock) (*Reporter, error) {
	if events == nil {
		return nil, errors.New("audit reporter: nil event repository")
	}
	if settlements == nil {
		return nil, errors.New("audit reporter: nil settlement repository")
	}
	if anchors == nil {
		return nil, errors.New("audit reporter: nil anchor repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reporter{events: events, settlements: settlements, anchors: anchors, clock: clock}, nil
}

// Report aggregates counts and the latest anchor, optionally filtered by
// well. A zero asOf stamps the snapshot with the current time.
func (r *Reporter) Report(ctx context.Context, wellID string, asOf time.Time) (Report, error) {
	if asOf.IsZero() {
		asOf = r.clock.Now()
	}
	eventCount, err := r.events.Count(ctx, wellID)
	if err != nil {
		return Report{}, err
	}
	settlementCount, err := r.settlements.Count(ctx, wellID)
	if err != nil {
		return Report{}, err
	}
	anchorCount, err := r.anchors.Count(ctx, wellID)
	if err != nil {
		return Report{}, err
	}
	latest, err := r.anchors.Latest(ctx, wellID)
	if err != nil {
		return Report{}, err
	}
	return Report{
		WellID:          wellID,
		AsOf:            asOf.UTC(),
		EventCount:      eventCount,
		SettlementCount: settlementCount,
		AnchorCount:     anchorCount,
		LatestAnchor:    latest,
	}, nil
}

// Rows flattens events, settlements and anchors into the tabular export form,
// one row per record.
func (r *Reporter) Rows(ctx context.Context, wellID string) ([]Row, error) {
	events, err := r.events.List(ctx, eventstore.Query{WellID: wellID})
	if err != nil {
		return nil, err
	}
	settlements, err := r.settlements.ListByWell(ctx, wellID)
	if err != nil {
		return nil, err
	}
	anchors, err := r.anchors.ListByWell(ctx, wellID)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(events)+len(settlements)+len(anchors))
	for _, event := range events {
		ts := event.ReceivedAt
		if event.ConsensusTimestamp != nil {
			ts = *event.ConsensusTimestamp
		}
		rows = append(rows, Row{
			Section:      SectionEvent,
			TxID:         event.MessageID,
			Type:         string(event.Type),
			TS:           ts,
			WellID:       event.WellID,
			VolumeLiters: event.MeterVolume(),
		})
	}
	for _, aggregate := range settlements {
		rows = append(rows, Row{
			Section:      SectionSettlement,
			TxID:         aggregate.ID(),
			Type:         string(aggregate.Status()),
			TS:           aggregate.CreatedAt(),
			WellID:       aggregate.WellID(),
			VolumeLiters: aggregate.UsageTotal(),
		})
	}
	for _, record := range anchors {
		txID := record.AnchorTxID
		if txID == "" {
			txID = record.ID
		}
		rows = append(rows, Row{
			Section: SectionAnchor,
			TxID:    txID,
			Type:    "MERKLE_ROOT",
			TS:      record.AnchoredAt,
			WellID:  record.WellID,
		})
	}
	return rows, nil
}
