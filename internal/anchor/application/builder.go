package application

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	anchor "watergrid-cloud/internal/anchor/domain"
	ingest "watergrid-cloud/internal/eventstore/application"
	eventstore "watergrid-cloud/internal/eventstore/domain"
	"watergrid-cloud/internal/ledger"
	"watergrid-cloud/internal/observability/metrics"
	wells "watergrid-cloud/internal/wells/domain"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// anchorRootPayload is the message body published with a Merkle root.
type anchorRootPayload struct {
	AnchorID   string `json:"anchorId"`
	MerkleRoot string `json:"merkleRoot"`
	LeafCount  int    `json:"leafCount"`
}

// Builder batches unanchored events into Merkle-anchored snapshots. The leaf
// claim happens before any ledger call, so a concurrent build cannot select
// the same events.
type Builder struct {
	events       eventstore.Repository
	anchors      anchor.Repository
	gateway      ledger.Gateway
	wells        wells.Repository
	defaultTopic string
	clock        Clock
	logger       *log.Logger
}

// NewBuilder constructs a builder. The gateway may be nil for preview-only use.
func NewBuilder(
	events eventstore.Repository,
	anchors anchor.Repository,
	gateway ledger.Gateway,
	wellsRepo wells.Repository,
	defaultTopic string,
	clock Clock,
	logger *log.Logger,
) (*Builder, error) {
	if events == nil {
		return nil, errors.New("anchor builder: nil event repository")
	}
	if anchors == nil {
		return nil, errors.New("anchor builder: nil anchor repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		events:       events,
		anchors:      anchors,
		gateway:      gateway,
		wells:        wellsRepo,
		defaultTopic: defaultTopic,
		clock:        clock,
		logger:       logger,
	}, nil
}

// Preview computes the root and manifest for the next batch without
// persisting or anchoring anything.
func (b *Builder) Preview(ctx context.Context, wellID string, maxLeaves int) (anchor.Manifest, error) {
	events, err := b.events.ListUnanchored(ctx, wellID, maxLeaves)
	if err != nil {
		return anchor.Manifest{}, err
	}
	if len(events) == 0 {
		return anchor.Manifest{}, anchor.ErrNoLeaves
	}
	return anchor.BuildManifest(events), nil
}

// Execute claims the next batch, persists an AnchorRecord, and submits the
// root to the ledger. A failed submission leaves the record with an empty
// anchor tx id for the worker to retry; the record is never dropped, because
// its leaves are already excluded from future batches.
func (b *Builder) Execute(ctx context.Context, wellID string, maxLeaves int) (*anchor.AnchorRecord, error) {
	start := b.clock.Now()
	events, err := b.events.ListUnanchored(ctx, wellID, maxLeaves)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, anchor.ErrNoLeaves
	}

	manifest := anchor.BuildManifest(events)
	record := anchor.AnchorRecord{
		ID:           anchor.NewAnchorID(),
		WellID:       wellID,
		MerkleRoot:   manifest.MerkleRoot,
		LeafCount:    manifest.LeafCount,
		LeafEventIDs: manifest.LeafEventIDs,
		AnchoredAt:   b.clock.Now(),
	}

	if err := b.events.ClaimForAnchor(ctx, record.ID, record.LeafEventIDs); err != nil {
		metrics.ObserveAnchorBuild(metrics.ResultError, 0, b.clock.Now().Sub(start))
		return nil, err
	}
	if err := b.anchors.Create(ctx, record); err != nil {
		if releaseErr := b.events.ReleaseClaim(ctx, record.ID); releaseErr != nil {
			b.logger.Printf("anchor claim release error: anchor=%s err=%v", record.ID, releaseErr)
		}
		metrics.ObserveAnchorBuild(metrics.ResultError, 0, b.clock.Now().Sub(start))
		return nil, err
	}
	metrics.ObserveAnchorBuild(metrics.ResultSuccess, record.LeafCount, b.clock.Now().Sub(start))

	if txID, err := b.submit(ctx, &record); err != nil {
		b.logger.Printf("anchor submission deferred: anchor=%s well=%s err=%v", record.ID, wellID, err)
	} else {
		record.AnchorTxID = txID
	}
	return &record, nil
}

// RetryUnsubmitted re-submits every anchor whose root has not reached the
// ledger yet.
func (b *Builder) RetryUnsubmitted(ctx context.Context) error {
	pending, err := b.anchors.ListUnsubmitted(ctx)
	if err != nil {
		return err
	}
	for _, record := range pending {
		if txID, err := b.submit(ctx, &record); err != nil {
			b.logger.Printf("anchor retry failed: anchor=%s err=%v", record.ID, err)
		} else {
			b.logger.Printf("anchor submitted on retry: anchor=%s tx=%s", record.ID, txID)
		}
	}
	return nil
}

func (b *Builder) submit(ctx context.Context, record *anchor.AnchorRecord) (string, error) {
	if b.gateway == nil {
		return "", errors.New("anchor builder: no gateway configured")
	}
	payload, err := json.Marshal(anchorRootPayload{
		AnchorID:   record.ID,
		MerkleRoot: record.MerkleRoot,
		LeafCount:  record.LeafCount,
	})
	if err != nil {
		return "", err
	}
	contents, err := json.Marshal(ingest.InboundMessage{
		MessageID: record.ID,
		WellID:    record.WellID,
		Type:      "ANCHOR_ROOT",
		Payload:   payload,
	})
	if err != nil {
		return "", err
	}

	result, err := b.gateway.Submit(ctx, b.topicFor(ctx, record.WellID), contents)
	if err != nil {
		return "", err
	}
	if err := b.anchors.SetAnchorTx(ctx, record.ID, result.TxID); err != nil {
		return "", err
	}
	return result.TxID, nil
}

func (b *Builder) topicFor(ctx context.Context, wellID string) string {
	if b.wells != nil {
		if well, err := b.wells.GetWell(ctx, wellID); err == nil && well.TopicID != "" {
			return well.TopicID
		}
	}
	return b.defaultTopic
}
