package interfaces

import (
	"context"
	"encoding/json"
	"testing"

	"watergrid-cloud/internal/eventstore/application"
	eventstore "watergrid-cloud/internal/eventstore/domain"
	eventmemory "watergrid-cloud/internal/eventstore/infrastructure/memory"
	ledgermemory "watergrid-cloud/internal/ledger/memory"
)

func submitMeterReading(t *testing.T, gateway *ledgermemory.Gateway, topicID, messageID string, volume int64) {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{"meterId": "mtr-1", "volumeUnits": volume})
	contents, _ := json.Marshal(application.InboundMessage{
		MessageID: messageID,
		WellID:    "well-1",
		Type:      string(eventstore.TypeMeterReading),
		Payload:   payload,
	})
	if _, err := gateway.Submit(context.Background(), topicID, contents); err != nil {
		t.Fatalf("submit %s: %v", messageID, err)
	}
}

func TestPollOnceIngestsTopicMessages(t *testing.T) {
	gateway := ledgermemory.NewGateway()
	repo := eventmemory.NewEventRepository()
	ingest, err := application.NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("ingest service: %v", err)
	}
	poller, err := NewTopicPoller(gateway, ingest, "0.0.9001", 0, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}

	submitMeterReading(t, gateway, "0.0.9001", "msg-1", 100)
	submitMeterReading(t, gateway, "0.0.9001", "msg-2", 200)

	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	count, _ := repo.Count(context.Background(), "well-1")
	if count != 2 {
		t.Fatalf("expected 2 events, got %d", count)
	}
	stored, err := repo.Get(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Confirmed() {
		t.Fatal("polled events must carry consensus metadata")
	}
}

func TestPollOnceAdvancesCursor(t *testing.T) {
	gateway := ledgermemory.NewGateway()
	repo := eventmemory.NewEventRepository()
	ingest, err := application.NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("ingest service: %v", err)
	}
	poller, err := NewTopicPoller(gateway, ingest, "0.0.9001", 0, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}

	submitMeterReading(t, gateway, "0.0.9001", "msg-1", 100)
	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("first poll: %v", err)
	}

	submitMeterReading(t, gateway, "0.0.9001", "msg-2", 200)
	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	count, _ := repo.Count(context.Background(), "well-1")
	if count != 2 {
		t.Fatalf("expected 2 events, got %d", count)
	}
}

func TestPollOnceSkipsUndecodableMessages(t *testing.T) {
	gateway := ledgermemory.NewGateway()
	repo := eventmemory.NewEventRepository()
	ingest, err := application.NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("ingest service: %v", err)
	}
	poller, err := NewTopicPoller(gateway, ingest, "0.0.9001", 0, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}

	if _, err := gateway.Submit(context.Background(), "0.0.9001", []byte("not json")); err != nil {
		t.Fatalf("submit garbage: %v", err)
	}
	submitMeterReading(t, gateway, "0.0.9001", "msg-1", 100)

	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	count, _ := repo.Count(context.Background(), "well-1")
	if count != 1 {
		t.Fatalf("expected the decodable event only, got %d", count)
	}

	// The garbage message does not wedge the cursor.
	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("repoll: %v", err)
	}
	count, _ = repo.Count(context.Background(), "well-1")
	if count != 1 {
		t.Fatalf("expected no duplicates, got %d", count)
	}
}

func TestPollOnceRestartOverlapIsDeduped(t *testing.T) {
	gateway := ledgermemory.NewGateway()
	repo := eventmemory.NewEventRepository()
	ingest, err := application.NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("ingest service: %v", err)
	}

	submitMeterReading(t, gateway, "0.0.9001", "msg-1", 100)
	submitMeterReading(t, gateway, "0.0.9001", "msg-2", 200)

	first, err := NewTopicPoller(gateway, ingest, "0.0.9001", 0, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	if err := first.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// A fresh poller re-reads from sequence zero; dedup absorbs the overlap.
	second, err := NewTopicPoller(gateway, ingest, "0.0.9001", 0, nil)
	if err != nil {
		t.Fatalf("restarted poller: %v", err)
	}
	if err := second.PollOnce(context.Background()); err != nil {
		t.Fatalf("repoll: %v", err)
	}
	count, _ := repo.Count(context.Background(), "well-1")
	if count != 2 {
		t.Fatalf("expected 2 events after restart overlap, got %d", count)
	}
}
