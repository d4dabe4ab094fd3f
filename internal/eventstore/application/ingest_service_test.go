package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	eventstore "watergrid-cloud/internal/eventstore/domain"
	eventmemory "watergrid-cloud/internal/eventstore/infrastructure/memory"
)

func meterMessage(messageID string, volume int64) InboundMessage {
	payload, _ := json.Marshal(map[string]any{"meterId": "mtr-1", "volumeUnits": volume})
	return InboundMessage{
		MessageID: messageID,
		WellID:    "well-1",
		Type:      string(eventstore.TypeMeterReading),
		Payload:   payload,
	}
}

func TestIngestPersistsConfirmedEvent(t *testing.T) {
	repo := eventmemory.NewEventRepository()
	svc, err := NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	consensus := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	accepted, err := svc.Ingest(context.Background(), meterMessage("msg-1", 500), consensus, 7)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !accepted {
		t.Fatal("expected first delivery to be accepted")
	}

	stored, err := repo.Get(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Confirmed() {
		t.Fatal("expected event to carry consensus metadata")
	}
	if stored.ConsensusTimestamp == nil || !stored.ConsensusTimestamp.Equal(consensus) {
		t.Fatalf("consensus timestamp not preserved: %v", stored.ConsensusTimestamp)
	}
	if stored.MeterVolume() != 500 {
		t.Fatalf("expected volume 500, got %d", stored.MeterVolume())
	}
}

func TestIngestAbsorbsRedelivery(t *testing.T) {
	repo := eventmemory.NewEventRepository()
	svc, err := NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	consensus := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	if _, err := svc.Ingest(context.Background(), meterMessage("msg-1", 500), consensus, 7); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	// Redelivery with a different payload: the stored event must not change.
	accepted, err := svc.Ingest(context.Background(), meterMessage("msg-1", 999), consensus.Add(time.Second), 8)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if accepted {
		t.Fatal("expected redelivery to be rejected as duplicate")
	}

	stored, err := repo.Get(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.MeterVolume() != 500 {
		t.Fatalf("duplicate overwrote the event: volume %d", stored.MeterVolume())
	}
	count, _ := repo.Count(context.Background(), "")
	if count != 1 {
		t.Fatalf("expected one stored event, got %d", count)
	}
}

func TestIngestConcurrentSameMessageID(t *testing.T) {
	repo := eventmemory.NewEventRepository()
	svc, err := NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	consensus := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	const workers = 16
	var wg sync.WaitGroup
	acceptedCount := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted, err := svc.Ingest(context.Background(), meterMessage("msg-race", 100), consensus, 1)
			if err != nil {
				t.Errorf("ingest: %v", err)
				return
			}
			acceptedCount <- accepted
		}()
	}
	wg.Wait()
	close(acceptedCount)

	var wins int
	for accepted := range acceptedCount {
		if accepted {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	count, _ := repo.Count(context.Background(), "")
	if count != 1 {
		t.Fatalf("expected one stored event, got %d", count)
	}
}

func TestIngestRejectsMissingIdentity(t *testing.T) {
	repo := eventmemory.NewEventRepository()
	svc, err := NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	msg := meterMessage("", 10)
	if _, err := svc.IngestLocal(context.Background(), msg); err == nil {
		t.Fatal("expected error for empty message id")
	}

	msg = meterMessage("msg-2", 10)
	msg.WellID = ""
	if _, err := svc.IngestLocal(context.Background(), msg); err == nil {
		t.Fatal("expected error for empty well id")
	}
}

func TestIngestLocalLeavesUnconfirmed(t *testing.T) {
	repo := eventmemory.NewEventRepository()
	svc, err := NewIngestService(repo, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.IngestLocal(context.Background(), meterMessage("msg-local", 42)); err != nil {
		t.Fatalf("ingest local: %v", err)
	}
	stored, err := repo.Get(context.Background(), "msg-local")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Confirmed() {
		t.Fatal("local event must not carry consensus metadata")
	}
}
