package anchor

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	eventstore "watergrid-cloud/internal/eventstore/domain"
)

func confirmedEvent(messageID string, sequence int64, ts time.Time, volume int64) eventstore.LedgerEvent {
	raw, _ := json.Marshal(map[string]any{"meterId": "mtr-1", "volumeUnits": volume})
	return eventstore.LedgerEvent{
		MessageID:          messageID,
		WellID:             "well-1",
		Type:               eventstore.TypeMeterReading,
		RawPayload:         raw,
		ConsensusTimestamp: &ts,
		SequenceNumber:     &sequence,
		ReceivedAt:         ts,
	}
}

func eventBatch(n int) []eventstore.LedgerEvent {
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	events := make([]eventstore.LedgerEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, confirmedEvent(fmt.Sprintf("msg-%03d", i), int64(i+1), base.Add(time.Duration(i)*time.Minute), int64(100+i)))
	}
	return events
}

func TestComputeRootDeterministic(t *testing.T) {
	events := eventBatch(5)
	first := BuildManifest(events)
	second := BuildManifest(events)
	if first.MerkleRoot == "" {
		t.Fatal("expected non-empty root")
	}
	if first.MerkleRoot != second.MerkleRoot {
		t.Fatalf("same leaves gave different roots: %s vs %s", first.MerkleRoot, second.MerkleRoot)
	}
	if first.LeafCount != 5 || len(first.LeafEventIDs) != 5 {
		t.Fatalf("manifest leaf bookkeeping wrong: %+v", first)
	}
}

func TestComputeRootSensitiveToLeafChange(t *testing.T) {
	events := eventBatch(4)
	original := BuildManifest(events).MerkleRoot

	mutated := eventBatch(4)
	mutated[2].RawPayload, _ = json.Marshal(map[string]any{"meterId": "mtr-1", "volumeUnits": 9999})
	if BuildManifest(mutated).MerkleRoot == original {
		t.Fatal("payload mutation did not change the root")
	}
}

func TestComputeRootSensitiveToOrder(t *testing.T) {
	events := eventBatch(4)
	original := BuildManifest(events).MerkleRoot

	swapped := eventBatch(4)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	if BuildManifest(swapped).MerkleRoot == original {
		t.Fatal("leaf reorder did not change the root")
	}
}

func TestComputeRootSingleLeaf(t *testing.T) {
	events := eventBatch(1)
	leaf := LeafHash(events[0])
	root := ComputeRoot([][sha256.Size]byte{leaf})
	if root != BuildManifest(events).MerkleRoot {
		t.Fatal("single-leaf manifest root mismatch")
	}
}

func TestComputeRootOddLeafDuplicatesLast(t *testing.T) {
	events := eventBatch(3)
	leaves := make([][sha256.Size]byte, 0, 3)
	for _, event := range events {
		leaves = append(leaves, LeafHash(event))
	}

	// Three leaves pair as (0,1) and (2,2).
	pair := func(a, b [sha256.Size]byte) [sha256.Size]byte {
		h := sha256.New()
		h.Write(a[:])
		h.Write(b[:])
		var sum [sha256.Size]byte
		copy(sum[:], h.Sum(nil))
		return sum
	}
	left := pair(leaves[0], leaves[1])
	right := pair(leaves[2], leaves[2])
	want := pair(left, right)

	if got := ComputeRoot(leaves); got != fmt.Sprintf("%x", want) {
		t.Fatalf("odd-leaf root mismatch: got %s", got)
	}
}

func TestComputeRootEmpty(t *testing.T) {
	if root := ComputeRoot(nil); root != "" {
		t.Fatalf("expected empty root for no leaves, got %s", root)
	}
}

func TestLeafHashUsesConsensusTimestamp(t *testing.T) {
	a := confirmedEvent("msg-1", 1, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), 10)
	b := confirmedEvent("msg-1", 1, time.Date(2026, time.March, 1, 0, 0, 1, 0, time.UTC), 10)
	if LeafHash(a) == LeafHash(b) {
		t.Fatal("consensus timestamp must contribute to the leaf hash")
	}
}
