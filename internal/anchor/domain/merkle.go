package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	eventstore "watergrid-cloud/internal/eventstore/domain"
)

// LeafHash hashes the canonical serialization of one event:
// messageId|type|payload|consensusTimestamp. The serialization is stable, so
// the same event always yields the same leaf.
func LeafHash(event eventstore.LedgerEvent) [sha256.Size]byte {
	var ts string
	if event.ConsensusTimestamp != nil {
		ts = event.ConsensusTimestamp.UTC().Format(time.RFC3339Nano)
	}
	h := sha256.New()
	h.Write([]byte(event.MessageID))
	h.Write([]byte{'|'})
	h.Write([]byte(event.Type))
	h.Write([]byte{'|'})
	h.Write(event.RawPayload)
	h.Write([]byte{'|'})
	h.Write([]byte(ts))
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// ComputeRoot builds a binary Merkle tree over the ordered leaves and returns
// the hex-encoded root. An odd level duplicates its last node for pairing.
// Callers order leaves by ascending consensus timestamp then message id so the
// root is reproducible from the same event set.
func ComputeRoot(leaves [][sha256.Size]byte) string {
	if len(leaves) == 0 {
		return ""
	}
	level := make([][sha256.Size]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][sha256.Size]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := sha256.New()
			combined.Write(level[i][:])
			combined.Write(level[i+1][:])
			var parent [sha256.Size]byte
			copy(parent[:], combined.Sum(nil))
			next = append(next, parent)
		}
		level = next
	}
	return hex.EncodeToString(level[0][:])
}

// BuildManifest hashes the events in their given order and returns the root
// with the ordered leaf manifest.
func BuildManifest(events []eventstore.LedgerEvent) Manifest {
	leaves := make([][sha256.Size]byte, 0, len(events))
	ids := make([]string, 0, len(events))
	for _, event := range events {
		leaves = append(leaves, LeafHash(event))
		ids = append(ids, event.MessageID)
	}
	return Manifest{
		MerkleRoot:   ComputeRoot(leaves),
		LeafCount:    len(events),
		LeafEventIDs: ids,
	}
}
