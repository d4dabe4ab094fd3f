package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"watergrid-cloud/internal/ledger"
)

// Gateway is an in-memory ledger used by tests and demo mode. Each topic is an
// ordered log with monotonic sequence numbers. It does not dedup submissions,
// matching the at-least-once contract of the real channel.
type Gateway struct {
	mu     sync.Mutex
	topics map[string][]ledger.TopicMessage
	nextTx int64

	failSubmit   bool
	failTransfer map[string]bool
}

// NewGateway constructs an empty in-memory gateway.
func NewGateway() *Gateway {
	return &Gateway{
		topics:       make(map[string][]ledger.TopicMessage),
		failTransfer: make(map[string]bool),
	}
}

// FailSubmissions makes every Submit call return a gateway error.
func (g *Gateway) FailSubmissions(fail bool) {
	g.mu.Lock()
	g.failSubmit = fail
	g.mu.Unlock()
}

// FailTransfersTo makes transfers to the given account fail.
func (g *Gateway) FailTransfersTo(account string) {
	g.mu.Lock()
	g.failTransfer[account] = true
	g.mu.Unlock()
}

// Submit appends a message to the topic log.
func (g *Gateway) Submit(ctx context.Context, topicID string, message []byte) (ledger.SubmitResult, error) {
	_ = ctx
	if topicID == "" {
		return ledger.SubmitResult{}, errors.New("memory gateway: empty topic id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSubmit {
		return ledger.SubmitResult{}, ledger.WrapGatewayError("submit", errors.New("memory gateway: submission disabled"))
	}

	contents := make([]byte, len(message))
	copy(contents, message)
	sequence := int64(len(g.topics[topicID]) + 1)
	g.topics[topicID] = append(g.topics[topicID], ledger.TopicMessage{
		TopicID:            topicID,
		SequenceNumber:     sequence,
		ConsensusTimestamp: time.Now().UTC(),
		Contents:           contents,
	})
	return ledger.SubmitResult{TxID: g.newTxID()}, nil
}

// Poll returns topic messages after sinceSequence in order.
func (g *Gateway) Poll(ctx context.Context, topicID string, sinceSequence int64) ([]ledger.TopicMessage, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()

	var result []ledger.TopicMessage
	for _, msg := range g.topics[topicID] {
		if msg.SequenceNumber > sinceSequence {
			result = append(result, msg)
		}
	}
	return result, nil
}

// Transfer records a token movement.
func (g *Gateway) Transfer(ctx context.Context, tokenID, fromAccount, toAccount string, amount int64) (ledger.TransferResult, error) {
	_ = ctx
	if amount <= 0 {
		return ledger.TransferResult{}, errors.New("memory gateway: non-positive amount")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failTransfer[toAccount] {
		return ledger.TransferResult{}, ledger.WrapGatewayError("transfer", fmt.Errorf("memory gateway: transfers to %s disabled", toAccount))
	}
	_ = tokenID
	_ = fromAccount
	return ledger.TransferResult{TxID: g.newTxID()}, nil
}

// Mint records a supply increase.
func (g *Gateway) Mint(ctx context.Context, tokenID string, amount int64) (ledger.TransferResult, error) {
	_ = ctx
	if amount <= 0 {
		return ledger.TransferResult{}, errors.New("memory gateway: non-positive amount")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = tokenID
	return ledger.TransferResult{TxID: g.newTxID()}, nil
}

func (g *Gateway) newTxID() string {
	g.nextTx++
	return fmt.Sprintf("0.0.1001@%d", g.nextTx)
}
