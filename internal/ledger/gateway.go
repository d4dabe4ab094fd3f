package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TopicMessage is one message observed on a consensus topic.
type TopicMessage struct {
	TopicID            string
	SequenceNumber     int64
	ConsensusTimestamp time.Time
	Contents           []byte
}

// SubmitResult reports the transaction id of a broadcast.
type SubmitResult struct {
	TxID string
}

// TransferResult reports the transaction id of a token movement.
type TransferResult struct {
	TxID string
}

// Gateway is the consumed interface to the consensus/token ledger.
// Submissions are at-least-once on the wire; callers carry their own
// idempotency keys and may retry any call.
type Gateway interface {
	Submit(ctx context.Context, topicID string, message []byte) (SubmitResult, error)
	Poll(ctx context.Context, topicID string, sinceSequence int64) ([]TopicMessage, error)
	Transfer(ctx context.Context, tokenID, fromAccount, toAccount string, amount int64) (TransferResult, error)
	Mint(ctx context.Context, tokenID string, amount int64) (TransferResult, error)
}

// ErrGateway marks a failed or timed-out ledger call. Domain state is left at
// the last durable state; the worker retries with the original keys.
var ErrGateway = errors.New("ledger: gateway error")

// GatewayError wraps an underlying transport failure.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrGateway) match any gateway failure.
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// WrapGatewayError wraps err unless it is nil or already a gateway error.
func WrapGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}
