package eventstore

import (
	"encoding/json"
	"time"
)

// EventType discriminates ledger event payloads.
type EventType string

const (
	TypeMeterReading        EventType = "METER_READING"
	TypeSettlementRequest   EventType = "SETTLEMENT_REQUEST"
	TypeSettlementApproval  EventType = "SETTLEMENT_APPROVAL"
	TypeSettlementExecution EventType = "SETTLEMENT_EXECUTION"
	TypeOther               EventType = "OTHER"
)

// KnownType reports whether the type has a typed payload variant.
func KnownType(t EventType) bool {
	switch t {
	case TypeMeterReading, TypeSettlementRequest, TypeSettlementApproval, TypeSettlementExecution:
		return true
	}
	return false
}

// LedgerEvent is one observed fact from the consensus channel. Created once on
// first successful ingestion and immutable thereafter.
type LedgerEvent struct {
	MessageID          string
	WellID             string
	Type               EventType
	Payload            Payload
	RawPayload         json.RawMessage
	ConsensusTimestamp *time.Time
	SequenceNumber     *int64
	ReceivedAt         time.Time
}

// Confirmed reports whether the ledger has assigned consensus ordering.
func (e LedgerEvent) Confirmed() bool {
	return e.ConsensusTimestamp != nil && e.SequenceNumber != nil
}

// Payload is the tagged union of event payload variants.
type Payload interface {
	payloadType() EventType
}

// MeterReadingPayload carries one metered volume observation.
type MeterReadingPayload struct {
	MeterID      string `json:"meterId,omitempty"`
	VolumeLiters int64  `json:"volumeUnits"`
}

func (MeterReadingPayload) payloadType() EventType { return TypeMeterReading }

// SettlementLifecyclePayload carries settlement state transitions published
// back onto the consensus channel.
type SettlementLifecyclePayload struct {
	SettlementID      string    `json:"settlementId"`
	PeriodStart       time.Time `json:"periodStart"`
	PeriodEnd         time.Time `json:"periodEnd"`
	GrossRevenueMinor int64     `json:"grossRevenueMinor,omitempty"`
	Reason            string    `json:"reason,omitempty"`
}

func (p SettlementLifecyclePayload) payloadType() EventType { return TypeSettlementRequest }

// OtherPayload carries raw bytes for unknown event types. Never coerced into a
// typed variant.
type OtherPayload struct {
	Raw json.RawMessage `json:"raw"`
}

func (OtherPayload) payloadType() EventType { return TypeOther }

// DecodePayload decodes raw payload bytes into the variant for the given type.
// Unknown types fall into OtherPayload.
func DecodePayload(eventType EventType, raw json.RawMessage) (Payload, error) {
	switch eventType {
	case TypeMeterReading:
		var payload MeterReadingPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case TypeSettlementRequest, TypeSettlementApproval, TypeSettlementExecution:
		var payload SettlementLifecyclePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	default:
		copied := make(json.RawMessage, len(raw))
		copy(copied, raw)
		return OtherPayload{Raw: copied}, nil
	}
}

// MeterVolume returns the metered volume for meter reading events, 0 otherwise.
func (e LedgerEvent) MeterVolume() int64 {
	if payload, ok := e.Payload.(MeterReadingPayload); ok {
		return payload.VolumeLiters
	}
	return 0
}
