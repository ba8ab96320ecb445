package events

import (
	"encoding/json"
	"fmt"
	"time"

	upforit_errors "upforit/pkg/errors"
)

type Envelope struct {
	ID            string          `json:"id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses a raw change-stream record.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", upforit_errors.ErrInvalidInput)
	}
	if env.ID == "" || env.EventType == "" {
		return Envelope{}, fmt.Errorf("envelope without id or type: %w", upforit_errors.ErrInvalidInput)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return upforit_errors.ErrInvalidInput
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, upforit_errors.ErrInvalidInput)
	}
	return nil
}
