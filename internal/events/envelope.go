// Package events implements the domain event path: the event.v1 envelope,
// the JetStream publisher, the durable pull subscriber, and the handler
// that refreshes subscribed UI instances.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaEventV1 tags every published envelope. Messages with any other
// schema are dropped by consumers.
const SchemaEventV1 = "event.v1"

// Envelope is one domain occurrence, published once, consumed at least
// once. Subject is hierarchical, e.g. "finance.expense_created".
type Envelope struct {
	Schema         string         `json:"schema"`
	Subject        string         `json:"subject"`
	EventID        string         `json:"eventId"`
	CorrelationID  string         `json:"correlationId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	OccurredAtUTC  time.Time      `json:"occurredAtUtc"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// NewEnvelope creates an event.v1 envelope with a fresh event id.
func NewEnvelope(subject, correlationID, conversationID, userID string, payload map[string]any) Envelope {
	return Envelope{
		Schema:         SchemaEventV1,
		Subject:        subject,
		EventID:        uuid.NewString(),
		CorrelationID:  correlationID,
		ConversationID: conversationID,
		UserID:         userID,
		OccurredAtUTC:  time.Now().UTC(),
		Payload:        payload,
	}
}

// ParseEnvelope decodes and checks an envelope from the wire. A schema
// mismatch is an error so the consumer can drop the message.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Schema != SchemaEventV1 {
		return Envelope{}, fmt.Errorf("unexpected envelope schema %q", env.Schema)
	}
	if env.Subject == "" {
		return Envelope{}, fmt.Errorf("envelope without subject")
	}
	return env, nil
}

// DedupeKey identifies one refresh cycle: concurrent deliveries of the
// same occurrence for the same owner collapse into one.
func (e Envelope) DedupeKey() string {
	return fmt.Sprintf("evt:%s:%s:%s", e.Subject, e.ConversationID, e.UserID)
}
