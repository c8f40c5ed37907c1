// Package events publishes domain events emitted after successful store
// mutations. Delivery is best effort: publishers report errors, callers log them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	UserCreated       = "user.created"
	UserUpdated       = "user.updated"
	UserFeedback      = "user.feedback"
	PatientCreated    = "patient.created"
	PatientUpdated    = "patient.updated"
	PatientDeleted    = "patient.deleted"
	ProgressSubmitted = "progress.submitted"
	ProgressReviewed  = "progress.reviewed"
	SessionCreated    = "session.created"
	SessionUpdated    = "session.updated"
	SessionCancelled  = "session.cancelled"
	SessionRated      = "session.rated"
	BuddyAssigned     = "buddy.assigned"
	BuddyTierChanged  = "buddy.tier_changed"
	CarePlanSaved     = "careplan.saved"
)

type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Subject    string                 `json:"subject"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ, subject string, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// LogPublisher writes events to the structured log instead of a broker.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Str("subject", e.Subject).
		Interface("data", e.Data).
		Msg("domain event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
