package events

import (
	"context"
	"errors"
	"time"

	"parkingops/backend/services/parking-service/internal/models"
)

// Type names a session event; it doubles as the AMQP routing key.
type Type string

const (
	SessionCheckedIn  Type = "session.checked_in"
	SessionCheckedOut Type = "session.checked_out"
	SessionFinished   Type = "session.finished"
	SessionCancelled  Type = "session.cancelled"
	SessionRefunded   Type = "session.refunded"
	PaymentApplied    Type = "payment.applied"
)

// SessionEvent carries the session snapshot after a transition.
type SessionEvent struct {
	Type       Type                   `json:"event"`
	Version    int                    `json:"version"`
	OccurredAt time.Time              `json:"occurred_at"`
	Session    *models.ParkingSession `json:"session"`
}

// New stamps an event for the session.
func New(t Type, session *models.ParkingSession, at time.Time) SessionEvent {
	return SessionEvent{Type: t, Version: 1, OccurredAt: at.UTC(), Session: session.Clone()}
}

// Publisher delivers session events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event SessionEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, SessionEvent) error { return nil }
