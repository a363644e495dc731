package service

import (
	"errors"
	"fmt"
	"time"

	"parkingops/backend/services/parking-service/internal/models"
)

var (
	// ErrInvalidInput marks requests rejected before any state change.
	ErrInvalidInput = errors.New("parking: invalid input")
	// ErrNotFound marks unknown lots, vehicles or sessions.
	ErrNotFound = errors.New("parking: not found")
	// ErrNoMatchingSchedule is matched by every *NoMatchError.
	ErrNoMatchingSchedule = errors.New("parking: no fee schedule matches")
	// ErrAccessDenied is returned when a non-owner driver has no live grant.
	ErrAccessDenied = errors.New("parking: access denied")
	// ErrInvalidTransition is matched by every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("parking: invalid session transition")
	// ErrConflict is returned when the plate already has a checked-in session at the lot.
	ErrConflict = errors.New("parking: session conflict")
)

// NoMatchError reports that no active fee schedule covers an instant.
type NoMatchError struct {
	LotID        int64
	VehicleClass models.VehicleClass
	At           time.Time
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("parking: no fee schedule for lot %d class %s at %s",
		e.LotID, e.VehicleClass, e.At.Format(time.RFC3339))
}

func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatchingSchedule
}

// InvalidTransitionError reports an operation attempted from a state that does not allow it.
type InvalidTransitionError struct {
	SessionID int64
	Op        string
	Status    models.SessionStatus
	Payment   models.PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("parking: cannot %s session %d in state %s/%s", e.Op, e.SessionID, e.Status, e.Payment)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
