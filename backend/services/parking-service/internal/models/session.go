package models

import (
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"
)

// SessionStatus is the lifecycle state of a parking session.
type SessionStatus string

const (
	SessionCheckedIn  SessionStatus = "CheckedIn"
	SessionCheckedOut SessionStatus = "CheckedOut"
	SessionFinished   SessionStatus = "Finished"
	SessionCancelled  SessionStatus = "Cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionFinished || s == SessionCancelled
}

// PaymentStatus tracks settlement of a session's cost.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "Unpaid"
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

// PaymentMethod is how the driver settles the session.
type PaymentMethod string

const (
	PaymentMethodNone   PaymentMethod = ""
	PaymentMethodCash   PaymentMethod = "Cash"
	PaymentMethodOnline PaymentMethod = "Online"
)

// ParsePaymentMethod validates a wire value.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch m := PaymentMethod(raw); m {
	case PaymentMethodCash, PaymentMethodOnline:
		return m, nil
	default:
		return PaymentMethodNone, fmt.Errorf("unknown payment method %q", raw)
	}
}

// Electronic reports whether settlement goes through the payment gateway.
func (m PaymentMethod) Electronic() bool {
	return m == PaymentMethodOnline
}

// ParkingSession is one vehicle's stay at a lot.
type ParkingSession struct {
	ID            int64         `db:"id" json:"id"`
	VehicleID     null.Int      `db:"vehicle_id" json:"vehicle_id"`
	DriverID      null.Int      `db:"driver_id" json:"driver_id"`
	LicensePlate  string        `db:"license_plate" json:"license_plate"`
	VehicleClass  VehicleClass  `db:"vehicle_class" json:"vehicle_class"`
	LotID         int64         `db:"lot_id" json:"lot_id"`
	EntryAt       time.Time     `db:"entry_at" json:"entry_at"`
	ExitAt        null.Time     `db:"exit_at" json:"exit_at"`
	CheckedOutAt  null.Time     `db:"checked_out_at" json:"checked_out_at"`
	Cost          Money         `db:"cost" json:"cost"`
	Status        SessionStatus `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	OrderRef      null.Int      `db:"order_ref" json:"order_ref"`
	EntryPhotos   []string      `db:"entry_photos" json:"entry_photos,omitempty"`
	ExitPhotos    []string      `db:"exit_photos" json:"exit_photos,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can hand out snapshots.
func (s *ParkingSession) Clone() *ParkingSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.EntryPhotos = append([]string(nil), s.EntryPhotos...)
	cp.ExitPhotos = append([]string(nil), s.ExitPhotos...)
	return &cp
}
