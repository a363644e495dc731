package models

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// GrantKind distinguishes the two sources of delegated access.
type GrantKind string

const (
	GrantWhitelist     GrantKind = "whitelist"
	GrantSharedVehicle GrantKind = "shared_vehicle"
)

// AccessGrant lets SubjectID check in a vehicle they do not own. Whitelist entries are
// scoped to a lot and name either the driver (SubjectID) or a vehicle; shared-vehicle
// grants name a vehicle and must be accepted by the subject.
type AccessGrant struct {
	Kind      GrantKind `db:"kind" json:"kind"`
	SubjectID int64     `db:"subject_id" json:"subject_id"`
	LotID     null.Int  `db:"lot_id" json:"lot_id"`
	VehicleID null.Int  `db:"vehicle_id" json:"vehicle_id"`
	GrantedAt time.Time `db:"granted_at" json:"granted_at"`
	ExpiresAt null.Time `db:"expires_at" json:"expires_at"`
	RevokedAt null.Time `db:"revoked_at" json:"revoked_at"`
	Accepted  bool      `db:"accepted" json:"accepted"`
}

// LiveAt reports whether the grant is neither revoked nor expired at now.
func (g AccessGrant) LiveAt(now time.Time) bool {
	if g.RevokedAt.Valid && !g.RevokedAt.Time.After(now) {
		return false
	}
	return !g.ExpiresAt.Valid || g.ExpiresAt.Time.After(now)
}
