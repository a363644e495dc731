package service

import (
	"context"
	"fmt"
	"time"

	"parkingops/backend/services/parking-service/internal/models"
)

// ReasonNotAuthorized is the denial reason when no live grant exists.
const ReasonNotAuthorized = "not authorized"

// AccessGrants is the read model for whitelist entries and shared-vehicle grants.
type AccessGrants interface {
	// WhitelistEntries returns the lot's entries naming the driver or the vehicle.
	WhitelistEntries(ctx context.Context, lotID, driverID, vehicleID int64) ([]models.AccessGrant, error)
	// SharedGrants returns grants on the vehicle targeting the driver.
	SharedGrants(ctx context.Context, vehicleID, driverID int64) ([]models.AccessGrant, error)
}

// AccessRequest describes a check-in attempt to authorize.
type AccessRequest struct {
	DriverID       int64
	VehicleOwnerID int64
	VehicleID      int64
	LotID          int64
	Now            time.Time
}

// Decision is the gate's verdict.
type Decision struct {
	Allowed bool             `json:"allowed"`
	Reason  string           `json:"reason,omitempty"`
	Via     models.GrantKind `json:"via,omitempty"`
}

// AccessGate authorizes check-ins by drivers who do not own the vehicle.
type AccessGate struct {
	grants AccessGrants
}

// NewAccessGate builds the gate.
func NewAccessGate(grants AccessGrants) *AccessGate {
	return &AccessGate{grants: grants}
}

// Authorize allows owners outright and otherwise requires a live whitelist entry or an
// accepted, live shared-vehicle grant.
func (g *AccessGate) Authorize(ctx context.Context, req AccessRequest) (Decision, error) {
	if req.DriverID == req.VehicleOwnerID {
		return Decision{Allowed: true}, nil
	}

	whitelist, err := g.grants.WhitelistEntries(ctx, req.LotID, req.DriverID, req.VehicleID)
	if err != nil {
		return Decision{}, fmt.Errorf("load whitelist: %w", err)
	}
	if d := evaluateWhitelist(req, whitelist); d.Allowed {
		return d, nil
	}

	shared, err := g.grants.SharedGrants(ctx, req.VehicleID, req.DriverID)
	if err != nil {
		return Decision{}, fmt.Errorf("load shared vehicle grants: %w", err)
	}
	if d := evaluateShared(req, shared); d.Allowed {
		return d, nil
	}

	return Decision{Reason: ReasonNotAuthorized}, nil
}

func evaluateWhitelist(req AccessRequest, entries []models.AccessGrant) Decision {
	for _, e := range entries {
		if e.Kind != models.GrantWhitelist || !e.LotID.Valid || e.LotID.Int64 != req.LotID {
			continue
		}
		namesDriver := e.SubjectID == req.DriverID
		namesVehicle := e.VehicleID.Valid && e.VehicleID.Int64 == req.VehicleID
		if (namesDriver || namesVehicle) && e.LiveAt(req.Now) {
			return Decision{Allowed: true, Via: models.GrantWhitelist}
		}
	}
	return Decision{}
}

func evaluateShared(req AccessRequest, grants []models.AccessGrant) Decision {
	for _, g := range grants {
		if g.Kind != models.GrantSharedVehicle || g.SubjectID != req.DriverID {
			continue
		}
		if !g.VehicleID.Valid || g.VehicleID.Int64 != req.VehicleID {
			continue
		}
		if g.Accepted && g.LiveAt(req.Now) {
			return Decision{Allowed: true, Via: models.GrantSharedVehicle}
		}
	}
	return Decision{}
}
