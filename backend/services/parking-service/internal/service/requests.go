package service

import (
	"strings"
	"time"

	"parkingops/backend/services/parking-service/internal/models"
)

// CheckInRequest is a validated check-in. VehicleID == 0 is a walk-in guest identified by
// plate and class only; otherwise plate and class come from the vehicle record.
type CheckInRequest struct {
	LotID        int64
	DriverID     int64
	VehicleID    int64
	LicensePlate string
	VehicleClass models.VehicleClass
	EntryAt      time.Time
	Photos       []string
}

// NewCheckInRequest validates raw check-in input.
func NewCheckInRequest(lotID, driverID, vehicleID int64, plate, class string, entryAt time.Time, photos []string) (CheckInRequest, error) {
	if lotID <= 0 {
		return CheckInRequest{}, invalidInput("lot_id is required")
	}
	if vehicleID < 0 || driverID < 0 {
		return CheckInRequest{}, invalidInput("ids must not be negative")
	}
	if entryAt.IsZero() {
		return CheckInRequest{}, invalidInput("entry_at is required")
	}

	req := CheckInRequest{
		LotID:        lotID,
		DriverID:     driverID,
		VehicleID:    vehicleID,
		LicensePlate: NormalizePlate(plate),
		EntryAt:      entryAt,
		Photos:       cleanPhotos(photos),
	}

	if vehicleID > 0 {
		if driverID == 0 {
			return CheckInRequest{}, invalidInput("driver_id is required for a registered vehicle")
		}
		return req, nil
	}

	if req.LicensePlate == "" {
		return CheckInRequest{}, invalidInput("license_plate is required for a guest vehicle")
	}
	vc, err := models.ParseVehicleClass(class)
	if err != nil {
		return CheckInRequest{}, invalidInput("%v", err)
	}
	req.VehicleClass = vc
	return req, nil
}

// CheckOutRequest is a validated check-out.
type CheckOutRequest struct {
	SessionID int64
	ExitAt    time.Time
	Photos    []string
}

// NewCheckOutRequest validates raw check-out input. A zero exitAt is filled in by the
// lifecycle from its clock.
func NewCheckOutRequest(sessionID int64, exitAt time.Time, photos []string) (CheckOutRequest, error) {
	if sessionID <= 0 {
		return CheckOutRequest{}, invalidInput("session id is required")
	}
	return CheckOutRequest{SessionID: sessionID, ExitAt: exitAt, Photos: cleanPhotos(photos)}, nil
}

// FinishRequest is a validated finish.
type FinishRequest struct {
	SessionID int64
	Method    models.PaymentMethod
}

// NewFinishRequest validates raw finish input.
func NewFinishRequest(sessionID int64, method string) (FinishRequest, error) {
	if sessionID <= 0 {
		return FinishRequest{}, invalidInput("session id is required")
	}
	m, err := models.ParsePaymentMethod(method)
	if err != nil {
		return FinishRequest{}, invalidInput("%v", err)
	}
	return FinishRequest{SessionID: sessionID, Method: m}, nil
}

// NormalizePlate is models.NormalizePlate.
func NormalizePlate(plate string) string {
	return models.NormalizePlate(plate)
}

func cleanPhotos(photos []string) []string {
	var out []string
	for _, p := range photos {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
