package models

import (
	"strings"
	"unicode"
)

// Vehicle is the registered-vehicle record the engine reads at check-in.
type Vehicle struct {
	ID           int64        `db:"id" json:"id"`
	OwnerID      int64        `db:"owner_id" json:"owner_id"`
	LicensePlate string       `db:"license_plate" json:"license_plate"`
	Class        VehicleClass `db:"vehicle_class" json:"vehicle_class"`
}

// Lot is the parking-lot record the engine reads.
type Lot struct {
	ID      int64  `db:"id" json:"id"`
	OwnerID int64  `db:"owner_id" json:"owner_id"`
	Name    string `db:"name" json:"name"`
}

// NormalizePlate upper-cases a plate and keeps only letters and digits, so "51f-123.45"
// and "51F12345" name the same vehicle.
func NormalizePlate(plate string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(plate) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
