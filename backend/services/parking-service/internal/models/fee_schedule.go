package models

import (
	"errors"
	"fmt"
	"time"
)

// MinutesPerDay is the length of a schedule day in minutes.
const MinutesPerDay = 24 * 60

// Money is an amount in the smallest currency unit.
type Money int64

// VehicleClass groups vehicles that share a tariff.
type VehicleClass string

const (
	VehicleClassCar       VehicleClass = "Car"
	VehicleClassMotorbike VehicleClass = "Motorbike"
	VehicleClassBicycle   VehicleClass = "Bicycle"
	VehicleClassTruck     VehicleClass = "Truck"
)

// ParseVehicleClass validates a wire value.
func ParseVehicleClass(raw string) (VehicleClass, error) {
	switch c := VehicleClass(raw); c {
	case VehicleClassCar, VehicleClassMotorbike, VehicleClassBicycle, VehicleClassTruck:
		return c, nil
	default:
		return "", fmt.Errorf("unknown vehicle class %q", raw)
	}
}

// FeeSchedule is a lot- and class-scoped pricing rule active during a window of the day
// on selected weekdays. The window is the half-open range [StartMinute, EndMinute) in
// minutes from local midnight; EndMinute < StartMinute wraps past midnight.
//
// Equal bounds do not describe an empty window: StartMinute == EndMinute is the whole
// day (see AllDay), since EndMinute cannot reach 1440 and a full-day tariff has no other
// encoding.
type FeeSchedule struct {
	ID                int64        `db:"id" json:"id"`
	LotID             int64        `db:"lot_id" json:"lot_id"`
	VehicleClass      VehicleClass `db:"vehicle_class" json:"vehicle_class"`
	StartMinute       int          `db:"start_minute" json:"start_minute"`
	EndMinute         int          `db:"end_minute" json:"end_minute"`
	DaysOfWeek        [7]bool      `db:"days_of_week" json:"days_of_week"` // indexed by time.Weekday
	InitialFee        Money        `db:"initial_fee" json:"initial_fee"`
	InitialMinutes    int          `db:"initial_minutes" json:"initial_minutes"`
	AdditionalFee     Money        `db:"additional_fee" json:"additional_fee"`
	AdditionalMinutes int          `db:"additional_minutes" json:"additional_minutes"`
	IsActive          bool         `db:"is_active" json:"is_active"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// Validate checks the invariants every stored schedule must satisfy.
func (s FeeSchedule) Validate() error {
	var errs []error
	if s.StartMinute < 0 || s.StartMinute >= MinutesPerDay {
		errs = append(errs, fmt.Errorf("start_minute %d out of range", s.StartMinute))
	}
	if s.EndMinute < 0 || s.EndMinute >= MinutesPerDay {
		errs = append(errs, fmt.Errorf("end_minute %d out of range", s.EndMinute))
	}
	if s.InitialMinutes < 0 {
		errs = append(errs, errors.New("initial_minutes must not be negative"))
	}
	if s.AdditionalMinutes <= 0 {
		errs = append(errs, errors.New("additional_minutes must be positive"))
	}
	if s.InitialFee < 0 || s.AdditionalFee < 0 {
		errs = append(errs, errors.New("fees must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("fee schedule %d: %w", s.ID, errors.Join(errs...))
	}
	return nil
}

// AllDay reports whether the window spans all 24 hours, which equal bounds encode.
func (s FeeSchedule) AllDay() bool {
	return s.StartMinute == s.EndMinute
}

// WindowMinutes is the length of the daily window.
func (s FeeSchedule) WindowMinutes() int {
	if s.AllDay() {
		return MinutesPerDay
	}
	return (s.EndMinute - s.StartMinute + MinutesPerDay) % MinutesPerDay
}

// Covers reports whether minute-of-day m lies inside the window.
func (s FeeSchedule) Covers(m int) bool {
	switch {
	case s.AllDay():
		return true
	case s.StartMinute < s.EndMinute:
		return m >= s.StartMinute && m < s.EndMinute
	default:
		return m >= s.StartMinute || m < s.EndMinute
	}
}

// ActiveOn reports whether the schedule applies on the given weekday.
func (s FeeSchedule) ActiveOn(day time.Weekday) bool {
	return s.DaysOfWeek[day]
}

// EveryDay is a DaysOfWeek value with all flags set.
func EveryDay() [7]bool {
	return [7]bool{true, true, true, true, true, true, true}
}

// DaysMask packs DaysOfWeek into a bit mask, bit i = time.Weekday(i).
func DaysMask(days [7]bool) int {
	mask := 0
	for i, on := range days {
		if on {
			mask |= 1 << i
		}
	}
	return mask
}

// DaysFromMask is the inverse of DaysMask.
func DaysFromMask(mask int) [7]bool {
	var days [7]bool
	for i := range days {
		days[i] = mask&(1<<i) != 0
	}
	return days
}
