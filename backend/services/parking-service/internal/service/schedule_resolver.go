package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"parkingops/backend/services/parking-service/internal/models"
)

// ScheduleSource supplies the fee schedules defined for a lot.
type ScheduleSource interface {
	SchedulesForLot(ctx context.Context, lotID int64) ([]models.FeeSchedule, error)
}

// FeeScheduleResolver picks the fee schedule that applies to a lot, vehicle class and
// instant. Minute-of-day and weekday are evaluated in the lot's billing location.
type FeeScheduleResolver struct {
	source ScheduleSource
	loc    *time.Location
}

// NewFeeScheduleResolver builds a resolver. A nil location means UTC.
func NewFeeScheduleResolver(source ScheduleSource, loc *time.Location) *FeeScheduleResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &FeeScheduleResolver{source: source, loc: loc}
}

// Location returns the billing location.
func (r *FeeScheduleResolver) Location() *time.Location {
	return r.loc
}

// Resolve loads the lot's schedules and returns the one applying at the instant.
func (r *FeeScheduleResolver) Resolve(ctx context.Context, lotID int64, class models.VehicleClass, at time.Time) (models.FeeSchedule, error) {
	set, err := r.Lookup(ctx, lotID, class)
	if err != nil {
		return models.FeeSchedule{}, err
	}
	return set.Resolve(at)
}

// Lookup loads the lot's schedules once and binds them to a vehicle class, so a whole
// session can be priced against one consistent snapshot.
func (r *FeeScheduleResolver) Lookup(ctx context.Context, lotID int64, class models.VehicleClass) (*ScheduleSet, error) {
	schedules, err := r.source.SchedulesForLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("load fee schedules for lot %d: %w", lotID, err)
	}
	return NewScheduleSet(schedules, lotID, class, r.loc), nil
}

// ScheduleSet is an immutable, class-bound view of a lot's active schedules.
type ScheduleSet struct {
	lotID      int64
	class      models.VehicleClass
	loc        *time.Location
	candidates []models.FeeSchedule
	edges      []int
}

// NewScheduleSet keeps the active, valid schedules for the lot and class. Schedules that
// fail Validate are ignored rather than priced.
func NewScheduleSet(schedules []models.FeeSchedule, lotID int64, class models.VehicleClass, loc *time.Location) *ScheduleSet {
	if loc == nil {
		loc = time.UTC
	}
	set := &ScheduleSet{lotID: lotID, class: class, loc: loc}
	seen := map[int]bool{0: true}
	set.edges = []int{0}
	for _, s := range schedules {
		if s.LotID != lotID || s.VehicleClass != class || !s.IsActive || s.Validate() != nil {
			continue
		}
		set.candidates = append(set.candidates, s)
		for _, m := range []int{s.StartMinute, s.EndMinute} {
			if !seen[m] {
				seen[m] = true
				set.edges = append(set.edges, m)
			}
		}
	}
	sort.Ints(set.edges)
	return set
}

// Len returns the number of candidate schedules.
func (s *ScheduleSet) Len() int {
	return len(s.candidates)
}

// Resolve returns the schedule covering the instant. When several overlap, the narrowest
// window wins, then the most recently updated, then the lowest ID.
func (s *ScheduleSet) Resolve(at time.Time) (models.FeeSchedule, error) {
	local := at.In(s.loc)
	minute := local.Hour()*60 + local.Minute()
	day := local.Weekday()

	var (
		best  models.FeeSchedule
		found bool
	)
	for _, c := range s.candidates {
		if !c.ActiveOn(day) || !c.Covers(minute) {
			continue
		}
		if !found || preferSchedule(c, best) {
			best, found = c, true
		}
	}
	if !found {
		return models.FeeSchedule{}, &NoMatchError{LotID: s.lotID, VehicleClass: s.class, At: at}
	}
	return best, nil
}

// NextBoundary returns the first instant strictly after the given one at which the
// resolved schedule may change: any window edge of a candidate, or local midnight.
func (s *ScheduleSet) NextBoundary(after time.Time) time.Time {
	local := after.In(s.loc)
	y, m, d := local.Date()
	for offset := 0; offset <= 1; offset++ {
		for _, edge := range s.edges {
			c := time.Date(y, m, d+offset, 0, edge, 0, 0, s.loc)
			if c.After(after) {
				return c
			}
		}
	}
	// Unreachable: midnight of the following day is always after the instant.
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
}

func preferSchedule(a, b models.FeeSchedule) bool {
	if wa, wb := a.WindowMinutes(), b.WindowMinutes(); wa != wb {
		return wa < wb
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}
