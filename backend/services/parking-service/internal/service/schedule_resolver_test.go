package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parkingops/backend/services/parking-service/internal/memstore"
	"parkingops/backend/services/parking-service/internal/models"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestResolveWindowMembership(t *testing.T) {
	day := standardSchedule(1, models.VehicleClassCar, 6*60, 22*60)
	night := standardSchedule(2, models.VehicleClassCar, 22*60, 6*60)
	set := NewScheduleSet([]models.FeeSchedule{day, night}, testLotID, models.VehicleClassCar, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"mid morning", at(2, 10, 0), 1},
		{"day window start is inclusive", at(2, 6, 0), 1},
		{"day window end is exclusive", at(2, 22, 0), 2},
		{"late evening wraps", at(2, 23, 30), 2},
		{"early morning wraps", at(3, 3, 0), 2},
		{"last minute before six", at(3, 5, 59), 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := set.Resolve(tc.at)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.ID != tc.want {
				t.Fatalf("resolved schedule %d, want %d", got.ID, tc.want)
			}
		})
	}
}

func TestResolveFiltersCandidates(t *testing.T) {
	when := at(2, 10, 0)

	inactive := standardSchedule(1, models.VehicleClassCar, 0, 0)
	inactive.IsActive = false
	otherLot := standardSchedule(2, models.VehicleClassCar, 0, 0)
	otherLot.LotID = 99
	otherClass := standardSchedule(3, models.VehicleClassMotorbike, 0, 0)
	wrongDay := standardSchedule(4, models.VehicleClassCar, 0, 0)
	wrongDay.DaysOfWeek = models.EveryDay()
	wrongDay.DaysOfWeek[when.Weekday()] = false
	broken := standardSchedule(5, models.VehicleClassCar, 0, 0)
	broken.AdditionalMinutes = 0

	set := NewScheduleSet([]models.FeeSchedule{inactive, otherLot, otherClass, wrongDay, broken}, testLotID, models.VehicleClassCar, time.UTC)
	if set.Len() != 1 {
		t.Fatalf("candidates = %d, want only the wrong-day schedule", set.Len())
	}

	_, err := set.Resolve(when)
	if !errors.Is(err, ErrNoMatchingSchedule) {
		t.Fatalf("Resolve error = %v, want ErrNoMatchingSchedule", err)
	}
	var nm *NoMatchError
	if !errors.As(err, &nm) {
		t.Fatalf("error %T is not *NoMatchError", err)
	}
	if nm.LotID != testLotID || nm.VehicleClass != models.VehicleClassCar || !nm.At.Equal(when) {
		t.Fatalf("unexpected NoMatchError %+v", nm)
	}
}

func TestResolveOverlapPrefersNarrowestWindow(t *testing.T) {
	allDay := standardSchedule(1, models.VehicleClassCar, 0, 0)
	allDay.UpdatedAt = base
	rush := standardSchedule(2, models.VehicleClassCar, 8*60, 10*60)
	rush.UpdatedAt = base.Add(-72 * time.Hour)

	set := NewScheduleSet([]models.FeeSchedule{allDay, rush}, testLotID, models.VehicleClassCar, time.UTC)
	got, err := set.Resolve(at(2, 9, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != rush.ID {
		t.Fatalf("resolved %d, want narrower window %d", got.ID, rush.ID)
	}

	got, err = set.Resolve(at(2, 11, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != allDay.ID {
		t.Fatalf("outside rush resolved %d, want %d", got.ID, allDay.ID)
	}
}

func TestResolveEqualWidthPrefersMostRecentlyUpdated(t *testing.T) {
	older := standardSchedule(1, models.VehicleClassCar, 8*60, 12*60)
	older.UpdatedAt = base.Add(-48 * time.Hour)
	newer := standardSchedule(2, models.VehicleClassCar, 9*60, 13*60)
	newer.UpdatedAt = base.Add(-time.Hour)

	for _, order := range [][]models.FeeSchedule{{older, newer}, {newer, older}} {
		set := NewScheduleSet(order, testLotID, models.VehicleClassCar, time.UTC)
		got, err := set.Resolve(at(2, 10, 0))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got.ID != newer.ID {
			t.Fatalf("resolved %d, want most recently updated %d", got.ID, newer.ID)
		}
	}

	twin := standardSchedule(3, models.VehicleClassCar, 9*60, 13*60)
	twin.UpdatedAt = newer.UpdatedAt
	set := NewScheduleSet([]models.FeeSchedule{twin, newer}, testLotID, models.VehicleClassCar, time.UTC)
	got, _ := set.Resolve(at(2, 10, 0))
	if got.ID != newer.ID {
		t.Fatalf("full tie resolved %d, want lowest id %d", got.ID, newer.ID)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	schedules := []models.FeeSchedule{
		standardSchedule(1, models.VehicleClassCar, 0, 0),
		standardSchedule(2, models.VehicleClassCar, 7*60, 19*60),
		standardSchedule(3, models.VehicleClassCar, 18*60, 2*60),
	}
	set := NewScheduleSet(schedules, testLotID, models.VehicleClassCar, time.UTC)
	when := at(2, 18, 30)
	want, err := set.Resolve(when)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := set.Resolve(when)
				if err != nil || got.ID != want.ID {
					t.Errorf("Resolve = %d, %v; want %d", got.ID, err, want.ID)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNextBoundary(t *testing.T) {
	day := standardSchedule(1, models.VehicleClassCar, 6*60, 22*60)
	night := standardSchedule(2, models.VehicleClassCar, 22*60, 6*60)
	set := NewScheduleSet([]models.FeeSchedule{day, night}, testLotID, models.VehicleClassCar, time.UTC)

	tests := []struct {
		after time.Time
		want  time.Time
	}{
		{at(2, 10, 0), at(2, 22, 0)},
		{at(2, 22, 0), at(3, 0, 0)},
		{at(2, 23, 59), at(3, 0, 0)},
		{at(3, 0, 0), at(3, 6, 0)},
		{at(2, 5, 59).Add(30 * time.Second), at(2, 6, 0)},
	}
	for _, tc := range tests {
		if got := set.NextBoundary(tc.after); !got.Equal(tc.want) {
			t.Errorf("NextBoundary(%s) = %s, want %s", tc.after, got, tc.want)
		}
	}
}

func TestResolverUsesLotLocation(t *testing.T) {
	store := memstore.New()
	store.PutSchedules(testLotID, standardSchedule(1, models.VehicleClassCar, 8*60, 9*60))

	loc := time.FixedZone("ICT", 7*60*60)
	resolver := NewFeeScheduleResolver(store, loc)

	// 01:30 UTC is 08:30 at UTC+7.
	got, err := resolver.Resolve(context.Background(), testLotID, models.VehicleClassCar, time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("resolved %d", got.ID)
	}

	_, err = resolver.Resolve(context.Background(), testLotID, models.VehicleClassCar, time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC))
	if !errors.Is(err, ErrNoMatchingSchedule) {
		t.Fatalf("08:30 UTC should not match, got %v", err)
	}
}
