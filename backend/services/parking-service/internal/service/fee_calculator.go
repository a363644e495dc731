package service

import (
	"errors"
	"fmt"
	"time"

	"parkingops/backend/services/parking-service/internal/models"
)

// ScheduleLookup answers which schedule applies at an instant and where the answer can
// next change. *ScheduleSet implements it.
type ScheduleLookup interface {
	Resolve(at time.Time) (models.FeeSchedule, error)
	NextBoundary(after time.Time) time.Time
}

// Segment is a maximal stretch of a stay priced by a single schedule.
type Segment struct {
	Schedule models.FeeSchedule `json:"schedule"`
	Start    time.Time          `json:"start"`
	End      time.Time          `json:"end"`
	Cost     models.Money       `json:"cost"`
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Breakdown is a priced stay.
type Breakdown struct {
	Total    models.Money `json:"total"`
	Segments []Segment    `json:"segments"`
}

// FeeCalculator prices a stay. The initial tier is charged once, on the first segment,
// and covers up to InitialMinutes of it; every other minute is billed per segment in
// AdditionalMinutes blocks at that segment's AdditionalFee, rounding each segment up.
type FeeCalculator struct{}

// NewFeeCalculator returns a calculator.
func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{}
}

// Compute returns the cost of [entryAt, exitAt).
func (c *FeeCalculator) Compute(entryAt, exitAt time.Time, lookup ScheduleLookup) (models.Money, error) {
	b, err := c.Breakdown(entryAt, exitAt, lookup)
	if err != nil {
		return 0, err
	}
	return b.Total, nil
}

// Breakdown splits [entryAt, exitAt) into segments and prices each of them.
func (c *FeeCalculator) Breakdown(entryAt, exitAt time.Time, lookup ScheduleLookup) (Breakdown, error) {
	segments, err := c.Segments(entryAt, exitAt, lookup)
	if err != nil {
		return Breakdown{}, err
	}

	var total models.Money
	for i := range segments {
		cost, err := priceSegment(segments[i], i == 0)
		if err != nil {
			return Breakdown{}, err
		}
		segments[i].Cost = cost
		total += cost
	}
	return Breakdown{Total: total, Segments: segments}, nil
}

// Segments walks [entryAt, exitAt) boundary by boundary and merges adjacent pieces that
// resolve to the same schedule. Any piece without a schedule fails the whole walk.
func (c *FeeCalculator) Segments(entryAt, exitAt time.Time, lookup ScheduleLookup) ([]Segment, error) {
	if lookup == nil {
		return nil, errors.New("fee calculator: nil schedule lookup")
	}
	if exitAt.Before(entryAt) {
		return nil, invalidInput("exit %s is before entry %s", exitAt.Format(time.RFC3339), entryAt.Format(time.RFC3339))
	}

	var segments []Segment
	for t := entryAt; t.Before(exitAt); {
		schedule, err := lookup.Resolve(t)
		if err != nil {
			return nil, err
		}

		next := lookup.NextBoundary(t)
		if !next.After(t) {
			return nil, fmt.Errorf("fee calculator: boundary %s does not advance past %s", next, t)
		}
		if next.After(exitAt) {
			next = exitAt
		}

		if n := len(segments); n > 0 && segments[n-1].Schedule.ID == schedule.ID {
			segments[n-1].End = next
		} else {
			segments = append(segments, Segment{Schedule: schedule, Start: t, End: next})
		}
		t = next
	}
	return segments, nil
}

func priceSegment(seg Segment, first bool) (models.Money, error) {
	s := seg.Schedule
	if s.AdditionalMinutes <= 0 {
		return 0, fmt.Errorf("fee schedule %d: additional_minutes must be positive", s.ID)
	}

	remaining := seg.Duration()
	if remaining <= 0 {
		return 0, nil
	}

	var cost models.Money
	if first {
		cost += s.InitialFee
		remaining -= time.Duration(s.InitialMinutes) * time.Minute
	}
	if remaining <= 0 {
		return cost, nil
	}

	block := time.Duration(s.AdditionalMinutes) * time.Minute
	blocks := (remaining + block - 1) / block
	return cost + models.Money(blocks)*s.AdditionalFee, nil
}
