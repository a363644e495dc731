package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"parkingops/backend/services/parking-service/internal/events"
	"parkingops/backend/services/parking-service/internal/memstore"
	"parkingops/backend/services/parking-service/internal/models"
)

const (
	testLotID      int64 = 1
	testLotOwner   int64 = 100
	testVehicleID  int64 = 10
	testOwnerID    int64 = 200
	testFriendID   int64 = 300
	testChecksum         = "lot-owner-checksum-key"
	testOrderRef   int64 = 555000
	testPlateRaw         = "51f-123.45"
	testPlateClean       = "51F12345"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SessionEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e events.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingPublisher) count(t events.Type) int {
	n := 0
	for _, got := range r.types() {
		if got == t {
			n++
		}
	}
	return n
}

// standardSchedule is the 10000 for 30 minutes then 5000 per 30 minutes tariff.
func standardSchedule(id int64, class models.VehicleClass, start, end int) models.FeeSchedule {
	return models.FeeSchedule{
		ID:                id,
		LotID:             testLotID,
		VehicleClass:      class,
		StartMinute:       start,
		EndMinute:         end,
		DaysOfWeek:        models.EveryDay(),
		InitialFee:        10000,
		InitialMinutes:    30,
		AdditionalFee:     5000,
		AdditionalMinutes: 30,
		IsActive:          true,
		UpdatedAt:         base.Add(-24 * time.Hour),
	}
}

type fixture struct {
	store     *memstore.Store
	clock     *fakeClock
	pub       *recordingPublisher
	lifecycle *SessionLifecycle
	webhooks  *WebhookProcessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	store.PutLot(models.Lot{ID: testLotID, OwnerID: testLotOwner, Name: "Riverside"}, testChecksum)
	store.PutVehicle(models.Vehicle{ID: testVehicleID, OwnerID: testOwnerID, LicensePlate: testPlateRaw, Class: models.VehicleClassCar})
	store.PutSchedules(testLotID, standardSchedule(1, models.VehicleClassCar, 0, 0))

	clock := &fakeClock{now: base}
	pub := &recordingPublisher{}
	logger := zap.NewNop()

	orderRefs := testOrderRef
	var refMu sync.Mutex
	nextRef := func() int64 {
		refMu.Lock()
		defer refMu.Unlock()
		orderRefs++
		return orderRefs
	}

	lifecycle := NewSessionLifecycle(LifecycleDeps{
		Sessions:   store,
		Directory:  store,
		Gate:       NewAccessGate(store),
		Resolver:   NewFeeScheduleResolver(store, time.UTC),
		Calculator: NewFeeCalculator(),
		Publisher:  pub,
		Logger:     logger,
		Clock:      clock.Now,
		OrderRefs:  nextRef,
	})
	webhooks := NewWebhookProcessor(WebhookDeps{
		Sessions:  store,
		Ledger:    store,
		Directory: store,
		Publisher: pub,
		Logger:    logger,
		Clock:     clock.Now,
	})

	return &fixture{store: store, clock: clock, pub: pub, lifecycle: lifecycle, webhooks: webhooks}
}

func (f *fixture) checkInOwner(t *testing.T, entryAt time.Time) *models.ParkingSession {
	t.Helper()
	req, err := NewCheckInRequest(testLotID, testOwnerID, testVehicleID, "", "", entryAt, []string{"entry.jpg"})
	if err != nil {
		t.Fatalf("NewCheckInRequest: %v", err)
	}
	s, err := f.lifecycle.CheckIn(context.Background(), req)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	return s
}

func (f *fixture) checkOut(t *testing.T, id int64, exitAt time.Time) *models.ParkingSession {
	t.Helper()
	req, err := NewCheckOutRequest(id, exitAt, nil)
	if err != nil {
		t.Fatalf("NewCheckOutRequest: %v", err)
	}
	s, err := f.lifecycle.CheckOut(context.Background(), req)
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	return s
}

func (f *fixture) finish(t *testing.T, id int64, method models.PaymentMethod) *models.ParkingSession {
	t.Helper()
	req, err := NewFinishRequest(id, string(method))
	if err != nil {
		t.Fatalf("NewFinishRequest: %v", err)
	}
	s, err := f.lifecycle.Finish(context.Background(), req)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return s
}

// pendingSession drives a 70 minute stay to Finished/Pending.
func (f *fixture) pendingSession(t *testing.T) *models.ParkingSession {
	t.Helper()
	s := f.checkInOwner(t, base)
	f.checkOut(t, s.ID, base.Add(70*time.Minute))
	return f.finish(t, s.ID, models.PaymentMethodOnline)
}
