package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"gopkg.in/guregu/null.v4"

	"parkingops/backend/services/parking-service/internal/models"
	"parkingops/backend/services/parking-service/internal/repository"
)

func checkedIn(lotID int64, plate string) *models.ParkingSession {
	return &models.ParkingSession{
		LotID:         lotID,
		LicensePlate:  plate,
		VehicleClass:  models.VehicleClassCar,
		EntryAt:       time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
		Status:        models.SessionCheckedIn,
		PaymentStatus: models.PaymentUnpaid,
	}
}

func TestInsertRejectsSecondActiveSession(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := checkedIn(1, "51F12345")
	if err := s.Insert(ctx, first); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, checkedIn(1, "51F12345")); !errors.Is(err, repository.ErrDuplicateActiveSession) {
		t.Fatalf("second insert = %v, want ErrDuplicateActiveSession", err)
	}
	if err := s.Insert(ctx, checkedIn(2, "51F12345")); err != nil {
		t.Fatalf("other lot insert: %v", err)
	}

	first.Status = models.SessionCancelled
	if err := s.Update(ctx, first, repository.Guard{Status: models.SessionCheckedIn, Payment: models.PaymentUnpaid}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Insert(ctx, checkedIn(1, "51F12345")); err != nil {
		t.Fatalf("insert after cancel: %v", err)
	}
}

func TestUpdateGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	session := checkedIn(1, "30A99999")
	if err := s.Insert(ctx, session); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	session.Status = models.SessionCheckedOut
	err := s.Update(ctx, session, repository.Guard{Status: models.SessionCheckedOut, Payment: models.PaymentUnpaid})
	if !errors.Is(err, repository.ErrStaleSession) {
		t.Fatalf("stale update = %v", err)
	}
	got, _ := s.GetByID(ctx, session.ID)
	if got.Status != models.SessionCheckedIn {
		t.Fatalf("stale update changed status to %s", got.Status)
	}

	missing := checkedIn(1, "X")
	missing.ID = 99
	if err := s.Update(ctx, missing, repository.Guard{Status: models.SessionCheckedIn}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing update = %v", err)
	}
}

func TestReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	session := checkedIn(1, "30A99999")
	session.EntryPhotos = []string{"gate-1.jpg"}
	if err := s.Insert(ctx, session); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	session.EntryPhotos[0] = "mutated"
	got, _ := s.GetByID(ctx, session.ID)
	got.LicensePlate = "CHANGED"

	again, _ := s.GetByID(ctx, session.ID)
	if again.LicensePlate != "30A99999" || again.EntryPhotos[0] != "gate-1.jpg" {
		t.Fatalf("store shares memory with callers: %+v", again)
	}
}

func TestCommitIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	session := checkedIn(1, "30A99999")
	if err := s.Insert(ctx, session); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	session.Status = models.SessionFinished
	session.PaymentStatus = models.PaymentPending
	session.OrderRef = null.IntFrom(777)
	if err := s.Update(ctx, session, repository.Guard{Status: models.SessionCheckedIn, Payment: models.PaymentUnpaid}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := s.Lookup(ctx, 777); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Lookup before commit = %v", err)
	}
	if found, err := s.GetByOrderRef(ctx, 777); err != nil || found.ID != session.ID {
		t.Fatalf("GetByOrderRef = %v, %v", found, err)
	}

	paid := session.Clone()
	paid.PaymentStatus = models.PaymentPaid
	rec := models.PaymentWebhookRecord{OrderRef: 777, SessionID: session.ID, Status: models.PaymentPaid}
	if err := s.Commit(ctx, rec, paid); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Commit(ctx, rec, paid); !errors.Is(err, repository.ErrAlreadyApplied) {
		t.Fatalf("second Commit = %v", err)
	}
	if s.LedgerSize() != 1 {
		t.Fatalf("ledger size = %d", s.LedgerSize())
	}

	other := models.PaymentWebhookRecord{OrderRef: 778, SessionID: session.ID, Status: models.PaymentFailed}
	failed := session.Clone()
	failed.PaymentStatus = models.PaymentFailed
	if err := s.Commit(ctx, other, failed); !errors.Is(err, repository.ErrStaleSession) {
		t.Fatalf("commit on settled session = %v", err)
	}
	if s.LedgerSize() != 1 {
		t.Fatal("rejected commit wrote a ledger row")
	}
}

func TestVehicleByPlate(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutVehicle(models.Vehicle{ID: 7, OwnerID: 1, LicensePlate: "51f-123.45", Class: models.VehicleClassCar})
	s.PutVehicle(models.Vehicle{ID: 3, OwnerID: 2, LicensePlate: "51F 12345", Class: models.VehicleClassCar})

	v, err := s.VehicleByPlate(ctx, "51F12345")
	if err != nil || v.ID != 3 {
		t.Fatalf("VehicleByPlate = %+v, %v", v, err)
	}
	if _, err := s.VehicleByPlate(ctx, "30A99999"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown plate = %v", err)
	}
}
