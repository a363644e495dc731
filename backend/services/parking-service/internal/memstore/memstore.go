// Package memstore is an in-memory implementation of the engine's store interfaces.
// It backs unit tests and single-process runs; every method returns copies.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"parkingops/backend/services/parking-service/internal/models"
	"parkingops/backend/services/parking-service/internal/repository"
)

// Store holds sessions, the webhook ledger and the read models.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	sessions  map[int64]*models.ParkingSession
	ledger    map[int64]models.PaymentWebhookRecord
	schedules map[int64][]models.FeeSchedule
	grants    []models.AccessGrant
	vehicles  map[int64]models.Vehicle
	lots      map[int64]models.Lot
	keys      map[int64]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sessions:  make(map[int64]*models.ParkingSession),
		ledger:    make(map[int64]models.PaymentWebhookRecord),
		schedules: make(map[int64][]models.FeeSchedule),
		vehicles:  make(map[int64]models.Vehicle),
		lots:      make(map[int64]models.Lot),
		keys:      make(map[int64]string),
	}
}

// PutLot registers a lot and its owner's checksum key.
func (s *Store) PutLot(lot models.Lot, checksumKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.ID] = lot
	s.keys[lot.ID] = checksumKey
}

// PutVehicle registers a vehicle.
func (s *Store) PutVehicle(v models.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = v
}

// PutSchedules replaces a lot's fee schedules.
func (s *Store) PutSchedules(lotID int64, schedules ...models.FeeSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[lotID] = append([]models.FeeSchedule(nil), schedules...)
}

// AddGrant records a whitelist entry or shared-vehicle grant.
func (s *Store) AddGrant(g models.AccessGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, g)
}

// SchedulesForLot implements service.ScheduleSource.
func (s *Store) SchedulesForLot(_ context.Context, lotID int64) ([]models.FeeSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FeeSchedule(nil), s.schedules[lotID]...), nil
}

// WhitelistEntries implements service.AccessGrants.
func (s *Store) WhitelistEntries(_ context.Context, lotID, driverID, vehicleID int64) ([]models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AccessGrant
	for _, g := range s.grants {
		if g.Kind != models.GrantWhitelist || !g.LotID.Valid || g.LotID.Int64 != lotID {
			continue
		}
		if g.SubjectID == driverID || (g.VehicleID.Valid && g.VehicleID.Int64 == vehicleID) {
			out = append(out, g)
		}
	}
	return out, nil
}

// SharedGrants implements service.AccessGrants.
func (s *Store) SharedGrants(_ context.Context, vehicleID, driverID int64) ([]models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AccessGrant
	for _, g := range s.grants {
		if g.Kind == models.GrantSharedVehicle && g.SubjectID == driverID && g.VehicleID.Valid && g.VehicleID.Int64 == vehicleID {
			out = append(out, g)
		}
	}
	return out, nil
}

// Vehicle implements service.Directory.
func (s *Store) Vehicle(_ context.Context, id int64) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

// VehicleByPlate implements service.Directory. The lowest ID wins when several vehicles
// share a normalized plate.
func (s *Store) VehicleByPlate(_ context.Context, plate string) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Vehicle
	for _, v := range s.vehicles {
		if models.NormalizePlate(v.LicensePlate) != plate {
			continue
		}
		if found == nil || v.ID < found.ID {
			found = &v
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

// Lot implements service.Directory.
func (s *Store) Lot(_ context.Context, id int64) (*models.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

// ChecksumKey implements service.Directory.
func (s *Store) ChecksumKey(_ context.Context, lotID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[lotID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return k, nil
}

// Insert implements service.SessionStore.
func (s *Store) Insert(_ context.Context, session *models.ParkingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Status == models.SessionCheckedIn &&
			existing.LotID == session.LotID &&
			existing.LicensePlate == session.LicensePlate {
			return repository.ErrDuplicateActiveSession
		}
	}
	s.nextID++
	session.ID = s.nextID
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
		session.UpdatedAt = session.CreatedAt
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// GetByID implements service.SessionStore.
func (s *Store) GetByID(_ context.Context, id int64) (*models.ParkingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return session.Clone(), nil
}

// GetByOrderRef implements service.SessionStore.
func (s *Store) GetByOrderRef(_ context.Context, orderRef int64) (*models.ParkingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.OrderRef.Valid && session.OrderRef.Int64 == orderRef {
			return session.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

// ActiveByPlate implements service.SessionStore.
func (s *Store) ActiveByPlate(_ context.Context, lotID int64, plate string) (*models.ParkingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.Status == models.SessionCheckedIn && session.LotID == lotID && session.LicensePlate == plate {
			return session.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

// Update implements service.SessionStore.
func (s *Store) Update(_ context.Context, session *models.ParkingSession, guard repository.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(session, guard)
}

func (s *Store) updateLocked(session *models.ParkingSession, guard repository.Guard) error {
	current, ok := s.sessions[session.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != guard.Status || current.PaymentStatus != guard.Payment {
		return repository.ErrStaleSession
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Sessions returns every session ordered by ID.
func (s *Store) Sessions() []*models.ParkingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ParkingSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup implements service.PaymentLedger.
func (s *Store) Lookup(_ context.Context, orderRef int64) (*models.PaymentWebhookRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.ledger[orderRef]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

// Commit implements service.PaymentLedger.
func (s *Store) Commit(_ context.Context, record models.PaymentWebhookRecord, session *models.ParkingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[record.OrderRef]; ok {
		return repository.ErrAlreadyApplied
	}
	if err := s.updateLocked(session, repository.Guard{Status: models.SessionFinished, Payment: models.PaymentPending}); err != nil {
		return err
	}
	s.ledger[record.OrderRef] = record
	return nil
}

// LedgerSize returns the number of applied callbacks.
func (s *Store) LedgerSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledger)
}
