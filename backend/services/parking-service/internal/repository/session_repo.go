package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"parkingops/backend/services/parking-service/internal/models"
)

const activePlateIndex = "parking_sessions_active_plate_idx"

const sessionColumns = `
	id, vehicle_id, driver_id, license_plate, vehicle_class, lot_id, entry_at, exit_at,
	checked_out_at, cost, status, payment_status, payment_method, order_ref,
	entry_photos, exit_photos, created_at, updated_at`

// SessionRepository persists parking sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert stores a new session. The partial unique index on (license_plate, lot_id) for
// CheckedIn rows turns a concurrent second check-in into ErrDuplicateActiveSession.
func (r *SessionRepository) Insert(ctx context.Context, s *models.ParkingSession) error {
	const query = `
		INSERT INTO parking_sessions (
			vehicle_id, driver_id, license_plate, vehicle_class, lot_id, entry_at,
			cost, status, payment_status, payment_method, entry_photos, exit_photos,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	entryPhotos, err := encodePhotos(s.EntryPhotos)
	if err != nil {
		return err
	}
	exitPhotos, err := encodePhotos(s.ExitPhotos)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, query,
		s.VehicleID,
		s.DriverID,
		s.LicensePlate,
		s.VehicleClass,
		s.LotID,
		s.EntryAt,
		s.Cost,
		s.Status,
		s.PaymentStatus,
		s.PaymentMethod,
		entryPhotos,
		exitPhotos,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if uniqueViolationOn(err, activePlateIndex) {
		return ErrDuplicateActiveSession
	}
	return err
}

// GetByID returns a session by id.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.ParkingSession, error) {
	return r.getOne(ctx, `SELECT`+sessionColumns+` FROM parking_sessions WHERE id = $1`, id)
}

// GetByOrderRef returns the session awaiting the gateway order.
func (r *SessionRepository) GetByOrderRef(ctx context.Context, orderRef int64) (*models.ParkingSession, error) {
	return r.getOne(ctx, `SELECT`+sessionColumns+` FROM parking_sessions WHERE order_ref = $1`, orderRef)
}

// ActiveByPlate returns the CheckedIn session of a plate at a lot.
func (r *SessionRepository) ActiveByPlate(ctx context.Context, lotID int64, plate string) (*models.ParkingSession, error) {
	return r.getOne(ctx,
		`SELECT`+sessionColumns+` FROM parking_sessions WHERE lot_id = $1 AND license_plate = $2 AND status = $3`,
		lotID, plate, models.SessionCheckedIn,
	)
}

// Update writes the session's mutable fields while the stored row still matches guard.
func (r *SessionRepository) Update(ctx context.Context, s *models.ParkingSession, guard Guard) error {
	return updateSession(ctx, r.db, s, guard)
}

func (r *SessionRepository) getOne(ctx context.Context, query string, args ...any) (*models.ParkingSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func updateSession(ctx context.Context, q querier, s *models.ParkingSession, guard Guard) error {
	const query = `
		UPDATE parking_sessions
		SET exit_at = $2,
		    checked_out_at = $3,
		    cost = $4,
		    status = $5,
		    payment_status = $6,
		    payment_method = $7,
		    order_ref = $8,
		    exit_photos = $9,
		    updated_at = $10
		WHERE id = $1 AND status = $11 AND payment_status = $12
	`
	exitPhotos, err := encodePhotos(s.ExitPhotos)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, query,
		s.ID,
		s.ExitAt,
		s.CheckedOutAt,
		s.Cost,
		s.Status,
		s.PaymentStatus,
		s.PaymentMethod,
		s.OrderRef,
		exitPhotos,
		s.UpdatedAt,
		guard.Status,
		guard.Payment,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM parking_sessions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleSession
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ParkingSession, error) {
	var (
		s           models.ParkingSession
		entryPhotos []byte
		exitPhotos  []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.VehicleID,
		&s.DriverID,
		&s.LicensePlate,
		&s.VehicleClass,
		&s.LotID,
		&s.EntryAt,
		&s.ExitAt,
		&s.CheckedOutAt,
		&s.Cost,
		&s.Status,
		&s.PaymentStatus,
		&s.PaymentMethod,
		&s.OrderRef,
		&entryPhotos,
		&exitPhotos,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodePhotos(entryPhotos, &s.EntryPhotos); err != nil {
		return nil, err
	}
	if err := decodePhotos(exitPhotos, &s.ExitPhotos); err != nil {
		return nil, err
	}
	return &s, nil
}

func encodePhotos(photos []string) (string, error) {
	if photos == nil {
		photos = []string{}
	}
	b, err := json.Marshal(photos)
	if err != nil {
		return "", fmt.Errorf("encode photos: %w", err)
	}
	return string(b), nil
}

func decodePhotos(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	var photos []string
	if err := json.Unmarshal(raw, &photos); err != nil {
		return fmt.Errorf("decode photos: %w", err)
	}
	if len(photos) > 0 {
		*dst = photos
	}
	return nil
}
