package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parkingops/backend/services/parking-service/internal/events"
	"parkingops/backend/services/parking-service/internal/models"
	"parkingops/backend/services/parking-service/internal/repository"
)

// SessionStore persists sessions. Insert must atomically reject a second CheckedIn
// session for the same plate and lot with repository.ErrDuplicateActiveSession; Update
// must apply only while the stored row still matches the guard and otherwise return
// repository.ErrStaleSession.
type SessionStore interface {
	Insert(ctx context.Context, session *models.ParkingSession) error
	GetByID(ctx context.Context, id int64) (*models.ParkingSession, error)
	GetByOrderRef(ctx context.Context, orderRef int64) (*models.ParkingSession, error)
	ActiveByPlate(ctx context.Context, lotID int64, plate string) (*models.ParkingSession, error)
	Update(ctx context.Context, session *models.ParkingSession, guard repository.Guard) error
}

// Directory is the read model for vehicles, lots and lot owners' gateway keys.
type Directory interface {
	Vehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	// VehicleByPlate matches a normalized plate against registered vehicles.
	VehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error)
	Lot(ctx context.Context, id int64) (*models.Lot, error)
	ChecksumKey(ctx context.Context, lotID int64) (string, error)
}

// LifecycleDeps groups the collaborators of SessionLifecycle. Publisher, Clock and
// OrderRefs are optional.
type LifecycleDeps struct {
	Sessions   SessionStore
	Directory  Directory
	Gate       *AccessGate
	Resolver   *FeeScheduleResolver
	Calculator *FeeCalculator
	Publisher  events.Publisher
	Logger     *zap.Logger
	Clock      func() time.Time
	OrderRefs  func() int64
}

// SessionLifecycle drives sessions through CheckedIn → CheckedOut → Finished, or
// CheckedIn → Cancelled.
type SessionLifecycle struct {
	sessions  SessionStore
	directory Directory
	gate      *AccessGate
	resolver  *FeeScheduleResolver
	calc      *FeeCalculator
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	orderRefs func() int64
}

// NewSessionLifecycle builds the state machine.
func NewSessionLifecycle(deps LifecycleDeps) *SessionLifecycle {
	l := &SessionLifecycle{
		sessions:  deps.Sessions,
		directory: deps.Directory,
		gate:      deps.Gate,
		resolver:  deps.Resolver,
		calc:      deps.Calculator,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		now:       deps.Clock,
		orderRefs: deps.OrderRefs,
	}
	if l.calc == nil {
		l.calc = NewFeeCalculator()
	}
	if l.publisher == nil {
		l.publisher = events.Nop{}
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	if l.orderRefs == nil {
		l.orderRefs = newOrderRef
	}
	return l
}

// CheckIn opens a session. Registered vehicles driven by someone other than the owner
// need a live grant; a plate may hold only one CheckedIn session per lot.
func (l *SessionLifecycle) CheckIn(ctx context.Context, req CheckInRequest) (*models.ParkingSession, error) {
	if _, err := l.directory.Lot(ctx, req.LotID); err != nil {
		return nil, storeErr(err, "lot %d", req.LotID)
	}

	session := &models.ParkingSession{
		LotID:         req.LotID,
		LicensePlate:  req.LicensePlate,
		VehicleClass:  req.VehicleClass,
		EntryAt:       req.EntryAt.UTC(),
		Status:        models.SessionCheckedIn,
		PaymentStatus: models.PaymentUnpaid,
		EntryPhotos:   req.Photos,
	}
	if req.DriverID > 0 {
		session.DriverID = null.IntFrom(req.DriverID)
	}

	vehicle, err := l.registeredVehicle(ctx, req)
	if err != nil {
		return nil, err
	}
	if vehicle != nil {
		if req.DriverID == 0 {
			l.logger.Info("check-in denied",
				zap.Int64("lot_id", req.LotID),
				zap.Int64("vehicle_id", vehicle.ID),
				zap.String("reason", "registered vehicle without driver"),
			)
			return nil, fmt.Errorf("%w: vehicle %d is registered and needs a driver", ErrAccessDenied, vehicle.ID)
		}

		decision, err := l.gate.Authorize(ctx, AccessRequest{
			DriverID:       req.DriverID,
			VehicleOwnerID: vehicle.OwnerID,
			VehicleID:      vehicle.ID,
			LotID:          req.LotID,
			Now:            l.now(),
		})
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			l.logger.Info("check-in denied",
				zap.Int64("lot_id", req.LotID),
				zap.Int64("vehicle_id", vehicle.ID),
				zap.Int64("driver_id", req.DriverID),
				zap.String("reason", decision.Reason),
			)
			return nil, fmt.Errorf("%w: %s", ErrAccessDenied, decision.Reason)
		}

		session.VehicleID = null.IntFrom(vehicle.ID)
		session.LicensePlate = NormalizePlate(vehicle.LicensePlate)
		session.VehicleClass = vehicle.Class
	}

	now := l.now()
	session.CreatedAt, session.UpdatedAt = now, now
	if err := l.sessions.Insert(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveSession) {
			return nil, fmt.Errorf("%w: %s is already checked in at lot %d", ErrConflict, session.LicensePlate, session.LotID)
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	l.logger.Info("vehicle checked in",
		zap.Int64("session_id", session.ID),
		zap.Int64("lot_id", session.LotID),
		zap.String("plate", session.LicensePlate),
	)
	l.publish(ctx, events.SessionCheckedIn, session)
	return session.Clone(), nil
}

// registeredVehicle returns the vehicle record behind a check-in, or nil for a walk-in
// whose plate is not registered. A guest request carrying a registered plate resolves to
// that vehicle so it goes through the same access check.
func (l *SessionLifecycle) registeredVehicle(ctx context.Context, req CheckInRequest) (*models.Vehicle, error) {
	if req.VehicleID > 0 {
		vehicle, err := l.directory.Vehicle(ctx, req.VehicleID)
		if err != nil {
			return nil, storeErr(err, "vehicle %d", req.VehicleID)
		}
		return vehicle, nil
	}

	vehicle, err := l.directory.VehicleByPlate(ctx, req.LicensePlate)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up plate %s: %w", req.LicensePlate, err)
	}
	return vehicle, nil
}

// CheckOut records the exit and prices the stay. When no schedule covers part of the
// stay the session is left CheckedIn.
func (l *SessionLifecycle) CheckOut(ctx context.Context, req CheckOutRequest) (*models.ParkingSession, error) {
	session, err := l.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionCheckedIn {
		return nil, transitionErr("check out", session)
	}

	now := l.now()
	exitAt := req.ExitAt
	if exitAt.IsZero() {
		exitAt = now
	}
	exitAt = exitAt.UTC()

	cost, err := l.price(ctx, session, exitAt)
	if err != nil {
		l.logger.Warn("check-out rejected",
			zap.Int64("session_id", session.ID),
			zap.Error(err),
		)
		return nil, err
	}

	session.ExitAt = null.TimeFrom(exitAt)
	session.CheckedOutAt = null.TimeFrom(now)
	session.Cost = cost
	session.Status = models.SessionCheckedOut
	session.ExitPhotos = req.Photos
	session.UpdatedAt = now

	if err := l.update(ctx, session, "check out", repository.Guard{Status: models.SessionCheckedIn, Payment: models.PaymentUnpaid}); err != nil {
		return nil, err
	}

	l.logger.Info("vehicle checked out",
		zap.Int64("session_id", session.ID),
		zap.Int64("cost", int64(cost)),
		zap.Duration("stay", exitAt.Sub(session.EntryAt)),
	)
	l.publish(ctx, events.SessionCheckedOut, session)
	return session.Clone(), nil
}

// Finish closes a checked-out session. Cash settles immediately; electronic payment is
// left Pending under a fresh order reference until the gateway webhook arrives. A
// zero-cost stay is settled whatever the method.
func (l *SessionLifecycle) Finish(ctx context.Context, req FinishRequest) (*models.ParkingSession, error) {
	session, err := l.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionCheckedOut {
		return nil, transitionErr("finish", session)
	}

	session.Status = models.SessionFinished
	session.PaymentMethod = req.Method
	session.UpdatedAt = l.now()
	if req.Method.Electronic() && session.Cost > 0 {
		session.PaymentStatus = models.PaymentPending
		session.OrderRef = null.IntFrom(l.orderRefs())
	} else {
		session.PaymentStatus = models.PaymentPaid
	}

	if err := l.update(ctx, session, "finish", repository.Guard{Status: models.SessionCheckedOut, Payment: models.PaymentUnpaid}); err != nil {
		return nil, err
	}

	l.logger.Info("session finished",
		zap.Int64("session_id", session.ID),
		zap.String("method", string(session.PaymentMethod)),
		zap.String("payment_status", string(session.PaymentStatus)),
		zap.Int64("order_ref", session.OrderRef.Int64),
	)
	l.publish(ctx, events.SessionFinished, session)
	return session.Clone(), nil
}

// Cancel voids a session opened in error. Only CheckedIn sessions can be cancelled.
func (l *SessionLifecycle) Cancel(ctx context.Context, id int64) (*models.ParkingSession, error) {
	session, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionCheckedIn {
		return nil, transitionErr("cancel", session)
	}

	session.Status = models.SessionCancelled
	session.Cost = 0
	session.UpdatedAt = l.now()
	if err := l.update(ctx, session, "cancel", repository.Guard{Status: models.SessionCheckedIn, Payment: models.PaymentUnpaid}); err != nil {
		return nil, err
	}

	l.logger.Info("session cancelled", zap.Int64("session_id", session.ID))
	l.publish(ctx, events.SessionCancelled, session)
	return session.Clone(), nil
}

// Refund marks a paid, finished session as refunded. The session status is unchanged.
func (l *SessionLifecycle) Refund(ctx context.Context, id int64) (*models.ParkingSession, error) {
	session, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionFinished || session.PaymentStatus != models.PaymentPaid {
		return nil, transitionErr("refund", session)
	}

	session.PaymentStatus = models.PaymentRefunded
	session.UpdatedAt = l.now()
	if err := l.update(ctx, session, "refund", repository.Guard{Status: models.SessionFinished, Payment: models.PaymentPaid}); err != nil {
		return nil, err
	}

	l.logger.Info("session refunded", zap.Int64("session_id", session.ID), zap.Int64("cost", int64(session.Cost)))
	l.publish(ctx, events.SessionRefunded, session)
	return session.Clone(), nil
}

// Quote prices a CheckedIn session as if it checked out at the given instant.
func (l *SessionLifecycle) Quote(ctx context.Context, id int64, at time.Time) (Breakdown, error) {
	session, err := l.load(ctx, id)
	if err != nil {
		return Breakdown{}, err
	}
	if session.Status != models.SessionCheckedIn {
		return Breakdown{}, transitionErr("quote", session)
	}
	if at.IsZero() {
		at = l.now()
	}

	set, err := l.resolver.Lookup(ctx, session.LotID, session.VehicleClass)
	if err != nil {
		return Breakdown{}, err
	}
	return l.calc.Breakdown(session.EntryAt, at.UTC(), set)
}

// Get returns a snapshot of the session.
func (l *SessionLifecycle) Get(ctx context.Context, id int64) (*models.ParkingSession, error) {
	return l.load(ctx, id)
}

// ActiveByPlate returns the plate's CheckedIn session at the lot.
func (l *SessionLifecycle) ActiveByPlate(ctx context.Context, lotID int64, plate string) (*models.ParkingSession, error) {
	session, err := l.sessions.ActiveByPlate(ctx, lotID, NormalizePlate(plate))
	if err != nil {
		return nil, storeErr(err, "active session for %s at lot %d", plate, lotID)
	}
	return session, nil
}

func (l *SessionLifecycle) price(ctx context.Context, session *models.ParkingSession, exitAt time.Time) (models.Money, error) {
	set, err := l.resolver.Lookup(ctx, session.LotID, session.VehicleClass)
	if err != nil {
		return 0, err
	}
	return l.calc.Compute(session.EntryAt, exitAt, set)
}

func (l *SessionLifecycle) load(ctx context.Context, id int64) (*models.ParkingSession, error) {
	session, err := l.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "session %d", id)
	}
	return session, nil
}

// update persists a transition; losing a race to another transition surfaces as an
// invalid transition against the state that won.
func (l *SessionLifecycle) update(ctx context.Context, session *models.ParkingSession, op string, guard repository.Guard) error {
	err := l.sessions.Update(ctx, session, guard)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStaleSession) {
		current, loadErr := l.load(ctx, session.ID)
		if loadErr != nil {
			return loadErr
		}
		return transitionErr(op, current)
	}
	return fmt.Errorf("update session %d: %w", session.ID, err)
}

func (l *SessionLifecycle) publish(ctx context.Context, t events.Type, session *models.ParkingSession) {
	if err := l.publisher.Publish(ctx, events.New(t, session, l.now())); err != nil {
		l.logger.Warn("failed to publish session event",
			zap.String("event", string(t)),
			zap.Int64("session_id", session.ID),
			zap.Error(err),
		)
	}
}

func transitionErr(op string, s *models.ParkingSession) error {
	return &InvalidTransitionError{SessionID: s.ID, Op: op, Status: s.Status, Payment: s.PaymentStatus}
}

func storeErr(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("load %s: %w", fmt.Sprintf(format, args...), err)
}

// newOrderRef returns a gateway order code: millisecond timestamp with three random
// digits, which stays below 2^53 as the gateway requires.
func newOrderRef() int64 {
	return time.Now().UnixMilli()*1000 + rand.Int64N(1000)
}
