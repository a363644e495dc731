package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"parkingops/backend/services/parking-service/internal/http/middleware"
	"parkingops/backend/services/parking-service/internal/models"
	"parkingops/backend/services/parking-service/internal/service"
)

// SessionsHandler exposes the session lifecycle to gate operators.
type SessionsHandler struct {
	lifecycle *service.SessionLifecycle
	logger    *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(lifecycle *service.SessionLifecycle, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{lifecycle: lifecycle, logger: logger}
}

type checkInRequest struct {
	LotID        int64     `json:"lot_id"`
	DriverID     int64     `json:"driver_id"`
	VehicleID    int64     `json:"vehicle_id"`
	LicensePlate string    `json:"license_plate"`
	VehicleClass string    `json:"vehicle_class"`
	EntryAt      time.Time `json:"entry_at"`
	Photos       []string  `json:"photos"`
}

type checkOutRequest struct {
	ExitAt time.Time `json:"exit_at"`
	Photos []string  `json:"photos"`
}

type finishRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// CheckIn handles POST /sessions/check-in.
func (h *SessionsHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var body checkInRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !h.canManage(r.Context(), body.LotID) {
		writeError(w, http.StatusForbidden, "lot not managed by operator")
		return
	}

	req, err := service.NewCheckInRequest(body.LotID, body.DriverID, body.VehicleID, body.LicensePlate, body.VehicleClass, body.EntryAt, body.Photos)
	if err != nil {
		writeServiceError(w, h.logger, "check-in", err)
		return
	}
	session, err := h.lifecycle.CheckIn(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "check-in", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// CheckOut handles POST /sessions/{id}/check-out.
func (h *SessionsHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	var body checkOutRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	req, err := service.NewCheckOutRequest(id, body.ExitAt, body.Photos)
	if err != nil {
		writeServiceError(w, h.logger, "check-out", err)
		return
	}
	session, err := h.lifecycle.CheckOut(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "check-out", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Finish handles POST /sessions/{id}/finish.
func (h *SessionsHandler) Finish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	var body finishRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	req, err := service.NewFinishRequest(id, body.PaymentMethod)
	if err != nil {
		writeServiceError(w, h.logger, "finish", err)
		return
	}
	session, err := h.lifecycle.Finish(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "finish", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Cancel handles POST /sessions/{id}/cancel.
func (h *SessionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", h.lifecycle.Cancel)
}

// Refund handles POST /sessions/{id}/refund.
func (h *SessionsHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "refund", h.lifecycle.Refund)
}

// Get handles GET /sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "get session", h.lifecycle.Get)
}

// Quote handles GET /sessions/{id}/quote?at=RFC3339.
func (h *SessionsHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}

	var at time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
			return
		}
		at = parsed
	}

	breakdown, err := h.lifecycle.Quote(r.Context(), id, at)
	if err != nil {
		writeServiceError(w, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// ActiveByPlate handles GET /lots/{lotID}/sessions/active?plate=.
func (h *SessionsHandler) ActiveByPlate(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathID(r, "lotID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid lot id")
		return
	}
	plate := r.URL.Query().Get("plate")
	if plate == "" {
		writeError(w, http.StatusBadRequest, "plate is required")
		return
	}
	if !h.canManage(r.Context(), lotID) {
		writeError(w, http.StatusForbidden, "lot not managed by operator")
		return
	}

	session, err := h.lifecycle.ActiveByPlate(r.Context(), lotID, plate)
	if err != nil {
		writeServiceError(w, h.logger, "active session lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionsHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) (*models.ParkingSession, error)) {
	id, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	session, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// authorizedSession parses {id} and checks the operator manages the session's lot.
func (h *SessionsHandler) authorizedSession(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return 0, false
	}

	op, _ := middleware.OperatorFromContext(r.Context())
	if op.Role == middleware.RoleAdmin || len(op.LotIDs) == 0 {
		return id, true
	}

	session, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "load session", err)
		return 0, false
	}
	if !op.CanManageLot(session.LotID) {
		writeError(w, http.StatusForbidden, "lot not managed by operator")
		return 0, false
	}
	return id, true
}

func (h *SessionsHandler) canManage(ctx context.Context, lotID int64) bool {
	op, ok := middleware.OperatorFromContext(ctx)
	return !ok || op.CanManageLot(lotID)
}
