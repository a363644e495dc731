package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// ScheduleInvalidator drops a lot's cached fee schedules.
type ScheduleInvalidator interface {
	Invalidate(ctx context.Context, lotID int64) error
}

// NewInvalidateSchedulesHandler returns POST /internal/lots/{lotID}/fee-schedules/invalidate
// handler.
func NewInvalidateSchedulesHandler(cache ScheduleInvalidator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lotID, ok := pathID(r, "lotID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid lot id")
			return
		}
		if err := cache.Invalidate(r.Context(), lotID); err != nil {
			logger.Error("fee schedule invalidation failed", zap.Int64("lot_id", lotID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "invalidation failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "lot_id": lotID})
	}
}
