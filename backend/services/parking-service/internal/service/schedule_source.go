package service

import (
	"context"

	"go.uber.org/zap"

	"parkingops/backend/services/parking-service/internal/models"
)

// ScheduleCache stores a lot's schedules between edits.
type ScheduleCache interface {
	Get(ctx context.Context, lotID int64) ([]models.FeeSchedule, bool, error)
	Set(ctx context.Context, lotID int64, schedules []models.FeeSchedule) error
	Invalidate(ctx context.Context, lotID int64) error
}

// CachedScheduleSource reads through a cache to the schedule store. Cache failures are
// logged and fall back to the store.
type CachedScheduleSource struct {
	store  ScheduleSource
	cache  ScheduleCache
	logger *zap.Logger
}

// NewCachedScheduleSource builds the read-through source.
func NewCachedScheduleSource(store ScheduleSource, cache ScheduleCache, logger *zap.Logger) *CachedScheduleSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedScheduleSource{store: store, cache: cache, logger: logger}
}

// SchedulesForLot implements ScheduleSource. Invalid rows are dropped with a warning.
func (c *CachedScheduleSource) SchedulesForLot(ctx context.Context, lotID int64) ([]models.FeeSchedule, error) {
	if cached, ok, err := c.cache.Get(ctx, lotID); err != nil {
		c.logger.Warn("fee schedule cache read failed", zap.Int64("lot_id", lotID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	schedules, err := c.store.SchedulesForLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	valid := make([]models.FeeSchedule, 0, len(schedules))
	for _, s := range schedules {
		if err := s.Validate(); err != nil {
			c.logger.Warn("ignoring invalid fee schedule", zap.Int64("lot_id", lotID), zap.Error(err))
			continue
		}
		valid = append(valid, s)
	}

	if err := c.cache.Set(ctx, lotID, valid); err != nil {
		c.logger.Warn("fee schedule cache write failed", zap.Int64("lot_id", lotID), zap.Error(err))
	}
	return valid, nil
}

// Invalidate drops the cached schedules of a lot after an edit.
func (c *CachedScheduleSource) Invalidate(ctx context.Context, lotID int64) error {
	if err := c.cache.Invalidate(ctx, lotID); err != nil {
		return err
	}
	c.logger.Info("fee schedule cache invalidated", zap.Int64("lot_id", lotID))
	return nil
}
