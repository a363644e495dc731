package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"parkingops/backend/services/parking-service/internal/models"
)

// ScheduleCache keeps each lot's fee schedules as one JSON document.
type ScheduleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewScheduleCache returns redis-backed cache.
func NewScheduleCache(client *redis.Client, ttl time.Duration) *ScheduleCache {
	return &ScheduleCache{client: client, ttl: ttl}
}

func scheduleKey(lotID int64) string {
	return fmt.Sprintf("parking:fee-schedules:%d", lotID)
}

// Get returns the cached schedules; ok is false on a miss.
func (c *ScheduleCache) Get(ctx context.Context, lotID int64) ([]models.FeeSchedule, bool, error) {
	data, err := c.client.Get(ctx, scheduleKey(lotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var schedules []models.FeeSchedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, false, fmt.Errorf("decode cached schedules for lot %d: %w", lotID, err)
	}
	return schedules, true, nil
}

// Set caches the schedules of a lot.
func (c *ScheduleCache) Set(ctx context.Context, lotID int64, schedules []models.FeeSchedule) error {
	if schedules == nil {
		schedules = []models.FeeSchedule{}
	}
	data, err := json.Marshal(schedules)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, scheduleKey(lotID), data, c.ttl).Err()
}

// Invalidate removes cached schedules of a lot.
func (c *ScheduleCache) Invalidate(ctx context.Context, lotID int64) error {
	return c.client.Del(ctx, scheduleKey(lotID)).Err()
}
