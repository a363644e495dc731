package repository

import (
	"context"
	"database/sql"

	"parkingops/backend/services/parking-service/internal/models"
)

// ScheduleRepository reads lot fee schedules.
type ScheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository returns repository.
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// SchedulesForLot returns every schedule of the lot, active or not; filtering by class,
// activity and day is left to the resolver.
func (r *ScheduleRepository) SchedulesForLot(ctx context.Context, lotID int64) ([]models.FeeSchedule, error) {
	const query = `
		SELECT id, lot_id, vehicle_class, start_minute, end_minute, days_of_week,
		       initial_fee, initial_minutes, additional_fee, additional_minutes,
		       is_active, updated_at
		FROM fee_schedules
		WHERE lot_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.FeeSchedule
	for rows.Next() {
		var (
			s    models.FeeSchedule
			mask int
		)
		if err := rows.Scan(
			&s.ID,
			&s.LotID,
			&s.VehicleClass,
			&s.StartMinute,
			&s.EndMinute,
			&mask,
			&s.InitialFee,
			&s.InitialMinutes,
			&s.AdditionalFee,
			&s.AdditionalMinutes,
			&s.IsActive,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		s.DaysOfWeek = models.DaysFromMask(mask)
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}
