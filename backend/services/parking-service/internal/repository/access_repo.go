package repository

import (
	"context"
	"database/sql"

	"gopkg.in/guregu/null.v4"

	"parkingops/backend/services/parking-service/internal/models"
)

// AccessRepository reads whitelist entries and shared-vehicle grants.
type AccessRepository struct {
	db *sql.DB
}

// NewAccessRepository returns repository.
func NewAccessRepository(db *sql.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// WhitelistEntries returns the lot's entries naming the driver or the vehicle, including
// expired and revoked ones.
func (r *AccessRepository) WhitelistEntries(ctx context.Context, lotID, driverID, vehicleID int64) ([]models.AccessGrant, error) {
	const query = `
		SELECT lot_id, driver_id, vehicle_id, granted_at, expires_at, revoked_at
		FROM whitelist_entries
		WHERE lot_id = $1 AND (driver_id = $2 OR vehicle_id = $3)
	`
	rows, err := r.db.QueryContext(ctx, query, lotID, driverID, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []models.AccessGrant
	for rows.Next() {
		var (
			g      = models.AccessGrant{Kind: models.GrantWhitelist}
			driver null.Int
		)
		if err := rows.Scan(&g.LotID, &driver, &g.VehicleID, &g.GrantedAt, &g.ExpiresAt, &g.RevokedAt); err != nil {
			return nil, err
		}
		g.SubjectID = driver.Int64
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// SharedGrants returns the vehicle's grants targeting the driver.
func (r *AccessRepository) SharedGrants(ctx context.Context, vehicleID, driverID int64) ([]models.AccessGrant, error) {
	const query = `
		SELECT vehicle_id, driver_id, accepted, granted_at, expires_at, revoked_at
		FROM shared_vehicles
		WHERE vehicle_id = $1 AND driver_id = $2
	`
	rows, err := r.db.QueryContext(ctx, query, vehicleID, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []models.AccessGrant
	for rows.Next() {
		g := models.AccessGrant{Kind: models.GrantSharedVehicle}
		if err := rows.Scan(&g.VehicleID, &g.SubjectID, &g.Accepted, &g.GrantedAt, &g.ExpiresAt, &g.RevokedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
