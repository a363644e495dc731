package repository

import (
	"context"
	"database/sql"

	"parkingops/backend/services/parking-service/internal/models"
)

// plateKeyExpr mirrors models.NormalizePlate and matches vehicles_plate_key_idx.
const plateKeyExpr = `upper(regexp_replace(license_plate, '[^[:alnum:]]', '', 'g'))`

// DirectoryRepository reads vehicles, lots and lot owners' gateway credentials.
type DirectoryRepository struct {
	db *sql.DB
}

// NewDirectoryRepository returns repository.
func NewDirectoryRepository(db *sql.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Vehicle returns a registered vehicle.
func (r *DirectoryRepository) Vehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	const query = `SELECT id, owner_id, license_plate, vehicle_class FROM vehicles WHERE id = $1`
	var v models.Vehicle
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.OwnerID, &v.LicensePlate, &v.Class); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// VehicleByPlate returns the registered vehicle whose normalized plate equals plate.
func (r *DirectoryRepository) VehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	const query = `
		SELECT id, owner_id, license_plate, vehicle_class
		FROM vehicles
		WHERE ` + plateKeyExpr + ` = $1
		ORDER BY id
		LIMIT 1
	`
	var v models.Vehicle
	if err := r.db.QueryRowContext(ctx, query, plate).Scan(&v.ID, &v.OwnerID, &v.LicensePlate, &v.Class); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// Lot returns a parking lot.
func (r *DirectoryRepository) Lot(ctx context.Context, id int64) (*models.Lot, error) {
	const query = `SELECT id, owner_id, name FROM lots WHERE id = $1`
	var l models.Lot
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&l.ID, &l.OwnerID, &l.Name); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// ChecksumKey returns the gateway checksum key of the lot's owner.
func (r *DirectoryRepository) ChecksumKey(ctx context.Context, lotID int64) (string, error) {
	const query = `
		SELECT pc.checksum_key
		FROM lots l
		JOIN payment_credentials pc ON pc.owner_id = l.owner_id
		WHERE l.id = $1
	`
	var key string
	if err := r.db.QueryRowContext(ctx, query, lotID).Scan(&key); err != nil {
		return "", notFound(err)
	}
	return key, nil
}
