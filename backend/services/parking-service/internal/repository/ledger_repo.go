package repository

import (
	"context"
	"database/sql"

	libdb "parkingops/backend/libs/db"
	"parkingops/backend/services/parking-service/internal/models"
)

// LedgerRepository records applied payment webhooks.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository returns repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Lookup returns the ledger row of an order reference.
func (r *LedgerRepository) Lookup(ctx context.Context, orderRef int64) (*models.PaymentWebhookRecord, error) {
	const query = `
		SELECT order_ref, signature_hash, session_id, status, applied_at
		FROM payment_webhooks
		WHERE order_ref = $1
	`
	var rec models.PaymentWebhookRecord
	err := r.db.QueryRowContext(ctx, query, orderRef).Scan(
		&rec.OrderRef,
		&rec.SignatureHash,
		&rec.SessionID,
		&rec.Status,
		&rec.AppliedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// Commit writes the ledger row and the session's payment status in one transaction.
// The session must still be Finished with a Pending payment.
func (r *LedgerRepository) Commit(ctx context.Context, rec models.PaymentWebhookRecord, session *models.ParkingSession) error {
	const insert = `
		INSERT INTO payment_webhooks (order_ref, signature_hash, session_id, status, applied_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_ref) DO NOTHING
	`
	return libdb.WithTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, insert,
			rec.OrderRef,
			rec.SignatureHash,
			rec.SessionID,
			rec.Status,
			rec.AppliedAt,
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrAlreadyApplied
		}

		return updateSession(ctx, tx, session, Guard{
			Status:  models.SessionFinished,
			Payment: models.PaymentPending,
		})
	})
}
