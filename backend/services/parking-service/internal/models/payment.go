package models

import "time"

// PaymentWebhookRecord is the write-once ledger row proving a gateway callback was applied.
type PaymentWebhookRecord struct {
	OrderRef      int64         `db:"order_ref" json:"order_ref"`
	SignatureHash string        `db:"signature_hash" json:"signature_hash"`
	SessionID     int64         `db:"session_id" json:"session_id"`
	Status        PaymentStatus `db:"status" json:"status"`
	AppliedAt     time.Time     `db:"applied_at" json:"applied_at"`
}
