package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"parkingops/backend/services/parking-service/internal/events"
	"parkingops/backend/services/parking-service/internal/models"
	"parkingops/backend/services/parking-service/internal/payos"
	"parkingops/backend/services/parking-service/internal/repository"
)

// Rejection reasons.
const (
	ReasonBadSignature     = "bad signature"
	ReasonMalformedPayload = "malformed payload"
)

// PaymentLedger is the idempotency ledger of applied callbacks. Commit must write the
// ledger row and the session's payment status in one transaction, returning
// repository.ErrAlreadyApplied when the order reference is already recorded and
// repository.ErrStaleSession when the session is no longer Finished/Pending.
type PaymentLedger interface {
	Lookup(ctx context.Context, orderRef int64) (*models.PaymentWebhookRecord, error)
	Commit(ctx context.Context, record models.PaymentWebhookRecord, session *models.ParkingSession) error
}

// WebhookOutcome is the result class of a callback.
type WebhookOutcome string

const (
	WebhookApplied  WebhookOutcome = "Applied"
	WebhookRejected WebhookOutcome = "Rejected"
)

// WebhookResult describes how a callback was handled. Changed is false for the
// idempotent no-op cases.
type WebhookResult struct {
	Outcome       WebhookOutcome       `json:"outcome"`
	Reason        string               `json:"reason,omitempty"`
	OrderRef      int64                `json:"order_ref,omitempty"`
	SessionID     int64                `json:"session_id,omitempty"`
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty"`
	Changed       bool                 `json:"changed"`
}

func rejected(reason string) WebhookResult {
	return WebhookResult{Outcome: WebhookRejected, Reason: reason}
}

// WebhookDeps groups the collaborators of WebhookProcessor. Locker, Publisher and Clock
// are optional.
type WebhookDeps struct {
	Sessions  SessionStore
	Ledger    PaymentLedger
	Directory Directory
	Locker    OrderLocker
	Publisher events.Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
}

// WebhookProcessor verifies gateway callbacks and applies them at most once per order.
type WebhookProcessor struct {
	sessions  SessionStore
	ledger    PaymentLedger
	directory Directory
	locker    OrderLocker
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewWebhookProcessor builds the processor; without a Locker it serializes in-process.
func NewWebhookProcessor(deps WebhookDeps) *WebhookProcessor {
	p := &WebhookProcessor{
		sessions:  deps.Sessions,
		ledger:    deps.Ledger,
		directory: deps.Directory,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		now:       deps.Clock,
	}
	if p.locker == nil {
		p.locker = NewKeyedMutex()
	}
	if p.publisher == nil {
		p.publisher = events.Nop{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// Handle verifies and applies a raw callback. An empty signature falls back to the one
// carried in the payload. The error return is reserved for store failures the gateway
// should retry; rejections and no-ops are reported through the result.
func (p *WebhookProcessor) Handle(ctx context.Context, raw []byte, signature string) (WebhookResult, error) {
	hook, err := payos.ParseWebhook(raw)
	if err != nil {
		return rejected(ReasonMalformedPayload), nil
	}
	if signature == "" {
		signature = hook.Signature
	}
	data, err := hook.Typed()
	if err != nil {
		return rejected(ReasonMalformedPayload), nil
	}

	log := p.logger.With(zap.Int64("order_ref", data.OrderCode))
	applied := WebhookResult{Outcome: WebhookApplied, OrderRef: data.OrderCode}

	// The checksum key belongs to the owner of the session's lot, so the session is
	// located before the signature can be checked.
	session, err := p.sessions.GetByOrderRef(ctx, data.OrderCode)
	if errors.Is(err, repository.ErrNotFound) {
		// No session means no lot owner key, so the signature cannot be verified. The
		// callback is acknowledged without any state change.
		log.Warn("unverified webhook for unknown order acknowledged",
			zap.Bool("signed", signature != ""),
			zap.String("signature_hash", signatureHash(signature)),
		)
		return applied, nil
	}
	if err != nil {
		return WebhookResult{}, fmt.Errorf("load session for order %d: %w", data.OrderCode, err)
	}

	key, err := p.directory.ChecksumKey(ctx, session.LotID)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("load checksum key for lot %d: %w", session.LotID, err)
	}
	ok, err := payos.Verify(hook.Data, key, signature)
	if err != nil || !ok {
		log.Warn("webhook signature rejected", zap.Int64("lot_id", session.LotID))
		return rejected(ReasonBadSignature), nil
	}

	unlock, err := p.locker.Lock(ctx, data.OrderCode)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("lock order %d: %w", data.OrderCode, err)
	}
	defer unlock()

	if _, err := p.ledger.Lookup(ctx, data.OrderCode); err == nil {
		log.Info("duplicate webhook delivery ignored")
		return p.snapshot(ctx, applied, session.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return WebhookResult{}, fmt.Errorf("lookup ledger for order %d: %w", data.OrderCode, err)
	}

	// Re-read under the lock: another delivery may have settled the session meanwhile.
	session, err = p.sessions.GetByID(ctx, session.ID)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("reload session: %w", err)
	}
	applied.SessionID = session.ID
	applied.PaymentStatus = session.PaymentStatus
	if session.Status != models.SessionFinished || session.PaymentStatus != models.PaymentPending {
		log.Info("webhook for settled session ignored",
			zap.Int64("session_id", session.ID),
			zap.String("status", string(session.Status)),
			zap.String("payment_status", string(session.PaymentStatus)),
		)
		return applied, nil
	}

	status := models.PaymentFailed
	if data.Paid() {
		status = models.PaymentPaid
	}
	if data.Paid() && models.Money(data.Amount) != session.Cost {
		log.Warn("webhook amount differs from session cost",
			zap.Int64("amount", data.Amount),
			zap.Int64("cost", int64(session.Cost)),
		)
	}

	now := p.now()
	session.PaymentStatus = status
	session.UpdatedAt = now
	record := models.PaymentWebhookRecord{
		OrderRef:      data.OrderCode,
		SignatureHash: signatureHash(signature),
		SessionID:     session.ID,
		Status:        status,
		AppliedAt:     now,
	}

	if err := p.ledger.Commit(ctx, record, session); err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) || errors.Is(err, repository.ErrStaleSession) {
			log.Info("webhook lost race to another delivery", zap.Error(err))
			return p.snapshot(ctx, applied, session.ID)
		}
		return WebhookResult{}, fmt.Errorf("commit payment for order %d: %w", data.OrderCode, err)
	}

	log.Info("payment webhook applied",
		zap.Int64("session_id", session.ID),
		zap.String("payment_status", string(status)),
	)
	if err := p.publisher.Publish(ctx, events.New(events.PaymentApplied, session, now)); err != nil {
		log.Warn("failed to publish payment event", zap.Error(err))
	}

	applied.PaymentStatus = status
	applied.Changed = true
	return applied, nil
}

func (p *WebhookProcessor) snapshot(ctx context.Context, res WebhookResult, sessionID int64) (WebhookResult, error) {
	session, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("reload session: %w", err)
	}
	res.SessionID = session.ID
	res.PaymentStatus = session.PaymentStatus
	return res, nil
}

// signatureHash fingerprints the gateway signature for the ledger.
func signatureHash(signature string) string {
	sum := blake2b.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])
}
