package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"parkingops/backend/services/parking-service/internal/events"
	"parkingops/backend/services/parking-service/internal/models"
	"parkingops/backend/services/parking-service/internal/payos"
	"parkingops/backend/services/parking-service/internal/repository"
)

func webhookData(orderRef, amount int64, code string) map[string]json.RawMessage {
	str := func(s string) json.RawMessage { return json.RawMessage(strconv.Quote(s)) }
	return map[string]json.RawMessage{
		"orderCode":           json.RawMessage(strconv.FormatInt(orderRef, 10)),
		"amount":              json.RawMessage(strconv.FormatInt(amount, 10)),
		"description":         str("PARKING " + strconv.FormatInt(orderRef, 10)),
		"accountNumber":       str("12345678"),
		"reference":           str("FT26061"),
		"transactionDateTime": str("2026-03-02 09:15:00"),
		"currency":            str("VND"),
		"paymentLinkId":       str("a1b2c3"),
		"code":                str(code),
		"desc":                str("success"),
		"counterAccountName":  json.RawMessage(`null`),
	}
}

func signedPayload(t *testing.T, data map[string]json.RawMessage, key string) []byte {
	t.Helper()
	sig, err := payos.Sign(data, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, err := json.Marshal(payos.Webhook{Code: "00", Desc: "success", Success: true, Data: data, Signature: sig})
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return raw
}

func (f *fixture) deliver(t *testing.T, raw []byte) WebhookResult {
	t.Helper()
	res, err := f.webhooks.Handle(context.Background(), raw, "")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return res
}

func TestWebhookMarksPendingSessionPaid(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)

	res := f.deliver(t, signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "00"), testChecksum))
	if res.Outcome != WebhookApplied || !res.Changed || res.PaymentStatus != models.PaymentPaid {
		t.Fatalf("result = %+v", res)
	}
	if res.SessionID != s.ID || res.OrderRef != s.OrderRef.Int64 {
		t.Fatalf("result ids = %+v", res)
	}

	stored, _ := f.lifecycle.Get(context.Background(), s.ID)
	if stored.Status != models.SessionFinished || stored.PaymentStatus != models.PaymentPaid {
		t.Fatalf("stored = %s/%s", stored.Status, stored.PaymentStatus)
	}
	if f.store.LedgerSize() != 1 {
		t.Fatalf("ledger size = %d", f.store.LedgerSize())
	}
	rec, err := f.store.Lookup(context.Background(), s.OrderRef.Int64)
	if err != nil || rec.SessionID != s.ID || len(rec.SignatureHash) != 64 {
		t.Fatalf("ledger record = %+v, %v", rec, err)
	}
	if f.pub.count(events.PaymentApplied) != 1 {
		t.Fatalf("payment events = %d", f.pub.count(events.PaymentApplied))
	}
}

func TestWebhookDuplicateDeliveryAppliesOnce(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)
	raw := signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "00"), testChecksum)

	first := f.deliver(t, raw)
	second := f.deliver(t, raw)

	if !first.Changed || second.Changed {
		t.Fatalf("changed flags = %v, %v", first.Changed, second.Changed)
	}
	if second.Outcome != WebhookApplied || second.PaymentStatus != models.PaymentPaid {
		t.Fatalf("duplicate result = %+v", second)
	}
	if f.store.LedgerSize() != 1 || f.pub.count(events.PaymentApplied) != 1 {
		t.Fatalf("ledger = %d, events = %d", f.store.LedgerSize(), f.pub.count(events.PaymentApplied))
	}
}

func TestWebhookConcurrentDeliveriesApplyOnce(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)
	raw := signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "00"), testChecksum)

	const n = 12
	results := make([]WebhookResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.webhooks.Handle(context.Background(), raw, "")
			if err != nil {
				t.Errorf("Handle: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	changed := 0
	for _, r := range results {
		if r.Outcome != WebhookApplied || r.PaymentStatus != models.PaymentPaid {
			t.Fatalf("result = %+v", r)
		}
		if r.Changed {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if f.pub.count(events.PaymentApplied) != 1 {
		t.Fatalf("payment events = %d", f.pub.count(events.PaymentApplied))
	}
}

func TestWebhookFailureCodeMarksPaymentFailed(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)

	res := f.deliver(t, signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "01"), testChecksum))
	if !res.Changed || res.PaymentStatus != models.PaymentFailed {
		t.Fatalf("result = %+v", res)
	}
	stored, _ := f.lifecycle.Get(context.Background(), s.ID)
	if stored.Status != models.SessionFinished || stored.PaymentStatus != models.PaymentFailed {
		t.Fatalf("stored = %s/%s", stored.Status, stored.PaymentStatus)
	}

	// A later success for the same order is a duplicate, not a second transition.
	again := f.deliver(t, signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "00"), testChecksum))
	if again.Changed || again.PaymentStatus != models.PaymentFailed {
		t.Fatalf("late success = %+v", again)
	}
}

func TestWebhookAmountMismatchStillApplies(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)

	res := f.deliver(t, signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost)-1, "00"), testChecksum))
	if !res.Changed || res.PaymentStatus != models.PaymentPaid {
		t.Fatalf("result = %+v", res)
	}
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)
	ctx := context.Background()

	wrongKey := signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "00"), "someone-elses-key")
	if res := f.deliver(t, wrongKey); res.Outcome != WebhookRejected || res.Reason != ReasonBadSignature {
		t.Fatalf("wrong key = %+v", res)
	}

	// Sign a failure, then flip the code to success.
	data := webhookData(s.OrderRef.Int64, int64(s.Cost), "01")
	sig, _ := payos.Sign(data, testChecksum)
	data["code"] = json.RawMessage(`"00"`)
	tampered, _ := json.Marshal(payos.Webhook{Code: "00", Data: data, Signature: sig})
	if res := f.deliver(t, tampered); res.Outcome != WebhookRejected || res.Reason != ReasonBadSignature {
		t.Fatalf("tampered = %+v", res)
	}

	valid := signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "00"), testChecksum)
	res, err := f.webhooks.Handle(ctx, valid, "00ff")
	if err != nil || res.Outcome != WebhookRejected {
		t.Fatalf("explicit bad signature = %+v, %v", res, err)
	}

	stored, _ := f.lifecycle.Get(ctx, s.ID)
	if stored.PaymentStatus != models.PaymentPending || f.store.LedgerSize() != 0 {
		t.Fatalf("rejected webhooks changed state: %s, ledger %d", stored.PaymentStatus, f.store.LedgerSize())
	}
}

func TestWebhookExplicitSignatureOverridesPayload(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)

	data := webhookData(s.OrderRef.Int64, int64(s.Cost), "00")
	sig, _ := payos.Sign(data, testChecksum)
	raw, _ := json.Marshal(payos.Webhook{Code: "00", Data: data})

	res, err := f.webhooks.Handle(context.Background(), raw, sig)
	if err != nil || !res.Changed {
		t.Fatalf("result = %+v, %v", res, err)
	}
}

func TestWebhookUnknownOrderIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.pendingSession(t)

	res := f.deliver(t, signedPayload(t, webhookData(424242, 20000, "00"), testChecksum))
	if res.Outcome != WebhookApplied || res.Changed || res.SessionID != 0 {
		t.Fatalf("result = %+v", res)
	}
	if f.store.LedgerSize() != 0 {
		t.Fatal("unknown order reached the ledger")
	}
}

func TestWebhookUnknownOrderLogsUnverifiedSignature(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.WarnLevel)
	processor := NewWebhookProcessor(WebhookDeps{
		Sessions:  f.store,
		Ledger:    f.store,
		Directory: f.store,
		Logger:    zap.New(core),
	})

	forged := signedPayload(t, webhookData(424242, 20000, "00"), "attacker-key")
	unsigned, err := json.Marshal(payos.Webhook{Code: "00", Data: webhookData(424243, 20000, "00")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, raw := range [][]byte{forged, unsigned} {
		res, err := processor.Handle(context.Background(), raw, "")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if res.Outcome != WebhookApplied || res.Changed {
			t.Fatalf("result = %+v", res)
		}
	}

	entries := logs.FilterMessage("unverified webhook for unknown order acknowledged").All()
	if len(entries) != 2 {
		t.Fatalf("warn entries = %d, want 2", len(entries))
	}
	if signed := entries[0].ContextMap()["signed"]; signed != true {
		t.Fatalf("forged delivery signed = %v", signed)
	}
	if signed := entries[1].ContextMap()["signed"]; signed != false {
		t.Fatalf("unsigned delivery signed = %v", signed)
	}
	if f.store.LedgerSize() != 0 {
		t.Fatal("unverified webhook reached the ledger")
	}
}

func TestWebhookForSettledSessionIsNoOp(t *testing.T) {
	f := newFixture(t)
	s := f.pendingSession(t)
	ctx := context.Background()

	// Settle out of band, as a cashier override would.
	settled := s.Clone()
	settled.PaymentStatus = models.PaymentPaid
	if err := f.store.Update(ctx, settled, repository.Guard{Status: models.SessionFinished, Payment: models.PaymentPending}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	res := f.deliver(t, signedPayload(t, webhookData(s.OrderRef.Int64, int64(s.Cost), "01"), testChecksum))
	if res.Outcome != WebhookApplied || res.Changed || res.PaymentStatus != models.PaymentPaid {
		t.Fatalf("result = %+v", res)
	}
	stored, _ := f.lifecycle.Get(ctx, s.ID)
	if stored.PaymentStatus != models.PaymentPaid {
		t.Fatalf("stored = %s", stored.PaymentStatus)
	}
}

func TestWebhookMalformedPayloads(t *testing.T) {
	f := newFixture(t)

	for name, raw := range map[string]string{
		"not json":        `{"data":`,
		"no data":         `{"code":"00","signature":"ab"}`,
		"no order code":   `{"data":{"amount":1000},"signature":"ab"}`,
		"text order code": `{"data":{"orderCode":"abc"},"signature":"ab"}`,
	} {
		t.Run(name, func(t *testing.T) {
			res := f.deliver(t, []byte(raw))
			if res.Outcome != WebhookRejected || res.Reason != ReasonMalformedPayload {
				t.Fatalf("result = %+v", res)
			}
		})
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, 1)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	other, err := k.Lock(ctx, 2)
	if err != nil {
		t.Fatalf("Lock on another key: %v", err)
	}
	other()

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(timeout, 1); err == nil {
		t.Fatal("second Lock on a held key succeeded")
	}

	unlock()
	unlock() // idempotent

	again, err := k.Lock(ctx, 1)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Fatalf("lock table not cleaned up: %d entries", len(k.locks))
	}
}
