package store

import (
	"context"
	"errors"
	"testing"

	"github.com/clearway/dutyrec/secrets"
)

// WHAT: Two upserts with the same (mawb, broker, format) leave exactly
// one row, the second overwriting the first.
// WHY: Re-running a MAWB must replace the stale snapshot, never
// duplicate it.
func TestUpsertResultOverwrites(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	first := &Result{
		MAWB: "23594731221", BrokerID: "b1", FormatID: "f1",
		Status: "failed", ErrorMessage: "Master not found",
	}
	if err := s.UpsertResult(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := &Result{
		MAWB: "23594731221", BrokerID: "b1", FormatID: "f1",
		Status: "success", SummaryJSON: `{"AMS Duty":"$1,234.56"}`,
	}
	if err := s.UpsertResult(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d rows, want 1", count)
	}
	got, err := s.GetResultByKey(ctx, "23594731221", "b1", "f1")
	if err != nil {
		t.Fatalf("GetResultByKey: %v", err)
	}
	if got.Status != "success" || got.ErrorMessage != "" {
		t.Errorf("overwrite incomplete: status=%q error=%q", got.Status, got.ErrorMessage)
	}
	if got.SummaryJSON != `{"AMS Duty":"$1,234.56"}` {
		t.Errorf("summary not replaced: %q", got.SummaryJSON)
	}
}

// WHAT: Different format IDs keep separate rows for the same MAWB.
// WHY: The upsert key is the full (mawb, broker, format) triple.
func TestUpsertResultKeyedByTriple(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	for _, formatID := range []string{"f1", "f2"} {
		r := &Result{MAWB: "23594731221", BrokerID: "b1", FormatID: formatID, Status: "success"}
		if err := s.UpsertResult(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", formatID, err)
		}
	}
	results, err := s.ListResults(ctx, "23594731221", "", 0, 0)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d rows, want 2", len(results))
	}
}

// WHAT: Broker credentials round-trip through the sealing box and land
// sealed on disk.
// WHY: Passwords must never be stored in the clear when a box is
// configured.
func TestBrokerCredentialSealing(t *testing.T) {
	box, err := secrets.NewBox("test-key")
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	s := OpenMemory(t, WithSecrets(box))
	ctx := context.Background()

	b := &Broker{
		Name: "Allied", Username: "ops", Password: "hunter2",
		AuthRequired: true,
		OTPURI:       "otpauth://totp/NetCHB:ops?secret=JBSWY3DPEHPK3PXP",
		IsActive:     true,
	}
	if err := s.InsertBroker(ctx, b); err != nil {
		t.Fatalf("InsertBroker: %v", err)
	}

	var rawPassword, rawURI string
	if err := s.DB.QueryRow(`SELECT password, otp_uri FROM brokers WHERE id=?`, b.ID).
		Scan(&rawPassword, &rawURI); err != nil {
		t.Fatalf("raw read: %v", err)
	}
	if !secrets.IsSealed(rawPassword) || !secrets.IsSealed(rawURI) {
		t.Errorf("credentials stored unsealed: %q %q", rawPassword, rawURI)
	}

	got, err := s.GetBroker(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBroker: %v", err)
	}
	if got.Password != "hunter2" || got.OTPURI != b.OTPURI {
		t.Errorf("credentials did not round-trip: %+v", got)
	}
}

// WHAT: Broker validation enforces the 2FA/OTP pairing.
// WHY: A broker with auth_required and no URI would dead-end at the 2FA
// prompt mid-batch.
func TestBrokerValidation(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	bad := &Broker{Name: "X", Username: "u", Password: "p", AuthRequired: true}
	if err := s.InsertBroker(ctx, bad); err == nil {
		t.Error("auth without OTP URI: expected error")
	}
	bad2 := &Broker{Name: "X", Username: "u", Password: "p", OTPURI: "https://nope"}
	if err := s.InsertBroker(ctx, bad2); err == nil {
		t.Error("non-otpauth URI: expected error")
	}
}

// WHAT: Batch creation, item counts, and cancellation of pending items.
// WHY: The status endpoint and the worker both key off these counters.
func TestBatchLifecycle(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	items := []*BatchItem{
		{MAWB: "23594731221", BrokerID: "b1", FormatID: "f1"},
		{MAWB: "99938649026", BrokerID: "b1", FormatID: "f1"},
		{MAWB: "18011223344", BrokerID: "b1", FormatID: "f1"},
	}
	b, err := s.CreateBatch(ctx, map[string]bool{"ams": true}, "ops@example.com", items)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if b.Status != "pending" {
		t.Errorf("new batch status %q", b.Status)
	}

	got, err := s.GetBatchItems(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatchItems: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
	for i, it := range got {
		if it.Position != i {
			t.Errorf("item %d position %d", i, it.Position)
		}
	}

	// First item finishes, the rest are cancelled with the batch.
	if err := s.StartBatchItem(ctx, got[0].ID); err != nil {
		t.Fatalf("StartBatchItem: %v", err)
	}
	if err := s.FinishBatchItem(ctx, got[0].ID, "success", "", []string{"done"}); err != nil {
		t.Fatalf("FinishBatchItem: %v", err)
	}
	if err := s.CancelBatch(ctx, b.ID); err != nil {
		t.Fatalf("CancelBatch: %v", err)
	}

	counts, err := s.BatchItemCounts(ctx, b.ID)
	if err != nil {
		t.Fatalf("BatchItemCounts: %v", err)
	}
	if counts.Total != 3 || counts.Success != 1 || counts.Cancelled != 2 || counts.Pending != 0 {
		t.Errorf("counts: %+v", counts)
	}

	batch, err := s.GetBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if batch.Status != "cancelled" {
		t.Errorf("batch status %q, want cancelled", batch.Status)
	}
}

// WHAT: Transient-error classification covers busy SQLite and socket
// failures but not ordinary errors.
// WHY: Only genuinely temporary conditions deserve the backoff loop.
func TestIsTransient(t *testing.T) {
	transient := []error{
		errors.New("SQLITE_BUSY: database is locked"),
		errors.New("read tcp 10.0.0.1:443: connection reset by peer"),
		errors.New("dial tcp: resource temporarily unavailable"),
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Errorf("IsTransient(%v) = false, want true", err)
		}
	}
	if IsTransient(nil) {
		t.Error("IsTransient(nil) = true")
	}
	if IsTransient(errors.New("UNIQUE constraint failed")) {
		t.Error("constraint violation classified transient")
	}
}

// WHAT: The retry wrapper retries transient failures with backoff and
// gives up immediately on anything else.
func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	s := OpenMemory(t)

	attempts := 0
	err := s.withRetry(ctx, "test op", func() error {
		attempts++
		if attempts == 1 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("err=%v attempts=%d, want nil after 2", err, attempts)
	}

	attempts = 0
	wantErr := errors.New("UNIQUE constraint failed")
	err = s.withRetry(ctx, "test op", func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) || attempts != 1 {
		t.Fatalf("err=%v attempts=%d, want immediate failure", err, attempts)
	}
}
