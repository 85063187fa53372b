package storage_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oidcd/oidcd/instrumentation"
	"github.com/oidcd/oidcd/storage"
	"github.com/oidcd/oidcd/storage/memory"
)

type codePayload struct {
	Code    string `json:"code"`
	GrantID string `json:"grantId"`
}

type sessionPayload struct {
	UID       string `json:"uid"`
	AccountID string `json:"accountId"`
}

type devicePayload struct {
	GrantID  string `json:"grantId"`
	UserCode string `json:"userCode"`
}

func newBackend(t *testing.T) storage.Backend {
	t.Helper()
	b := memory.New(slog.New(slog.DiscardHandler))
	t.Cleanup(b.Close)
	return b
}

func TestUpsertFind(t *testing.T) {
	ctx := context.Background()
	codes := storage.New(storage.KindAuthorizationCode, newBackend(t))

	payload := codePayload{Code: "abc", GrantID: "g1"}
	if err := codes.Upsert(ctx, "abc", payload, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	entry, err := codes.Find(ctx, "abc")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if entry.Consumed() {
		t.Error("fresh record reported as consumed")
	}

	var got codePayload
	if err := entry.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != payload {
		t.Errorf("Decode() = %+v, want %+v", got, payload)
	}
}

func TestFindMissing(t *testing.T) {
	codes := storage.New(storage.KindAuthorizationCode, newBackend(t))

	_, err := codes.Find(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Find() error = %v, want ErrNotFound", err)
	}
}

func TestKindsShareBackendWithoutCollision(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	codes := storage.New(storage.KindAuthorizationCode, backend)
	tokens := storage.New(storage.KindAccessToken, backend)

	if err := codes.Upsert(ctx, "same-id", codePayload{Code: "c"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if _, err := tokens.Find(ctx, "same-id"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-kind Find() error = %v, want ErrNotFound", err)
	}
}

func TestConsumePreservesRecord(t *testing.T) {
	ctx := context.Background()
	codes := storage.New(storage.KindAuthorizationCode, newBackend(t))

	if err := codes.Upsert(ctx, "abc", codePayload{Code: "abc"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := codes.Consume(ctx, "abc"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	entry, err := codes.Find(ctx, "abc")
	if err != nil {
		t.Fatalf("Find() after consume error = %v", err)
	}
	if !entry.Consumed() {
		t.Error("consumed record not marked")
	}
	var got codePayload
	if err := entry.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Code != "abc" {
		t.Errorf("payload lost on consume: got %+v", got)
	}

	if err := codes.Consume(ctx, "abc"); !errors.Is(err, storage.ErrConsumed) {
		t.Errorf("second Consume() error = %v, want ErrConsumed", err)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	tokens := storage.New(storage.KindRefreshToken, newBackend(t))

	if err := tokens.Upsert(ctx, "rt", codePayload{Code: "rt"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	entry, err := tokens.Revoke(ctx, "rt")
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Revoke() returned nil entry")
	}

	if _, err := tokens.Revoke(ctx, "rt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Revoke() error = %v, want ErrNotFound", err)
	}
	if _, err := tokens.Find(ctx, "rt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Find() after revoke error = %v, want ErrNotFound", err)
	}
}

func TestSessionUIDIndex(t *testing.T) {
	ctx := context.Background()
	sessions := storage.New(storage.KindSession, newBackend(t))

	if err := sessions.Upsert(ctx, "sid", sessionPayload{UID: "uid-1", AccountID: "alice"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	entry, err := sessions.FindByUID(ctx, "uid-1")
	if err != nil {
		t.Fatalf("FindByUID() error = %v", err)
	}
	var got sessionPayload
	if err := entry.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.AccountID != "alice" {
		t.Errorf("FindByUID() account = %q, want alice", got.AccountID)
	}

	if _, err := sessions.FindByUID(ctx, "uid-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindByUID(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestUserCodeIndex(t *testing.T) {
	ctx := context.Background()
	devices := storage.New(storage.KindDeviceCode, newBackend(t))

	if err := devices.Upsert(ctx, "dc-1", devicePayload{GrantID: "g1", UserCode: "WDJB-MJHT"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	entry, err := devices.FindByUserCode(ctx, "WDJB-MJHT")
	if err != nil {
		t.Fatalf("FindByUserCode() error = %v", err)
	}
	var got devicePayload
	if err := entry.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.GrantID != "g1" {
		t.Errorf("FindByUserCode() grant = %q, want g1", got.GrantID)
	}
}

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()
	inst, err := instrumentation.New(instrumentation.Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer inst.Shutdown(ctx)

	codes := storage.New(storage.KindAuthorizationCode, newBackend(t))
	codes.Instrument(inst.Metrics())

	if err := codes.Upsert(ctx, "abc", codePayload{Code: "abc"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := codes.Find(ctx, "abc"); err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if _, err := codes.Revoke(ctx, "abc"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
}

func TestRevokeByGrantID(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	codes := storage.New(storage.KindAuthorizationCode, backend)
	access := storage.New(storage.KindAccessToken, backend)
	refresh := storage.New(storage.KindRefreshToken, backend)

	if err := codes.Upsert(ctx, "c1", codePayload{Code: "c1", GrantID: "g1"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := access.Upsert(ctx, "at1", codePayload{Code: "at1", GrantID: "g1"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := refresh.Upsert(ctx, "rt1", codePayload{Code: "rt1", GrantID: "g1"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	// A different grant survives the cascade.
	if err := access.Upsert(ctx, "at2", codePayload{Code: "at2", GrantID: "g2"}, time.Minute); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := access.RevokeByGrantID(ctx, "g1"); err != nil {
		t.Fatalf("RevokeByGrantID() error = %v", err)
	}

	for _, tc := range []struct {
		store *storage.Store
		id    string
	}{
		{codes, "c1"},
		{access, "at1"},
		{refresh, "rt1"},
	} {
		if _, err := tc.store.Find(ctx, tc.id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Find(%s) after cascade error = %v, want ErrNotFound", tc.id, err)
		}
	}

	if _, err := access.Find(ctx, "at2"); err != nil {
		t.Errorf("unrelated grant record deleted: %v", err)
	}

	// Revoking an unknown grant is a no-op.
	if err := access.RevokeByGrantID(ctx, "g-unknown"); err != nil {
		t.Errorf("RevokeByGrantID(unknown) error = %v", err)
	}
}
