package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nimbus-hq/helios/pkg/usage"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestSQLiteSaveAndLoad(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()

	want := stateFor("openai")
	if err := backend.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := backend.Load(ctx, "openai")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil, want state")
	}
	if got.Provider != "openai" || got.Requests != 10 || got.Tokens != 2500 || got.Cost != 1.25 {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !got.LastUpdated.Equal(want.LastUpdated) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, want.LastUpdated)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestSQLiteUpsertKeepsCreatedAt(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()

	first := stateFor("openai")
	if err := backend.Save(ctx, first); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	second := stateFor("openai")
	second.Requests = 20
	second.LastUpdated = first.LastUpdated.Add(time.Hour)
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	if err := backend.Save(ctx, second); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, err := backend.Load(ctx, "openai")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Requests != 20 {
		t.Errorf("Requests = %d, want 20", got.Requests)
	}
	if !got.LastUpdated.Equal(second.LastUpdated) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, second.LastUpdated)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, first.CreatedAt)
	}
}

func TestSQLiteLoadMissing(t *testing.T) {
	backend := newTestSQLite(t)

	got, err := backend.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil", got)
	}
}

func TestSQLiteListSorted(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()

	for _, provider := range []string{"zephyr", "anthropic", "openai"} {
		if err := backend.Save(ctx, stateFor(provider)); err != nil {
			t.Fatalf("Save(%s) error: %v", provider, err)
		}
	}

	states, err := backend.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(states))
	}
	want := []string{"anthropic", "openai", "zephyr"}
	for i, state := range states {
		if state.Provider != want[i] {
			t.Errorf("List()[%d].Provider = %q, want %q", i, state.Provider, want[i])
		}
	}
}

func TestSQLiteDelete(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()

	if err := backend.Save(ctx, stateFor("openai")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := backend.Delete(ctx, "openai"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	got, err := backend.Load(ctx, "openai")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != nil {
		t.Errorf("Load() after delete = %+v, want nil", got)
	}
}

func TestSQLiteReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()

	backend, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error: %v", err)
	}
	if err := backend.Save(ctx, stateFor("openai")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx, "openai")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil || got.Requests != 10 {
		t.Errorf("Load() after reopen = %+v, want persisted state", got)
	}
}

func TestSQLiteValidation(t *testing.T) {
	if _, err := NewSQLiteBackendWithConfig(SQLiteBackendConfig{}); err == nil {
		t.Error("empty db path should fail")
	}

	backend := newTestSQLite(t)
	ctx := context.Background()

	if err := backend.Save(ctx, nil); err == nil {
		t.Error("Save(nil) should fail")
	}
	if err := backend.Save(ctx, &usage.ProviderState{}); err == nil {
		t.Error("Save with empty provider should fail")
	}
	if _, err := backend.Load(ctx, ""); err == nil {
		t.Error("Load with empty provider should fail")
	}
}

func TestSQLiteCloseIdempotent(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error: %v", err)
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}
