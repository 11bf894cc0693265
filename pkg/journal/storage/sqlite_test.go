package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nimbus-hq/helios/pkg/journal"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	s, err := NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newTestSQLite(t)

	want := &journal.Entry{
		ID:               "e-1",
		Time:             base,
		RequestID:        "req-1",
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		Operation:        journal.OperationGenerate,
		Attempt:          2,
		Fallback:         true,
		Outcome:          journal.OutcomeFailure,
		ErrorCode:        "PROVIDER_FAILURE",
		Latency:          250 * time.Millisecond,
		PromptTokens:     120,
		CompletionTokens: 30,
		TotalTokens:      150,
		Cost:             0.0045,
	}
	storeAll(t, s, want)

	got, err := s.Query(context.Background(), &journal.Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() returned %d entries, want 1", len(got))
	}

	e := got[0]
	if e.ID != want.ID || e.RequestID != want.RequestID {
		t.Errorf("identity = %q/%q, want %q/%q", e.ID, e.RequestID, want.ID, want.RequestID)
	}
	if !e.Time.Equal(want.Time) {
		t.Errorf("time = %v, want %v", e.Time, want.Time)
	}
	if e.Provider != want.Provider || e.Model != want.Model || e.Operation != want.Operation {
		t.Errorf("provenance = %+v", e)
	}
	if e.Attempt != 2 || !e.Fallback {
		t.Errorf("attempt = %d fallback = %v, want 2 true", e.Attempt, e.Fallback)
	}
	if e.Outcome != journal.OutcomeFailure || e.ErrorCode != "PROVIDER_FAILURE" {
		t.Errorf("outcome = %q code = %q", e.Outcome, e.ErrorCode)
	}
	if e.Latency != want.Latency {
		t.Errorf("latency = %v, want %v", e.Latency, want.Latency)
	}
	if e.TotalTokens != 150 || e.Cost != 0.0045 {
		t.Errorf("usage = %d tokens, %g cost", e.TotalTokens, e.Cost)
	}
}

func TestSQLiteEmptyErrorCode(t *testing.T) {
	s := newTestSQLite(t)
	storeAll(t, s, entryAt("ok", 0))

	got, err := s.Query(context.Background(), &journal.Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ErrorCode != "" {
		t.Errorf("error code = %q, want empty", got[0].ErrorCode)
	}
}

func TestSQLiteFilters(t *testing.T) {
	s := newTestSQLite(t)

	failed := entryAt("failed", time.Minute)
	failed.Provider = "anthropic"
	failed.Outcome = journal.OutcomeFailure
	failed.ErrorCode = "PROVIDER_FAILURE"
	storeAll(t, s, entryAt("a", 0), failed, entryAt("c", 2*time.Minute))

	got, err := s.Query(context.Background(), &journal.Query{Outcome: journal.OutcomeFailure})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "failed" {
		t.Errorf("outcome filter = %v, want [failed]", ids(got))
	}

	got, err = s.Query(context.Background(), &journal.Query{Provider: "openai", SortBy: "time", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("provider filter = %v, want [a c]", ids(got))
	}

	start := base.Add(30 * time.Second)
	got, err = s.Query(context.Background(), &journal.Query{StartTime: &start})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("time filter = %v, want 2 entries", ids(got))
	}
}

func TestSQLiteCountAndDelete(t *testing.T) {
	s := newTestSQLite(t)
	storeAll(t, s, entryAt("a", 0), entryAt("b", time.Minute), entryAt("c", 2*time.Minute))

	count, err := s.Count(context.Background(), &journal.Query{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	cutoff := base.Add(time.Minute)
	deleted, err := s.Delete(context.Background(), &journal.Query{EndTime: &cutoff})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Delete() = %d, want 2", deleted)
	}

	count, _ = s.Count(context.Background(), &journal.Query{})
	if count != 1 {
		t.Errorf("Count() after delete = %d, want 1", count)
	}
}

func TestSQLiteReopen(t *testing.T) {
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "journal.db")

	s, err := NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	storeAll(t, s, entryAt("persisted", 0))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStorage(reopen) error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Query(context.Background(), &journal.Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "persisted" {
		t.Errorf("reopened query = %v, want [persisted]", ids(got))
	}
}

func TestSQLiteSortFieldWhitelisted(t *testing.T) {
	s := newTestSQLite(t)
	storeAll(t, s, entryAt("a", 0), entryAt("b", time.Minute))

	// A hostile sort field falls back to sorting by time.
	got, err := s.Query(context.Background(), &journal.Query{SortBy: "time; DROP TABLE journal"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("Query() = %v, want [b a]", ids(got))
	}

	count, _ := s.Count(context.Background(), &journal.Query{})
	if count != 2 {
		t.Errorf("Count() = %d, table should survive", count)
	}
}
