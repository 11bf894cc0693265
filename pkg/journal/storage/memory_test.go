package storage

import (
	"context"
	"testing"
	"time"

	"nimbus-hq/helios/pkg/journal"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func entryAt(id string, offset time.Duration) *journal.Entry {
	return &journal.Entry{
		ID:        id,
		Time:      base.Add(offset),
		RequestID: "req-" + id,
		Provider:  "openai",
		Operation: journal.OperationGenerate,
		Outcome:   journal.OutcomeSuccess,
	}
}

func storeAll(t *testing.T, s journal.Storage, entries ...*journal.Entry) {
	t.Helper()
	for _, e := range entries {
		if err := s.Store(context.Background(), e); err != nil {
			t.Fatalf("Store(%s) error = %v", e.ID, err)
		}
	}
}

func ids(entries []*journal.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestMemoryStoreAndQuery(t *testing.T) {
	s := NewMemoryStorage()
	storeAll(t, s, entryAt("a", 0), entryAt("b", time.Minute))

	got, err := s.Query(context.Background(), &journal.Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	// Default sort is newest first.
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("Query() = %v, want [b a]", ids(got))
	}
}

func TestMemoryQueryFilters(t *testing.T) {
	s := NewMemoryStorage()

	ok := entryAt("ok", 0)
	ok.TotalTokens = 100

	failed := entryAt("failed", time.Minute)
	failed.Provider = "anthropic"
	failed.Outcome = journal.OutcomeFailure
	failed.ErrorCode = "PROVIDER_FAILURE"
	failed.TotalTokens = 10

	probe := entryAt("probe", 2*time.Minute)
	probe.Operation = journal.OperationProbe

	storeAll(t, s, ok, failed, probe)

	minTokens := 50
	maxTokens := 50
	start := base.Add(30 * time.Second)
	end := base.Add(90 * time.Second)

	tests := []struct {
		name  string
		query journal.Query
		want  []string
	}{
		{
			name:  "by provider",
			query: journal.Query{Provider: "anthropic"},
			want:  []string{"failed"},
		},
		{
			name:  "by outcome",
			query: journal.Query{Outcome: journal.OutcomeFailure},
			want:  []string{"failed"},
		},
		{
			name:  "by error code",
			query: journal.Query{ErrorCode: "PROVIDER_FAILURE"},
			want:  []string{"failed"},
		},
		{
			name:  "by request id",
			query: journal.Query{RequestID: "req-probe"},
			want:  []string{"probe"},
		},
		{
			name:  "by operation",
			query: journal.Query{Operation: journal.OperationProbe},
			want:  []string{"probe"},
		},
		{
			name:  "by time range",
			query: journal.Query{StartTime: &start, EndTime: &end},
			want:  []string{"failed"},
		},
		{
			name:  "min tokens",
			query: journal.Query{MinTokens: &minTokens},
			want:  []string{"ok"},
		},
		{
			name:  "max tokens",
			query: journal.Query{MaxTokens: &maxTokens, Outcome: journal.OutcomeFailure},
			want:  []string{"failed"},
		},
		{
			name:  "no match",
			query: journal.Query{Provider: "missing"},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(context.Background(), &tt.query)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Query() = %v, want %v", ids(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Query()[%d] = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestMemoryQuerySortAndPagination(t *testing.T) {
	s := NewMemoryStorage()
	a := entryAt("a", 0)
	a.Cost = 0.04
	b := entryAt("b", time.Minute)
	b.Cost = 0.01
	c := entryAt("c", 2*time.Minute)
	c.Cost = 0.09
	storeAll(t, s, a, b, c)

	got, err := s.Query(context.Background(), &journal.Query{SortBy: "time", SortOrder: "asc", Limit: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("ascending page = %v, want [a b]", ids(got))
	}

	got, err = s.Query(context.Background(), &journal.Query{SortBy: "time", SortOrder: "asc", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("second page = %v, want [c]", ids(got))
	}

	got, err = s.Query(context.Background(), &journal.Query{SortBy: "cost"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 3 || got[0].ID != "c" || got[2].ID != "b" {
		t.Errorf("cost descending = %v, want [c a b]", ids(got))
	}

	got, err = s.Query(context.Background(), &journal.Query{Offset: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("offset past end = %v, want empty", ids(got))
	}
}

func TestMemoryCount(t *testing.T) {
	s := NewMemoryStorage()
	failed := entryAt("failed", 0)
	failed.Outcome = journal.OutcomeFailure
	storeAll(t, s, entryAt("a", 0), entryAt("b", time.Minute), failed)

	count, err := s.Count(context.Background(), &journal.Query{Outcome: journal.OutcomeSuccess})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestMemoryDelete(t *testing.T) {
	s := NewMemoryStorage()
	storeAll(t, s, entryAt("a", 0), entryAt("b", time.Minute), entryAt("c", 2*time.Minute))

	cutoff := base.Add(time.Minute)
	deleted, err := s.Delete(context.Background(), &journal.Query{EndTime: &cutoff})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Delete() = %d, want 2", deleted)
	}
	if s.Size() != 1 {
		t.Errorf("Size() = %d, want 1", s.Size())
	}

	got, _ := s.Query(context.Background(), &journal.Query{})
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("remaining = %v, want [c]", ids(got))
	}
}

func TestMemoryStoreCopiesEntry(t *testing.T) {
	s := NewMemoryStorage()
	entry := entryAt("a", 0)
	storeAll(t, s, entry)

	entry.Provider = "mutated"

	got, _ := s.Query(context.Background(), &journal.Query{})
	if len(got) != 1 || got[0].Provider != "openai" {
		t.Errorf("stored entry mutated: %+v", got)
	}
}
