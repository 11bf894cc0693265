// Package storage provides journal storage backends.
package storage

import (
	"context"
	"sort"
	"sync"

	"nimbus-hq/helios/pkg/journal"
)

// MemoryStorage implements journal.Storage with an in-memory map. Intended
// for tests and short-lived processes.
type MemoryStorage struct {
	entries map[string]*journal.Entry
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*journal.Entry),
	}
}

// Store persists a journal entry to memory.
func (s *MemoryStorage) Store(ctx context.Context, entry *journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryCopy := *entry
	s.entries[entry.ID] = &entryCopy
	return nil
}

// Query retrieves entries matching the query filters, sorted and paginated.
func (s *MemoryStorage) Query(ctx context.Context, q *journal.Query) ([]*journal.Entry, error) {
	s.mu.RLock()
	var results []*journal.Entry
	for _, entry := range s.entries {
		if matchesQuery(entry, q) {
			entryCopy := *entry
			results = append(results, &entryCopy)
		}
	}
	s.mu.RUnlock()

	sortEntries(results, q.SortBy, q.SortOrder)

	start := q.Offset
	if start > len(results) {
		return []*journal.Entry{}, nil
	}
	end := len(results)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return results[start:end], nil
}

// Count returns the number of entries matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, q *journal.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, entry := range s.entries {
		if matchesQuery(entry, q) {
			count++
		}
	}
	return count, nil
}

// Delete removes entries matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, q *journal.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, entry := range s.entries {
		if matchesQuery(entry, q) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close releases resources held by the backend.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*journal.Entry)
	return nil
}

// Clear removes all entries (for tests).
func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*journal.Entry)
}

// Size returns the number of stored entries (for tests).
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// matchesQuery checks if an entry matches the query filters.
func matchesQuery(entry *journal.Entry, q *journal.Query) bool {
	if q.StartTime != nil && entry.Time.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && entry.Time.After(*q.EndTime) {
		return false
	}
	if q.RequestID != "" && entry.RequestID != q.RequestID {
		return false
	}
	if q.Provider != "" && entry.Provider != q.Provider {
		return false
	}
	if q.Model != "" && entry.Model != q.Model {
		return false
	}
	if q.Operation != "" && entry.Operation != q.Operation {
		return false
	}
	if q.Outcome != "" && entry.Outcome != q.Outcome {
		return false
	}
	if q.ErrorCode != "" && entry.ErrorCode != q.ErrorCode {
		return false
	}
	if q.MinTokens != nil && entry.TotalTokens < *q.MinTokens {
		return false
	}
	if q.MaxTokens != nil && entry.TotalTokens > *q.MaxTokens {
		return false
	}
	return true
}

// sortEntries orders results by the requested column. Unknown columns fall
// back to time; unset order is descending.
func sortEntries(entries []*journal.Entry, sortBy, sortOrder string) {
	asc := sortOrder == "asc"
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !asc {
			a, b = b, a
		}
		switch sortBy {
		case "latency":
			return a.Latency < b.Latency
		case "tokens":
			return a.TotalTokens < b.TotalTokens
		case "cost":
			return a.Cost < b.Cost
		default:
			return a.Time.Before(b.Time)
		}
	})
}
