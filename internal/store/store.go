package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
)

// Store is the read boundary to the historical-record store. The core only
// reads; writes happen at the ingestion boundary via Upsert, which keeps at
// most one record per date with the most recently supplied value winning.
type Store interface {
	// Range returns records with from <= date <= to, ordered by date ascending.
	Range(ctx context.Context, from, to time.Time) ([]api.HistoricalRecord, error)

	// Overloads returns records flagged as overload events since the cutoff,
	// ordered by date ascending.
	Overloads(ctx context.Context, since time.Time) ([]api.HistoricalRecord, error)

	// Upsert writes records, replacing any existing record for the same date.
	Upsert(ctx context.Context, records []api.HistoricalRecord) error

	// Close releases resources
	Close() error
}

// MemoryStore is an in-memory store keyed by calendar day.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]api.HistoricalRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]api.HistoricalRecord)}
}

func (m *MemoryStore) Range(ctx context.Context, from, to time.Time) ([]api.HistoricalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []api.HistoricalRecord
	for _, r := range m.records {
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	sortByDate(out)
	return out, nil
}

func (m *MemoryStore) Overloads(ctx context.Context, since time.Time) ([]api.HistoricalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []api.HistoricalRecord
	for _, r := range m.records {
		if r.OverloadFlag && !r.Date.Before(since) {
			out = append(out, r)
		}
	}
	sortByDate(out)
	return out, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, records []api.HistoricalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Last write wins per date: later entries in the batch and later batches
	// both replace earlier values for the same day.
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		m.records[r.DayKey()] = r
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func sortByDate(records []api.HistoricalRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
}
