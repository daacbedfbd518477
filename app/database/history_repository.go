package database

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
)

const (
	historyFileName     = "collection_history.json"
	DefaultHistoryLimit = 20
)

// HistoryRepository is a bounded, append-only log of collection attempts.
// Entries beyond capacity are dropped oldest first.
type HistoryRepository struct {
	db       *DB
	capacity int
	mu       sync.RWMutex
	entries  []HistoryEntry
}

func NewHistoryRepository(db *DB, capacity int) (*HistoryRepository, error) {
	if capacity < 1 {
		capacity = 100
	}
	r := &HistoryRepository{db: db, capacity: capacity}

	var file historyFile
	if _, err := db.readJSON(historyFileName, &file); err != nil {
		return nil, err
	}
	r.entries = trimHead(file.Entries, capacity)
	slog.Debug("Collection history loaded", "entries", len(r.entries))

	return r, nil
}

func (r *HistoryRepository) Capacity() int {
	return r.capacity
}

// Append persists entry before it becomes visible to readers.
func (r *HistoryRepository) Append(entry HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := trimHead(append(slices.Clone(r.entries), entry), r.capacity)
	if err := r.db.writeJSON(historyFileName, historyFile{Entries: next}); err != nil {
		return errs.Wrap(errs.ErrStorage, err, "failed to save collection history")
	}
	r.entries = next
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 selects
// DefaultHistoryLimit; larger values are capped at the capacity.
func (r *HistoryRepository) List(limit int) []HistoryEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > r.capacity {
		limit = r.capacity
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := min(limit, len(r.entries))
	out := make([]HistoryEntry, 0, n)
	for i := len(r.entries) - 1; i >= len(r.entries)-n; i-- {
		out = append(out, r.entries[i])
	}
	return out
}

func (r *HistoryRepository) Latest() *HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil
	}
	latest := r.entries[len(r.entries)-1]
	return &latest
}

func trimHead(entries []HistoryEntry, capacity int) []HistoryEntry {
	if len(entries) <= capacity {
		return entries
	}
	return slices.Clone(entries[len(entries)-capacity:])
}
