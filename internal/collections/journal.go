package collections

import (
	"context"
	"sync"
	"time"
)

// ChangeEvent is the journaled summary of one detected change. Only
// counts are kept; the full report goes to live subscribers and is never
// persisted.
type ChangeEvent struct {
	Kind       Kind      `json:"kind"`
	Added      int       `json:"added"`
	Changed    int       `json:"changed"`
	Removed    int       `json:"removed"`
	DetectedAt time.Time `json:"detectedAt"`
}

// Journal records detected-change events for operators. Append failures
// are logged by callers and never fail a refresh sweep.
type Journal interface {
	Append(ctx context.Context, event ChangeEvent) error
	Recent(ctx context.Context, limit int) ([]ChangeEvent, error)
	Close() error
}

const defaultJournalCapacity = 512

// MemoryJournal is the default journal: a fixed-capacity ring that
// forgets the oldest events first.
type MemoryJournal struct {
	mu       sync.Mutex
	events   []ChangeEvent
	capacity int
}

func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	return &MemoryJournal{capacity: capacity}
}

func (j *MemoryJournal) Append(_ context.Context, event ChangeEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	if len(j.events) > j.capacity {
		j.events = j.events[len(j.events)-j.capacity:]
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *MemoryJournal) Recent(_ context.Context, limit int) ([]ChangeEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit <= 0 || limit > len(j.events) {
		limit = len(j.events)
	}
	out := make([]ChangeEvent, 0, limit)
	for i := len(j.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.events[i])
	}
	return out, nil
}

func (j *MemoryJournal) Close() error {
	return nil
}
