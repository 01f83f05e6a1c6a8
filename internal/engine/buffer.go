package engine

import (
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// EventBuffer is the in-memory event history consumed by the baseline
// pass and bounded by the retention sweep.
type EventBuffer struct {
	mu     sync.RWMutex
	events []models.SecurityEvent
}

// NewEventBuffer creates an empty buffer.
func NewEventBuffer() *EventBuffer {
	return &EventBuffer{}
}

// Append adds an event to the buffer.
func (b *EventBuffer) Append(ev models.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Since returns copies of events with timestamps after t.
func (b *EventBuffer) Since(t time.Time) []models.SecurityEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.SecurityEvent
	for _, ev := range b.events {
		if ev.Timestamp.After(t) {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// EvictOlderThan drops events older than the cutoff and returns how
// many were removed. Only the retention manager calls this.
func (b *EventBuffer) EvictOlderThan(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.events[:0]
	for _, ev := range b.events {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	removed := len(b.events) - len(kept)
	b.events = kept
	return removed
}
