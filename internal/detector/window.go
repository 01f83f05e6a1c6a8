// Package detector implements the sliding-window aggregate detectors:
// brute force, volumetric abuse, data exfiltration and privilege
// escalation. Each detector evaluates recent events per entity and
// raises its own findings; overlapping detections for the same entity
// are intentionally not merged.
package detector

import (
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// windowEntry is the bounded per-event state a detector needs. Full
// events live in the engine's buffer; the window store keeps only what
// the aggregates consume.
type windowEntry struct {
	ts       time.Time
	category models.EventCategory
	outcome  models.Outcome
	bytes    int64
}

// WindowStore holds recent events per entity, evicting entries older
// than the longest detector window. One mutex guards the store; the
// detectors take it briefly per entity during evaluation.
type WindowStore struct {
	mu        sync.Mutex
	byEntity  map[string][]windowEntry
	maxWindow time.Duration
}

// NewWindowStore creates a store that retains entries for maxWindow.
func NewWindowStore(maxWindow time.Duration) *WindowStore {
	return &WindowStore{
		byEntity:  make(map[string][]windowEntry),
		maxWindow: maxWindow,
	}
}

// SetMaxWindow adjusts the retention window. A shrink takes effect on
// the next Evict.
func (w *WindowStore) SetMaxWindow(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxWindow = d
}

// Add records an event in its entity's window.
func (w *WindowStore) Add(ev *models.SecurityEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byEntity[ev.SourceIdentity] = append(w.byEntity[ev.SourceIdentity], windowEntry{
		ts:       ev.Timestamp,
		category: ev.Category,
		outcome:  ev.Outcome,
		bytes:    ev.DataSizeBytes,
	})
}

// Evict drops entries older than the retention window and removes
// entities whose windows have drained.
func (w *WindowStore) Evict(now time.Time) {
	cutoff := now.Add(-w.maxWindow)

	w.mu.Lock()
	defer w.mu.Unlock()
	for entity, entries := range w.byEntity {
		kept := entries[:0]
		for _, e := range entries {
			if e.ts.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(w.byEntity, entity)
			continue
		}
		w.byEntity[entity] = kept
	}
}

// entities returns the tracked entity identities.
func (w *WindowStore) entities() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.byEntity))
	for entity := range w.byEntity {
		out = append(out, entity)
	}
	return out
}

// entriesSince returns copies of an entity's entries newer than the
// cutoff.
func (w *WindowStore) entriesSince(entity string, cutoff time.Time) []windowEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []windowEntry
	for _, e := range w.byEntity[entity] {
		if e.ts.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the total number of buffered entries.
func (w *WindowStore) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, entries := range w.byEntity {
		n += len(entries)
	}
	return n
}
