// Package baseline maintains per-entity rolling behavioral profiles.
package baseline

import (
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// EWMA smoothing: new = alpha*old + (1-alpha)*sample.
const alpha = 0.9

// Tracker holds exponentially weighted moving averages of request
// rate, data volume and error rate per entity, plus the set of
// hours-of-day the entity has been seen active. Updated in batch
// passes, read-only during scoring.
type Tracker struct {
	mu        sync.RWMutex
	baselines map[string]*models.BehavioralBaseline
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{baselines: make(map[string]*models.BehavioralBaseline)}
}

// entitySample accumulates one batch window's observations for an
// entity before they are folded into the moving averages.
type entitySample struct {
	requests int
	failures int
	bytes    int64
	hours    map[int]bool
}

// UpdateBatch folds one window of events into the baselines. window is
// the span the events were collected over, used to normalize the
// request rate to events-per-minute.
func (t *Tracker) UpdateBatch(events []models.SecurityEvent, window time.Duration) {
	if len(events) == 0 {
		return
	}

	minutes := window.Minutes()
	if minutes <= 0 {
		minutes = 1
	}

	samples := make(map[string]*entitySample)
	for i := range events {
		ev := &events[i]
		s, ok := samples[ev.SourceIdentity]
		if !ok {
			s = &entitySample{hours: make(map[int]bool)}
			samples[ev.SourceIdentity] = s
		}
		s.requests++
		s.bytes += ev.DataSizeBytes
		if ev.Outcome == models.OutcomeFailure {
			s.failures++
		}
		s.hours[ev.Timestamp.UTC().Hour()] = true
	}

	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	for entity, s := range samples {
		rate := float64(s.requests) / minutes
		volume := float64(s.bytes) / float64(s.requests)
		errRate := float64(s.failures) / float64(s.requests)

		b, ok := t.baselines[entity]
		if !ok {
			b = &models.BehavioralBaseline{
				Entity:      entity,
				RequestRate: rate,
				DataVolume:  volume,
				ErrorRate:   errRate,
				ActiveHours: make(map[int]bool),
			}
			t.baselines[entity] = b
		} else {
			b.RequestRate = alpha*b.RequestRate + (1-alpha)*rate
			b.DataVolume = alpha*b.DataVolume + (1-alpha)*volume
			b.ErrorRate = alpha*b.ErrorRate + (1-alpha)*errRate
		}
		for h := range s.hours {
			b.ActiveHours[h] = true
		}
		b.SampleCount += int64(s.requests)
		b.UpdatedAt = now
	}
}

// Get returns a copy of the baseline for an entity, or nil if the
// entity has never been observed.
func (t *Tracker) Get(entity string) *models.BehavioralBaseline {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.baselines[entity]
	if !ok {
		return nil
	}
	c := *b
	c.ActiveHours = make(map[int]bool, len(b.ActiveHours))
	for h := range b.ActiveHours {
		c.ActiveHours[h] = true
	}
	return &c
}

// Len returns the number of tracked entities.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.baselines)
}

// Evict removes baselines not updated since the cutoff. Called by the
// retention sweep so abandoned entities do not grow the map forever.
func (t *Tracker) Evict(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for entity, b := range t.baselines {
		if b.UpdatedAt.Before(cutoff) {
			delete(t.baselines, entity)
			removed++
		}
	}
	return removed
}
