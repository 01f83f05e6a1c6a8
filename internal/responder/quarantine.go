package responder

import (
	"context"
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/models"
	"github.com/crowsnest-systems/crowsnest/internal/repository"
)

// QuarantineStore owns the quarantine records. Creation is idempotent
// per entity: while one record is active, further quarantine requests
// for the same entity return the existing record. Expiry is evaluated
// lazily by the retention sweep, not by per-record timers.
type QuarantineStore struct {
	mu      sync.RWMutex
	records map[string]*models.QuarantineRecord // by record ID

	repo   repository.Repository
	logger *logging.Logger
}

// NewQuarantineStore creates a store backed by repo.
func NewQuarantineStore(repo repository.Repository, logger *logging.Logger) *QuarantineStore {
	return &QuarantineStore{
		records: make(map[string]*models.QuarantineRecord),
		repo:    repo,
		logger:  logger,
	}
}

// Load restores persisted quarantine records, typically at startup.
func (q *QuarantineStore) Load(ctx context.Context) error {
	records, err := q.repo.LoadQuarantines(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, rec := range records {
		q.records[rec.ID] = rec
	}
	return nil
}

// Quarantine creates an active record for the entity, or returns the
// existing active record. The bool result reports whether a new record
// was created.
func (q *QuarantineStore) Quarantine(entity, entityType, reason string, ttl time.Duration) (*models.QuarantineRecord, bool) {
	now := time.Now().UTC()

	q.mu.Lock()
	for _, rec := range q.records {
		if rec.Entity == entity && rec.Status == models.QuarantineActive && !rec.Expired(now) {
			c := *rec
			q.mu.Unlock()
			return &c, false
		}
	}

	rec := &models.QuarantineRecord{
		ID:         models.NewID(),
		Entity:     entity,
		EntityType: entityType,
		Reason:     reason,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Status:     models.QuarantineActive,
	}
	q.records[rec.ID] = rec
	c := *rec
	q.mu.Unlock()

	q.persist(&c)
	return &c, true
}

// Active returns the currently active records.
func (q *QuarantineStore) Active(now time.Time) []*models.QuarantineRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []*models.QuarantineRecord
	for _, rec := range q.records {
		if rec.Status == models.QuarantineActive && !rec.Expired(now) {
			c := *rec
			out = append(out, &c)
		}
	}
	return out
}

// ExpireStale transitions records past their TTL to expired and
// returns them. Called by the retention sweep.
func (q *QuarantineStore) ExpireStale(now time.Time) []*models.QuarantineRecord {
	q.mu.Lock()
	var expired []*models.QuarantineRecord
	for _, rec := range q.records {
		if rec.Status == models.QuarantineActive && rec.Expired(now) {
			rec.Status = models.QuarantineExpired
			c := *rec
			expired = append(expired, &c)
		}
	}
	q.mu.Unlock()

	for _, rec := range expired {
		q.persist(rec)
	}
	return expired
}

// RemoveExpired deletes expired records whose TTL elapsed before the
// cutoff, from memory and persistence. Only the retention manager
// calls this; keeping records around until the cutoff leaves the
// expired status observable to operators for a while.
func (q *QuarantineStore) RemoveExpired(ctx context.Context, cutoff time.Time) int {
	q.mu.Lock()
	var removed []string
	for id, rec := range q.records {
		if rec.Status == models.QuarantineExpired && rec.ExpiresAt.Before(cutoff) {
			delete(q.records, id)
			removed = append(removed, id)
		}
	}
	q.mu.Unlock()

	for _, id := range removed {
		if err := q.repo.DeleteQuarantine(ctx, id); err != nil {
			q.logger.Error("quarantine delete failed", "id", id, "error", err)
		}
	}
	return len(removed)
}

func (q *QuarantineStore) persist(rec *models.QuarantineRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.repo.SaveQuarantine(ctx, rec); err != nil {
			q.logger.Error("quarantine write-through failed", "id", rec.ID, "error", err)
		}
	}()
}
