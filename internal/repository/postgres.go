package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// LoadIndicators reads every stored intelligence record.
func (r *PostgresRepository) LoadIndicators(ctx context.Context) (map[string]*models.ThreatIntelRecord, error) {
	query := `
		SELECT indicator, indicator_type, reputation, category, severity,
		       confidence, last_seen, provenance
		FROM threat_indicators
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load indicators: %w", err)
	}
	defer rows.Close()

	indicators := make(map[string]*models.ThreatIntelRecord)
	for rows.Next() {
		rec := &models.ThreatIntelRecord{}
		err := rows.Scan(
			&rec.Indicator, &rec.Type, &rec.Reputation, &rec.Category,
			&rec.Severity, &rec.Confidence, &rec.LastSeen, &rec.Provenance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		indicators[rec.Indicator] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate indicators: %w", err)
	}

	return indicators, nil
}

// SaveIndicator upserts a single intelligence record.
func (r *PostgresRepository) SaveIndicator(ctx context.Context, rec *models.ThreatIntelRecord) error {
	query := `
		INSERT INTO threat_indicators
			(indicator, indicator_type, reputation, category, severity,
			 confidence, last_seen, provenance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (indicator) DO UPDATE SET
			indicator_type = EXCLUDED.indicator_type,
			reputation = EXCLUDED.reputation,
			category = EXCLUDED.category,
			severity = EXCLUDED.severity,
			confidence = EXCLUDED.confidence,
			last_seen = EXCLUDED.last_seen,
			provenance = EXCLUDED.provenance
	`

	_, err := r.pool.Exec(ctx, query,
		rec.Indicator, rec.Type, rec.Reputation, rec.Category,
		rec.Severity, rec.Confidence, rec.LastSeen, rec.Provenance,
	)
	if err != nil {
		return fmt.Errorf("failed to save indicator: %w", err)
	}
	return nil
}

// SaveIndicators upserts a batch of intelligence records in one
// transaction so a refresh cycle is all-or-nothing.
func (r *PostgresRepository) SaveIndicators(ctx context.Context, recs map[string]*models.ThreatIntelRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range recs {
		_, err := tx.Exec(ctx, `
			INSERT INTO threat_indicators
				(indicator, indicator_type, reputation, category, severity,
				 confidence, last_seen, provenance)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (indicator) DO UPDATE SET
				indicator_type = EXCLUDED.indicator_type,
				reputation = EXCLUDED.reputation,
				category = EXCLUDED.category,
				severity = EXCLUDED.severity,
				confidence = EXCLUDED.confidence,
				last_seen = EXCLUDED.last_seen,
				provenance = EXCLUDED.provenance
		`,
			rec.Indicator, rec.Type, rec.Reputation, rec.Category,
			rec.Severity, rec.Confidence, rec.LastSeen, rec.Provenance,
		)
		if err != nil {
			return fmt.Errorf("failed to save indicator %s: %w", rec.Indicator, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit indicators: %w", err)
	}
	return nil
}

// LoadQuarantines reads every stored quarantine record.
func (r *PostgresRepository) LoadQuarantines(ctx context.Context) ([]*models.QuarantineRecord, error) {
	query := `
		SELECT id, entity, entity_type, reason, created_at, expires_at, status
		FROM quarantine_records
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load quarantines: %w", err)
	}
	defer rows.Close()

	var records []*models.QuarantineRecord
	for rows.Next() {
		rec := &models.QuarantineRecord{}
		err := rows.Scan(
			&rec.ID, &rec.Entity, &rec.EntityType, &rec.Reason,
			&rec.CreatedAt, &rec.ExpiresAt, &rec.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quarantine: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quarantines: %w", err)
	}

	return records, nil
}

// SaveQuarantine upserts a quarantine record.
func (r *PostgresRepository) SaveQuarantine(ctx context.Context, rec *models.QuarantineRecord) error {
	query := `
		INSERT INTO quarantine_records
			(id, entity, entity_type, reason, created_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			status = EXCLUDED.status
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Entity, rec.EntityType, rec.Reason,
		rec.CreatedAt, rec.ExpiresAt, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save quarantine: %w", err)
	}
	return nil
}

// DeleteQuarantine removes a quarantine record by ID. Deleting a
// record that does not exist is not an error.
func (r *PostgresRepository) DeleteQuarantine(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM quarantine_records WHERE id = $1`, id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to delete quarantine: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
