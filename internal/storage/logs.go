package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/edufund/veriflow/internal/domain"
)

const logColumns = `id, entity_kind, entity_id, verification_type, ai_score, analysis, documents_analyzed, status, manual_review, created_at`

// Append stores a new verification log record. Records are never
// deleted; the only later mutation is the manual-review transition.
func (db *DB) Append(ctx context.Context, log *domain.VerificationLog) (uuid.UUID, error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO verification_logs
		     (id, entity_kind, entity_id, verification_type, ai_score, analysis, documents_analyzed, status, manual_review, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.ID, log.EntityKind, log.EntityID, log.Type, log.AIScore,
		log.Analysis, log.DocumentsAnalyzed, log.Status, log.ManualReview, log.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: append verification log: %w", err)
	}
	return log.ID, nil
}

// Get fetches a log record by id.
func (db *DB) Get(ctx context.Context, id uuid.UUID) (domain.VerificationLog, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+logColumns+` FROM verification_logs WHERE id = $1`, id,
	)
	log, err := scanLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VerificationLog{}, fmt.Errorf("storage: verification log %s: %w", id, domain.ErrNotFound)
		}
		return domain.VerificationLog{}, fmt.Errorf("storage: get verification log %s: %w", id, err)
	}
	return log, nil
}

// SetManualReview writes the review block and forces the record into
// its settled shape: status completed, type hybrid. A second call
// overwrites the previous block.
func (db *DB) SetManualReview(ctx context.Context, id uuid.UUID, review domain.ManualReview) (domain.VerificationLog, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE verification_logs
		 SET manual_review = $1, status = $2, verification_type = $3
		 WHERE id = $4
		 RETURNING `+logColumns,
		review, domain.LogCompleted, domain.TypeHybrid, id,
	)
	log, err := scanLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VerificationLog{}, fmt.Errorf("storage: verification log %s: %w", id, domain.ErrNotFound)
		}
		return domain.VerificationLog{}, fmt.Errorf("storage: set manual review %s: %w", id, err)
	}
	return log, nil
}

// FindByEntity returns all logs for an entity, most recent first.
func (db *DB) FindByEntity(ctx context.Context, kind domain.EntityKind, entityID string) ([]domain.VerificationLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+logColumns+` FROM verification_logs
		 WHERE entity_kind = $1 AND entity_id = $2
		 ORDER BY created_at DESC`,
		kind, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find logs for %s %s: %w", kind, entityID, err)
	}
	return collectLogs(rows)
}

// FindPendingManualReview returns logs awaiting a human decision, most
// recent first.
func (db *DB) FindPendingManualReview(ctx context.Context) ([]domain.VerificationLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+logColumns+` FROM verification_logs
		 WHERE status = $1 ORDER BY created_at DESC`,
		domain.LogPendingManualReview,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find pending manual reviews: %w", err)
	}
	return collectLogs(rows)
}

func collectLogs(rows pgx.Rows) ([]domain.VerificationLog, error) {
	defer rows.Close()
	var logs []domain.VerificationLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan verification log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanLog(row pgx.Row) (domain.VerificationLog, error) {
	var l domain.VerificationLog
	err := row.Scan(
		&l.ID, &l.EntityKind, &l.EntityID, &l.Type, &l.AIScore,
		&l.Analysis, &l.DocumentsAnalyzed, &l.Status, &l.ManualReview, &l.CreatedAt,
	)
	return l, err
}
