package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edufund/veriflow/internal/domain"
)

const entityColumns = `kind, id, name, fields, documents, status, ai_score, details, version, created_at, updated_at`

// Upsert inserts or replaces an entity snapshot coming from the owning
// CRUD system. A replace keeps the stored version counter so in-flight
// optimistic saves still conflict correctly.
func (db *DB) Upsert(ctx context.Context, entity *domain.Entity) error {
	if !entity.Kind.Valid() {
		return fmt.Errorf("storage: upsert entity: %w", domain.ErrInvalidEntityKind)
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now
	if entity.Status == "" {
		entity.Status = domain.StatusPending
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO entities (kind, id, name, fields, documents, status, ai_score, details, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (kind, id) DO UPDATE SET
		     name = EXCLUDED.name,
		     fields = EXCLUDED.fields,
		     documents = EXCLUDED.documents,
		     status = EXCLUDED.status,
		     ai_score = EXCLUDED.ai_score,
		     details = EXCLUDED.details,
		     updated_at = EXCLUDED.updated_at`,
		entity.Kind, entity.ID, entity.Name, entity.Fields, entity.Documents,
		entity.Status, entity.AIScore, entity.Details, entity.Version,
		entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert %s %s: %w", entity.Kind, entity.ID, err)
	}
	return nil
}

// Load fetches an entity by kind and id.
func (db *DB) Load(ctx context.Context, kind domain.EntityKind, id string) (domain.Entity, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND id = $2`,
		kind, id,
	)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("storage: %s %s: %w", kind, id, domain.ErrNotFound)
		}
		return domain.Entity{}, fmt.Errorf("storage: load %s %s: %w", kind, id, err)
	}
	return entity, nil
}

// Save writes the entity's verification fields back under optimistic
// versioning. The update only lands when the stored version still
// matches the loaded one; otherwise ErrConcurrentModification.
func (db *DB) Save(ctx context.Context, entity *domain.Entity) error {
	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE entities
		 SET status = $1, ai_score = $2, details = $3, version = version + 1, updated_at = $4
		 WHERE kind = $5 AND id = $6 AND version = $7`,
		entity.Status, entity.AIScore, entity.Details, now,
		entity.Kind, entity.ID, entity.Version,
	)
	if err != nil {
		return fmt.Errorf("storage: save %s %s: %w", entity.Kind, entity.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM entities WHERE kind = $1 AND id = $2)`,
			entity.Kind, entity.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("storage: save %s %s: %w", entity.Kind, entity.ID, err)
		}
		if !exists {
			return fmt.Errorf("storage: %s %s: %w", entity.Kind, entity.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("storage: %s %s: %w", entity.Kind, entity.ID, domain.ErrConcurrentModification)
	}

	entity.Version++
	entity.UpdatedAt = now
	return nil
}

// ListPending returns entities still awaiting verification, oldest
// first.
func (db *DB) ListPending(ctx context.Context, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		domain.StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan pending entity: %w", err)
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var e domain.Entity
	err := row.Scan(
		&e.Kind, &e.ID, &e.Name, &e.Fields, &e.Documents,
		&e.Status, &e.AIScore, &e.Details, &e.Version,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}
