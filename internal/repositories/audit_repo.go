package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AuditRepo stores status changes, transfer batches and rollback
// inconsistencies. Writes are never allowed to fail the operation being
// audited, so callers may ignore the returned error; it is logged here.
type AuditRepo struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewAuditRepo(pool *pgxpool.Pool, log *zap.Logger) *AuditRepo {
	return &AuditRepo{pool: pool, log: log}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	var meta []byte
	if entry.Meta != nil {
		b, err := json.Marshal(entry.Meta)
		if err != nil {
			return fmt.Errorf("encode audit meta: %w", err)
		}
		meta = b
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_user_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ActorUserID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, meta)
	if err != nil {
		r.log.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("entity_type", entry.EntityType),
			zap.Error(err),
		)
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the entity's history, newest first.
func (r *AuditRepo) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_user_id, actor_type, action, entity_type, entity_id, meta, created_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		var meta []byte
		if err := rows.Scan(&l.ID, &l.ActorUserID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			l.Meta = json.RawMessage(meta)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
