package repositories

import (
	"context"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, phone, session_string, api_id, api_hash, status, created_at, updated_at`

// SessionRepo is read-only: session rows are written by the credential flow,
// not by the orchestrator.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// ListByIDs returns the user's sessions among ids, whatever their status.
func (r *SessionRepo) ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Session, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+` FROM telegram_sessions
		WHERE user_id = $1 AND id = ANY($2)
	`, userID, ids)
}

func (r *SessionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+` FROM telegram_sessions
		WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
}

func (r *SessionRepo) query(ctx context.Context, sql string, args ...any) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Phone, &s.SessionString, &s.APIID, &s.APIHash,
			&s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
