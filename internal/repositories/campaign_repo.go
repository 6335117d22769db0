package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrStaleStatus     = errors.New("status changed concurrently")
	ErrBudgetExhausted = errors.New("campaign target budget exhausted")
)

const campaignColumns = `id, user_id, name, session_ids, message, total_targets, status,
	schedule_at, started_at, paused_at, completed_at, sent_count, failed_count, reserved_targets,
	created_at, updated_at`

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.SessionIDs, &c.Message, &c.TotalTargets, &c.Status,
		&c.ScheduleAt, &c.StartedAt, &c.PausedAt, &c.CompletedAt, &c.SentCount, &c.FailedCount, &c.ReservedTargets,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO campaigns (user_id, name, session_ids, message, total_targets, status, schedule_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, c.UserID, c.Name, c.SessionIDs, c.Message, c.TotalTargets, c.Status, c.ScheduleAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return scanCampaign(r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
}

// UpdateStatus applies the change only if the stored status still equals
// ch.From. It returns ErrStaleStatus when another writer got there first.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, ch models.StatusChange) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, schedule_at = $3, started_at = $4, paused_at = $5, completed_at = $6, updated_at = now()
		WHERE id = $1 AND status = $7
	`, ch.CampaignID, ch.To, ch.ScheduleAt, ch.StartedAt, ch.PausedAt, ch.CompletedAt, ch.From)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ReserveTargets claims n targets of an active campaign. Outcomes already
// counted and targets reserved by batches still running both count against
// total_targets. It returns ErrBudgetExhausted when fewer than n are left or
// the campaign is not active.
func (r *CampaignRepo) ReserveTargets(ctx context.Context, id uuid.UUID, n int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET reserved_targets = reserved_targets + $2, updated_at = now()
		WHERE id = $1 AND status = $3
		  AND sent_count + failed_count + reserved_targets + $2 <= total_targets
	`, id, n, models.CampaignStatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBudgetExhausted
	}
	return nil
}

// RefreshCounters recounts sent/failed from the latest record of every group
// and releases `release` reserved targets in the same transaction. The
// campaign row is locked before counting, so the count sees every record
// committed by batches that already finished.
func (r *CampaignRepo) RefreshCounters(ctx context.Context, id uuid.UUID, release int) (models.OutcomeCounts, error) {
	var counts models.OutcomeCounts
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM campaigns WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, latestOutcomeCountsSQL, id, models.RecordStatusSent, models.RecordStatusFailed).
			Scan(&counts.Succeeded, &counts.Failed); err != nil {
			return fmt.Errorf("count outcomes: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE campaigns
			SET sent_count = $2, failed_count = $3,
			    reserved_targets = GREATEST(reserved_targets - $4, 0), updated_at = now()
			WHERE id = $1
		`, id, counts.Succeeded, counts.Failed, release)
		return err
	})
	return counts, err
}

type CampaignFilter struct {
	UserID *uuid.UUID
	Status *string
	Limit  int
	Offset int
}

func (r *CampaignRepo) List(ctx context.Context, f CampaignFilter) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return r.query(ctx, query, args...)
}

// ListDueScheduled returns scheduled campaigns whose schedule_at has passed.
func (r *CampaignRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = $1 AND schedule_at IS NOT NULL AND schedule_at <= $2
		ORDER BY schedule_at ASC LIMIT $3
	`, models.CampaignStatusScheduled, now, limit)
}

func (r *CampaignRepo) query(ctx context.Context, sql string, args ...any) ([]models.Campaign, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}
