package repositories

import (
	"context"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// latestOutcomeCountsSQL counts the latest record of every group of a
// campaign, so a retried group is counted once with its newest outcome.
// Args: campaign id, sent status, failed status.
const latestOutcomeCountsSQL = `
	SELECT
		COUNT(*) FILTER (WHERE status = $2),
		COUNT(*) FILTER (WHERE status = $3)
	FROM (
		SELECT DISTINCT ON (group_id) status
		FROM message_records
		WHERE campaign_id = $1
		ORDER BY group_id, created_at DESC, id DESC
	) latest
`

// RecordRepo stores outcome records. Rows are only ever inserted.
type RecordRepo struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) *RecordRepo {
	return &RecordRepo{pool: pool}
}

func (r *RecordRepo) InsertMessage(ctx context.Context, m *models.MessageRecord) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO message_records (campaign_id, session_id, group_id, status, error_message, remote_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, m.CampaignID, m.SessionID, m.GroupID, m.Status, m.ErrorMessage, m.RemoteID, m.SentAt,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *RecordRepo) InsertTransfer(ctx context.Context, t *models.TransferRecord) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO transfer_records (batch_id, user_id, session_id, source_group_id, target_group_id,
		                              member_id, status, error_message, transferred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, t.BatchID, t.UserID, t.SessionID, t.SourceGroupID, t.TargetGroupID,
		t.MemberID, t.Status, t.ErrorMessage, t.TransferredAt,
	).Scan(&t.ID, &t.CreatedAt)
}

// AttemptedGroups returns the subset of groupIDs that already have a record
// for the campaign.
func (r *RecordRepo) AttemptedGroups(ctx context.Context, campaignID uuid.UUID, groupIDs []string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT group_id FROM message_records
		WHERE campaign_id = $1 AND group_id = ANY($2)
	`, campaignID, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *RecordRepo) ListMessages(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]models.MessageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, session_id, group_id, status, error_message, remote_id, sent_at, created_at
		FROM message_records WHERE campaign_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.MessageRecord{}
	for rows.Next() {
		var m models.MessageRecord
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.SessionID, &m.GroupID, &m.Status,
			&m.ErrorMessage, &m.RemoteID, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, m)
	}
	return records, rows.Err()
}
