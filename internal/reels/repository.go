package reels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pinecraft/pinereel/internal/models"
)

const reelColumns = `id, user_id, topic, script, voiceover_url, video_url, duration, status,
	COALESCE(s3_url,''), COALESCE(s3_key,''), created_at, updated_at`

// Repository handles reel persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reels repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a reel and fills in its ID and timestamps.
func (r *Repository) Create(ctx context.Context, reel *models.Reel) error {
	script, err := json.Marshal(reel.Script)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	const q = `INSERT INTO reels (user_id, topic, script, voiceover_url, video_url, duration, status)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, reel.UserID, reel.Topic, string(script), reel.VoiceoverURL, reel.VideoURL, reel.Duration, reel.Status).
		Scan(&reel.ID, &reel.CreatedAt, &reel.UpdatedAt)
}

// GetByID returns a reel, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Reel, error) {
	reel, err := scanReel(r.pool.QueryRow(ctx, `SELECT `+reelColumns+` FROM reels WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reel, nil
}

// ListByUser returns a user's reels, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reelColumns+` FROM reels WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Reel{}
	for rows.Next() {
		reel, err := scanReel(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reel)
	}
	return list, rows.Err()
}

// UpdateArchive records where the reel's video was copied in object storage.
func (r *Repository) UpdateArchive(ctx context.Context, id uuid.UUID, s3URL, s3Key string) error {
	const q = `UPDATE reels SET s3_url = $1, s3_key = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, s3URL, s3Key, id)
	return err
}

func scanReel(row pgx.Row) (*models.Reel, error) {
	var (
		reel   models.Reel
		script []byte
	)
	err := row.Scan(&reel.ID, &reel.UserID, &reel.Topic, &script, &reel.VoiceoverURL, &reel.VideoURL,
		&reel.Duration, &reel.Status, &reel.S3URL, &reel.S3Key, &reel.CreatedAt, &reel.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(script, &reel.Script); err != nil {
		return nil, fmt.Errorf("unmarshal script: %w", err)
	}
	return &reel, nil
}
