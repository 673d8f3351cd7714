package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueReelGenerate is the Redis list key for asynchronous reel generation jobs.
	QueueReelGenerate = "worker:reels:generate"
	// QueueReelArchive is the Redis list key for jobs copying finished videos into S3.
	QueueReelArchive = "worker:reels:archive"
	// QueueDLQ is the dead-letter queue for jobs that will not be attempted again.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts an archive job gets before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// DequeueTimeout bounds one blocking pop so the worker can observe shutdown.
	DequeueTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeReelGenerate JobType = "reel_generate"
	JobTypeReelArchive  JobType = "reel_archive"
)

// ReelGeneratePayload is the payload for reel generation jobs.
type ReelGeneratePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Topic  string    `json:"topic"`
}

// ReelArchivePayload is the payload for reel archive jobs.
type ReelArchivePayload struct {
	ReelID   uuid.UUID `json:"reel_id"`
	UserID   uuid.UUID `json:"user_id"`
	VideoURL string    `json:"video_url"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueReelGenerate enqueues a generation job under jobID. Callers pick the ID so the job's
// status can be recorded before a worker is able to see the job.
func (q *Queue) EnqueueReelGenerate(ctx context.Context, jobID string, payload ReelGeneratePayload) error {
	if jobID == "" {
		return errors.New("empty job id")
	}
	if _, err := q.enqueue(ctx, jobID, JobTypeReelGenerate, payload); err != nil {
		return err
	}
	q.logger.Debug("enqueued reel generate job", zap.String("job_id", jobID), zap.String("user_id", payload.UserID.String()))
	return nil
}

// EnqueueReelArchive enqueues an archive job.
func (q *Queue) EnqueueReelArchive(ctx context.Context, payload ReelArchivePayload) error {
	job, err := q.enqueue(ctx, uuid.New().String(), JobTypeReelArchive, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued reel archive job", zap.String("job_id", job.ID), zap.String("reel_id", payload.ReelID.String()))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, id string, typ JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        id,
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	if err := q.push(ctx, keyFor(typ), job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for a job from either reel queue. It returns a nil job when
// the wait timed out or the entry was not a valid job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueReelGenerate, QueueReelArchive).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		return q.DeadLetter(ctx, job)
	}
	if err := q.push(ctx, keyFor(job.Type), job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Requeue pushes a job back onto its queue without counting an attempt, for jobs interrupted
// by shutdown.
func (q *Queue) Requeue(ctx context.Context, job *Job) error {
	if err := q.push(ctx, keyFor(job.Type), job); err != nil {
		return err
	}
	q.logger.Info("job requeued", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return nil
}

// DeadLetter moves a job straight to the DLQ.
func (q *Queue) DeadLetter(ctx context.Context, job *Job) error {
	if err := q.push(ctx, QueueDLQ, job); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
	return nil
}

func keyFor(typ JobType) string {
	if typ == JobTypeReelGenerate {
		return QueueReelGenerate
	}
	return QueueReelArchive
}
