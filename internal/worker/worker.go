package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/pinecraft/pinereel/internal/models"
	"github.com/pinecraft/pinereel/internal/pipeline"
	"github.com/pinecraft/pinereel/internal/reels"
	"github.com/pinecraft/pinereel/pkg/queue"
	"github.com/pinecraft/pinereel/pkg/storage"
)

// ReelCreator runs the pipeline and records the reel.
type ReelCreator interface {
	Create(ctx context.Context, userID uuid.UUID, topic string) (*models.Reel, *pipeline.Result, error)
}

// ArchiveStore reads reels and records where their videos were archived.
type ArchiveStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reel, error)
	UpdateArchive(ctx context.Context, id uuid.UUID, s3URL, s3Key string) error
}

// Uploader streams an object into the reels bucket.
type Uploader interface {
	ReelsBucket() string
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// JobSource is the queue the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
	Requeue(ctx context.Context, job *queue.Job) error
	DeadLetter(ctx context.Context, job *queue.Job) error
}

// StatusWriter records the state of asynchronous generation jobs.
type StatusWriter interface {
	Set(ctx context.Context, st queue.JobStatus) error
}

// Processor executes reel generation and archive jobs on a goroutine pool.
type Processor struct {
	reels      ReelCreator
	store      ArchiveStore
	uploader   Uploader
	jobs       JobSource
	statuses   StatusWriter
	pool       *ants.Pool
	httpClient *http.Client
	backoff    time.Duration
	logger     *zap.Logger
	inflight   sync.WaitGroup
}

// NewProcessor creates a job processor. uploader may be nil when S3 is not configured; archive
// jobs then fail and end up in the DLQ.
func NewProcessor(creator ReelCreator, store ArchiveStore, uploader Uploader, jobs JobSource, statuses StatusWriter, pool *ants.Pool, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		reels:      creator,
		store:      store,
		uploader:   uploader,
		jobs:       jobs,
		statuses:   statuses,
		pool:       pool,
		httpClient: http.DefaultClient,
		backoff:    queue.RetryBackoff,
		logger:     logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeReelGenerate:
		return p.generate(ctx, job)
	case queue.JobTypeReelArchive:
		return p.archive(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) generate(ctx context.Context, job *queue.Job) error {
	var payload queue.ReelGeneratePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.setStatus(ctx, queue.JobStatus{JobID: job.ID, State: queue.JobFailed, Error: "invalid job payload"})
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	owner := payload.UserID.String()
	p.setStatus(ctx, queue.JobStatus{JobID: job.ID, UserID: owner, State: queue.JobRunning})
	reel, _, err := p.reels.Create(ctx, payload.UserID, payload.Topic)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted by shutdown; handle puts the job back.
			p.setStatus(ctx, queue.JobStatus{JobID: job.ID, UserID: owner, State: queue.JobQueued})
			return err
		}
		p.setStatus(ctx, queue.JobStatus{JobID: job.ID, UserID: owner, State: queue.JobFailed, Error: failureMessage(err)})
		return err
	}
	p.setStatus(ctx, queue.JobStatus{JobID: job.ID, UserID: owner, State: queue.JobCompleted, ReelID: reel.ID.String()})
	return nil
}

func (p *Processor) archive(ctx context.Context, job *queue.Job) error {
	var payload queue.ReelArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.uploader == nil {
		return errors.New("reel archive is not configured")
	}

	reel, err := p.store.GetByID(ctx, payload.ReelID)
	if err != nil {
		return fmt.Errorf("get reel: %w", err)
	}
	if reel == nil {
		return fmt.Errorf("reel not found: %s", payload.ReelID)
	}
	if reel.Archived() {
		p.logger.Info("reel already archived", zap.String("reel_id", reel.ID.String()))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.VideoURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = storage.DefaultVideoContentType
	}
	key := storage.ReelKey(reel.UserID.String(), reel.ID.String())

	s3URL, err := p.uploader.Upload(ctx, p.uploader.ReelsBucket(), key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.store.UpdateArchive(ctx, reel.ID, s3URL, key); err != nil {
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("reel archived", zap.String("reel_id", reel.ID.String()), zap.String("s3_key", key))
	return nil
}

// Run dequeues jobs until ctx is cancelled. In-flight jobs share ctx, so cancellation interrupts
// them too; Run returns once every interrupted job has been put back on its queue.
func (p *Processor) Run(ctx context.Context) {
	defer p.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reel worker stopping")
			return
		default:
		}

		job, _, err := p.jobs.Dequeue(ctx, queue.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.inflight.Add(1)
		err = p.pool.Submit(func() {
			defer p.inflight.Done()
			p.handle(ctx, job)
		})
		if err != nil {
			p.inflight.Done()
			p.logger.Error("submit job failed", zap.String("job_id", job.ID), zap.Error(err))
			p.handle(ctx, job)
		}
	}
}

// handle processes job and routes a failure: generation jobs go straight to the DLQ, archive jobs retry,
// and jobs cut short by shutdown go back on their queue.
func (p *Processor) handle(ctx context.Context, job *queue.Job) {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := p.Process(ctx, job)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		p.logger.Info("job interrupted by shutdown", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		requeueCtx, cancel := requeueContext(ctx)
		defer cancel()
		if reErr := p.jobs.Requeue(requeueCtx, job); reErr != nil {
			p.logger.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(reErr))
		}
		return
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))

	if job.Type == queue.JobTypeReelGenerate {
		requeueCtx, cancel := requeueContext(ctx)
		defer cancel()
		if dlqErr := p.jobs.DeadLetter(requeueCtx, job); dlqErr != nil {
			p.logger.Error("dead letter failed", zap.String("job_id", job.ID), zap.Error(dlqErr))
		}
		return
	}
	sleep(ctx, p.backoff)
	requeueCtx, cancel := requeueContext(ctx)
	defer cancel()
	if reErr := p.jobs.Retry(requeueCtx, job); reErr != nil {
		p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
	}
}

// requeueContext outlives ctx so a shutdown does not drop the failed job.
func requeueContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (p *Processor) setStatus(ctx context.Context, st queue.JobStatus) {
	if err := p.statuses.Set(context.WithoutCancel(ctx), st); err != nil {
		p.logger.Warn("set job status failed", zap.String("job_id", st.JobID), zap.String("state", string(st.State)), zap.Error(err))
	}
}

// failureMessage is the client-facing reason for a failed generation job.
func failureMessage(err error) string {
	var saveErr *reels.SaveError
	if errors.As(err, &saveErr) {
		return "failed to save reel"
	}
	if stage := pipeline.Stage(err); stage != "" {
		return stage + " generation failed"
	}
	return "reel generation failed"
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
