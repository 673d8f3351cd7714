package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pinecraft/pinereel/pkg/queue"
)

const (
	channelPrefix = "reel:jobs:"
	publishTTL    = 5 * time.Second
)

// JobEvents carries job status changes between instances over Redis pub/sub.
type JobEvents struct {
	client *redis.Client
	logger *zap.Logger
}

// NewJobEvents creates a Redis pub/sub bridge for job status changes.
func NewJobEvents(client *redis.Client, logger *zap.Logger) *JobEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobEvents{client: client, logger: logger}
}

// Publish sends st to the job's channel.
func (e *JobEvents) Publish(ctx context.Context, st queue.JobStatus) error {
	body, err := json.Marshal(st)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTTL)
	defer cancel()
	return e.client.Publish(ctx, channelPrefix+st.JobID, body).Err()
}

// Subscribe calls handler for each status published for jobID until cancel is called.
// The subscription is active when Subscribe returns.
func (e *JobEvents) Subscribe(jobID string, handler func(queue.JobStatus)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := e.client.Subscribe(ctx, channelPrefix+jobID)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var st queue.JobStatus
				if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
					e.logger.Warn("invalid job event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(st)
			}
		}
	}()
	return cancelCtx, nil
}

// StatusStore is the persistent job status store.
type StatusStore interface {
	Set(ctx context.Context, st queue.JobStatus) error
	Get(ctx context.Context, jobID string) (*queue.JobStatus, error)
}

// PublishingStatuses stores each status and then announces it on JobEvents.
type PublishingStatuses struct {
	store  StatusStore
	events *JobEvents
	logger *zap.Logger
}

// NewPublishingStatuses wraps store so that every Set is also published.
func NewPublishingStatuses(store StatusStore, events *JobEvents, logger *zap.Logger) *PublishingStatuses {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishingStatuses{store: store, events: events, logger: logger}
}

// Set stores st and publishes it. A publish failure is logged; the stored status stays authoritative.
func (p *PublishingStatuses) Set(ctx context.Context, st queue.JobStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	if err := p.store.Set(ctx, st); err != nil {
		return err
	}
	if err := p.events.Publish(ctx, st); err != nil {
		p.logger.Warn("publish job status failed", zap.String("job_id", st.JobID), zap.Error(err))
	}
	return nil
}

// Get returns the stored status of jobID.
func (p *PublishingStatuses) Get(ctx context.Context, jobID string) (*queue.JobStatus, error) {
	return p.store.Get(ctx, jobID)
}
