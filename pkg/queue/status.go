package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobState is the lifecycle of an asynchronous generation job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further state change will follow.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

const statusKeyPrefix = "reel:job:"

// JobStatus is what clients poll for an asynchronous generation job.
type JobStatus struct {
	JobID     string    `json:"job_id"`
	State     JobState  `json:"state"`
	UserID    string    `json:"user_id,omitempty"`
	ReelID    string    `json:"reel_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisibleTo reports whether the job was requested by userID.
func (s *JobStatus) VisibleTo(userID string) bool {
	return s.UserID != "" && s.UserID == userID
}

// StatusStore keeps job statuses in Redis hashes that expire after ttl.
type StatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusStore creates a status store. ttl <= 0 defaults to 24h.
func NewStatusStore(client *redis.Client, ttl time.Duration) *StatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusStore{client: client, ttl: ttl}
}

// Set overwrites the status of st.JobID and refreshes its expiry.
func (s *StatusStore) Set(ctx context.Context, st JobStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	key := statusKeyPrefix + st.JobID
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			"state":      string(st.State),
			"user_id":    st.UserID,
			"reel_id":    st.ReelID,
			"error":      st.Error,
			"updated_at": st.UpdatedAt.Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// Get returns the status of jobID, or nil when unknown or expired.
func (s *StatusStore) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	fields, err := s.client.HGetAll(ctx, statusKeyPrefix+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	st := &JobStatus{
		JobID:  jobID,
		State:  JobState(fields["state"]),
		UserID: fields["user_id"],
		ReelID: fields["reel_id"],
		Error:  fields["error"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		st.UpdatedAt = ts
	}
	return st, nil
}
