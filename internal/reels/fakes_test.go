package reels

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinecraft/pinereel/internal/models"
	"github.com/pinecraft/pinereel/internal/pipeline"
	"github.com/pinecraft/pinereel/pkg/queue"
)

type fakeGenerator struct {
	topics []string
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, topic string) (*pipeline.Result, error) {
	g.topics = append(g.topics, topic)
	if g.err != nil {
		return nil, g.err
	}
	return &pipeline.Result{
		Script: pipeline.Script{Topic: topic, Content: "script about " + topic},
		Voice:  pipeline.VoiceArtifact{URL: "http://localhost:8000/voice_outputs/v.mp3"},
		Video:  pipeline.VideoArtifact{URL: "https://cdn.example.com/reel.mp4"},
	}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	reels   map[uuid.UUID]*models.Reel
	created []*models.Reel
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{reels: map[uuid.UUID]*models.Reel{}}
}

func (s *fakeStore) Create(_ context.Context, reel *models.Reel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	reel.ID = uuid.New()
	reel.CreatedAt = time.Now()
	reel.UpdatedAt = reel.CreatedAt
	s.reels[reel.ID] = reel
	s.created = append(s.created, reel)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Reel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.reels[id], nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Reel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []models.Reel{}
	for i := len(s.created) - 1; i >= 0; i-- {
		if s.created[i].UserID == userID {
			list = append(list, *s.created[i])
		}
	}
	return list, nil
}

func (s *fakeStore) put(reel *models.Reel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reels[reel.ID] = reel
	s.created = append(s.created, reel)
}

type fakeArchive struct {
	payloads []queue.ReelArchivePayload
	err      error
}

func (a *fakeArchive) EnqueueReelArchive(_ context.Context, p queue.ReelArchivePayload) error {
	a.payloads = append(a.payloads, p)
	return a.err
}

type fakeJobs struct {
	ids      []string
	payloads []queue.ReelGeneratePayload
	err      error
	// onEnqueue runs before EnqueueReelGenerate returns, like a worker that picks the job up at once.
	onEnqueue func(jobID string, p queue.ReelGeneratePayload)
}

func (j *fakeJobs) EnqueueReelGenerate(_ context.Context, jobID string, p queue.ReelGeneratePayload) error {
	if j.err != nil {
		return j.err
	}
	j.ids = append(j.ids, jobID)
	j.payloads = append(j.payloads, p)
	if j.onEnqueue != nil {
		j.onEnqueue(jobID, p)
	}
	return nil
}

type fakeStatuses struct {
	m map[string]queue.JobStatus
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{m: map[string]queue.JobStatus{}}
}

func (s *fakeStatuses) Set(_ context.Context, st queue.JobStatus) error {
	s.m[st.JobID] = st
	return nil
}

func (s *fakeStatuses) Get(_ context.Context, id string) (*queue.JobStatus, error) {
	st, ok := s.m[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

type fakePresigner struct{}

func (fakePresigner) ReelsBucket() string          { return "reels-bucket" }
func (fakePresigner) PresignExpire() time.Duration { return 10 * time.Minute }
func (fakePresigner) GeneratePresignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".s3.amazonaws.com/" + key + "?X-Amz-Signature=abc", nil
}
