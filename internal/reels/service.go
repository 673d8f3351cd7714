// Package reels runs reel generation for users and persists the results.
package reels

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinecraft/pinereel/internal/models"
	"github.com/pinecraft/pinereel/internal/pipeline"
	"github.com/pinecraft/pinereel/pkg/queue"
)

// Generator produces the artifacts of one reel.
type Generator interface {
	Generate(ctx context.Context, topic string) (*pipeline.Result, error)
}

// Store persists and reads reels.
type Store interface {
	Create(ctx context.Context, reel *models.Reel) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reel, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reel, error)
}

// ArchiveEnqueuer schedules copying a finished video into object storage.
type ArchiveEnqueuer interface {
	EnqueueReelArchive(ctx context.Context, payload queue.ReelArchivePayload) error
}

// Service generates a reel and records it once every stage has succeeded.
type Service struct {
	generator Generator
	store     Store
	archive   ArchiveEnqueuer
	logger    *zap.Logger
}

// NewService creates a reel service. archive may be nil when archiving is disabled.
func NewService(generator Generator, store Store, archive ArchiveEnqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{generator: generator, store: store, archive: archive, logger: logger}
}

// SaveError means the reel was generated but could not be recorded.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return "save reel: " + e.Err.Error() }

func (e *SaveError) Unwrap() error { return e.Err }

// Create runs the pipeline for topic and persists the resulting reel for userID.
// Pipeline errors are returned unchanged; nothing is persisted for a failed run.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, topic string) (*models.Reel, *pipeline.Result, error) {
	s.logger.Info("generating reel", zap.String("user_id", userID.String()), zap.String("topic", topic))

	result, err := s.generator.Generate(ctx, topic)
	if err != nil {
		s.logger.Warn("reel generation failed", zap.String("user_id", userID.String()), zap.String("stage", pipeline.Stage(err)), zap.Error(err))
		return nil, nil, err
	}

	reel := NewRecord(userID, topic, result)
	if err := s.store.Create(ctx, reel); err != nil {
		s.logger.Error("save reel failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, nil, &SaveError{Err: err}
	}

	if s.archive != nil {
		err := s.archive.EnqueueReelArchive(ctx, queue.ReelArchivePayload{
			ReelID:   reel.ID,
			UserID:   reel.UserID,
			VideoURL: reel.VideoURL,
		})
		if err != nil {
			s.logger.Warn("enqueue reel archive failed", zap.String("reel_id", reel.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("reel generated", zap.String("reel_id", reel.ID.String()), zap.String("video_url", reel.VideoURL))
	return reel, result, nil
}

// Get returns one reel, or nil when absent.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Reel, error) {
	reel, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reel: %w", err)
	}
	return reel, nil
}

// List returns a user's reels, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Reel, error) {
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reels: %w", err)
	}
	return list, nil
}

// NewRecord builds the completed reel row for a successful pipeline result.
func NewRecord(userID uuid.UUID, topic string, result *pipeline.Result) *models.Reel {
	return &models.Reel{
		UserID: userID,
		Topic:  topic,
		Script: models.ReelScript{
			Topic:   result.Script.Topic,
			Content: result.Script.Content,
		},
		VoiceoverURL: result.Voice.URL,
		VideoURL:     result.Video.URL,
		Duration:     models.DefaultReelDuration,
		Status:       models.ReelStatusCompleted,
	}
}
