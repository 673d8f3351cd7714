package reels

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinecraft/pinereel/internal/models"
	"github.com/pinecraft/pinereel/internal/pipeline"
)

func TestService_CreatePersistsCompletedReel(t *testing.T) {
	gen := &fakeGenerator{}
	store := newFakeStore()
	archive := &fakeArchive{}
	svc := NewService(gen, store, archive, nil)

	userID := uuid.New()
	reel, result, err := svc.Create(context.Background(), userID, "Photosynthesis")
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, store.created, 1)
	assert.Same(t, reel, store.created[0])
	assert.NotEqual(t, uuid.Nil, reel.ID)
	assert.Equal(t, userID, reel.UserID)
	assert.Equal(t, "Photosynthesis", reel.Topic)
	assert.Equal(t, models.ReelStatusCompleted, reel.Status)
	assert.Equal(t, 30, reel.Duration)
	assert.Equal(t, result.Script.Content, reel.Script.Content)
	assert.Equal(t, result.Voice.URL, reel.VoiceoverURL)
	assert.Equal(t, result.Video.URL, reel.VideoURL)

	require.Len(t, archive.payloads, 1)
	assert.Equal(t, reel.ID, archive.payloads[0].ReelID)
	assert.Equal(t, reel.VideoURL, archive.payloads[0].VideoURL)
}

func TestService_FailedPipelinePersistsNothing(t *testing.T) {
	stageErr := &pipeline.VideoError{Cause: errors.New("render")}
	store := newFakeStore()
	archive := &fakeArchive{}
	svc := NewService(&fakeGenerator{err: stageErr}, store, archive, nil)

	reel, result, err := svc.Create(context.Background(), uuid.New(), "x")
	assert.Same(t, stageErr, err)
	assert.Nil(t, reel)
	assert.Nil(t, result)
	assert.Empty(t, store.created)
	assert.Empty(t, archive.payloads)
}

func TestService_SaveFailure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	svc := NewService(&fakeGenerator{}, store, nil, nil)

	_, _, err := svc.Create(context.Background(), uuid.New(), "x")
	var saveErr *SaveError
	require.True(t, errors.As(err, &saveErr))
	assert.Empty(t, pipeline.Stage(err))
}

func TestService_ArchiveEnqueueFailureIsNotFatal(t *testing.T) {
	svc := NewService(&fakeGenerator{}, newFakeStore(), &fakeArchive{err: errors.New("redis down")}, nil)

	reel, _, err := svc.Create(context.Background(), uuid.New(), "x")
	require.NoError(t, err)
	assert.NotNil(t, reel)
}

func TestService_NilArchive(t *testing.T) {
	svc := NewService(&fakeGenerator{}, newFakeStore(), nil, nil)
	_, _, err := svc.Create(context.Background(), uuid.New(), "x")
	require.NoError(t, err)
}
