package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinecraft/pinereel/internal/middleware"
	"github.com/pinecraft/pinereel/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newStatuses(t *testing.T) (*PublishingStatuses, *JobEvents) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	events := NewJobEvents(client, nil)
	return NewPublishingStatuses(queue.NewStatusStore(client, time.Hour), events, nil), events
}

func TestJobEvents_PublishSubscribe(t *testing.T) {
	statuses, events := newStatuses(t)

	got := make(chan queue.JobStatus, 4)
	cancel, err := events.Subscribe("job-1", func(st queue.JobStatus) { got <- st })
	require.NoError(t, err)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, statuses.Set(ctx, queue.JobStatus{JobID: "job-2", State: queue.JobRunning}))
	require.NoError(t, statuses.Set(ctx, queue.JobStatus{JobID: "job-1", State: queue.JobRunning}))

	select {
	case st := <-got:
		assert.Equal(t, "job-1", st.JobID)
		assert.Equal(t, queue.JobRunning, st.State)
		assert.False(t, st.UpdatedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	stored, err := statuses.Get(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, queue.JobRunning, stored.State)
}

func newServer(t *testing.T, statuses StatusReader, events Subscriber) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/jobs/:id/ws", ServeJobStatus(statuses, events, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, jobID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/" + jobID + "/ws"
}

func readStatus(t *testing.T, conn *websocket.Conn) queue.JobStatus {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventJobStatus, msg.Event)
	var st queue.JobStatus
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	return st
}

func TestServeJobStatus_StreamsUntilTerminal(t *testing.T) {
	statuses, events := newStatuses(t)
	ctx := context.Background()
	require.NoError(t, statuses.Set(ctx, queue.JobStatus{JobID: "job-1", State: queue.JobQueued}))

	srv := newServer(t, statuses, events)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "job-1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, queue.JobQueued, readStatus(t, conn).State)

	require.NoError(t, statuses.Set(ctx, queue.JobStatus{JobID: "job-1", State: queue.JobRunning}))
	assert.Equal(t, queue.JobRunning, readStatus(t, conn).State)

	require.NoError(t, statuses.Set(ctx, queue.JobStatus{JobID: "job-1", State: queue.JobCompleted, ReelID: "reel-9"}))
	st := readStatus(t, conn)
	assert.Equal(t, queue.JobCompleted, st.State)
	assert.Equal(t, "reel-9", st.ReelID)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServeJobStatus_AlreadyFinished(t *testing.T) {
	statuses, events := newStatuses(t)
	require.NoError(t, statuses.Set(context.Background(), queue.JobStatus{JobID: "job-1", State: queue.JobFailed, Error: "video generation failed"}))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(newServer(t, statuses, events), "job-1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	st := readStatus(t, conn)
	assert.Equal(t, queue.JobFailed, st.State)
	assert.Equal(t, "video generation failed", st.Error)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServeJobStatus_UnknownJob(t *testing.T) {
	statuses, events := newStatuses(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(newServer(t, statuses, events), "missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(string, func(queue.JobStatus)) (func(), error) {
	return nil, errors.New("redis down")
}

func TestServeJobStatus_SubscribeFailure(t *testing.T) {
	statuses, _ := newStatuses(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(newServer(t, statuses, failingSubscriber{}), "job-1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServeJobStatus_OtherUsersJobIsHidden(t *testing.T) {
	statuses, events := newStatuses(t)
	owner, other := uuid.New(), uuid.New()
	require.NoError(t, statuses.Set(context.Background(), queue.JobStatus{JobID: "job-1", UserID: owner.String(), State: queue.JobCompleted, ReelID: "reel-9"}))

	serve := func(user uuid.UUID) *httptest.Server {
		r := gin.New()
		r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, user) })
		r.GET("/jobs/:id/ws", ServeJobStatus(statuses, events, nil))
		srv := httptest.NewServer(r)
		t.Cleanup(srv.Close)
		return srv
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(serve(other), "job-1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(serve(owner), "job-1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "reel-9", readStatus(t, conn).ReelID)
}
