// Package realtime streams asynchronous job status changes to WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pinecraft/pinereel/internal/middleware"
	"github.com/pinecraft/pinereel/pkg/queue"
	"github.com/pinecraft/pinereel/pkg/response"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	// EventJobStatus is the event name of every message sent to clients.
	EventJobStatus = "job_status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware governs browser origins
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusReader reads the current status of a job.
type StatusReader interface {
	Get(ctx context.Context, jobID string) (*queue.JobStatus, error)
}

// Subscriber delivers status changes of one job.
type Subscriber interface {
	Subscribe(jobID string, handler func(queue.JobStatus)) (cancel func(), err error)
}

// ServeJobStatus handles GET /jobs/:id/ws: it sends the current status, then every change,
// and closes the connection once the job completes or fails. Authenticated callers only see
// their own jobs.
func ServeJobStatus(statuses StatusReader, events Subscriber, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		jobID := c.Param("id")

		// Subscribe before reading so no change between the two is lost.
		updates := make(chan queue.JobStatus, 8)
		done := make(chan struct{})
		defer close(done)
		cancel, err := events.Subscribe(jobID, func(st queue.JobStatus) {
			select {
			case updates <- st:
			case <-done:
			}
		})
		if err != nil {
			logger.Error("subscribe job events failed", zap.String("job_id", jobID), zap.Error(err))
			response.Internal(c, "failed to watch job")
			return
		}
		defer cancel()

		current, err := statuses.Get(c.Request.Context(), jobID)
		if err != nil {
			logger.Error("get job status failed", zap.String("job_id", jobID), zap.Error(err))
			response.Internal(c, "failed to get job status")
			return
		}
		if current == nil {
			response.NotFound(c, "job not found")
			return
		}
		if authUser, ok := middleware.UserID(c); ok && !current.VisibleTo(authUser.String()) {
			response.NotFound(c, "job not found")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		s := &statusStream{jobID: jobID, conn: conn, logger: logger}
		defer conn.Close()

		closed := make(chan struct{})
		go s.readPump(closed)
		s.writePump(*current, updates, closed)
	}
}

type statusStream struct {
	jobID  string
	conn   *websocket.Conn
	logger *zap.Logger
}

// readPump discards client messages and reports when the connection goes away.
func (s *statusStream) readPump(closed chan<- struct{}) {
	defer close(closed)
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(PongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *statusStream) writePump(current queue.JobStatus, updates <-chan queue.JobStatus, closed <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	last := current.State
	if !s.send(current) || last.Terminal() {
		s.finish()
		return
	}
	for {
		select {
		case st := <-updates:
			if st.State == last && !st.State.Terminal() {
				continue
			}
			last = st.State
			if !s.send(st) || st.State.Terminal() {
				s.finish()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *statusStream) send(st queue.JobStatus) bool {
	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Error("marshal job status failed", zap.String("job_id", s.jobID), zap.Error(err))
		return false
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(WSMessage{Event: EventJobStatus, Data: data}); err != nil {
		s.logger.Debug("write job status failed", zap.String("job_id", s.jobID), zap.Error(err))
		return false
	}
	return true
}

func (s *statusStream) finish() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
