package reels

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinecraft/pinereel/internal/middleware"
	"github.com/pinecraft/pinereel/internal/models"
	"github.com/pinecraft/pinereel/internal/pipeline"
	"github.com/pinecraft/pinereel/pkg/queue"
	"github.com/pinecraft/pinereel/pkg/response"
)

// GenerateRequest is the body for POST /generate-reel and POST /generate-reel/async.
type GenerateRequest struct {
	Topic  string `json:"topic"`
	UserID string `json:"userId"`
}

// GenerateResponse is returned by a successful synchronous generation.
type GenerateResponse struct {
	Message string                 `json:"message"`
	Reel    *models.Reel           `json:"reel"`
	Script  pipeline.Script        `json:"script"`
	Voice   pipeline.VoiceArtifact `json:"voice"`
	Video   pipeline.VideoArtifact `json:"video"`
}

// DownloadURLResponse carries a pre-signed link to an archived reel.
type DownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JobQueue enqueues asynchronous generation jobs.
type JobQueue interface {
	EnqueueReelGenerate(ctx context.Context, jobID string, payload queue.ReelGeneratePayload) error
}

// JobStatuses stores and reads asynchronous job statuses.
type JobStatuses interface {
	Set(ctx context.Context, st queue.JobStatus) error
	Get(ctx context.Context, jobID string) (*queue.JobStatus, error)
}

// Presigner signs download URLs for archived reels.
type Presigner interface {
	ReelsBucket() string
	PresignExpire() time.Duration
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// Handler handles reel HTTP endpoints.
type Handler struct {
	service   *Service
	jobs      JobQueue
	statuses  JobStatuses
	presigner Presigner
	logger    *zap.Logger
}

// NewHandler creates a reels handler. presigner may be nil when S3 is not configured.
func NewHandler(service *Service, jobs JobQueue, statuses JobStatuses, presigner Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, jobs: jobs, statuses: statuses, presigner: presigner, logger: logger}
}

// Generate handles POST /generate-reel.
func (h *Handler) Generate(c *gin.Context) {
	topic, userID, ok := h.bindGenerate(c)
	if !ok {
		return
	}

	reel, result, err := h.service.Create(c.Request.Context(), userID, topic)
	if err != nil {
		var saveErr *SaveError
		if errors.As(err, &saveErr) {
			response.Internal(c, "failed to save reel")
			return
		}
		response.Internal(c, err.Error())
		return
	}

	response.OK(c, GenerateResponse{
		Message: "Reel generated successfully!",
		Reel:    reel,
		Script:  result.Script,
		Voice:   result.Voice,
		Video:   result.Video,
	})
}

// GenerateAsync handles POST /generate-reel/async.
func (h *Handler) GenerateAsync(c *gin.Context) {
	topic, userID, ok := h.bindGenerate(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// queued is recorded before the push; a worker may finish the job before RPush returns.
	jobID := uuid.NewString()
	st := queue.JobStatus{JobID: jobID, UserID: userID.String(), State: queue.JobQueued}
	if err := h.statuses.Set(ctx, st); err != nil {
		h.logger.Error("record queued status failed", zap.String("job_id", jobID), zap.Error(err))
		response.Internal(c, "failed to enqueue reel")
		return
	}
	if err := h.jobs.EnqueueReelGenerate(ctx, jobID, queue.ReelGeneratePayload{UserID: userID, Topic: topic}); err != nil {
		h.logger.Error("enqueue reel generate failed", zap.String("job_id", jobID), zap.Error(err))
		failed := queue.JobStatus{JobID: jobID, UserID: st.UserID, State: queue.JobFailed, Error: "failed to enqueue reel"}
		if err := h.statuses.Set(context.WithoutCancel(ctx), failed); err != nil {
			h.logger.Warn("record enqueue failure failed", zap.String("job_id", jobID), zap.Error(err))
		}
		response.Internal(c, "failed to enqueue reel")
		return
	}
	response.Accepted(c, st)
}

// JobStatus handles GET /jobs/:id.
func (h *Handler) JobStatus(c *gin.Context) {
	st, err := h.statuses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("get job status failed", zap.Error(err))
		response.Internal(c, "failed to get job status")
		return
	}
	if st == nil {
		response.NotFound(c, "job not found")
		return
	}
	if authUser, ok := middleware.UserID(c); ok && !st.VisibleTo(authUser.String()) {
		response.NotFound(c, "job not found")
		return
	}
	response.OK(c, st)
}

// List handles GET /reels?userId=.
func (h *Handler) List(c *gin.Context) {
	userID, ok := h.resolveUser(c, c.Query("userId"))
	if !ok {
		return
	}
	list, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list reels failed", zap.Error(err))
		response.Internal(c, "failed to list reels")
		return
	}
	response.OK(c, list)
}

// Get handles GET /reels/:id.
func (h *Handler) Get(c *gin.Context) {
	reel, ok := h.loadReel(c)
	if !ok {
		return
	}
	response.OK(c, reel)
}

// DownloadURL handles GET /reels/:id/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.presigner == nil {
		response.ServiceUnavailable(c, "reel archive is not configured")
		return
	}
	reel, ok := h.loadReel(c)
	if !ok {
		return
	}
	if !reel.Archived() {
		response.NotFound(c, "reel is not archived yet")
		return
	}

	expires := h.presigner.PresignExpire()
	url, err := h.presigner.GeneratePresignedDownloadURL(c.Request.Context(), h.presigner.ReelsBucket(), reel.S3Key, expires)
	if err != nil {
		h.logger.Error("presign reel download failed", zap.String("reel_id", reel.ID.String()), zap.Error(err))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, DownloadURLResponse{URL: url, ExpiresAt: time.Now().Add(expires).UTC()})
}

func (h *Handler) bindGenerate(c *gin.Context) (string, uuid.UUID, bool) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return "", uuid.Nil, false
	}
	_, authenticated := middleware.UserID(c)
	if strings.TrimSpace(req.Topic) == "" || (req.UserID == "" && !authenticated) {
		response.BadRequest(c, "Missing topic or userId")
		return "", uuid.Nil, false
	}
	userID, ok := h.resolveUser(c, req.UserID)
	if !ok {
		return "", uuid.Nil, false
	}
	return req.Topic, userID, true
}

// resolveUser reconciles a client-supplied user ID with the authenticated user, if any.
func (h *Handler) resolveUser(c *gin.Context, raw string) (uuid.UUID, bool) {
	authUser, authenticated := middleware.UserID(c)
	if raw == "" {
		if authenticated {
			return authUser, true
		}
		response.BadRequest(c, "Missing userId")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(c, "invalid userId")
		return uuid.Nil, false
	}
	if authenticated && userID != authUser {
		response.Forbidden(c, "userId does not match the authenticated user")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) loadReel(c *gin.Context) (*models.Reel, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reel id")
		return nil, false
	}
	reel, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get reel failed", zap.String("reel_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to get reel")
		return nil, false
	}
	if reel == nil {
		response.NotFound(c, "reel not found")
		return nil, false
	}
	if authUser, ok := middleware.UserID(c); ok && authUser != reel.UserID {
		response.NotFound(c, "reel not found")
		return nil, false
	}
	return reel, true
}
