package ratings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/pkg/response"
)

// RateRequest is the body for POST /events/:id/ratings.
type RateRequest struct {
	Score   int    `json:"score" binding:"required"`
	Comment string `json:"comment"`
}

// Handler handles rating HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a ratings handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Rate handles POST /events/:id/ratings.
func (h *Handler) Rate(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	result, err := h.svc.Rate(c.Request.Context(), eventID, userID, req.Score, req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("event rated",
		zap.String("event_id", eventID.String()),
		zap.Int("score", req.Score),
		zap.Float64("average", result.EventAverage))
	response.Created(c, result)
}

// ListByEvent handles GET /events/:id/ratings. Public.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.svc.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
