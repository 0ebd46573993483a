package emaillogs

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByEvent handles GET /events/:id/emails (organizer only).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	organizerID, err := h.repo.GetEventOrganizer(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	if organizerID == uuid.Nil {
		response.NotFound(c, "event not found")
		return
	}
	if organizerID != userID {
		response.Forbidden(c, "only the event organizer can view email logs")
		return
	}

	logs, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
