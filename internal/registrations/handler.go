package registrations

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/response"
)

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func callerID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

// Create handles POST /events/:id/registrations.
func (h *Handler) Create(c *gin.Context) {
	eventID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	reg, err := h.svc.Create(c.Request.Context(), eventID, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("status", string(reg.Status)))
	response.Created(c, reg)
}

// Get handles GET /registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	regID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), regID, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

type transitionFunc func(ctx context.Context, regID, callerID uuid.UUID) (*models.Registration, error)

func (h *Handler) transition(c *gin.Context, action string, fn transitionFunc) {
	regID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	reg, err := fn(c.Request.Context(), regID, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("registration "+action,
		zap.String("registration_id", regID.String()),
		zap.String("status", string(reg.Status)))
	response.OK(c, reg)
}

// Approve handles POST /registrations/:id/approve (organizer only).
func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, "approved", h.svc.Approve)
}

// Reject handles POST /registrations/:id/reject (organizer only).
func (h *Handler) Reject(c *gin.Context) {
	h.transition(c, "rejected", h.svc.Reject)
}

// ConfirmPayment handles POST /registrations/:id/confirm-payment (organizer only).
func (h *Handler) ConfirmPayment(c *gin.Context) {
	h.transition(c, "payment confirmed", h.svc.ConfirmPayment)
}

// Cancel handles POST /registrations/:id/cancel (participant or organizer).
func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, "cancelled", h.svc.Cancel)
}

// ListByEvent handles GET /events/:id/registrations (organizer only).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListByEvent(c.Request.Context(), eventID, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /registrations.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListByUser(c.Request.Context(), callerID(c))
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, list)
}
