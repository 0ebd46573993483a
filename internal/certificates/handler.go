package certificates

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/pkg/response"
)

// Handler handles certificate HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a certificates handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Issue handles POST /events/:id/certificate.
func (h *Handler) Issue(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	cert, err := h.svc.Issue(c.Request.Context(), eventID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID.String()),
		zap.String("event_id", eventID.String()))
	response.OK(c, cert)
}

// Download handles GET /certificates/:id/download.
func (h *Handler) Download(c *gin.Context) {
	certID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid certificate id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	url, err := h.svc.DownloadURL(c.Request.Context(), certID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"download_url": url})
}

// Validate handles GET /certificates/validate/:code. Public.
func (h *Handler) Validate(c *gin.Context) {
	v, err := h.svc.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// ListMine handles GET /certificates.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.ListMine(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list certificates failed", zap.Error(err))
		response.Internal(c, "failed to list certificates")
		return
	}
	response.OK(c, list)
}
