package checkins

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/pkg/response"
)

// RecordRequest is the body for POST /registrations/:id/check-ins.
type RecordRequest struct {
	Note string `json:"note"`
}

// ScanRequest is the body for POST /check-ins/scan.
type ScanRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// Handler handles check-in HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a check-ins handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func callerID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

// Record handles POST /registrations/:id/check-ins.
func (h *Handler) Record(c *gin.Context) {
	regID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req RecordRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	ci, err := h.svc.Record(c.Request.Context(), regID, callerID(c), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("check-in recorded",
		zap.String("registration_id", regID.String()),
		zap.String("method", string(ci.Method)))
	response.Created(c, ci)
}

// Scan handles POST /check-ins/scan (organizer only).
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ci, err := h.svc.RecordQR(c.Request.Context(), req.QRData, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("check-in recorded",
		zap.String("registration_id", ci.RegistrationID.String()),
		zap.String("method", string(ci.Method)))
	response.Created(c, ci)
}

// Card handles GET /registrations/:id/card.
func (h *Handler) Card(c *gin.Context) {
	regID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	card, err := h.svc.Card(c.Request.Context(), regID, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, card)
}

// CardQR handles GET /registrations/:id/card/qr and serves the QR code as a
// PNG image.
func (h *Handler) CardQR(c *gin.Context) {
	regID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	card, err := h.svc.Card(c.Request.Context(), regID, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	png, err := QRImage(card.QRData, 256)
	if err != nil {
		h.logger.Error("qr render failed", zap.Error(err))
		response.Internal(c, "failed to render QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// List handles GET /registrations/:id/check-ins.
func (h *Handler) List(c *gin.Context) {
	regID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	list, err := h.svc.List(c.Request.Context(), regID, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
