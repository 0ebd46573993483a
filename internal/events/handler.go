package events

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/response"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title               string  `json:"title" binding:"required"`
	Description         string  `json:"description" binding:"required"`
	ShortDescription    string  `json:"short_description"`
	LocationAddress     string  `json:"location_address"`
	LocationURL         string  `json:"location_url"`
	StartsAt            string  `json:"starts_at" binding:"required"`
	EndsAt              string  `json:"ends_at" binding:"required"`
	Kind                string  `json:"kind"`
	Price               float64 `json:"price"`
	PixKey              string  `json:"pix_key"`
	PaymentInstructions string  `json:"payment_instructions"`
	RequiresApproval    bool    `json:"requires_approval"`
	RegistrationOpens   *string `json:"registration_opens"`
	RegistrationCloses  *string `json:"registration_closes"`
	MaxRegistrations    *int    `json:"max_registrations"`
	AllowedCheckIns     int     `json:"allowed_check_ins"`
	BannerURL           string  `json:"banner_url"`
	WorkloadHours       *int    `json:"workload_hours"`
}

// UpdateRequest is the body for PATCH /events/:id.
type UpdateRequest struct {
	Title               *string  `json:"title"`
	Description         *string  `json:"description"`
	ShortDescription    *string  `json:"short_description"`
	LocationAddress     *string  `json:"location_address"`
	LocationURL         *string  `json:"location_url"`
	StartsAt            *string  `json:"starts_at"`
	EndsAt              *string  `json:"ends_at"`
	Kind                *string  `json:"kind"`
	Price               *float64 `json:"price"`
	PixKey              *string  `json:"pix_key"`
	PaymentInstructions *string  `json:"payment_instructions"`
	RequiresApproval    *bool    `json:"requires_approval"`
	RegistrationOpens   *string  `json:"registration_opens"`
	RegistrationCloses  *string  `json:"registration_closes"`
	MaxRegistrations    *int     `json:"max_registrations"`
	AllowedCheckIns     *int     `json:"allowed_check_ins"`
	BannerURL           *string  `json:"banner_url"`
	WorkloadHours       *int     `json:"workload_hours"`
}

// StatusRequest is the body for PATCH /events/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /events (organizer only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	endsAt, err := parseTime(req.EndsAt)
	if err != nil {
		response.BadRequest(c, "invalid ends_at")
		return
	}
	regOpens, err := parseTimePtr(req.RegistrationOpens)
	if err != nil {
		response.BadRequest(c, "invalid registration_opens")
		return
	}
	regCloses, err := parseTimePtr(req.RegistrationCloses)
	if err != nil {
		response.BadRequest(c, "invalid registration_closes")
		return
	}

	e, err := h.svc.Create(c.Request.Context(), userID, CreateParams{
		Title:               req.Title,
		Description:         req.Description,
		ShortDescription:    req.ShortDescription,
		LocationAddress:     req.LocationAddress,
		LocationURL:         req.LocationURL,
		StartsAt:            startsAt,
		EndsAt:              endsAt,
		Kind:                models.EventKind(req.Kind),
		Price:               req.Price,
		PixKey:              req.PixKey,
		PaymentInstructions: req.PaymentInstructions,
		RequiresApproval:    req.RequiresApproval,
		RegistrationOpens:   regOpens,
		RegistrationCloses:  regCloses,
		MaxRegistrations:    req.MaxRegistrations,
		AllowedCheckIns:     req.AllowedCheckIns,
		BannerURL:           req.BannerURL,
		WorkloadHours:       req.WorkloadHours,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// List handles GET /events. Supports ?status= and ?organizer_id= filters;
// non-owners only see public statuses.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{PublicOnly: true}
	if s := c.Query("status"); s != "" {
		status := models.EventStatus(s)
		f.Status = &status
	}
	if o := c.Query("organizer_id"); o != "" {
		orgID, err := uuid.Parse(o)
		if err != nil {
			response.BadRequest(c, "invalid organizer_id")
			return
		}
		f.OrganizerID = &orgID
		// Owners see their own drafts.
		if v, ok := c.Get(middleware.ContextUserID); ok {
			if callerID, ok := v.(uuid.UUID); ok && callerID == orgID {
				f.PublicOnly = false
			}
		}
	}
	list, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /events/:id (owner only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	p := UpdateParams{
		Title:               req.Title,
		Description:         req.Description,
		ShortDescription:    req.ShortDescription,
		LocationAddress:     req.LocationAddress,
		LocationURL:         req.LocationURL,
		PixKey:              req.PixKey,
		PaymentInstructions: req.PaymentInstructions,
		RequiresApproval:    req.RequiresApproval,
		MaxRegistrations:    req.MaxRegistrations,
		AllowedCheckIns:     req.AllowedCheckIns,
		BannerURL:           req.BannerURL,
		WorkloadHours:       req.WorkloadHours,
		Price:               req.Price,
	}
	if req.Kind != nil {
		kind := models.EventKind(*req.Kind)
		p.Kind = &kind
	}
	if p.StartsAt, err = parseTimePtr(req.StartsAt); err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	if p.EndsAt, err = parseTimePtr(req.EndsAt); err != nil {
		response.BadRequest(c, "invalid ends_at")
		return
	}
	if p.RegistrationOpens, err = parseTimePtr(req.RegistrationOpens); err != nil {
		response.BadRequest(c, "invalid registration_opens")
		return
	}
	if p.RegistrationCloses, err = parseTimePtr(req.RegistrationCloses); err != nil {
		response.BadRequest(c, "invalid registration_closes")
		return
	}

	e, err := h.svc.Update(c.Request.Context(), id, userID, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// ChangeStatus handles PATCH /events/:id/status (owner only).
func (h *Handler) ChangeStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	e, err := h.svc.ChangeStatus(c.Request.Context(), id, userID, models.EventStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /events/:id (owner only, no active registrations).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.svc.Delete(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
