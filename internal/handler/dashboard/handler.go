package dashboard

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/health-records/internal/middleware"
	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/reminder"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/httputil"
)

type Service interface {
	Stats(ctx context.Context) (model.DoctorStats, error)
	Vaccinations(ctx context.Context, horizonDays *int) ([]model.UpcomingVaccination, error)
	Appointments(ctx context.Context) ([]model.UpcomingAppointment, error)
}

// Partial describes a scan cut short by a timeout. The accompanying data
// covers only the patients that were read.
type Partial struct {
	Scanned int `json:"scanned"`
	Total   int `json:"total"`
}

type StatsResponse struct {
	model.DoctorStats
	Partial *Partial `json:"partial,omitempty"`
}

type ListResponse struct {
	Items   interface{} `json:"items"`
	Count   int         `json:"count"`
	Partial *Partial    `json:"partial,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	dashboard := r.Group("/dashboard", auth.Authenticate(), auth.RequireRole(model.RoleDoctor, model.RoleAdmin))
	{
		dashboard.GET("/stats", h.Stats)
		dashboard.GET("/vaccinations", h.Vaccinations)
		dashboard.GET("/appointments", h.Appointments)
	}
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	partial, err := classify(err)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, StatsResponse{DoctorStats: stats, Partial: partial})
}

// Vaccinations lists upcoming doses. ?days overrides the configured horizon.
func (h *Handler) Vaccinations(c *gin.Context) {
	var horizon *int
	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("days must be an integer", err))
			return
		}
		horizon = &days
	}

	items, err := h.service.Vaccinations(c.Request.Context(), horizon)
	partial, err := classify(err)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if items == nil {
		items = []model.UpcomingVaccination{}
	}
	httputil.RespondWithSuccess(c, ListResponse{Items: items, Count: len(items), Partial: partial})
}

func (h *Handler) Appointments(c *gin.Context) {
	items, err := h.service.Appointments(c.Request.Context())
	partial, err := classify(err)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if items == nil {
		items = []model.UpcomingAppointment{}
	}
	httputil.RespondWithSuccess(c, ListResponse{Items: items, Count: len(items), Partial: partial})
}

// classify separates a partial scan, which still answers 200, from a failure.
func classify(err error) (*Partial, error) {
	if err == nil {
		return nil, nil
	}
	if p, ok := reminder.AsPartial(err); ok {
		return &Partial{Scanned: p.Scanned, Total: p.Total}, nil
	}
	if _, ok := apperrors.As(err); ok {
		return nil, err
	}
	return nil, apperrors.Unavailable("aggregation failed", err)
}
