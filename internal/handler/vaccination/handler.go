package vaccination

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/handler"
	"github.com/jwalitptl/health-records/internal/middleware"
	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/pkg/httputil"
)

type Service interface {
	Add(ctx context.Context, patientID uuid.UUID, req *model.CreateVaccinationRequest) (*model.Vaccination, error)
	Get(ctx context.Context, patientID, id uuid.UUID) (*model.Vaccination, error)
	List(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Vaccination, error)
	Update(ctx context.Context, patientID, id uuid.UUID, req *model.UpdateVaccinationRequest) (*model.Vaccination, error)
	Delete(ctx context.Context, patientID, id uuid.UUID) error
}

// Invalidator drops cached aggregates after writes.
type Invalidator interface {
	Invalidate()
}

type Handler struct {
	service Service
	stats   Invalidator
}

func NewHandler(service Service, stats Invalidator) *Handler {
	return &Handler{service: service, stats: stats}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	vaccinations := r.Group("/patients/:id/vaccinations", auth.Authenticate(), auth.RequirePatientAccess("id"))
	{
		vaccinations.POST("", h.CreateVaccination)
		vaccinations.GET("", h.ListVaccinations)
		vaccinations.GET("/:vaccinationId", h.GetVaccination)
		vaccinations.PUT("/:vaccinationId", h.UpdateVaccination)
		vaccinations.DELETE("/:vaccinationId", h.DeleteVaccination)
	}
}

func (h *Handler) invalidate() {
	if h.stats != nil {
		h.stats.Invalidate()
	}
}

func (h *Handler) CreateVaccination(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.CreateVaccinationRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	vaccination, err := h.service.Add(c.Request.Context(), patientID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	httputil.RespondWithCreated(c, vaccination)
}

// ListVaccinations returns the patient's vaccinations, most recent dose first.
func (h *Handler) ListVaccinations(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var opts model.ListOptions
	if !handler.BindQuery(c, &opts) {
		return
	}

	vaccinations, err := h.service.List(c.Request.Context(), patientID, opts)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, vaccinations)
}

func (h *Handler) GetVaccination(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "vaccinationId")
	if !ok {
		return
	}

	vaccination, err := h.service.Get(c.Request.Context(), patientID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, vaccination)
}

func (h *Handler) UpdateVaccination(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "vaccinationId")
	if !ok {
		return
	}
	var req model.UpdateVaccinationRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	vaccination, err := h.service.Update(c.Request.Context(), patientID, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	httputil.RespondWithSuccess(c, vaccination)
}

func (h *Handler) DeleteVaccination(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "vaccinationId")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), patientID, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	c.Status(http.StatusNoContent)
}
