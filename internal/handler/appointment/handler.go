package appointment

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
	Add(ctx context.Context, patientID uuid.UUID, req *model.CreateAppointmentRequest) (*model.Appointment, error)
	Get(ctx context.Context, patientID, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Appointment, error)
	Update(ctx context.Context, patientID, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error)
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
	appointments := r.Group("/patients/:id/appointments", auth.Authenticate(), auth.RequirePatientAccess("id"))
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:appointmentId", h.GetAppointment)
		appointments.PUT("/:appointmentId", h.UpdateAppointment)
		appointments.DELETE("/:appointmentId", h.DeleteAppointment)
	}
}

func (h *Handler) invalidate() {
	if h.stats != nil {
		h.stats.Invalidate()
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appointment, err := h.service.Add(c.Request.Context(), patientID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	httputil.RespondWithCreated(c, appointment)
}

// ListAppointments returns the patient's appointments, earliest first.
func (h *Handler) ListAppointments(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var opts model.ListOptions
	if !handler.BindQuery(c, &opts) {
		return
	}

	appointments, err := h.service.List(c.Request.Context(), patientID, opts)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "appointmentId")
	if !ok {
		return
	}

	appointment, err := h.service.Get(c.Request.Context(), patientID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "appointmentId")
	if !ok {
		return
	}
	var req model.UpdateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appointment, err := h.service.Update(c.Request.Context(), patientID, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "appointmentId")
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
