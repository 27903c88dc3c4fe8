package patient

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

const defaultPageSize = 20

type Service interface {
	Save(ctx context.Context, id uuid.UUID, req *model.PatientRequest) (*model.Patient, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type RecordService interface {
	Add(ctx context.Context, patientID uuid.UUID, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error)
	Get(ctx context.Context, patientID, id uuid.UUID) (*model.MedicalRecord, error)
	List(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.MedicalRecord, error)
	Update(ctx context.Context, patientID, id uuid.UUID, req *model.UpdateMedicalRecordRequest) (*model.MedicalRecord, error)
	Delete(ctx context.Context, patientID, id uuid.UUID) error
}

// Invalidator drops cached aggregates after writes.
type Invalidator interface {
	Invalidate()
}

type Handler struct {
	patients Service
	records  RecordService
	stats    Invalidator
}

// NewHandler builds the patient handler. stats may be nil.
func NewHandler(patients Service, records RecordService, stats Invalidator) *Handler {
	return &Handler{patients: patients, records: records, stats: stats}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	patients := r.Group("/patients", auth.Authenticate())
	{
		patients.GET("", auth.RequireRole(model.RoleDoctor, model.RoleAdmin), h.ListPatients)

		own := patients.Group("/:id", auth.RequirePatientAccess("id"))
		own.GET("", h.GetPatient)
		own.PUT("", h.SavePatient)
		own.DELETE("", h.DeletePatient)

		own.POST("/records", h.AddMedicalRecord)
		own.GET("/records", h.ListMedicalRecords)
		own.GET("/records/:recordId", h.GetMedicalRecord)
		own.PUT("/records/:recordId", h.UpdateMedicalRecord)
		own.DELETE("/records/:recordId", h.DeleteMedicalRecord)
	}
}

func (h *Handler) invalidate() {
	if h.stats != nil {
		h.stats.Invalidate()
	}
}

// SavePatient creates the profile on first write and merges afterwards.
func (h *Handler) SavePatient(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.PatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, created, err := h.patients.Save(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if created {
		h.invalidate()
		httputil.RespondWithCreated(c, patient)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	patient, err := h.patients.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) ListPatients(c *gin.Context) {
	var filter model.PatientFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	patients, err := h.patients.List(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.Page == 0 && filter.PageSize == 0 {
		httputil.RespondWithSuccess(c, patients)
		return
	}

	page, size := filter.Page, filter.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = defaultPageSize
	}
	start := min((page-1)*size, len(patients))
	end := min(start+size, len(patients))
	httputil.RespondWithPagination(c, patients[start:end], page, size, len(patients))
}

func (h *Handler) DeletePatient(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.patients.Delete(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddMedicalRecord(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.CreateMedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	record, err := h.records.Add(c.Request.Context(), patientID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	httputil.RespondWithCreated(c, record)
}

func (h *Handler) ListMedicalRecords(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var opts model.ListOptions
	if !handler.BindQuery(c, &opts) {
		return
	}

	records, err := h.records.List(c.Request.Context(), patientID, opts)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, records)
}

func (h *Handler) GetMedicalRecord(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "recordId")
	if !ok {
		return
	}

	record, err := h.records.Get(c.Request.Context(), patientID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, record)
}

func (h *Handler) UpdateMedicalRecord(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "recordId")
	if !ok {
		return
	}
	var req model.UpdateMedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	record, err := h.records.Update(c.Request.Context(), patientID, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	httputil.RespondWithSuccess(c, record)
}

func (h *Handler) DeleteMedicalRecord(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "recordId")
	if !ok {
		return
	}

	if err := h.records.Delete(c.Request.Context(), patientID, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.invalidate()
	c.Status(http.StatusNoContent)
}
