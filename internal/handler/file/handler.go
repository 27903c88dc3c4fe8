package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/blobstore"
	"github.com/jwalitptl/health-records/internal/handler"
	"github.com/jwalitptl/health-records/internal/middleware"
	"github.com/jwalitptl/health-records/internal/model"
	filesvc "github.com/jwalitptl/health-records/internal/service/file"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/httputil"
)

// FormField carries the uploaded files of a multipart request.
const FormField = "files"

type Service interface {
	Upload(ctx context.Context, patientID uuid.UUID, folder string, uploads []filesvc.Upload) ([]*model.StoredFile, error)
	List(ctx context.Context, patientID uuid.UUID, folder string) ([]*model.StoredFile, error)
	Delete(ctx context.Context, patientID uuid.UUID, folder, name string) error
	Open(ctx context.Context, token string) (io.ReadCloser, *model.StoredFile, error)
}

type Handler struct {
	service Service
	// maxRequestBytes bounds a whole multipart request.
	maxRequestBytes int64
}

func NewHandler(service Service, maxRequestBytes int64) *Handler {
	return &Handler{service: service, maxRequestBytes: maxRequestBytes}
}

// UploadRoute is exempt from the generic body size limit.
const UploadRoute = "/api/v1/patients/:id/files"

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	files := r.Group("/patients/:id/files", auth.Authenticate(), auth.RequirePatientAccess("id"))
	{
		files.POST("", h.Upload)
		files.GET("", h.List)
		files.DELETE("/:folder/:name", h.Delete)
	}

	// The signed token authorises the download on its own.
	r.GET("/files/download", h.Download)
}

func (h *Handler) Upload(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	if h.maxRequestBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.RespondWithMessage(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", h.maxRequestBytes))
			return
		}
		httputil.RespondWithError(c, apperrors.BadRequest("multipart form expected", err))
		return
	}
	defer form.RemoveAll()

	headers := form.File[FormField]
	uploads := make([]filesvc.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("unreadable file "+fh.Filename, err))
			return
		}
		defer f.Close()
		uploads = append(uploads, filesvc.Upload{
			Name:        fh.Filename,
			ContentType: contentType(fh),
			Body:        f,
		})
	}

	stored, err := h.service.Upload(c.Request.Context(), patientID, c.PostForm("folder"), uploads)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, stored)
}

func (h *Handler) List(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	files, err := h.service.List(c.Request.Context(), patientID, c.Query("folder"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, files)
}

func (h *Handler) Delete(c *gin.Context) {
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), patientID, c.Param("folder"), c.Param("name")); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Download streams the blob named by a signed token.
func (h *Handler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		httputil.RespondWithError(c, apperrors.BadRequest("token is required", nil))
		return
	}

	rc, f, err := h.service.Open(c.Request.Context(), token)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	defer rc.Close()

	name := f.Name
	if k, err := blobstore.ParseKey(f.Key); err == nil && k.Original != "" {
		name = k.Original
	}
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, f.Size, ct, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return ""
}
