package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/handler"
	"github.com/jwalitptl/health-records/internal/middleware"
	"github.com/jwalitptl/health-records/internal/model"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/httputil"
)

type Service interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.TokenResponse, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error)
	Me(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type Handler struct {
	service          Service
	allowStaffSignup bool
}

func NewHandler(service Service, allowStaffSignup bool) *Handler {
	return &Handler{service: service, allowStaffSignup: allowStaffSignup}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	group := r.Group("/auth")
	{
		group.POST("/register", h.Register)
		group.POST("/login", h.Login)
		group.GET("/me", auth.Authenticate(), h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	if req.Role != "" && req.Role != model.RolePatient && !h.allowStaffSignup {
		httputil.RespondWithError(c, apperrors.Forbidden(errors.New("staff accounts cannot self-register")))
		return
	}

	resp, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	resp, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) Me(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		httputil.RespondWithMessage(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user)
}
