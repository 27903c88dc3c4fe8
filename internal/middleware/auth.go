package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/httputil"
)

const ContextClaims = "claims"

// TokenAuthenticator validates bearer tokens.
type TokenAuthenticator interface {
	Authenticate(token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	auth TokenAuthenticator
}

func NewAuthMiddleware(auth TokenAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Authenticate verifies the bearer token and stores its claims in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := m.auth.Authenticate(parts[1])
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// RequireRole lets through only callers holding one of roles.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "not authenticated")
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden(errors.New("insufficient role")))
	}
}

// RequirePatientAccess guards routes carrying a patient id in param. Patients
// reach only their own id; doctors and admins reach every patient.
func (m *AuthMiddleware) RequirePatientAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "not authenticated")
			return
		}
		if claims.IsStaff() {
			c.Next()
			return
		}

		id, err := uuid.Parse(c.Param(param))
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid patient id", err))
			return
		}
		if id != claims.UserID {
			httputil.RespondWithError(c, apperrors.Forbidden(errors.New("patients may only access their own records")))
			return
		}
		c.Next()
	}
}

// Claims returns the authenticated caller's claims.
func Claims(c *gin.Context) (*model.TokenClaims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*model.TokenClaims)
	return claims, ok
}
