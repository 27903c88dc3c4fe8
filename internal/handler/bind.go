// Package handler holds request helpers shared by the HTTP handlers.
package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/httputil"
	"github.com/jwalitptl/health-records/pkg/validator"
)

// ConfigureBinding makes gin's validator report json field names.
func ConfigureBinding() {
	if v, ok := binding.Validator.Engine().(*playground.Validate); ok {
		validator.UseJSONNames(v)
	}
}

// BindJSON decodes and validates the body into obj, answering 400 on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, bindError(err))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters into obj.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		httputil.RespondWithError(c, bindError(err))
		return false
	}
	return true
}

// ParamUUID parses the named path parameter, answering 400 when it is not a uuid.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

func bindError(err error) error {
	if errors.Is(err, io.EOF) {
		return apperrors.BadRequest("request body is required", err)
	}
	var verrs playground.ValidationErrors
	if errors.As(err, &verrs) {
		translated := validator.Translate(verrs)
		return apperrors.BadRequest(translated.Error(), translated)
	}
	return apperrors.BadRequest("malformed request: "+err.Error(), err)
}
