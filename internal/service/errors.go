// Package service holds helpers shared by the domain services.
package service

import (
	"errors"

	"github.com/jwalitptl/health-records/internal/repository"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/validator"
)

// RepoError converts a repository error into an AppError for resource.
func RepoError(resource string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.Conflict(resource+" already exists", err)
	default:
		return apperrors.Internal(err)
	}
}

// Invalid wraps validator failures as a bad request.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.Errors
	if errors.As(err, &verrs) {
		return apperrors.BadRequest(verrs.Error(), verrs)
	}
	return apperrors.BadRequest(err.Error(), err)
}
