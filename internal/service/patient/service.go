package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/blobstore"
	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/service"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/validator"
)

type Service struct {
	repo      repository.PatientRepository
	blobs     blobstore.Store
	validator validator.Validator
	logger    *logger.Logger
}

func NewService(repo repository.PatientRepository, blobs blobstore.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		blobs:     blobs,
		validator: validator.New(),
		logger:    log.With("patient"),
	}
}

// Save merges req into the profile with the given id, creating it when it
// does not exist yet. A new profile needs a full name.
func (s *Service) Save(ctx context.Context, id uuid.UUID, req *model.PatientRequest) (*model.Patient, bool, error) {
	if id == uuid.Nil {
		return nil, false, apperrors.BadRequest("patient id is required", nil)
	}

	created := false
	patient, err := s.repo.Get(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if req.FullName == nil || *req.FullName == "" {
			return nil, false, apperrors.BadRequest("full_name is required", nil)
		}
		patient = &model.Patient{Base: model.Base{ID: id}}
		created = true
	case err != nil:
		return nil, false, service.RepoError("patient", err)
	}

	req.Apply(patient)
	if err := s.validator.Validate(patient); err != nil {
		return nil, false, service.Invalid(err)
	}
	if err := s.repo.Upsert(ctx, patient); err != nil {
		return nil, false, service.RepoError("patient", err)
	}
	return patient, created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("patient", err)
	}
	return p, nil
}

// List returns patients newest first. A non-empty search term matches full
// name, email or id case-insensitively.
func (s *Service) List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error) {
	patients, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, service.RepoError("patient", err)
	}
	return patients, nil
}

// Delete removes the patient, its records and its stored files.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return service.RepoError("patient", err)
	}
	if s.blobs == nil {
		return nil
	}
	n, err := s.blobs.DeletePrefix(ctx, blobstore.PatientPrefix(id))
	if err != nil {
		s.logger.Error(err, "failed to delete patient files", "patient_id", id.String())
		return apperrors.Internal(fmt.Errorf("patient deleted but files remain: %w", err))
	}
	s.logger.Info("patient deleted", "patient_id", id.String(), "files", n)
	return nil
}
