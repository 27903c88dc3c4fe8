package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/service"
	"github.com/jwalitptl/health-records/pkg/validator"
)

const resource = "appointment"

type Service struct {
	repo      repository.AppointmentRepository
	validator validator.Validator
}

func NewService(repo repository.AppointmentRepository) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

func (s *Service) Add(ctx context.Context, patientID uuid.UUID, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	a := req.ToModel(patientID)
	if err := s.validator.Validate(a); err != nil {
		return nil, service.Invalid(err)
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, service.RepoError("patient", err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, patientID, id uuid.UUID) (*model.Appointment, error) {
	a, err := s.repo.Get(ctx, patientID, id)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	return a, nil
}

// List returns appointments earliest first.
func (s *Service) List(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Appointment, error) {
	as, err := s.repo.ListByPatient(ctx, patientID, opts)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	return as, nil
}

// Update applies any status change; transitions are not restricted.
func (s *Service) Update(ctx context.Context, patientID, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	a, err := s.repo.Get(ctx, patientID, id)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	req.Apply(a)
	if err := s.validator.Validate(a); err != nil {
		return nil, service.Invalid(err)
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, service.RepoError(resource, err)
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	return service.RepoError(resource, s.repo.Delete(ctx, patientID, id))
}
