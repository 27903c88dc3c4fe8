package vaccination

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/service"
	"github.com/jwalitptl/health-records/pkg/validator"
)

const resource = "vaccination"

type Service struct {
	repo      repository.VaccinationRepository
	validator validator.Validator
}

func NewService(repo repository.VaccinationRepository) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

func (s *Service) Add(ctx context.Context, patientID uuid.UUID, req *model.CreateVaccinationRequest) (*model.Vaccination, error) {
	v := req.ToModel(patientID)
	if err := s.validate(v); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, service.RepoError("patient", err)
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, patientID, id uuid.UUID) (*model.Vaccination, error) {
	v, err := s.repo.Get(ctx, patientID, id)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	return v, nil
}

// List returns vaccinations most recently given first.
func (s *Service) List(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Vaccination, error) {
	vs, err := s.repo.ListByPatient(ctx, patientID, opts)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	return vs, nil
}

func (s *Service) Update(ctx context.Context, patientID, id uuid.UUID, req *model.UpdateVaccinationRequest) (*model.Vaccination, error) {
	v, err := s.repo.Get(ctx, patientID, id)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	req.Apply(v)
	if err := s.validate(v); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, service.RepoError(resource, err)
	}
	return v, nil
}

func (s *Service) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	return service.RepoError(resource, s.repo.Delete(ctx, patientID, id))
}

func (s *Service) validate(v *model.Vaccination) error {
	if err := s.validator.Validate(v); err != nil {
		return service.Invalid(err)
	}
	return nil
}
