package medical

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/service"
	"github.com/jwalitptl/health-records/pkg/validator"
)

const resource = "medical record"

// Service manages the medical records of one patient at a time. Every
// operation is scoped by patient id.
type Service struct {
	repo      repository.MedicalRecordRepository
	validator validator.Validator
}

func NewService(repo repository.MedicalRecordRepository) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

func (s *Service) Add(ctx context.Context, patientID uuid.UUID, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error) {
	record := req.ToModel(patientID)
	if err := s.validator.Validate(record); err != nil {
		return nil, service.Invalid(err)
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, service.RepoError("patient", err)
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, patientID, id uuid.UUID) (*model.MedicalRecord, error) {
	record, err := s.repo.Get(ctx, patientID, id)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	return record, nil
}

// List returns records newest visit first.
func (s *Service) List(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.MedicalRecord, error) {
	records, err := s.repo.ListByPatient(ctx, patientID, opts)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	return records, nil
}

func (s *Service) Update(ctx context.Context, patientID, id uuid.UUID, req *model.UpdateMedicalRecordRequest) (*model.MedicalRecord, error) {
	record, err := s.repo.Get(ctx, patientID, id)
	if err != nil {
		return nil, service.RepoError(resource, err)
	}
	req.Apply(record)
	if err := s.validator.Validate(record); err != nil {
		return nil, service.Invalid(err)
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, service.RepoError(resource, err)
	}
	return record, nil
}

func (s *Service) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	return service.RepoError(resource, s.repo.Delete(ctx, patientID, id))
}
