package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist or belongs to another patient.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	// PatientRepository owns the root of the record tree. Delete removes every
	// child row of the patient in the same operation.
	PatientRepository interface {
		Upsert(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error)
		Count(ctx context.Context) (int, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		Get(ctx context.Context, patientID, id uuid.UUID) (*model.MedicalRecord, error)
		Update(ctx context.Context, record *model.MedicalRecord) error
		Delete(ctx context.Context, patientID, id uuid.UUID) error
		// ListByPatient orders by visit date, newest first.
		ListByPatient(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.MedicalRecord, error)
		CountSince(ctx context.Context, patientID uuid.UUID, since time.Time) (int, error)
	}

	VaccinationRepository interface {
		Create(ctx context.Context, vaccination *model.Vaccination) error
		Get(ctx context.Context, patientID, id uuid.UUID) (*model.Vaccination, error)
		Update(ctx context.Context, vaccination *model.Vaccination) error
		Delete(ctx context.Context, patientID, id uuid.UUID) error
		// ListByPatient orders by date given, newest first.
		ListByPatient(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Vaccination, error)
		// ListDue returns vaccinations whose next dose lies in [from, to], both inclusive.
		ListDue(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.Vaccination, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, patientID, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, patientID, id uuid.UUID) error
		// ListByPatient orders by appointment date, earliest first.
		ListByPatient(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Appointment, error)
		// Find applies filters; an empty status matches every status.
		Find(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		Count(ctx context.Context, filters *model.AppointmentFilters) (int, error)
	}

	NotificationRepository interface {
		// Record returns ErrDuplicate when the reminder was already logged for that day.
		Record(ctx context.Context, n *model.ReminderNotification) error
		Exists(ctx context.Context, kind model.ReminderKind, subjectID uuid.UUID, day time.Time) (bool, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ReminderNotification, error)
	}
)

// Repositories bundles every repository of one backend.
type Repositories struct {
	Users         UserRepository
	Patients      PatientRepository
	Records       MedicalRecordRepository
	Vaccinations  VaccinationRepository
	Appointments  AppointmentRepository
	Notifications NotificationRepository
}
