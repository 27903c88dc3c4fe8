// Package memory is an in-process backend with the same ordering, filtering
// and cascade rules as the postgres backend.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
)

// Store holds every table behind one lock.
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[uuid.UUID]*model.User
	patients      map[uuid.UUID]*model.Patient
	records       map[uuid.UUID]*model.MedicalRecord
	vaccinations  map[uuid.UUID]*model.Vaccination
	appointments  map[uuid.UUID]*model.Appointment
	notifications map[uuid.UUID]*model.ReminderNotification
}

func NewStore() *Store {
	return &Store{
		now:           time.Now,
		users:         make(map[uuid.UUID]*model.User),
		patients:      make(map[uuid.UUID]*model.Patient),
		records:       make(map[uuid.UUID]*model.MedicalRecord),
		vaccinations:  make(map[uuid.UUID]*model.Vaccination),
		appointments:  make(map[uuid.UUID]*model.Appointment),
		notifications: make(map[uuid.UUID]*model.ReminderNotification),
	}
}

// SetClock overrides the timestamp source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Repositories returns every repository backed by this store.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Users:         &userRepository{s},
		Patients:      &patientRepository{s},
		Records:       &medicalRecordRepository{s},
		Vaccinations:  &vaccinationRepository{s},
		Appointments:  &appointmentRepository{s},
		Notifications: &notificationRepository{s},
	}
}

// stamp assigns an id and server timestamps. A preset CreatedAt survives so
// imported rows keep their original creation time.
func (s *Store) stamp(b *model.Base) {
	now := s.now().UTC()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// taken reports whether a preset id is already stored in table.
func taken[T any](table map[uuid.UUID]T, id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	_, ok := table[id]
	return ok
}

func (s *Store) patientExists(id uuid.UUID) bool {
	_, ok := s.patients[id]
	return ok
}
