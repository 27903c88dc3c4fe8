package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
)

type appointmentRepository struct{ s *Store }

func (r *appointmentRepository) Create(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.patientExists(a.PatientID) {
		return repository.ErrNotFound
	}
	if taken(r.s.appointments, a.ID) {
		return repository.ErrDuplicate
	}
	r.s.stamp(&a.Base)
	cp := *a
	r.s.appointments[a.ID] = &cp
	return nil
}

func (r *appointmentRepository) Get(_ context.Context, patientID, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.appointments[id]
	if !ok || a.PatientID != patientID {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *appointmentRepository) Update(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.appointments[a.ID]
	if !ok || existing.PatientID != a.PatientID {
		return repository.ErrNotFound
	}
	a.CreatedAt = existing.CreatedAt
	r.s.stamp(&a.Base)
	cp := *a
	r.s.appointments[a.ID] = &cp
	return nil
}

func (r *appointmentRepository) Delete(_ context.Context, patientID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[id]
	if !ok || a.PatientID != patientID {
		return repository.ErrNotFound
	}
	delete(r.s.appointments, id)
	return nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Appointment, error) {
	out, err := r.Find(ctx, &model.AppointmentFilters{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	return limit(out, opts.Limit), nil
}

func (r *appointmentRepository) Find(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Appointment
	for _, a := range r.s.appointments {
		if matches(a, filters) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.Before(out[j].AppointmentDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *appointmentRepository) Count(_ context.Context, filters *model.AppointmentFilters) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, a := range r.s.appointments {
		if matches(a, filters) {
			n++
		}
	}
	return n, nil
}

func matches(a *model.Appointment, f *model.AppointmentFilters) bool {
	if f == nil {
		return true
	}
	if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return f.Range.Contains(a.AppointmentDate)
}
