package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
)

type patientRepository struct{ s *Store }

func (r *patientRepository) Upsert(_ context.Context, patient *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.patients[patient.ID]
	if ok {
		patient.CreatedAt = existing.CreatedAt
	}
	r.s.stamp(&patient.Base)
	cp := *patient
	r.s.patients[patient.ID] = &cp
	return nil
}

func (r *patientRepository) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *patientRepository) List(_ context.Context, filter *model.PatientFilter) ([]*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	term := ""
	if filter != nil {
		term = strings.ToLower(strings.TrimSpace(filter.SearchTerm))
	}

	out := make([]*model.Patient, 0, len(r.s.patients))
	for _, p := range r.s.patients {
		if term != "" &&
			!strings.Contains(strings.ToLower(p.FullName), term) &&
			!strings.Contains(strings.ToLower(p.Email), term) &&
			!strings.Contains(p.ID.String(), term) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *patientRepository) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.patients), nil
}

func (r *patientRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.patientExists(id) {
		return repository.ErrNotFound
	}
	delete(r.s.patients, id)
	for k, v := range r.s.records {
		if v.PatientID == id {
			delete(r.s.records, k)
		}
	}
	for k, v := range r.s.vaccinations {
		if v.PatientID == id {
			delete(r.s.vaccinations, k)
		}
	}
	for k, v := range r.s.appointments {
		if v.PatientID == id {
			delete(r.s.appointments, k)
		}
	}
	for k, v := range r.s.notifications {
		if v.PatientID == id {
			delete(r.s.notifications, k)
		}
	}
	return nil
}
