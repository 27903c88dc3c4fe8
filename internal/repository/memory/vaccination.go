package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
)

type vaccinationRepository struct{ s *Store }

func (r *vaccinationRepository) Create(_ context.Context, v *model.Vaccination) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.patientExists(v.PatientID) {
		return repository.ErrNotFound
	}
	if taken(r.s.vaccinations, v.ID) {
		return repository.ErrDuplicate
	}
	r.s.stamp(&v.Base)
	r.s.vaccinations[v.ID] = copyVaccination(v)
	return nil
}

func (r *vaccinationRepository) Get(_ context.Context, patientID, id uuid.UUID) (*model.Vaccination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.vaccinations[id]
	if !ok || v.PatientID != patientID {
		return nil, repository.ErrNotFound
	}
	return copyVaccination(v), nil
}

func (r *vaccinationRepository) Update(_ context.Context, v *model.Vaccination) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.vaccinations[v.ID]
	if !ok || existing.PatientID != v.PatientID {
		return repository.ErrNotFound
	}
	v.CreatedAt = existing.CreatedAt
	r.s.stamp(&v.Base)
	r.s.vaccinations[v.ID] = copyVaccination(v)
	return nil
}

func (r *vaccinationRepository) Delete(_ context.Context, patientID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	v, ok := r.s.vaccinations[id]
	if !ok || v.PatientID != patientID {
		return repository.ErrNotFound
	}
	delete(r.s.vaccinations, id)
	return nil
}

func (r *vaccinationRepository) ListByPatient(_ context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Vaccination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Vaccination
	for _, v := range r.s.vaccinations {
		if v.PatientID == patientID {
			out = append(out, copyVaccination(v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateGiven.Equal(out[j].DateGiven) {
			return out[i].DateGiven.After(out[j].DateGiven)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return limit(out, opts.Limit), nil
}

func (r *vaccinationRepository) ListDue(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.Vaccination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Vaccination
	for _, v := range r.s.vaccinations {
		if v.PatientID != patientID || v.NextDoseDate == nil {
			continue
		}
		if v.NextDoseDate.Before(from) || v.NextDoseDate.After(to) {
			continue
		}
		out = append(out, copyVaccination(v))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextDoseDate.Before(*out[j].NextDoseDate)
	})
	return out, nil
}

func copyVaccination(v *model.Vaccination) *model.Vaccination {
	cp := *v
	if v.NextDoseDate != nil {
		next := *v.NextDoseDate
		cp.NextDoseDate = &next
	}
	return &cp
}
