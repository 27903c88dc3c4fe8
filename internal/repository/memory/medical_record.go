package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
)

type medicalRecordRepository struct{ s *Store }

func (r *medicalRecordRepository) Create(_ context.Context, record *model.MedicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.patientExists(record.PatientID) {
		return repository.ErrNotFound
	}
	if taken(r.s.records, record.ID) {
		return repository.ErrDuplicate
	}
	r.s.stamp(&record.Base)
	cp := *record
	r.s.records[record.ID] = &cp
	return nil
}

func (r *medicalRecordRepository) Get(_ context.Context, patientID, id uuid.UUID) (*model.MedicalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.records[id]
	if !ok || rec.PatientID != patientID {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *medicalRecordRepository) Update(_ context.Context, record *model.MedicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.records[record.ID]
	if !ok || existing.PatientID != record.PatientID {
		return repository.ErrNotFound
	}
	record.CreatedAt = existing.CreatedAt
	r.s.stamp(&record.Base)
	cp := *record
	r.s.records[record.ID] = &cp
	return nil
}

func (r *medicalRecordRepository) Delete(_ context.Context, patientID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.records[id]
	if !ok || rec.PatientID != patientID {
		return repository.ErrNotFound
	}
	delete(r.s.records, id)
	return nil
}

func (r *medicalRecordRepository) ListByPatient(_ context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.MedicalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.MedicalRecord
	for _, rec := range r.s.records {
		if rec.PatientID == patientID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VisitDate.Equal(out[j].VisitDate) {
			return out[i].VisitDate.After(out[j].VisitDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return limit(out, opts.Limit), nil
}

func (r *medicalRecordRepository) CountSince(_ context.Context, patientID uuid.UUID, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, rec := range r.s.records {
		if rec.PatientID == patientID && !rec.VisitDate.Before(since) {
			n++
		}
	}
	return n, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
