package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
)

type notificationRepository struct{ s *Store }

func (r *notificationRepository) Record(_ context.Context, n *model.ReminderNotification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.patientExists(n.PatientID) {
		return repository.ErrNotFound
	}
	day := truncateDay(n.SentOn)
	for _, existing := range r.s.notifications {
		if existing.Kind == n.Kind && existing.SubjectID == n.SubjectID && existing.SentOn.Equal(day) {
			return repository.ErrDuplicate
		}
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.SentOn = day
	n.CreatedAt = r.s.now().UTC()
	cp := *n
	r.s.notifications[n.ID] = &cp
	return nil
}

func (r *notificationRepository) Exists(_ context.Context, kind model.ReminderKind, subjectID uuid.UUID, day time.Time) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d := truncateDay(day)
	for _, n := range r.s.notifications {
		if n.Kind == kind && n.SubjectID == subjectID && n.SentOn.Equal(d) {
			return true, nil
		}
	}
	return false, nil
}

func (r *notificationRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.ReminderNotification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.ReminderNotification
	for _, n := range r.s.notifications {
		if n.PatientID == patientID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// truncateDay keeps the calendar date of t as a UTC midnight, matching a
// postgres DATE column.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
