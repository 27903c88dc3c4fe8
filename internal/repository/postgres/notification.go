package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
)

type notificationRepository struct{ base }

func (r *notificationRepository) Record(ctx context.Context, n *model.ReminderNotification) (err error) {
	start := time.Now()
	defer func() { r.observe("notification_record", start, err) }()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.SentOn = dateOf(n.SentOn)
	n.CreatedAt = time.Now().UTC()

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO reminder_notifications (
			id, kind, patient_id, subject_id, recipient, channel, status, error, sent_on, created_at
		) VALUES (
			:id, :kind, :patient_id, :subject_id, :recipient, :channel, :status, :error, :sent_on, :created_at
		)`, n)
	return translate(err, "record reminder notification")
}

func (r *notificationRepository) Exists(ctx context.Context, kind model.ReminderKind, subjectID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM reminder_notifications
			WHERE kind = $1 AND subject_id = $2 AND sent_on = $3
		)`, kind, subjectID, dateOf(day))
	if err != nil {
		return false, translate(err, "check reminder notification")
	}
	return exists, nil
}

func (r *notificationRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ReminderNotification, error) {
	var out []*model.ReminderNotification
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM reminder_notifications WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, translate(err, "list reminder notifications")
	}
	return out, nil
}

// dateOf keeps the calendar date of t as UTC midnight for the DATE column.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
