package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
)

type appointmentRepository struct{ base }

func (r *appointmentRepository) Create(ctx context.Context, a *model.Appointment) (err error) {
	start := time.Now()
	defer func() { r.observe("appointment_create", start, err) }()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO appointments (id, patient_id, reason, appointment_date, status, notes, created_at, updated_at)
		VALUES (:id, :patient_id, :reason, :appointment_date, :status, :notes, :created_at, :updated_at)`, a)
	return translate(err, "create appointment")
}

func (r *appointmentRepository) Get(ctx context.Context, patientID, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	err := r.db.GetContext(ctx, &a,
		`SELECT * FROM appointments WHERE id = $1 AND patient_id = $2`, id, patientID)
	if err != nil {
		return nil, translate(err, "get appointment")
	}
	return &a, nil
}

func (r *appointmentRepository) Update(ctx context.Context, a *model.Appointment) (err error) {
	start := time.Now()
	defer func() { r.observe("appointment_update", start, err) }()

	a.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE appointments SET
			reason = :reason,
			appointment_date = :appointment_date,
			status = :status,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id AND patient_id = :patient_id`, a)
	return expectRows(res, err, "update appointment")
}

func (r *appointmentRepository) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM appointments WHERE id = $1 AND patient_id = $2`, id, patientID)
	return expectRows(res, err, "delete appointment")
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Appointment, error) {
	var out []*model.Appointment
	query := `SELECT * FROM appointments WHERE patient_id = $1 ORDER BY appointment_date ASC, id` + limitClause(opts.Limit)
	if err := r.db.SelectContext(ctx, &out, query, patientID); err != nil {
		return nil, translate(err, "list appointments")
	}
	return out, nil
}

func (r *appointmentRepository) Find(ctx context.Context, filters *model.AppointmentFilters) (out []*model.Appointment, err error) {
	start := time.Now()
	defer func() { r.observe("appointment_find", start, err) }()

	where, args := appointmentWhere(filters)
	err = r.db.SelectContext(ctx, &out, `SELECT * FROM appointments`+where+` ORDER BY appointment_date ASC, id`, args...)
	if err != nil {
		return nil, translate(err, "find appointments")
	}
	return out, nil
}

func (r *appointmentRepository) Count(ctx context.Context, filters *model.AppointmentFilters) (n int, err error) {
	start := time.Now()
	defer func() { r.observe("appointment_count", start, err) }()

	where, args := appointmentWhere(filters)
	err = r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM appointments`+where, args...)
	return n, translate(err, "count appointments")
}

func appointmentWhere(f *model.AppointmentFilters) (string, []interface{}) {
	if f == nil {
		return "", nil
	}
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != uuid.Nil {
		add("patient_id = $%d", f.PatientID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.Range.From.IsZero() {
		add("appointment_date >= $%d", f.Range.From)
	}
	if !f.Range.To.IsZero() {
		add("appointment_date < $%d", f.Range.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
