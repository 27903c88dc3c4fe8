package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
)

type patientRepository struct{ base }

// Upsert inserts the profile or overwrites every column except created_at.
func (r *patientRepository) Upsert(ctx context.Context, patient *model.Patient) (err error) {
	start := time.Now()
	defer func() { r.observe("patient_upsert", start, err) }()

	now := time.Now().UTC()
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = now
	}
	patient.UpdatedAt = now

	rows, err := r.db.NamedQueryContext(ctx, `
		INSERT INTO patients (
			id, full_name, email, phone, date_of_birth, gender, address, blood_type,
			allergies, chronic_conditions, emergency_contact_name, emergency_contact_phone,
			created_at, updated_at
		) VALUES (
			:id, :full_name, :email, :phone, :date_of_birth, :gender, :address, :blood_type,
			:allergies, :chronic_conditions, :emergency_contact_name, :emergency_contact_phone,
			:created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			address = EXCLUDED.address,
			blood_type = EXCLUDED.blood_type,
			allergies = EXCLUDED.allergies,
			chronic_conditions = EXCLUDED.chronic_conditions,
			emergency_contact_name = EXCLUDED.emergency_contact_name,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`, patient)
	if err != nil {
		return translate(err, "upsert patient")
	}
	defer rows.Close()
	if rows.Next() {
		if err = rows.Scan(&patient.CreatedAt); err != nil {
			return translate(err, "upsert patient")
		}
	}
	return translate(rows.Err(), "upsert patient")
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, `SELECT * FROM patients WHERE id = $1`, id); err != nil {
		return nil, translate(err, "get patient")
	}
	return &patient, nil
}

// List returns patients newest first. SearchTerm matches name, email or id
// as a case-insensitive substring.
func (r *patientRepository) List(ctx context.Context, filter *model.PatientFilter) (patients []*model.Patient, err error) {
	start := time.Now()
	defer func() { r.observe("patient_list", start, err) }()

	query := `SELECT * FROM patients`
	var args []interface{}
	if filter != nil && filter.SearchTerm != "" {
		query += ` WHERE full_name ILIKE $1 OR email ILIKE $1 OR id::text ILIKE $1`
		args = append(args, "%"+escapeLike(filter.SearchTerm)+"%")
	}
	query += ` ORDER BY created_at DESC, id`

	if err = r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, translate(err, "list patients")
	}
	return patients, nil
}

func (r *patientRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM patients`); err != nil {
		return 0, translate(err, "count patients")
	}
	return n, nil
}

// Delete relies on ON DELETE CASCADE for every child table.
func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { r.observe("patient_delete", start, err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return expectRows(res, err, "delete patient")
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
