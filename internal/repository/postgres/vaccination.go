package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
)

type vaccinationRepository struct{ base }

func (r *vaccinationRepository) Create(ctx context.Context, v *model.Vaccination) (err error) {
	start := time.Now()
	defer func() { r.observe("vaccination_create", start, err) }()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO vaccinations (
			id, patient_id, vaccine_name, date_given, next_dose_date, status, batch_number,
			administered_by, notes, created_at, updated_at
		) VALUES (
			:id, :patient_id, :vaccine_name, :date_given, :next_dose_date, :status, :batch_number,
			:administered_by, :notes, :created_at, :updated_at
		)`, v)
	return translate(err, "create vaccination")
}

func (r *vaccinationRepository) Get(ctx context.Context, patientID, id uuid.UUID) (*model.Vaccination, error) {
	var v model.Vaccination
	err := r.db.GetContext(ctx, &v,
		`SELECT * FROM vaccinations WHERE id = $1 AND patient_id = $2`, id, patientID)
	if err != nil {
		return nil, translate(err, "get vaccination")
	}
	return &v, nil
}

func (r *vaccinationRepository) Update(ctx context.Context, v *model.Vaccination) (err error) {
	start := time.Now()
	defer func() { r.observe("vaccination_update", start, err) }()

	v.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE vaccinations SET
			vaccine_name = :vaccine_name,
			date_given = :date_given,
			next_dose_date = :next_dose_date,
			status = :status,
			batch_number = :batch_number,
			administered_by = :administered_by,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id AND patient_id = :patient_id`, v)
	return expectRows(res, err, "update vaccination")
}

func (r *vaccinationRepository) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM vaccinations WHERE id = $1 AND patient_id = $2`, id, patientID)
	return expectRows(res, err, "delete vaccination")
}

func (r *vaccinationRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.Vaccination, error) {
	var out []*model.Vaccination
	query := `SELECT * FROM vaccinations WHERE patient_id = $1 ORDER BY date_given DESC, id` + limitClause(opts.Limit)
	if err := r.db.SelectContext(ctx, &out, query, patientID); err != nil {
		return nil, translate(err, "list vaccinations")
	}
	return out, nil
}

func (r *vaccinationRepository) ListDue(ctx context.Context, patientID uuid.UUID, from, to time.Time) (out []*model.Vaccination, err error) {
	start := time.Now()
	defer func() { r.observe("vaccination_list_due", start, err) }()

	err = r.db.SelectContext(ctx, &out, `
		SELECT * FROM vaccinations
		WHERE patient_id = $1
		  AND next_dose_date IS NOT NULL
		  AND next_dose_date >= $2
		  AND next_dose_date <= $3
		ORDER BY next_dose_date`, patientID, from, to)
	if err != nil {
		return nil, translate(err, "list due vaccinations")
	}
	return out, nil
}
