package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
)

type medicalRecordRepository struct{ base }

func (r *medicalRecordRepository) Create(ctx context.Context, record *model.MedicalRecord) (err error) {
	start := time.Now()
	defer func() { r.observe("medical_record_create", start, err) }()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO medical_records (
			id, patient_id, diagnosis, symptoms, treatment, prescription, notes, visit_date,
			created_at, updated_at
		) VALUES (
			:id, :patient_id, :diagnosis, :symptoms, :treatment, :prescription, :notes, :visit_date,
			:created_at, :updated_at
		)`, record)
	return translate(err, "create medical record")
}

func (r *medicalRecordRepository) Get(ctx context.Context, patientID, id uuid.UUID) (*model.MedicalRecord, error) {
	var record model.MedicalRecord
	err := r.db.GetContext(ctx, &record,
		`SELECT * FROM medical_records WHERE id = $1 AND patient_id = $2`, id, patientID)
	if err != nil {
		return nil, translate(err, "get medical record")
	}
	return &record, nil
}

func (r *medicalRecordRepository) Update(ctx context.Context, record *model.MedicalRecord) (err error) {
	start := time.Now()
	defer func() { r.observe("medical_record_update", start, err) }()

	record.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE medical_records SET
			diagnosis = :diagnosis,
			symptoms = :symptoms,
			treatment = :treatment,
			prescription = :prescription,
			notes = :notes,
			visit_date = :visit_date,
			updated_at = :updated_at
		WHERE id = :id AND patient_id = :patient_id`, record)
	return expectRows(res, err, "update medical record")
}

func (r *medicalRecordRepository) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM medical_records WHERE id = $1 AND patient_id = $2`, id, patientID)
	return expectRows(res, err, "delete medical record")
}

func (r *medicalRecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, opts model.ListOptions) ([]*model.MedicalRecord, error) {
	var records []*model.MedicalRecord
	query := `SELECT * FROM medical_records WHERE patient_id = $1 ORDER BY visit_date DESC, id` + limitClause(opts.Limit)
	if err := r.db.SelectContext(ctx, &records, query, patientID); err != nil {
		return nil, translate(err, "list medical records")
	}
	return records, nil
}

func (r *medicalRecordRepository) CountSince(ctx context.Context, patientID uuid.UUID, since time.Time) (n int, err error) {
	start := time.Now()
	defer func() { r.observe("medical_record_count_since", start, err) }()

	err = r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM medical_records WHERE patient_id = $1 AND visit_date >= $2`, patientID, since)
	return n, translate(err, "count recent medical records")
}
