package model

import (
	"time"

	"github.com/google/uuid"
)

// MedicalRecord is one clinical visit.
type MedicalRecord struct {
	Base
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	Diagnosis    string    `db:"diagnosis" json:"diagnosis" validate:"required,max=1000"`
	Symptoms     string    `db:"symptoms" json:"symptoms" validate:"max=2000"`
	Treatment    string    `db:"treatment" json:"treatment" validate:"max=2000"`
	Prescription string    `db:"prescription" json:"prescription" validate:"max=2000"`
	Notes        string    `db:"notes" json:"notes" validate:"max=5000"`
	VisitDate    time.Time `db:"visit_date" json:"visit_date" validate:"required"`
}

type CreateMedicalRecordRequest struct {
	Diagnosis    string    `json:"diagnosis" binding:"required,max=1000"`
	Symptoms     string    `json:"symptoms" binding:"max=2000"`
	Treatment    string    `json:"treatment" binding:"max=2000"`
	Prescription string    `json:"prescription" binding:"max=2000"`
	Notes        string    `json:"notes" binding:"max=5000"`
	VisitDate    time.Time `json:"visit_date" binding:"required"`
}

func (r *CreateMedicalRecordRequest) ToModel(patientID uuid.UUID) *MedicalRecord {
	return &MedicalRecord{
		PatientID:    patientID,
		Diagnosis:    r.Diagnosis,
		Symptoms:     r.Symptoms,
		Treatment:    r.Treatment,
		Prescription: r.Prescription,
		Notes:        r.Notes,
		VisitDate:    r.VisitDate,
	}
}

type UpdateMedicalRecordRequest struct {
	Diagnosis    *string    `json:"diagnosis" binding:"omitempty,min=1,max=1000"`
	Symptoms     *string    `json:"symptoms" binding:"omitempty,max=2000"`
	Treatment    *string    `json:"treatment" binding:"omitempty,max=2000"`
	Prescription *string    `json:"prescription" binding:"omitempty,max=2000"`
	Notes        *string    `json:"notes" binding:"omitempty,max=5000"`
	VisitDate    *time.Time `json:"visit_date"`
}

func (r *UpdateMedicalRecordRequest) Apply(m *MedicalRecord) {
	setString(&m.Diagnosis, r.Diagnosis)
	setString(&m.Symptoms, r.Symptoms)
	setString(&m.Treatment, r.Treatment)
	setString(&m.Prescription, r.Prescription)
	setString(&m.Notes, r.Notes)
	if r.VisitDate != nil {
		m.VisitDate = *r.VisitDate
	}
}
