package model

import (
	"time"

	"github.com/google/uuid"
)

type VaccinationStatus string

// Transitions between statuses are unconstrained.
const (
	VaccinationStatusPending   VaccinationStatus = "pending"
	VaccinationStatusCompleted VaccinationStatus = "completed"
	VaccinationStatusOverdue   VaccinationStatus = "overdue"
)

func (s VaccinationStatus) Valid() bool {
	switch s {
	case VaccinationStatusPending, VaccinationStatusCompleted, VaccinationStatusOverdue:
		return true
	}
	return false
}

// Vaccination is one immunization event with an optional follow-up dose.
type Vaccination struct {
	Base
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	VaccineName    string            `db:"vaccine_name" json:"vaccine_name" validate:"required,max=200"`
	DateGiven      time.Time         `db:"date_given" json:"date_given" validate:"required"`
	NextDoseDate   *time.Time        `db:"next_dose_date" json:"next_dose_date,omitempty"`
	Status         VaccinationStatus `db:"status" json:"status" validate:"oneof=pending completed overdue"`
	BatchNumber    string            `db:"batch_number" json:"batch_number" validate:"max=100"`
	AdministeredBy string            `db:"administered_by" json:"administered_by" validate:"max=200"`
	Notes          string            `db:"notes" json:"notes" validate:"max=5000"`
}

type CreateVaccinationRequest struct {
	VaccineName    string            `json:"vaccine_name" binding:"required,max=200"`
	DateGiven      time.Time         `json:"date_given" binding:"required"`
	NextDoseDate   *time.Time        `json:"next_dose_date"`
	Status         VaccinationStatus `json:"status" binding:"omitempty,oneof=pending completed overdue"`
	BatchNumber    string            `json:"batch_number" binding:"max=100"`
	AdministeredBy string            `json:"administered_by" binding:"max=200"`
	Notes          string            `json:"notes" binding:"max=5000"`
}

func (r *CreateVaccinationRequest) ToModel(patientID uuid.UUID) *Vaccination {
	status := r.Status
	if status == "" {
		status = VaccinationStatusPending
	}
	return &Vaccination{
		PatientID:      patientID,
		VaccineName:    r.VaccineName,
		DateGiven:      r.DateGiven,
		NextDoseDate:   r.NextDoseDate,
		Status:         status,
		BatchNumber:    r.BatchNumber,
		AdministeredBy: r.AdministeredBy,
		Notes:          r.Notes,
	}
}

type UpdateVaccinationRequest struct {
	VaccineName    *string            `json:"vaccine_name" binding:"omitempty,min=1,max=200"`
	DateGiven      *time.Time         `json:"date_given"`
	NextDoseDate   *time.Time         `json:"next_dose_date"`
	ClearNextDose  bool               `json:"clear_next_dose"`
	Status         *VaccinationStatus `json:"status" binding:"omitempty,oneof=pending completed overdue"`
	BatchNumber    *string            `json:"batch_number" binding:"omitempty,max=100"`
	AdministeredBy *string            `json:"administered_by" binding:"omitempty,max=200"`
	Notes          *string            `json:"notes" binding:"omitempty,max=5000"`
}

func (r *UpdateVaccinationRequest) Apply(v *Vaccination) {
	setString(&v.VaccineName, r.VaccineName)
	if r.DateGiven != nil {
		v.DateGiven = *r.DateGiven
	}
	if r.ClearNextDose {
		v.NextDoseDate = nil
	} else if r.NextDoseDate != nil {
		next := *r.NextDoseDate
		v.NextDoseDate = &next
	}
	if r.Status != nil {
		v.Status = *r.Status
	}
	setString(&v.BatchNumber, r.BatchNumber)
	setString(&v.AdministeredBy, r.AdministeredBy)
	setString(&v.Notes, r.Notes)
}
