package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

// Transitions between statuses are unconstrained.
const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusRescheduled:
		return true
	}
	return false
}

type Appointment struct {
	Base
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	Reason          string            `db:"reason" json:"reason" validate:"required,max=500"`
	AppointmentDate time.Time         `db:"appointment_date" json:"appointment_date" validate:"required"`
	Status          AppointmentStatus `db:"status" json:"status" validate:"oneof=scheduled completed cancelled rescheduled"`
	Notes           string            `db:"notes" json:"notes,omitempty" validate:"max=5000"`
}

type CreateAppointmentRequest struct {
	Reason          string            `json:"reason" binding:"required,max=500"`
	AppointmentDate time.Time         `json:"appointment_date" binding:"required"`
	Status          AppointmentStatus `json:"status" binding:"omitempty,oneof=scheduled completed cancelled rescheduled"`
	Notes           string            `json:"notes" binding:"max=5000"`
}

func (r *CreateAppointmentRequest) ToModel(patientID uuid.UUID) *Appointment {
	status := r.Status
	if status == "" {
		status = AppointmentStatusScheduled
	}
	return &Appointment{
		PatientID:       patientID,
		Reason:          r.Reason,
		AppointmentDate: r.AppointmentDate,
		Status:          status,
		Notes:           r.Notes,
	}
}

type UpdateAppointmentRequest struct {
	Reason          *string            `json:"reason" binding:"omitempty,min=1,max=500"`
	AppointmentDate *time.Time         `json:"appointment_date"`
	Status          *AppointmentStatus `json:"status" binding:"omitempty,oneof=scheduled completed cancelled rescheduled"`
	Notes           *string            `json:"notes" binding:"omitempty,max=5000"`
}

func (r *UpdateAppointmentRequest) Apply(a *Appointment) {
	setString(&a.Reason, r.Reason)
	if r.AppointmentDate != nil {
		a.AppointmentDate = *r.AppointmentDate
	}
	if r.Status != nil {
		a.Status = *r.Status
	}
	setString(&a.Notes, r.Notes)
}

// AppointmentFilters narrows appointment range queries.
type AppointmentFilters struct {
	PatientID uuid.UUID
	Status    AppointmentStatus
	Range     TimeRange
}
