package model

import (
	"time"

	"github.com/google/uuid"
)

// UpcomingVaccination is one vaccination whose next dose falls inside the horizon.
type UpcomingVaccination struct {
	PatientID     uuid.UUID `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email,omitempty"`
	VaccinationID uuid.UUID `json:"vaccination_id"`
	VaccineName   string    `json:"vaccine_name"`
	NextDoseDate  time.Time `json:"next_dose_date"`
	DaysUntil     int       `json:"days_until"`
}

// UpcomingAppointment is a scheduled appointment inside the reminder window.
type UpcomingAppointment struct {
	PatientID       uuid.UUID         `json:"patient_id"`
	PatientName     string            `json:"patient_name"`
	PatientEmail    string            `json:"patient_email,omitempty"`
	AppointmentID   uuid.UUID         `json:"appointment_id"`
	Reason          string            `json:"reason"`
	AppointmentDate time.Time         `json:"appointment_date"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
}

// DoctorStats summarises the patient population for the doctor dashboard.
type DoctorStats struct {
	TotalPatients     int `json:"total_patients"`
	TodayAppointments int `json:"today_appointments"`
	RecentRecords     int `json:"recent_records"`
}
