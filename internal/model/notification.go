package model

import (
	"time"

	"github.com/google/uuid"
)

type ReminderKind string

const (
	ReminderKindVaccination ReminderKind = "vaccination"
	ReminderKindAppointment ReminderKind = "appointment"
)

type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// ReminderNotification logs one delivery attempt. (Kind, SubjectID, SentOn)
// is unique so a reminder goes out at most once per day.
type ReminderNotification struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	Kind      ReminderKind       `json:"kind" db:"kind"`
	PatientID uuid.UUID          `json:"patient_id" db:"patient_id"`
	SubjectID uuid.UUID          `json:"subject_id" db:"subject_id"`
	Recipient string             `json:"recipient" db:"recipient"`
	Channel   string             `json:"channel" db:"channel"`
	Status    NotificationStatus `json:"status" db:"status"`
	Error     string             `json:"error,omitempty" db:"error"`
	SentOn    time.Time          `json:"sent_on" db:"sent_on"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// Notification is a rendered message ready for a sink.
type Notification struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}
