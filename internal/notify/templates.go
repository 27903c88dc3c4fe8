package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/jwalitptl/health-records/internal/model"
)

var (
	vaccinationSubject = template.Must(template.New("vaccination_subject").Parse(
		`Vaccination Reminder: {{.VaccineName}}`))
	vaccinationBody = template.Must(template.New("vaccination_body").Parse(
		`Dear {{.PatientName}}, you have an upcoming vaccination ({{.VaccineName}}) in {{.DaysUntil}} {{if eq .DaysUntil 1}}day{{else}}days{{end}}, on {{.NextDoseDate.Format "Monday, January 2, 2006"}}.`))

	appointmentSubject = template.Must(template.New("appointment_subject").Parse(
		`Appointment Reminder: {{.Reason}}`))
	appointmentBody = template.Must(template.New("appointment_body").Parse(
		`Dear {{.PatientName}}, you have an appointment on {{.AppointmentDate.Format "Monday, January 2, 2006"}} at {{.AppointmentDate.Format "15:04"}}: {{.Reason}}.`))
)

// VaccinationReminder renders the message for one upcoming vaccination,
// showing dates in loc.
func VaccinationReminder(v model.UpcomingVaccination, loc *time.Location) (model.Notification, error) {
	if loc != nil {
		v.NextDoseDate = v.NextDoseDate.In(loc)
	}
	return render(v.PatientEmail, vaccinationSubject, vaccinationBody, v)
}

// AppointmentReminder renders the message for one upcoming appointment in loc.
func AppointmentReminder(a model.UpcomingAppointment, loc *time.Location) (model.Notification, error) {
	if loc != nil {
		a.AppointmentDate = a.AppointmentDate.In(loc)
	}
	return render(a.PatientEmail, appointmentSubject, appointmentBody, a)
}

func render(recipient string, subject, body *template.Template, data interface{}) (model.Notification, error) {
	var s, b bytes.Buffer
	if err := subject.Execute(&s, data); err != nil {
		return model.Notification{}, fmt.Errorf("render %s: %w", subject.Name(), err)
	}
	if err := body.Execute(&b, data); err != nil {
		return model.Notification{}, fmt.Errorf("render %s: %w", body.Name(), err)
	}
	return model.Notification{Recipient: recipient, Subject: s.String(), Body: b.String()}, nil
}
