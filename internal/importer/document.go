package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Export is the document-store dump: one patient document per entry, each
// carrying its sub-collections inline.
type Export struct {
	Patients []PatientDoc `json:"patients"`
}

type PatientDoc struct {
	ID                    string      `json:"id"`
	FullName              string      `json:"fullName"`
	Email                 string      `json:"email"`
	Phone                 string      `json:"phone"`
	DateOfBirth           Timestamp   `json:"dateOfBirth"`
	Gender                string      `json:"gender"`
	Address               string      `json:"address"`
	BloodType             string      `json:"bloodType"`
	Allergies             string      `json:"allergies"`
	ChronicConditions     string      `json:"chronicConditions"`
	EmergencyContactName  string      `json:"emergencyContactName"`
	EmergencyContactPhone string      `json:"emergencyContactPhone"`
	CreatedAt             Timestamp   `json:"createdAt"`
	MedicalRecords        []RecordDoc `json:"medicalRecords"`
	Vaccinations          []VaccDoc   `json:"vaccinations"`
	Appointments          []ApptDoc   `json:"appointments"`
}

type RecordDoc struct {
	ID           string    `json:"id"`
	Diagnosis    string    `json:"diagnosis"`
	Symptoms     string    `json:"symptoms"`
	Treatment    string    `json:"treatment"`
	Prescription string    `json:"prescription"`
	Notes        string    `json:"notes"`
	VisitDate    Timestamp `json:"visitDate"`
	CreatedAt    Timestamp `json:"createdAt"`
}

type VaccDoc struct {
	ID             string    `json:"id"`
	VaccineName    string    `json:"vaccineName"`
	DateGiven      Timestamp `json:"dateGiven"`
	NextDoseDate   Timestamp `json:"nextDoseDate"`
	Status         string    `json:"status"`
	BatchNumber    string    `json:"batchNumber"`
	AdministeredBy string    `json:"administeredBy"`
	Notes          string    `json:"notes"`
	CreatedAt      Timestamp `json:"createdAt"`
}

type ApptDoc struct {
	ID              string    `json:"id"`
	Reason          string    `json:"reason"`
	AppointmentDate Timestamp `json:"appointmentDate"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes"`
	CreatedAt       Timestamp `json:"createdAt"`
}

// idNamespace derives stable UUIDs for document ids that are not UUIDs, so
// importing the same export twice updates rather than duplicates.
var idNamespace = uuid.MustParse("8f0c6a52-51a4-4c43-9a8e-6b2f3f1d7c10")

// DocumentID maps a document id onto a UUID. UUID-shaped ids are kept.
func DocumentID(id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.Nil, fmt.Errorf("document id is empty")
	}
	if u, err := uuid.Parse(id); err == nil {
		return u, nil
	}
	return uuid.NewSHA1(idNamespace, []byte(id)), nil
}

// ChildID maps a sub-collection document onto a UUID. Sub-collection ids are
// only unique under their parent, so non-UUID ids are derived from the full
// document path.
func ChildID(path, id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.Nil, fmt.Errorf("document id is empty")
	}
	if u, err := uuid.Parse(id); err == nil {
		return u, nil
	}
	return uuid.NewSHA1(idNamespace, []byte(path)), nil
}

// Timestamp accepts the shapes exports use for instants: a serialized
// server timestamp object, an RFC 3339 string, a datetime-local string or a
// bare date. Strings without a zone are read in the importer's location.
type Timestamp struct {
	Time *time.Time
	raw  string
}

type serverTimestamp struct {
	Seconds     *int64 `json:"seconds"`
	Nanos       int64  `json:"nanoseconds"`
	LegacySecs  *int64 `json:"_seconds"`
	LegacyNanos int64  `json:"_nanoseconds"`
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t.raw = s
		return nil
	case len(b) > 0 && b[0] == '{':
		var ts serverTimestamp
		if err := json.Unmarshal(b, &ts); err != nil {
			return err
		}
		var v time.Time
		switch {
		case ts.Seconds != nil:
			v = time.Unix(*ts.Seconds, ts.Nanos).UTC()
		case ts.LegacySecs != nil:
			v = time.Unix(*ts.LegacySecs, ts.LegacyNanos).UTC()
		default:
			return fmt.Errorf("timestamp object without seconds")
		}
		t.Time = &v
		return nil
	}
	return fmt.Errorf("unsupported timestamp %s", b)
}

var stringLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Resolve returns the instant, or nil when the field was absent or empty.
func (t Timestamp) Resolve(loc *time.Location) (*time.Time, error) {
	if t.Time != nil {
		return t.Time, nil
	}
	if t.raw == "" {
		return nil, nil
	}
	if v, err := time.Parse(time.RFC3339Nano, t.raw); err == nil {
		return &v, nil
	}
	for _, layout := range stringLayouts {
		if v, err := time.ParseInLocation(layout, t.raw, loc); err == nil {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", t.raw)
}
