// Package importer loads a document-store JSON export into the repositories.
// Documents are upserted by id, so an export can be imported repeatedly.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/validator"
)

// Report counts what an import wrote. Rejected lists documents that failed
// validation, by document path.
type Report struct {
	Patients     int      `json:"patients"`
	Records      int      `json:"medical_records"`
	Vaccinations int      `json:"vaccinations"`
	Appointments int      `json:"appointments"`
	Rejected     []string `json:"rejected,omitempty"`
}

type Importer struct {
	repos     *repository.Repositories
	validator validator.Validator
	location  *time.Location
	logger    *logger.Logger
	dryRun    bool
}

type Option func(*Importer)

// WithDryRun validates the export without writing anything.
func WithDryRun() Option {
	return func(i *Importer) { i.dryRun = true }
}

func WithLogger(log *logger.Logger) Option {
	return func(i *Importer) { i.logger = log }
}

func New(repos *repository.Repositories, loc *time.Location, opts ...Option) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	i := &Importer{
		repos:     repos,
		validator: validator.New(),
		location:  loc,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// rejection marks a document the importer skips without aborting.
type rejection struct {
	path string
	err  error
}

func (r *rejection) Error() string { return r.path + ": " + r.err.Error() }

func reject(path string, err error) error {
	return &rejection{path: path, err: err}
}

// Import reads an Export from r. A malformed file or a repository failure
// aborts; invalid documents are skipped and listed in the report.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	var export Export
	dec := json.NewDecoder(r)
	if err := dec.Decode(&export); err != nil {
		return nil, fmt.Errorf("decoding export: %w", err)
	}

	report := &Report{}
	for _, doc := range export.Patients {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := i.importPatient(ctx, doc, report); err != nil {
			var rej *rejection
			if errors.As(err, &rej) {
				report.Rejected = append(report.Rejected, rej.Error())
				continue
			}
			return report, err
		}
	}

	i.logger.Info("import finished",
		"patients", report.Patients,
		"medical_records", report.Records,
		"vaccinations", report.Vaccinations,
		"appointments", report.Appointments,
		"rejected", len(report.Rejected),
		"dry_run", i.dryRun,
	)
	return report, nil
}

func (i *Importer) importPatient(ctx context.Context, doc PatientDoc, report *Report) error {
	path := "patients/" + doc.ID
	id, err := DocumentID(doc.ID)
	if err != nil {
		return reject(path, err)
	}
	dob, err := doc.DateOfBirth.Resolve(i.location)
	if err != nil {
		return reject(path, err)
	}
	created, err := doc.CreatedAt.Resolve(i.location)
	if err != nil {
		return reject(path, err)
	}

	p := &model.Patient{
		Base:                  model.Base{ID: id},
		FullName:              strings.TrimSpace(doc.FullName),
		Email:                 strings.TrimSpace(doc.Email),
		Phone:                 doc.Phone,
		DateOfBirth:           dob,
		Gender:                strings.ToLower(doc.Gender),
		Address:               doc.Address,
		BloodType:             doc.BloodType,
		Allergies:             doc.Allergies,
		ChronicConditions:     doc.ChronicConditions,
		EmergencyContactName:  doc.EmergencyContactName,
		EmergencyContactPhone: doc.EmergencyContactPhone,
	}
	if created != nil {
		p.CreatedAt = *created
	}
	if err := i.validator.Validate(p); err != nil {
		return reject(path, err)
	}
	if !i.dryRun {
		if err := i.repos.Patients.Upsert(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	report.Patients++

	for _, rd := range doc.MedicalRecords {
		if err := i.importRecord(ctx, path, id, rd); err != nil {
			if !i.collect(err, report) {
				return err
			}
			continue
		}
		report.Records++
	}
	for _, vd := range doc.Vaccinations {
		if err := i.importVaccination(ctx, path, id, vd); err != nil {
			if !i.collect(err, report) {
				return err
			}
			continue
		}
		report.Vaccinations++
	}
	for _, ad := range doc.Appointments {
		if err := i.importAppointment(ctx, path, id, ad); err != nil {
			if !i.collect(err, report) {
				return err
			}
			continue
		}
		report.Appointments++
	}
	return nil
}

// collect records a rejection and reports whether the import can go on.
func (i *Importer) collect(err error, report *Report) bool {
	var rej *rejection
	if errors.As(err, &rej) {
		report.Rejected = append(report.Rejected, rej.Error())
		return true
	}
	return false
}

func (i *Importer) importRecord(ctx context.Context, parent string, patientID uuid.UUID, doc RecordDoc) error {
	path := parent + "/medicalRecords/" + doc.ID
	id, err := ChildID(path, doc.ID)
	if err != nil {
		return reject(path, err)
	}
	visit, err := doc.VisitDate.Resolve(i.location)
	if err != nil {
		return reject(path, err)
	}
	if visit == nil {
		return reject(path, errors.New("visitDate is required"))
	}

	rec := &model.MedicalRecord{
		Base:         model.Base{ID: id},
		PatientID:    patientID,
		Diagnosis:    doc.Diagnosis,
		Symptoms:     doc.Symptoms,
		Treatment:    doc.Treatment,
		Prescription: doc.Prescription,
		Notes:        doc.Notes,
		VisitDate:    *visit,
	}
	if err := i.stampCreated(&rec.Base, doc.CreatedAt); err != nil {
		return reject(path, err)
	}
	if err := i.validator.Validate(rec); err != nil {
		return reject(path, err)
	}
	if i.dryRun {
		return nil
	}
	return upsert(path,
		func() error { _, err := i.repos.Records.Get(ctx, patientID, id); return err },
		func() error { return i.repos.Records.Create(ctx, rec) },
		func() error { return i.repos.Records.Update(ctx, rec) },
	)
}

func (i *Importer) importVaccination(ctx context.Context, parent string, patientID uuid.UUID, doc VaccDoc) error {
	path := parent + "/vaccinations/" + doc.ID
	id, err := ChildID(path, doc.ID)
	if err != nil {
		return reject(path, err)
	}
	given, err := doc.DateGiven.Resolve(i.location)
	if err != nil {
		return reject(path, err)
	}
	if given == nil {
		return reject(path, errors.New("dateGiven is required"))
	}
	next, err := doc.NextDoseDate.Resolve(i.location)
	if err != nil {
		return reject(path, err)
	}

	status := model.VaccinationStatus(strings.ToLower(doc.Status))
	if status == "" {
		status = model.VaccinationStatusPending
	}
	v := &model.Vaccination{
		Base:           model.Base{ID: id},
		PatientID:      patientID,
		VaccineName:    doc.VaccineName,
		DateGiven:      *given,
		NextDoseDate:   next,
		Status:         status,
		BatchNumber:    doc.BatchNumber,
		AdministeredBy: doc.AdministeredBy,
		Notes:          doc.Notes,
	}
	if err := i.stampCreated(&v.Base, doc.CreatedAt); err != nil {
		return reject(path, err)
	}
	if err := i.validator.Validate(v); err != nil {
		return reject(path, err)
	}
	if i.dryRun {
		return nil
	}
	return upsert(path,
		func() error { _, err := i.repos.Vaccinations.Get(ctx, patientID, id); return err },
		func() error { return i.repos.Vaccinations.Create(ctx, v) },
		func() error { return i.repos.Vaccinations.Update(ctx, v) },
	)
}

func (i *Importer) importAppointment(ctx context.Context, parent string, patientID uuid.UUID, doc ApptDoc) error {
	path := parent + "/appointments/" + doc.ID
	id, err := ChildID(path, doc.ID)
	if err != nil {
		return reject(path, err)
	}
	at, err := doc.AppointmentDate.Resolve(i.location)
	if err != nil {
		return reject(path, err)
	}
	if at == nil {
		return reject(path, errors.New("appointmentDate is required"))
	}

	status := model.AppointmentStatus(strings.ToLower(doc.Status))
	if status == "" {
		status = model.AppointmentStatusScheduled
	}
	a := &model.Appointment{
		Base:            model.Base{ID: id},
		PatientID:       patientID,
		Reason:          doc.Reason,
		AppointmentDate: *at,
		Status:          status,
		Notes:           doc.Notes,
	}
	if err := i.stampCreated(&a.Base, doc.CreatedAt); err != nil {
		return reject(path, err)
	}
	if err := i.validator.Validate(a); err != nil {
		return reject(path, err)
	}
	if i.dryRun {
		return nil
	}
	return upsert(path,
		func() error { _, err := i.repos.Appointments.Get(ctx, patientID, id); return err },
		func() error { return i.repos.Appointments.Create(ctx, a) },
		func() error { return i.repos.Appointments.Update(ctx, a) },
	)
}

func (i *Importer) stampCreated(b *model.Base, ts Timestamp) error {
	created, err := ts.Resolve(i.location)
	if err != nil {
		return err
	}
	if created != nil {
		b.CreatedAt = *created
	}
	return nil
}

// upsert creates the row when get reports it missing under this patient and
// updates it otherwise.
func upsert(path string, get, create, update func() error) error {
	err := get()
	switch {
	case errors.Is(err, repository.ErrNotFound):
		err = create()
		if errors.Is(err, repository.ErrDuplicate) {
			return reject(path, errors.New("id is already used by another patient"))
		}
	case err == nil:
		err = update()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
