// Package reminder computes cross-patient obligations: vaccinations whose
// next dose is near, appointments in the reminder window, and the doctor
// dashboard counters.
//
// Every operation lists all patients and then reads one child collection per
// patient. Per-patient reads run with bounded parallelism, each under its own
// timeout, and the whole scan runs under one deadline. A backend failure
// aborts the scan and yields no results. A timeout or deadline expiry yields
// the results of the patients that were fully read together with a
// *PartialScanError.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/metrics"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
)

const (
	OpUpcomingVaccinations = "upcoming_vaccinations"
	OpUpcomingAppointments = "upcoming_appointments"
	OpDoctorStats          = "doctor_stats"

	recentRecordsDays = 7

	// MaxHorizonDays bounds UpcomingVaccinations so the window end stays
	// representable.
	MaxHorizonDays = 3650
)

type Config struct {
	// VaccinationHorizonDays is the default horizon for UpcomingVaccinations.
	VaccinationHorizonDays int
	// AppointmentHorizonDays is the number of calendar days, starting
	// tomorrow, covered by UpcomingAppointments.
	AppointmentHorizonDays int
	Location               *time.Location
	ReadTimeout            time.Duration
	Deadline               time.Duration
	Concurrency            int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		VaccinationHorizonDays: 7,
		AppointmentHorizonDays: 1,
		Location:               time.Local,
		ReadTimeout:            5 * time.Second,
		Deadline:               60 * time.Second,
		Concurrency:            4,
	}
}

type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l.With("reminder")
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		if m != nil {
			a.metrics = m
		}
	}
}

type Aggregator struct {
	patients     repository.PatientRepository
	records      repository.MedicalRecordRepository
	vaccinations repository.VaccinationRepository
	appointments repository.AppointmentRepository

	cfg     Config
	now     func() time.Time
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewAggregator(repos *repository.Repositories, cfg Config, opts ...Option) *Aggregator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.AppointmentHorizonDays < 1 {
		cfg.AppointmentHorizonDays = 1
	}
	a := &Aggregator{
		patients:     repos.Patients,
		records:      repos.Records,
		vaccinations: repos.Vaccinations,
		appointments: repos.Appointments,
		cfg:          cfg,
		now:          time.Now,
		logger:       logger.Nop(),
		metrics:      metrics.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// UpcomingVaccinations lists vaccinations whose next dose lies in
// [now, now + horizonDays days], sorted by DaysUntil, then next dose date,
// then patient id, then vaccination id.
func (a *Aggregator) UpcomingVaccinations(ctx context.Context, horizonDays int) ([]model.UpcomingVaccination, error) {
	if horizonDays < 0 {
		return nil, apperrors.BadRequest("horizon must not be negative", nil)
	}
	if horizonDays > MaxHorizonDays {
		return nil, apperrors.BadRequest(fmt.Sprintf("horizon must not exceed %d days", MaxHorizonDays), nil)
	}
	now := a.now()
	until := now.Add(time.Duration(horizonDays) * day)

	res, err := collect(ctx, a, OpUpcomingVaccinations, func(ctx context.Context, p *model.Patient) ([]model.UpcomingVaccination, error) {
		due, err := a.vaccinations.ListDue(ctx, p.ID, now, until)
		if err != nil {
			return nil, err
		}
		out := make([]model.UpcomingVaccination, 0, len(due))
		for _, v := range due {
			if v.NextDoseDate == nil || v.NextDoseDate.Before(now) {
				continue
			}
			days := DaysUntil(now, *v.NextDoseDate)
			if days < 0 || days > horizonDays {
				continue
			}
			out = append(out, model.UpcomingVaccination{
				PatientID:     p.ID,
				PatientName:   p.FullName,
				PatientEmail:  p.Email,
				VaccinationID: v.ID,
				VaccineName:   v.VaccineName,
				NextDoseDate:  *v.NextDoseDate,
				DaysUntil:     days,
			})
		}
		return out, nil
	})

	items := flatten(res.items)
	sort.Slice(items, func(i, j int) bool {
		x, y := items[i], items[j]
		if x.DaysUntil != y.DaysUntil {
			return x.DaysUntil < y.DaysUntil
		}
		if !x.NextDoseDate.Equal(y.NextDoseDate) {
			return x.NextDoseDate.Before(y.NextDoseDate)
		}
		if x.PatientID != y.PatientID {
			return x.PatientID.String() < y.PatientID.String()
		}
		return x.VaccinationID.String() < y.VaccinationID.String()
	})
	return items, err
}

// UpcomingAppointments lists scheduled appointments inside AppointmentWindow,
// sorted by appointment date, then patient id, then appointment id.
func (a *Aggregator) UpcomingAppointments(ctx context.Context) ([]model.UpcomingAppointment, error) {
	window := AppointmentWindow(a.now(), a.cfg.Location, a.cfg.AppointmentHorizonDays)

	res, err := collect(ctx, a, OpUpcomingAppointments, func(ctx context.Context, p *model.Patient) ([]model.UpcomingAppointment, error) {
		appts, err := a.appointments.Find(ctx, &model.AppointmentFilters{
			PatientID: p.ID,
			Status:    model.AppointmentStatusScheduled,
			Range:     window,
		})
		if err != nil {
			return nil, err
		}
		out := make([]model.UpcomingAppointment, 0, len(appts))
		for _, appt := range appts {
			if appt.Status != model.AppointmentStatusScheduled || !window.Contains(appt.AppointmentDate) {
				continue
			}
			out = append(out, model.UpcomingAppointment{
				PatientID:       p.ID,
				PatientName:     p.FullName,
				PatientEmail:    p.Email,
				AppointmentID:   appt.ID,
				Reason:          appt.Reason,
				AppointmentDate: appt.AppointmentDate,
				Status:          appt.Status,
				Notes:           appt.Notes,
			})
		}
		return out, nil
	})

	items := flatten(res.items)
	sort.Slice(items, func(i, j int) bool {
		x, y := items[i], items[j]
		if !x.AppointmentDate.Equal(y.AppointmentDate) {
			return x.AppointmentDate.Before(y.AppointmentDate)
		}
		if x.PatientID != y.PatientID {
			return x.PatientID.String() < y.PatientID.String()
		}
		return x.AppointmentID.String() < y.AppointmentID.String()
	})
	return items, err
}

type patientCounts struct {
	today  int
	recent int
}

// DoctorStats counts patients, appointments of any status today and medical
// records visited in the last seven days.
func (a *Aggregator) DoctorStats(ctx context.Context) (model.DoctorStats, error) {
	now := a.now()
	today := TodayRange(now, a.cfg.Location)
	weekAgo := now.AddDate(0, 0, -recentRecordsDays)

	res, err := collect(ctx, a, OpDoctorStats, func(ctx context.Context, p *model.Patient) (patientCounts, error) {
		n, err := a.appointments.Count(ctx, &model.AppointmentFilters{PatientID: p.ID, Range: today})
		if err != nil {
			return patientCounts{}, err
		}
		recent, err := a.records.CountSince(ctx, p.ID, weekAgo)
		if err != nil {
			return patientCounts{}, err
		}
		return patientCounts{today: n, recent: recent}, nil
	})
	if err != nil && !res.partial {
		return model.DoctorStats{}, err
	}

	stats := model.DoctorStats{TotalPatients: res.total}
	for _, c := range res.items {
		stats.TodayAppointments += c.today
		stats.RecentRecords += c.recent
	}
	return stats, err
}

type scanResult[T any] struct {
	items   []T
	total   int
	partial bool
}

// collect lists every patient and runs visit for each one. On a backend
// error it returns no items. On timeout it returns the items of patients
// whose visit completed and a *PartialScanError.
func collect[T any](ctx context.Context, a *Aggregator, op string, visit func(context.Context, *model.Patient) (T, error)) (scanResult[T], error) {
	start := time.Now()
	defer func() {
		a.metrics.ScanDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if a.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Deadline)
		defer cancel()
	}

	patients, err := a.listPatients(ctx)
	if err != nil {
		if isTimeout(ctx, err) {
			return scanResult[T]{partial: true}, a.partial(op, 0, 0, err)
		}
		return scanResult[T]{}, a.fail(op, fmt.Errorf("list patients: %w", err))
	}

	var (
		results  = make([]T, len(patients))
		done     = make([]bool, len(patients))
		mu       sync.Mutex
		timedOut error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, p := range patients {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rctx, cancel := a.readContext(gctx)
			defer cancel()

			v, err := visit(rctx, p)
			if err != nil {
				if isTimeout(rctx, err) {
					mu.Lock()
					if timedOut == nil {
						timedOut = err
					}
					mu.Unlock()
					return nil
				}
				return fmt.Errorf("patient %s: %w", p.ID, err)
			}
			results[i] = v
			done[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return scanResult[T]{}, a.fail(op, err)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return scanResult[T]{}, a.fail(op, err)
	}

	res := scanResult[T]{total: len(patients), items: make([]T, 0, len(patients))}
	for i := range results {
		if done[i] {
			res.items = append(res.items, results[i])
		}
	}
	scanned := len(res.items)
	a.metrics.PatientsScanned.WithLabelValues(op).Add(float64(scanned))

	if scanned < len(patients) {
		if timedOut == nil {
			timedOut = ctx.Err()
		}
		if timedOut == nil {
			timedOut = context.DeadlineExceeded
		}
		res.partial = true
		return res, a.partial(op, scanned, len(patients), timedOut)
	}
	return res, nil
}

func (a *Aggregator) listPatients(ctx context.Context) ([]*model.Patient, error) {
	rctx, cancel := a.readContext(ctx)
	defer cancel()
	patients, err := a.patients.List(rctx, nil)
	if err != nil && isTimeout(rctx, err) {
		// Drivers report an expired read with their own error.
		return nil, fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return patients, err
}

func (a *Aggregator) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.ReadTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.ReadTimeout)
	}
	return context.WithCancel(ctx)
}

func (a *Aggregator) fail(op string, err error) error {
	a.metrics.ScanFailures.WithLabelValues(op, "error").Inc()
	a.logger.Error(err, "aggregation failed", "operation", op)
	return fmt.Errorf("%s: %w", op, err)
}

func (a *Aggregator) partial(op string, scanned, total int, err error) error {
	a.metrics.ScanFailures.WithLabelValues(op, "partial").Inc()
	a.logger.Warn("aggregation incomplete", "operation", op, "scanned", scanned, "total", total, "error", err.Error())
	return &PartialScanError{Operation: op, Scanned: scanned, Total: total, Err: err}
}

func flatten[T any](groups [][]T) []T {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]T, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
