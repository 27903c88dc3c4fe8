package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/notify"
	"github.com/jwalitptl/health-records/internal/reminder"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/messaging"
	"github.com/jwalitptl/health-records/pkg/metrics"
)

const lockKey = "health-records:reminder-run"

// Aggregator is the part of reminder.Aggregator the worker needs.
type Aggregator interface {
	UpcomingVaccinations(ctx context.Context, horizonDays int) ([]model.UpcomingVaccination, error)
	UpcomingAppointments(ctx context.Context) ([]model.UpcomingAppointment, error)
}

// Dispatcher delivers rendered notifications.
type Dispatcher interface {
	Send(ctx context.Context, n model.Notification) error
	Channel() string
}

type ReminderWorkerConfig struct {
	Interval               time.Duration
	VaccinationHorizonDays int
	Location               *time.Location
	// LockTTL bounds how long a crashed run can block the next one.
	LockTTL time.Duration
}

// KindReport summarises one reminder kind of a run.
type KindReport struct {
	Found   int  `json:"found"`
	Sent    int  `json:"sent"`
	Skipped int  `json:"skipped"`
	Failed  int  `json:"failed"`
	Partial bool `json:"partial"`
	// ScanError is set when the scan failed and nothing was sent.
	ScanError string `json:"scan_error,omitempty"`
}

type RunReport struct {
	StartedAt    time.Time  `json:"started_at"`
	LockHeld     bool       `json:"lock_held,omitempty"`
	Vaccinations KindReport `json:"vaccinations"`
	Appointments KindReport `json:"appointments"`
}

// ReminderWorker sends vaccination and appointment reminders once per
// interval. A reminder goes out at most once per subject and day.
type ReminderWorker struct {
	agg           Aggregator
	notifications repository.NotificationRepository
	dispatcher    Dispatcher
	locker        messaging.Locker
	cfg           ReminderWorkerConfig
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewReminderWorker builds a worker. locker may be nil when only one worker
// runs.
func NewReminderWorker(
	agg Aggregator,
	notifications repository.NotificationRepository,
	dispatcher Dispatcher,
	locker messaging.Locker,
	cfg ReminderWorkerConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *ReminderWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &ReminderWorker{
		agg:           agg,
		notifications: notifications,
		dispatcher:    dispatcher,
		locker:        locker,
		cfg:           cfg,
		logger:        log.With("reminder_worker"),
		metrics:       m,
		now:           time.Now,
	}
}

// Start runs immediately and then on every tick until ctx is done.
func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("starting reminder worker", "interval", w.cfg.Interval.String(), "channel", w.dispatcher.Channel())
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down reminder worker")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ReminderWorker) tick(ctx context.Context) {
	report, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error(err, "reminder run finished with errors")
		return
	}
	if report.LockHeld {
		return
	}
	w.logger.Info("reminder run finished",
		"vaccinations_sent", report.Vaccinations.Sent,
		"appointments_sent", report.Appointments.Sent)
}

// RunOnce performs one reminder pass. A partial scan still sends what it
// collected; a failed scan sends nothing for that kind. The returned error
// joins every scan problem.
func (w *ReminderWorker) RunOnce(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: w.now()}

	if w.locker != nil {
		release, err := w.locker.Acquire(ctx, lockKey, w.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, messaging.ErrLockHeld) {
				w.logger.Info("reminder run skipped, another worker holds the lock")
				report.LockHeld = true
				return report, nil
			}
			return nil, fmt.Errorf("acquire reminder lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				w.logger.Error(err, "failed to release reminder lock")
			}
		}()
	}

	timer := prometheus.NewTimer(w.metrics.ReminderDuration)
	defer timer.ObserveDuration()

	day := reminder.StartOfDay(report.StartedAt, w.cfg.Location)
	var errs []error

	vaccs, err := w.agg.UpcomingVaccinations(ctx, w.cfg.VaccinationHorizonDays)
	if w.scanUsable(&report.Vaccinations, err, &errs) {
		report.Vaccinations.Found = len(vaccs)
		for _, v := range vaccs {
			n, rerr := notify.VaccinationReminder(v, w.cfg.Location)
			w.deliver(ctx, &report.Vaccinations, model.ReminderKindVaccination, v.PatientID, v.VaccinationID, day, n, rerr)
		}
	}

	appts, err := w.agg.UpcomingAppointments(ctx)
	if w.scanUsable(&report.Appointments, err, &errs) {
		report.Appointments.Found = len(appts)
		for _, a := range appts {
			n, rerr := notify.AppointmentReminder(a, w.cfg.Location)
			w.deliver(ctx, &report.Appointments, model.ReminderKindAppointment, a.PatientID, a.AppointmentID, day, n, rerr)
		}
	}

	return report, errors.Join(errs...)
}

func (w *ReminderWorker) scanUsable(kr *KindReport, err error, errs *[]error) bool {
	if err == nil {
		return true
	}
	*errs = append(*errs, err)
	if errors.Is(err, reminder.ErrPartialScan) {
		kr.Partial = true
		return true
	}
	kr.ScanError = err.Error()
	return false
}

func (w *ReminderWorker) deliver(ctx context.Context, kr *KindReport, kind model.ReminderKind, patientID, subjectID uuid.UUID, day time.Time, n model.Notification, renderErr error) {
	if ctx.Err() != nil {
		return
	}
	exists, err := w.notifications.Exists(ctx, kind, subjectID, day)
	if err != nil {
		w.logger.Error(err, "failed to check reminder log", "kind", string(kind), "subject_id", subjectID.String())
		kr.Failed++
		return
	}
	if exists {
		kr.Skipped++
		return
	}

	entry := &model.ReminderNotification{
		Kind:      kind,
		PatientID: patientID,
		SubjectID: subjectID,
		Recipient: n.Recipient,
		Channel:   w.dispatcher.Channel(),
		SentOn:    day,
	}

	switch {
	case renderErr != nil:
		err = renderErr
	case n.Recipient == "":
		err = notify.ErrNoRecipient
	default:
		err = w.dispatcher.Send(ctx, n)
	}

	switch {
	case err == nil:
		entry.Status = model.NotificationStatusSent
		kr.Sent++
	case errors.Is(err, notify.ErrNoRecipient):
		entry.Status = model.NotificationStatusSkipped
		entry.Error = err.Error()
		kr.Skipped++
	default:
		entry.Status = model.NotificationStatusFailed
		entry.Error = err.Error()
		kr.Failed++
		w.logger.Warn("reminder not delivered", "kind", string(kind), "subject_id", subjectID.String(), "error", err.Error())
	}

	if err := w.notifications.Record(ctx, entry); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		w.logger.Error(err, "failed to record reminder", "kind", string(kind), "subject_id", subjectID.String())
	}
}

var _ Dispatcher = (*notify.Dispatcher)(nil)
