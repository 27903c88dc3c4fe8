package reminder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/repository/memory"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/logger"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	repos *repository.Repositories
	cfg   Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	return &fixture{t: t, repos: memory.NewStore().Repositories(), cfg: cfg}
}

func (f *fixture) aggregator(opts ...Option) *Aggregator {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewAggregator(f.repos, f.cfg, opts...)
}

func (f *fixture) patient(name string) *model.Patient {
	f.t.Helper()
	p := &model.Patient{Base: model.Base{ID: uuid.New()}, FullName: name, Email: name + "@example.com"}
	require.NoError(f.t, f.repos.Patients.Upsert(context.Background(), p))
	return p
}

func (f *fixture) vaccination(p *model.Patient, name string, next *time.Time) *model.Vaccination {
	f.t.Helper()
	v := &model.Vaccination{PatientID: p.ID, VaccineName: name, DateGiven: now.AddDate(0, -1, 0), NextDoseDate: next, Status: model.VaccinationStatusPending}
	require.NoError(f.t, f.repos.Vaccinations.Create(context.Background(), v))
	return v
}

func (f *fixture) appointment(p *model.Patient, reason string, at time.Time, status model.AppointmentStatus) *model.Appointment {
	f.t.Helper()
	a := &model.Appointment{PatientID: p.ID, Reason: reason, AppointmentDate: at, Status: status}
	require.NoError(f.t, f.repos.Appointments.Create(context.Background(), a))
	return a
}

func (f *fixture) record(p *model.Patient, visit time.Time) {
	f.t.Helper()
	require.NoError(f.t, f.repos.Records.Create(context.Background(), &model.MedicalRecord{PatientID: p.ID, Diagnosis: "checkup", VisitDate: visit}))
}

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestUpcomingVaccinationsHorizonScenario(t *testing.T) {
	f := newFixture(t)
	p := f.patient("pat")
	first := f.vaccination(p, "Hepatitis B", at(3*day))
	f.vaccination(p, "Tetanus", at(10*day))

	got, err := f.aggregator().UpcomingVaccinations(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].VaccinationID)
	assert.Equal(t, 3, got[0].DaysUntil)
	assert.Equal(t, p.ID, got[0].PatientID)
	assert.Equal(t, "pat", got[0].PatientName)
	assert.Equal(t, "Hepatitis B", got[0].VaccineName)
}

func TestUpcomingVaccinationsExactDays(t *testing.T) {
	f := newFixture(t)
	const horizon = 7
	p := f.patient("pat")

	want := map[uuid.UUID]int{}
	for k := 0; k <= horizon; k++ {
		v := f.vaccination(p, fmt.Sprintf("dose-%d", k), at(time.Duration(k)*day))
		want[v.ID] = k
	}
	excluded := []*model.Vaccination{
		f.vaccination(p, "past", at(-day)),
		f.vaccination(p, "just-past", at(-time.Minute)),
		f.vaccination(p, "beyond", at((horizon+1)*day)),
		f.vaccination(p, "just-beyond", at(horizon*day+time.Minute)),
		f.vaccination(p, "none", nil),
	}

	got, err := f.aggregator().UpcomingVaccinations(context.Background(), horizon)
	require.NoError(t, err)
	require.Len(t, got, len(want))

	seen := map[uuid.UUID]int{}
	for _, item := range got {
		seen[item.VaccinationID]++
		assert.Equal(t, want[item.VaccinationID], item.DaysUntil, item.VaccineName)
	}
	for id := range want {
		assert.Equal(t, 1, seen[id], "each due vaccination appears exactly once")
	}
	for _, v := range excluded {
		assert.Zero(t, seen[v.ID], v.VaccineName)
	}
}

func TestUpcomingVaccinationsRoundsUp(t *testing.T) {
	f := newFixture(t)
	p := f.patient("pat")
	f.vaccination(p, "MMR", at(2*day+12*time.Hour))

	got, err := f.aggregator().UpcomingVaccinations(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].DaysUntil)
}

func TestUpcomingVaccinationsSortedWithTieBreak(t *testing.T) {
	f := newFixture(t)
	offsets := []time.Duration{5 * day, 1 * day, 3 * day, 1 * day, 0, 2*day + time.Hour, 2 * day, 5 * day}
	for i, off := range offsets {
		p := f.patient(fmt.Sprintf("p%d", i))
		f.vaccination(p, "flu", at(off))
		f.vaccination(p, "covid", at(off))
	}

	agg := f.aggregator()
	got, err := agg.UpcomingVaccinations(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 2*len(offsets))

	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].DaysUntil < got[j].DaysUntil }))
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		require.LessOrEqual(t, prev.DaysUntil, cur.DaysUntil)
		if prev.DaysUntil == cur.DaysUntil && prev.NextDoseDate.Equal(cur.NextDoseDate) {
			if prev.PatientID == cur.PatientID {
				assert.Less(t, prev.VaccinationID.String(), cur.VaccinationID.String())
			} else {
				assert.Less(t, prev.PatientID.String(), cur.PatientID.String())
			}
		}
	}

	again, err := agg.UpcomingVaccinations(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, got, again, "ordering is deterministic")
}

func TestUpcomingVaccinationsNegativeHorizon(t *testing.T) {
	f := newFixture(t)
	_, err := f.aggregator().UpcomingVaccinations(context.Background(), -1)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestUpcomingVaccinationsHorizonBound(t *testing.T) {
	f := newFixture(t)
	p := f.patient("pat")
	f.vaccination(p, "MMR", at(3*day))
	agg := f.aggregator()

	_, err := agg.UpcomingVaccinations(context.Background(), 120000)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	got, err := agg.UpcomingVaccinations(context.Background(), MaxHorizonDays)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].DaysUntil)
}

func TestUpcomingAppointmentsTomorrowScenario(t *testing.T) {
	f := newFixture(t)
	p := f.patient("pat")
	tomorrow := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	want := f.appointment(p, "Checkup", tomorrow.Add(10*time.Hour), model.AppointmentStatusScheduled)
	f.appointment(p, "Dentist", tomorrow.Add(14*time.Hour), model.AppointmentStatusCancelled)

	got, err := f.aggregator().UpcomingAppointments(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.ID, got[0].AppointmentID)
	assert.Equal(t, "Checkup", got[0].Reason)
	assert.Equal(t, model.AppointmentStatusScheduled, got[0].Status)
}

func TestUpcomingAppointmentsWindowAndStatus(t *testing.T) {
	f := newFixture(t)
	p := f.patient("pat")
	q := f.patient("quinn")
	tomorrow := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	f.appointment(p, "later today", now.Add(2*time.Hour), model.AppointmentStatusScheduled)
	f.appointment(p, "day after", tomorrow.Add(day), model.AppointmentStatusScheduled)
	f.appointment(p, "last second", tomorrow.Add(day-time.Second), model.AppointmentStatusScheduled)
	f.appointment(q, "midnight", tomorrow, model.AppointmentStatusScheduled)
	for _, st := range []model.AppointmentStatus{model.AppointmentStatusCompleted, model.AppointmentStatusCancelled, model.AppointmentStatusRescheduled} {
		f.appointment(q, string(st), tomorrow.Add(9*time.Hour), st)
	}

	got, err := f.aggregator().UpcomingAppointments(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "midnight", got[0].Reason)
	assert.Equal(t, q.ID, got[0].PatientID)
	assert.Equal(t, "last second", got[1].Reason)
	for _, item := range got {
		assert.Equal(t, model.AppointmentStatusScheduled, item.Status)
	}

	f.cfg.AppointmentHorizonDays = 2
	wider, err := f.aggregator().UpcomingAppointments(context.Background())
	require.NoError(t, err)
	assert.Len(t, wider, 3)
}

func TestDoctorStats(t *testing.T) {
	f := newFixture(t)
	p := f.patient("pat")
	q := f.patient("quinn")
	f.patient("rae")

	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	f.appointment(p, "morning", today.Add(8*time.Hour), model.AppointmentStatusCompleted)
	f.appointment(q, "evening", today.Add(18*time.Hour), model.AppointmentStatusScheduled)
	f.appointment(q, "midnight", today, model.AppointmentStatusCancelled)
	f.appointment(q, "tomorrow", today.Add(day), model.AppointmentStatusScheduled)
	f.appointment(p, "yesterday", today.Add(-time.Minute), model.AppointmentStatusScheduled)

	f.record(p, now.AddDate(0, 0, -7))
	f.record(p, now.AddDate(0, 0, -2))
	f.record(q, now.AddDate(0, 0, -7).Add(-time.Second))
	f.record(q, now)

	stats, err := f.aggregator().DoctorStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DoctorStats{TotalPatients: 3, TodayAppointments: 3, RecentRecords: 3}, stats)
}

func TestDoctorStatsTotalPatients(t *testing.T) {
	for _, n := range []int{0, 1, 25} {
		t.Run(fmt.Sprintf("%d patients", n), func(t *testing.T) {
			f := newFixture(t)
			for i := 0; i < n; i++ {
				f.patient(fmt.Sprintf("p%d", i))
			}
			stats, err := f.aggregator().DoctorStats(context.Background())
			require.NoError(t, err)
			assert.Equal(t, n, stats.TotalPatients)
		})
	}
}

func TestEmptyStore(t *testing.T) {
	f := newFixture(t)
	agg := f.aggregator()
	ctx := context.Background()

	stats, err := agg.DoctorStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DoctorStats{}, stats)

	vaccs, err := agg.UpcomingVaccinations(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, vaccs)

	appts, err := agg.UpcomingAppointments(ctx)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestDeletedPatientChildrenNeverReturned(t *testing.T) {
	f := newFixture(t)
	gone := f.patient("gone")
	kept := f.patient("kept")
	tomorrow := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	for _, p := range []*model.Patient{gone, kept} {
		f.vaccination(p, "flu", at(2*day))
		f.appointment(p, "checkup", tomorrow, model.AppointmentStatusScheduled)
		f.appointment(p, "today", now.Add(time.Hour), model.AppointmentStatusScheduled)
		f.record(p, now)
	}
	require.NoError(t, f.repos.Patients.Delete(context.Background(), gone.ID))

	agg := f.aggregator()
	ctx := context.Background()

	vaccs, err := agg.UpcomingVaccinations(ctx, 7)
	require.NoError(t, err)
	require.Len(t, vaccs, 1)
	assert.Equal(t, kept.ID, vaccs[0].PatientID)

	appts, err := agg.UpcomingAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, kept.ID, appts[0].PatientID)

	stats, err := agg.DoctorStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DoctorStats{TotalPatients: 1, TodayAppointments: 1, RecentRecords: 1}, stats)
}

// faultyVaccinations injects failures and stalls per patient.
type faultyVaccinations struct {
	repository.VaccinationRepository
	fail   map[uuid.UUID]error
	stall  map[uuid.UUID]bool
	active int32
	peak   int32
	delay  time.Duration
}

func (f *faultyVaccinations) ListDue(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.Vaccination, error) {
	cur := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, cur) {
			break
		}
	}

	if err := f.fail[patientID]; err != nil {
		return nil, err
	}
	if f.stall[patientID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.VaccinationRepository.ListDue(ctx, patientID, from, to)
}

func (f *fixture) faulty() *faultyVaccinations {
	fv := &faultyVaccinations{
		VaccinationRepository: f.repos.Vaccinations,
		fail:                  map[uuid.UUID]error{},
		stall:                 map[uuid.UUID]bool{},
	}
	f.repos.Vaccinations = fv
	return fv
}

func TestReadFailureYieldsEmptyResultAndLogs(t *testing.T) {
	f := newFixture(t)
	var patients []*model.Patient
	for i := 0; i < 5; i++ {
		p := f.patient(fmt.Sprintf("p%d", i))
		f.vaccination(p, "flu", at(day))
		patients = append(patients, p)
	}
	fv := f.faulty()
	backendErr := errors.New("connection reset")
	fv.fail[patients[2].ID] = backendErr
	fv.stall[patients[4].ID] = true

	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf})

	got, err := f.aggregator(WithLogger(log)).UpcomingVaccinations(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
	assert.False(t, errors.Is(err, ErrPartialScan), "backend failure is not a partial scan")
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "aggregation failed")
	assert.Contains(t, buf.String(), OpUpcomingVaccinations)
}

func TestPatientListFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.Patients = failingPatients{f.repos.Patients}

	stats, err := f.aggregator().DoctorStats(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.DoctorStats{}, stats)
}

type failingPatients struct {
	repository.PatientRepository
}

func (failingPatients) List(context.Context, *model.PatientFilter) ([]*model.Patient, error) {
	return nil, errors.New("permission denied")
}

// cancelingPatients stalls until its read expires and then fails the way
// lib/pq does, with a driver error instead of ctx.Err().
type cancelingPatients struct {
	repository.PatientRepository
}

func (cancelingPatients) List(ctx context.Context, _ *model.PatientFilter) ([]*model.Patient, error) {
	<-ctx.Done()
	return nil, errors.New("pq: canceling statement due to user request")
}

func TestPatientListTimeoutIsPartial(t *testing.T) {
	f := newFixture(t)
	f.cfg.ReadTimeout = 20 * time.Millisecond
	f.patient("pat")
	f.repos.Patients = cancelingPatients{f.repos.Patients}

	got, err := f.aggregator().UpcomingAppointments(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialScan)
	assert.Contains(t, err.Error(), "canceling statement")
	assert.Empty(t, got)

	partial, ok := AsPartial(err)
	require.True(t, ok)
	assert.Equal(t, OpUpcomingAppointments, partial.Operation)
	assert.Zero(t, partial.Scanned)
}

func TestPatientListCancellationIsAFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.Patients = cancelingPatients{f.repos.Patients}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := f.aggregator().UpcomingAppointments(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPartialScan))
}

func TestReadTimeoutYieldsPartialResults(t *testing.T) {
	f := newFixture(t)
	f.cfg.ReadTimeout = 20 * time.Millisecond
	var patients []*model.Patient
	for i := 0; i < 4; i++ {
		p := f.patient(fmt.Sprintf("p%d", i))
		f.vaccination(p, "flu", at(day))
		patients = append(patients, p)
	}
	fv := f.faulty()
	fv.stall[patients[1].ID] = true

	got, err := f.aggregator().UpcomingVaccinations(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialScan)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	partial, ok := AsPartial(err)
	require.True(t, ok)
	assert.Equal(t, 3, partial.Scanned)
	assert.Equal(t, 4, partial.Total)
	assert.Equal(t, OpUpcomingVaccinations, partial.Operation)

	require.Len(t, got, 3)
	for _, item := range got {
		assert.NotEqual(t, patients[1].ID, item.PatientID)
	}
}

func TestDeadlineYieldsPartialResults(t *testing.T) {
	f := newFixture(t)
	f.cfg.ReadTimeout = 0
	f.cfg.Deadline = 30 * time.Millisecond
	f.cfg.Concurrency = 2
	for i := 0; i < 6; i++ {
		p := f.patient(fmt.Sprintf("p%d", i))
		f.vaccination(p, "flu", at(day))
	}
	fv := f.faulty()
	for _, p := range mustList(t, f.repos) {
		fv.stall[p.ID] = true
	}

	start := time.Now()
	got, err := f.aggregator().UpcomingVaccinations(context.Background(), 7)
	assert.Less(t, time.Since(start), 2*time.Second)

	partial, ok := AsPartial(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 0, partial.Scanned)
	assert.Equal(t, 6, partial.Total)
	assert.Empty(t, got)
}

func TestDoctorStatsPartialKeepsTotal(t *testing.T) {
	f := newFixture(t)
	f.cfg.ReadTimeout = 20 * time.Millisecond
	p := f.patient("slow")
	q := f.patient("fast")
	f.record(p, now)
	f.record(q, now)
	f.repos.Records = &stallingRecords{MedicalRecordRepository: f.repos.Records, stall: p.ID}

	stats, err := f.aggregator().DoctorStats(context.Background())
	assert.ErrorIs(t, err, ErrPartialScan)
	assert.Equal(t, 2, stats.TotalPatients)
	assert.Equal(t, 1, stats.RecentRecords)
}

type stallingRecords struct {
	repository.MedicalRecordRepository
	stall uuid.UUID
}

func (s *stallingRecords) CountSince(ctx context.Context, patientID uuid.UUID, since time.Time) (int, error) {
	if patientID == s.stall {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.MedicalRecordRepository.CountSince(ctx, patientID, since)
}

func TestCallerCancellationIsAFailure(t *testing.T) {
	f := newFixture(t)
	f.patient("p")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := f.aggregator().UpcomingVaccinations(ctx, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrPartialScan))
	assert.Empty(t, got)
}

func TestConcurrencyIsBounded(t *testing.T) {
	f := newFixture(t)
	f.cfg.Concurrency = 3
	for i := 0; i < 12; i++ {
		p := f.patient(fmt.Sprintf("p%d", i))
		f.vaccination(p, "flu", at(day))
	}
	fv := f.faulty()
	fv.delay = 5 * time.Millisecond

	got, err := f.aggregator().UpcomingVaccinations(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, got, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&fv.peak), int32(3))
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		p := f.patient(fmt.Sprintf("p%d", i))
		f.vaccination(p, "flu", at(time.Duration(i)*day))
	}
	agg := f.aggregator()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := agg.UpcomingVaccinations(context.Background(), 7)
			assert.NoError(t, err)
			assert.Len(t, got, 5)
		}()
	}
	wg.Wait()
}

func mustList(t *testing.T, repos *repository.Repositories) []*model.Patient {
	t.Helper()
	ps, err := repos.Patients.List(context.Background(), nil)
	require.NoError(t, err)
	return ps
}
