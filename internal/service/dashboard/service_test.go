package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/reminder"
)

type fakeAggregator struct {
	stats       model.DoctorStats
	statsErr    error
	statsCalls  int
	lastHorizon int
	// during runs inside DoctorStats, while the scan is in flight.
	during      func()
}

func (f *fakeAggregator) UpcomingVaccinations(_ context.Context, horizonDays int) ([]model.UpcomingVaccination, error) {
	f.lastHorizon = horizonDays
	return []model.UpcomingVaccination{{VaccineName: "flu", DaysUntil: 1}}, nil
}

func (f *fakeAggregator) UpcomingAppointments(context.Context) ([]model.UpcomingAppointment, error) {
	return nil, nil
}

func (f *fakeAggregator) DoctorStats(context.Context) (model.DoctorStats, error) {
	f.statsCalls++
	if f.during != nil {
		f.during()
	}
	return f.stats, f.statsErr
}

func TestStatsCached(t *testing.T) {
	agg := &fakeAggregator{stats: model.DoctorStats{TotalPatients: 3}}
	svc := NewService(agg, 7, time.Minute)

	for i := 0; i < 3; i++ {
		stats, err := svc.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalPatients)
	}
	assert.Equal(t, 1, agg.statsCalls)

	svc.Invalidate()
	_, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, agg.statsCalls)
}

func TestStatsOverlappingInvalidateNotCached(t *testing.T) {
	agg := &fakeAggregator{stats: model.DoctorStats{TotalPatients: 3}}
	svc := NewService(agg, 7, time.Minute)
	agg.during = svc.Invalidate

	_, err := svc.Stats(context.Background())
	require.NoError(t, err)
	agg.during = nil

	_, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, agg.statsCalls, "stats read during a write are not cached")

	_, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, agg.statsCalls)
}

func TestPartialStatsNotCached(t *testing.T) {
	partial := &reminder.PartialScanError{Operation: reminder.OpDoctorStats, Scanned: 1, Total: 2, Err: context.DeadlineExceeded}
	agg := &fakeAggregator{stats: model.DoctorStats{TotalPatients: 2}, statsErr: partial}
	svc := NewService(agg, 7, time.Minute)

	stats, err := svc.Stats(context.Background())
	assert.True(t, errors.Is(err, reminder.ErrPartialScan))
	assert.Equal(t, 2, stats.TotalPatients)

	_, _ = svc.Stats(context.Background())
	assert.Equal(t, 2, agg.statsCalls)
}

func TestVaccinationsHorizon(t *testing.T) {
	agg := &fakeAggregator{}
	svc := NewService(agg, 7, 0)

	_, err := svc.Vaccinations(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, agg.lastHorizon)

	h := 30
	_, err = svc.Vaccinations(context.Background(), &h)
	require.NoError(t, err)
	assert.Equal(t, 30, agg.lastHorizon)
}
