// Package dashboard serves the doctor dashboard from the reminder aggregator.
package dashboard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/reminder"
)

const statsKey = "doctor_stats"

// Aggregator is the subset of reminder.Aggregator the dashboard reads.
type Aggregator interface {
	UpcomingVaccinations(ctx context.Context, horizonDays int) ([]model.UpcomingVaccination, error)
	UpcomingAppointments(ctx context.Context) ([]model.UpcomingAppointment, error)
	DoctorStats(ctx context.Context) (model.DoctorStats, error)
}

type Service struct {
	agg            Aggregator
	defaultHorizon int
	cache          *cache.Cache
	// generation counts Invalidate calls.
	generation     atomic.Uint64
}

// NewService caches complete stats for statsTTL. A zero TTL disables caching.
// Writes made through this process invalidate the cache; writes from other
// processes, such as healthctl import, show up once the TTL expires.
func NewService(agg Aggregator, defaultHorizon int, statsTTL time.Duration) *Service {
	s := &Service{agg: agg, defaultHorizon: defaultHorizon}
	if statsTTL > 0 {
		s.cache = cache.New(statsTTL, 2*statsTTL)
	}
	return s
}

// Stats returns the doctor counters. Partial results are returned with their
// *reminder.PartialScanError and are never cached.
func (s *Service) Stats(ctx context.Context) (model.DoctorStats, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(statsKey); ok {
			return v.(model.DoctorStats), nil
		}
	}
	gen := s.generation.Load()
	stats, err := s.agg.DoctorStats(ctx)
	// A scan that overlapped an Invalidate may have missed the write.
	if err == nil && s.cache != nil && s.generation.Load() == gen {
		s.cache.SetDefault(statsKey, stats)
	}
	return stats, err
}

// Vaccinations uses the configured horizon when horizonDays is nil.
func (s *Service) Vaccinations(ctx context.Context, horizonDays *int) ([]model.UpcomingVaccination, error) {
	horizon := s.defaultHorizon
	if horizonDays != nil {
		horizon = *horizonDays
	}
	return s.agg.UpcomingVaccinations(ctx, horizon)
}

func (s *Service) Appointments(ctx context.Context) ([]model.UpcomingAppointment, error) {
	return s.agg.UpcomingAppointments(ctx)
}

// Invalidate drops cached stats after writes that change them.
func (s *Service) Invalidate() {
	s.generation.Add(1)
	if s.cache != nil {
		s.cache.Delete(statsKey)
	}
}

var _ Aggregator = (*reminder.Aggregator)(nil)
