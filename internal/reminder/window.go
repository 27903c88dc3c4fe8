package reminder

import (
	"math"
	"time"

	"github.com/jwalitptl/health-records/internal/model"
)

const day = 24 * time.Hour

// DaysUntil is ceil((next - now) / 1 day).
func DaysUntil(now, next time.Time) int {
	return int(math.Ceil(float64(next.Sub(now)) / float64(day)))
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// TodayRange is [today 00:00, tomorrow 00:00) in loc.
func TodayRange(now time.Time, loc *time.Location) model.TimeRange {
	start := StartOfDay(now, loc)
	return model.TimeRange{From: start, To: start.AddDate(0, 0, 1)}
}

// AppointmentWindow is [tomorrow 00:00, tomorrow 00:00 + days) in loc, using
// calendar days so DST shifts do not move the boundary off midnight.
func AppointmentWindow(now time.Time, loc *time.Location, days int) model.TimeRange {
	tomorrow := StartOfDay(now, loc).AddDate(0, 0, 1)
	return model.TimeRange{From: tomorrow, To: tomorrow.AddDate(0, 0, days)}
}
