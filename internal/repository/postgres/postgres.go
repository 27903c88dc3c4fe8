package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/pkg/metrics"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type base struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewRepositories builds every repository over one connection pool. m may be nil.
func NewRepositories(db *sqlx.DB, m *metrics.Metrics) *repository.Repositories {
	b := base{db: db, metrics: m}
	return &repository.Repositories{
		Users:         &userRepository{b},
		Patients:      &patientRepository{b},
		Records:       &medicalRecordRepository{b},
		Vaccinations:  &vaccinationRepository{b},
		Appointments:  &appointmentRepository{b},
		Notifications: &notificationRepository{b},
	}
}

// observe records latency and outcome for one statement.
func (b base) observe(op string, start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	status := "ok"
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		status = "error"
	}
	b.metrics.DatabaseOperations.WithLabelValues(op, status).Inc()
	b.metrics.DatabaseLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// translate maps driver errors onto repository sentinels.
func translate(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("failed to %s: %w", action, repository.ErrDuplicate)
		case pqForeignKeyViolation:
			return fmt.Errorf("failed to %s: %w", action, repository.ErrNotFound)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// expectRows turns a zero-row update or delete into ErrNotFound.
func expectRows(res sql.Result, err error, action string) error {
	if err != nil {
		return translate(err, action)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err, action)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func limitClause(n int) string {
	if n > 0 {
		return fmt.Sprintf(" LIMIT %d", n)
	}
	return ""
}
