// Package app assembles the services shared by the api, worker and CLI
// binaries from one Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/health-records/internal/blobstore"
	"github.com/jwalitptl/health-records/internal/config"
	"github.com/jwalitptl/health-records/internal/handler/health"
	"github.com/jwalitptl/health-records/internal/notify"
	"github.com/jwalitptl/health-records/internal/reminder"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/repository/memory"
	"github.com/jwalitptl/health-records/internal/repository/postgres"
	"github.com/jwalitptl/health-records/internal/worker"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/messaging"
	redisbroker "github.com/jwalitptl/health-records/pkg/messaging/redis"
	"github.com/jwalitptl/health-records/pkg/metrics"
	"github.com/jwalitptl/health-records/pkg/security"
)

const metricsNamespace = "health_records"

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Repos    *repository.Repositories
	Location *time.Location

	// DB is nil for the memory driver.
	DB *sqlx.DB
	// Broker is nil when redis is not configured.
	Broker *redisbroker.RedisBroker

	blobs blobstore.Store
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Console,
	})
}

// New connects every backend named by cfg. Close releases them.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.Log)
	}
	loc, err := cfg.Reminders.Location()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  metrics.NewWithRegistry(reg, metricsNamespace, ""),
		Location: loc,
	}

	switch cfg.Server.Driver {
	case "memory":
		a.Repos = memory.NewStore().Repositories()
		log.Warn("using in-memory repositories, data is lost on restart")
	default:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Repos = postgres.NewRepositories(db, a.Metrics)
	}

	if cfg.Redis.URL != "" {
		zl := log.With("redis").Zerolog()
		broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, zl)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Broker = broker
	}

	return a, nil
}

// Close releases database and redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// Blobs opens the configured blob store once, wrapping it with at-rest
// encryption when a secret is configured.
func (a *App) Blobs() (blobstore.Store, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}

	var store blobstore.Store
	switch a.Config.Storage.Driver {
	case "memory":
		store = blobstore.NewMemoryStore()
	default:
		fs, err := blobstore.NewFSStore(a.Config.Storage.Root)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	if secret := a.Config.Storage.EncryptionSecret; secret != "" {
		enc, err := security.NewEncryptorFromSecret(secret, "blobstore")
		if err != nil {
			return nil, fmt.Errorf("blob encryption: %w", err)
		}
		store = blobstore.NewEncryptedStore(store, enc)
	}

	a.blobs = store
	return store, nil
}

func (a *App) Aggregator() *reminder.Aggregator {
	r := a.Config.Reminders
	return reminder.NewAggregator(a.Repos, reminder.Config{
		VaccinationHorizonDays: r.VaccinationHorizonDays,
		AppointmentHorizonDays: r.AppointmentHorizonDays,
		Location:               a.Location,
		ReadTimeout:            r.ReadTimeout,
		Deadline:               r.Deadline,
		Concurrency:            r.ScanConcurrency,
	}, reminder.WithLogger(a.Logger), reminder.WithMetrics(a.Metrics))
}

// Sender picks SMTP when configured, then the redis channel, then the log.
func (a *App) Sender() notify.Sender {
	switch {
	case a.Config.SMTP.Enabled():
		s := a.Config.SMTP
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password,
			From:     s.From,
		})
	case a.Broker != nil:
		return notify.NewBrokerSender(a.Broker, a.Config.Redis.Channel)
	default:
		return notify.NewLogSender(a.Logger)
	}
}

func (a *App) Dispatcher(sender notify.Sender) *notify.Dispatcher {
	cfg := notify.DefaultDispatcherConfig()
	cfg.MaxRetries = a.Config.Reminders.SendRetries
	return notify.NewDispatcher(sender, cfg, a.Logger, a.Metrics)
}

func (a *App) ReminderWorker() *worker.ReminderWorker {
	var locker messaging.Locker
	if a.Broker != nil {
		locker = a.Broker
	}
	r := a.Config.Reminders
	return worker.NewReminderWorker(
		a.Aggregator(),
		a.Repos.Notifications,
		a.Dispatcher(a.Sender()),
		locker,
		worker.ReminderWorkerConfig{
			Interval:               r.Interval,
			VaccinationHorizonDays: r.VaccinationHorizonDays,
			Location:               a.Location,
			LockTTL:                r.LockTTL,
		},
		a.Logger,
		a.Metrics,
	)
}

// HealthChecks probes the connected backends.
func (a *App) HealthChecks() map[string]health.Check {
	checks := map[string]health.Check{}
	if a.DB != nil {
		checks["database"] = a.DB.PingContext
	}
	if a.Broker != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Broker.Client().Ping(ctx).Err()
		}
	}
	return checks
}
