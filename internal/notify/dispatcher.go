package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/metrics"
)

// Outcomes recorded on the reminders_sent_total counter.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

type DispatcherConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  time.Minute,
	}
}

// Dispatcher sends through a Sender with retries behind a circuit breaker.
type Dispatcher struct {
	sender  Sender
	channel string
	cfg     DispatcherConfig
	cb      *gobreaker.CircuitBreaker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	d := &Dispatcher{
		sender:  sender,
		channel: ChannelOf(sender),
		cfg:     cfg,
		logger:  log.With("dispatcher"),
		metrics: m,
	}
	d.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "notify-" + d.channel,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoRecipient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return d
}

// Channel names the underlying sender.
func (d *Dispatcher) Channel() string {
	return d.channel
}

// Send delivers n, retrying transient failures with exponential backoff.
// Missing recipients and an open breaker fail immediately.
func (d *Dispatcher) Send(ctx context.Context, n model.Notification) error {
	if n.Recipient == "" {
		d.metrics.RemindersSent.WithLabelValues(d.channel, OutcomeFailed).Inc()
		return ErrNoRecipient
	}

	attempt := 0
	op := func() error {
		attempt++
		_, err := d.cb.Execute(func() (interface{}, error) {
			return nil, d.sender.Send(ctx, n.Recipient, n.Subject, n.Body)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(err)
		case errors.Is(err, ErrNoRecipient), errors.Is(err, context.Canceled):
			return backoff.Permanent(err)
		}
		d.logger.Debug("send attempt failed", "channel", d.channel, "attempt", attempt, "error", err.Error())
		return err
	}

	b := backoff.NewExponentialBackOff()
	if d.cfg.InitialInterval > 0 {
		b.InitialInterval = d.cfg.InitialInterval
	}
	if d.cfg.MaxInterval > 0 {
		b.MaxInterval = d.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, d.cfg.MaxRetries), ctx))
	if err != nil {
		d.metrics.RemindersSent.WithLabelValues(d.channel, OutcomeFailed).Inc()
		return fmt.Errorf("send via %s after %d attempts: %w", d.channel, attempt, err)
	}
	d.metrics.RemindersSent.WithLabelValues(d.channel, OutcomeSent).Inc()
	return nil
}
