// Package notify delivers rendered reminders through pluggable senders.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/pkg/logger"
)

// ErrNoRecipient is returned for notifications without an address. It is
// never retried.
var ErrNoRecipient = errors.New("notification has no recipient")

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Named is implemented by senders that report a channel name for metrics.
type Named interface {
	Channel() string
}

// ChannelOf returns the sender's channel name, or "custom".
func ChannelOf(s Sender) string {
	if n, ok := s.(Named); ok {
		return n.Channel()
	}
	return "custom"
}

// LogSender only logs what would have been sent.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSender{logger: log.With("notify")}
}

func (s *LogSender) Send(_ context.Context, recipient, subject, _ string) error {
	s.logger.Info("reminder", "recipient", recipient, "subject", subject)
	return nil
}

func (s *LogSender) Channel() string { return "log" }

// Recorder keeps every message in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []model.Notification
	// Err, when set, is returned by Send instead of recording.
	Err error
}

func (r *Recorder) Send(_ context.Context, recipient, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, model.Notification{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

func (r *Recorder) Channel() string { return "recorder" }

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.sent...)
}
