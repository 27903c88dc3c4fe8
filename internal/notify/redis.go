package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/pkg/messaging"
)

// MessageType tags reminder envelopes on the broker.
const MessageType = "reminder"

// BrokerSender publishes reminders for an external mailer to pick up.
type BrokerSender struct {
	broker  messaging.Broker
	channel string
	now     func() time.Time
}

func NewBrokerSender(broker messaging.Broker, channel string) *BrokerSender {
	return &BrokerSender{broker: broker, channel: channel, now: time.Now}
}

func (s *BrokerSender) Send(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return ErrNoRecipient
	}
	msg := messaging.Message{
		Type:    MessageType,
		Payload: model.Notification{Recipient: recipient, Subject: subject, Body: body},
		SentAt:  s.now().UTC(),
	}
	if err := s.broker.Publish(ctx, s.channel, msg); err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}
	return nil
}

func (s *BrokerSender) Channel() string { return "broker" }
