package sms

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/datadog"
	"github.com/minbiocabanon/pepettebox/internal/notifications"
)

// Inbound is a text message handed over by the modem driver.
type Inbound struct {
	From       string
	Body       string
	ReceivedAt time.Time
}

type Kind string

const (
	KindGeofence   Kind = "geofence"
	KindLowBattery Kind = "low_battery"
	KindLowVoltage Kind = "low_voltage"
	KindFlood      Kind = "flood"
	KindSelfTest   Kind = "self_test"
	KindStatus     Kind = "status"
	KindReply      Kind = "reply"
)

// Notification is one outbound message request. Each alarm firing produces
// exactly one of these; delivery belongs to the modem.
type Notification struct {
	ID        uuid.UUID
	Kind      Kind
	To        string
	Body      string
	CreatedAt time.Time
}

func NewNotification(kind Kind, to, body string, now time.Time) Notification {
	return Notification{
		ID:        uuid.New(),
		Kind:      kind,
		To:        to,
		Body:      body,
		CreatedAt: now,
	}
}

// Sender is the outbound side of the modem driver.
type Sender interface {
	SendSMS(to, body string) error
}

// Outbox dispatches notifications one at a time to the modem, counts them,
// and mirrors alarm traffic to the push channel when configured.
type Outbox struct {
	sender Sender
}

func NewOutbox(sender Sender) *Outbox {
	return &Outbox{sender: sender}
}

func (o *Outbox) Dispatch(n Notification) error {
	err := o.sender.SendSMS(n.To, n.Body)
	if err != nil {
		log.Error().
			Err(err).
			Str("id", n.ID.String()).
			Str("kind", string(n.Kind)).
			Str("to", n.To).
			Msg("Failed to send SMS")
		datadog.Count("sms.send_failed", 1, "kind:"+string(n.Kind))
		return err
	}

	log.Info().
		Str("id", n.ID.String()).
		Str("kind", string(n.Kind)).
		Str("to", n.To).
		Msg("SMS sent")
	datadog.Count("sms.sent", 1, "kind:"+string(n.Kind))

	if n.Kind != KindReply && n.Kind != KindSelfTest && notifications.Enabled() {
		if err := notifications.Send("pepettebox "+string(n.Kind), n.Body); err != nil {
			log.Warn().Err(err).Msg("Push mirror delivery failed")
		}
	}
	return nil
}
