// Package notify implements C5, the Notification Dispatcher: it consumes
// AlertEvents from C4, applies the per-(user,code,direction) cooldown
// window, renders an email and hands it to a pluggable Sender.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tradejournal/internal/events"
	"tradejournal/pkg/db"
)

// Sender is the SMTP/API transport contract: render once, send once.
type Sender interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// UserLookup resolves the recipient and preference for an alert.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*db.User, error)
}

// DeliveryRecorder is C3's alert-delivery rate-limit table.
type DeliveryRecorder interface {
	GetAlertDelivery(ctx context.Context, userID, code, direction string) (*db.AlertDeliveryRecord, error)
	RecordAlertDelivery(ctx context.Context, userID, code, direction string, sentAt time.Time) error
	RecordAlertDeliveryFailure(ctx context.Context, userID, code, direction, sendErr string) error
}

// Dispatcher drains C4's alert inbox and delivers at most one email per
// (user, code, direction) per cooldown window.
type Dispatcher struct {
	users    UserLookup
	delivery DeliveryRecorder
	sender   Sender
	cooldown time.Duration
	log      zerolog.Logger
}

// New builds a Dispatcher whose coalescing window is cooldown (the
// deployment default, ALERT_COOLDOWN, is 10s).
func New(users UserLookup, delivery DeliveryRecorder, sender Sender, cooldown time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		users:    users,
		delivery: delivery,
		sender:   sender,
		cooldown: cooldown,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// Start subscribes to the alert bus and processes events until ctx is
// cancelled. Each event is handled synchronously in arrival order; a slow
// send delays only this consumer, never C4.
func (d *Dispatcher) Start(ctx context.Context, bus *events.Bus) {
	inbox, unsub := bus.Subscribe(events.EventAlertTriggered, 256)
	go func() {
		defer unsub()
		for {
			select {
			case payload := <-inbox:
				alert, ok := payload.(events.AlertEvent)
				if !ok {
					continue
				}
				d.Dispatch(ctx, alert)
			case <-ctx.Done():
				return
			}
		}
	}()
	d.log.Info().Dur("cooldown", d.cooldown).Msg("notification dispatcher started")
}

// Dispatch handles one alert event end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, alert events.AlertEvent) {
	user, err := d.users.GetUserByID(ctx, alert.UserID)
	if err != nil {
		d.log.Error().Err(err).Str("user_id", alert.UserID).Msg("load user failed")
		return
	}
	if user == nil || !user.EmailAlertsEnabled || user.Email == "" {
		d.log.Debug().Str("user_id", alert.UserID).Msg("alert suppressed: no email recipient")
		return
	}

	record, err := d.delivery.GetAlertDelivery(ctx, alert.UserID, alert.Code, alert.Direction)
	if err != nil {
		d.log.Error().Err(err).Msg("load alert delivery record failed")
		return
	}
	now := time.Now()
	if record != nil && now.Sub(record.LastSentAt) < d.cooldown {
		d.log.Debug().Str("code", alert.Code).Str("direction", alert.Direction).Msg("alert suppressed: cooldown window")
		return
	}

	subject, text, html := renderAlertEmail(alert, now)

	sendErr := d.sender.Send(ctx, user.Email, subject, html, text)
	if sendErr != nil {
		d.log.Error().Err(sendErr).Str("user_id", user.ID).Msg("send alert email failed")
		// Do not advance last_sent_at on failure: the cooldown must not
		// suppress the next qualifying tick just because this send failed.
		if err := d.delivery.RecordAlertDeliveryFailure(ctx, alert.UserID, alert.Code, alert.Direction, sendErr.Error()); err != nil {
			d.log.Error().Err(err).Msg("record alert delivery failure failed")
		}
		return
	}

	d.log.Info().Str("user_id", user.ID).Str("code", alert.Code).Str("direction", alert.Direction).Msg("alert email sent")
	if err := d.delivery.RecordAlertDelivery(ctx, alert.UserID, alert.Code, alert.Direction, now); err != nil {
		d.log.Error().Err(err).Msg("record alert delivery failed")
	}
}
