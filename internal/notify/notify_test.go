package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradejournal/internal/events"
	"tradejournal/pkg/db"
)

type stubUsers struct{ user *db.User }

func (s stubUsers) GetUserByID(ctx context.Context, id string) (*db.User, error) { return s.user, nil }

type stubDelivery struct {
	records map[string]db.AlertDeliveryRecord
}

func newStubDelivery() *stubDelivery { return &stubDelivery{records: map[string]db.AlertDeliveryRecord{}} }

func (s *stubDelivery) key(userID, code, direction string) string { return userID + ":" + code + ":" + direction }

func (s *stubDelivery) GetAlertDelivery(ctx context.Context, userID, code, direction string) (*db.AlertDeliveryRecord, error) {
	if r, ok := s.records[s.key(userID, code, direction)]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *stubDelivery) RecordAlertDelivery(ctx context.Context, userID, code, direction string, sentAt time.Time) error {
	s.records[s.key(userID, code, direction)] = db.AlertDeliveryRecord{UserID: userID, Code: code, Direction: direction, LastSentAt: sentAt, LastError: ""}
	return nil
}

func (s *stubDelivery) RecordAlertDeliveryFailure(ctx context.Context, userID, code, direction, sendErr string) error {
	key := s.key(userID, code, direction)
	r := s.records[key]
	r.UserID, r.Code, r.Direction, r.LastError = userID, code, direction, sendErr
	s.records[key] = r
	return nil
}

type countingSender struct{ sent int32 }

func (s *countingSender) Send(ctx context.Context, to, subject, html, text string) error {
	atomic.AddInt32(&s.sent, 1)
	return nil
}

type failingSender struct {
	sent int32
	err  error
}

func (s *failingSender) Send(ctx context.Context, to, subject, html, text string) error {
	atomic.AddInt32(&s.sent, 1)
	return s.err
}

// Invariant 8: two alerts for the same (user, code, direction) less than
// 10s apart yield exactly one email.
func TestDispatchRateLimitsRepeatedAlerts(t *testing.T) {
	user := &db.User{ID: "u1", Email: "trader@example.com", EmailAlertsEnabled: true}
	sender := &countingSender{}
	d := New(stubUsers{user: user}, newStubDelivery(), sender, 10*time.Second, zerolog.Nop())

	alert := events.AlertEvent{UserID: "u1", Code: "600000", Direction: "stop_loss", Price: 9.5, Target: 10.0}
	d.Dispatch(context.Background(), alert)
	d.Dispatch(context.Background(), alert)

	if sent := atomic.LoadInt32(&sender.sent); sent != 1 {
		t.Fatalf("expected exactly 1 email within the cooldown window, got %d", sent)
	}
}

// A failed send must not advance last_sent_at: the next qualifying alert,
// even immediately after, is retried rather than suppressed by the cooldown.
func TestDispatchRetriesImmediatelyAfterSendFailure(t *testing.T) {
	user := &db.User{ID: "u1", Email: "trader@example.com", EmailAlertsEnabled: true}
	sender := &failingSender{err: errors.New("smtp unavailable")}
	d := New(stubUsers{user: user}, newStubDelivery(), sender, 10*time.Second, zerolog.Nop())

	alert := events.AlertEvent{UserID: "u1", Code: "600000", Direction: "stop_loss", Price: 9.5, Target: 10.0}
	d.Dispatch(context.Background(), alert)
	d.Dispatch(context.Background(), alert)

	if sent := atomic.LoadInt32(&sender.sent); sent != 2 {
		t.Fatalf("expected both sends to be attempted after a failure, got %d", sent)
	}
}

func TestDispatchSuppressesWhenAlertsDisabled(t *testing.T) {
	user := &db.User{ID: "u1", Email: "trader@example.com", EmailAlertsEnabled: false}
	sender := &countingSender{}
	d := New(stubUsers{user: user}, newStubDelivery(), sender, 10*time.Second, zerolog.Nop())

	d.Dispatch(context.Background(), events.AlertEvent{UserID: "u1", Code: "600000", Direction: "stop_loss", Price: 9.5, Target: 10.0})

	if sent := atomic.LoadInt32(&sender.sent); sent != 0 {
		t.Fatalf("expected no email when alerts are disabled, got %d", sent)
	}
}
