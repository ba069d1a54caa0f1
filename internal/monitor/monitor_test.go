package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradejournal/internal/events"
	"tradejournal/internal/pricecache"
	"tradejournal/pkg/db"
)

type stubLister struct {
	positions []db.TradeEvent
}

func (s stubLister) ListOpenPositionsAllStrategies(ctx context.Context) ([]db.TradeEvent, error) {
	return s.positions, nil
}

type sequenceBatcher struct {
	mu     sync.Mutex
	prices []float64
	idx    int
}

func (b *sequenceBatcher) Batch(ctx context.Context, codes []string, force bool) []pricecache.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.prices[b.idx]
	if b.idx < len(b.prices)-1 {
		b.idx++
	}
	results := make([]pricecache.Result, len(codes))
	for i, c := range codes {
		results[i] = pricecache.Result{Code: c, Price: p, Source: "test"}
	}
	return results
}

func ptrF(v float64) *float64 { return &v }

// S6 — alert latch hysteresis: above,above,below,below,above,below fires
// exactly twice (first crossing at 9.9, then again at 9.7 after the reset at 10.2).
func TestMonitorLatchHysteresis(t *testing.T) {
	position := db.TradeEvent{
		ID: "t1", UserID: "u1", StrategyID: "s1", Code: "600000",
		Status: "open", StopLossAlert: true, StopLossPrice: ptrF(10.00),
	}
	lister := stubLister{positions: []db.TradeEvent{position}}
	batcher := &sequenceBatcher{prices: []float64{10.5, 10.1, 9.9, 9.8, 10.2, 9.7}}
	bus := events.NewBus()

	alerts, unsub := bus.Subscribe(events.EventAlertTriggered, 10)
	defer unsub()

	m := New(lister, batcher, bus, time.Millisecond, zerolog.Nop())

	for i := 0; i < len(batcher.prices); i++ {
		m.tick(context.Background())
	}

	var count int
	for {
		select {
		case <-alerts:
			count++
		default:
			if count != 2 {
				t.Fatalf("expected exactly 2 stop-loss alerts, got %d", count)
			}
			return
		}
	}
}
