// Package monitor implements C4, the Position/Alert Monitor: a single
// long-lived loop that watches every open position across the store and
// emits latched stop-loss/take-profit events to C5.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradejournal/internal/events"
	"tradejournal/internal/pricecache"
	"tradejournal/pkg/db"
)

// PriceBatcher is C2's batch-fetch surface, forced fresh on every tick.
type PriceBatcher interface {
	Batch(ctx context.Context, codes []string, force bool) []pricecache.Result
}

// PositionLister is C3's cross-user open-position enumeration.
type PositionLister interface {
	ListOpenPositionsAllStrategies(ctx context.Context) ([]db.TradeEvent, error)
}

// Monitor is the stop-loss/take-profit edge detector.
type Monitor struct {
	positions PositionLister
	prices    PriceBatcher
	bus       *events.Bus
	interval  time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	latched map[string]bool // key: tradeID + ":" + direction
}

// New builds a Monitor ticking at interval (10s by default, per the
// deployment's MONITOR_TICK_INTERVAL).
func New(positions PositionLister, prices PriceBatcher, bus *events.Bus, interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		positions: positions,
		prices:    prices,
		bus:       bus,
		interval:  interval,
		log:       log.With().Str("component", "monitor").Logger(),
		latched:   make(map[string]bool),
	}
}

// Start runs the tick loop in the background until ctx is cancelled. Any
// in-flight tick completes before the goroutine exits; no partial alert
// state survives a cancelled tick because latch mutation only happens after
// an alert is fully constructed.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick(ctx)
			case <-ctx.Done():
				m.log.Info().Msg("monitor stopped")
				return
			}
		}
	}()
	m.log.Info().Dur("interval", m.interval).Msg("monitor started")
}

func (m *Monitor) tick(ctx context.Context) {
	positions, err := m.positions.ListOpenPositionsAllStrategies(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("list open positions failed")
		return
	}
	if len(positions) == 0 {
		return
	}

	codeSet := make(map[string]struct{})
	for _, p := range positions {
		codeSet[p.Code] = struct{}{}
	}
	codes := make([]string, 0, len(codeSet))
	for c := range codeSet {
		codes = append(codes, c)
	}

	results := m.prices.Batch(ctx, codes, true)
	priceByCode := make(map[string]pricecache.Result, len(results))
	for _, r := range results {
		priceByCode[r.Code] = r
	}

	for _, p := range positions {
		res, ok := priceByCode[p.Code]
		if !ok || res.Price <= 0 {
			continue
		}
		m.checkEdge(p, "stop_loss", p.StopLossAlert, p.StopLossPrice, res.Price, func(q, target float64) bool { return q <= target })
		m.checkEdge(p, "take_profit", p.TakeProfitAlert, p.TakeProfitPrice, res.Price, func(q, target float64) bool { return q >= target })
	}
}

// checkEdge implements the latch: crossed fires once, then stays latched
// until the price is observed back on the safe side of target.
func (m *Monitor) checkEdge(p db.TradeEvent, direction string, enabled bool, target *float64, price float64, crossed func(q, target float64) bool) {
	if !enabled || target == nil {
		return
	}
	key := p.ID + ":" + direction

	m.mu.Lock()
	defer m.mu.Unlock()

	if crossed(price, *target) {
		if m.latched[key] {
			return
		}
		m.latched[key] = true
		m.bus.Publish(events.EventAlertTriggered, events.AlertEvent{
			UserID:     p.UserID,
			StrategyID: p.StrategyID,
			Code:       p.Code,
			Direction:  direction,
			Price:      price,
			Target:     *target,
		})
		m.log.Info().Str("trade_id", p.ID).Str("code", p.Code).Str("direction", direction).Float64("price", price).Msg("alert latch armed")
		return
	}

	if m.latched[key] {
		delete(m.latched, key)
		m.log.Debug().Str("trade_id", p.ID).Str("code", p.Code).Str("direction", direction).Msg("alert latch reset")
	}
}
