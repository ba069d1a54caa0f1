// Package consistency implements a background drift auditor over C3's
// recomputation: it never repairs state itself, only detects and logs
// divergence between a fresh recompute and what is persisted — the only
// valid repair remains re-running recompute for that strategy, which every
// mutation already does.
package consistency

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tradejournal/internal/events"
	"tradejournal/pkg/db"
)

// StrategyLister enumerates every strategy to check during an audit pass.
type StrategyLister interface {
	ListAllStrategies(ctx context.Context) ([]db.Strategy, error)
}

// Auditor periodically recomputes every strategy and diffs the result
// against the persisted capital history.
type Auditor struct {
	strategies StrategyLister
	queries    *db.TradeQueries
	compute    func(trades []db.TradeEvent, anchor db.CapitalAnchor) []db.CapitalHistoryPoint
	bus        *events.Bus
	cron       *cron.Cron
	schedule   string
	log        zerolog.Logger
}

// New builds an Auditor. schedule is a standard cron expression (the
// deployment default is "@every 5m", matching CONSISTENCY_INTERVAL).
// compute performs one recomputation without touching the database —
// callers pass ledger.Recomputer.Compute bound to time.Now.
func New(strategies StrategyLister, queries *db.TradeQueries, compute func([]db.TradeEvent, db.CapitalAnchor) []db.CapitalHistoryPoint, bus *events.Bus, schedule string, log zerolog.Logger) *Auditor {
	return &Auditor{
		strategies: strategies,
		queries:    queries,
		compute:    compute,
		bus:        bus,
		cron:       cron.New(),
		schedule:   schedule,
		log:        log.With().Str("component", "consistency").Logger(),
	}
}

// Start registers the audit job and starts the cron scheduler; it returns
// once the job is registered, the scheduler itself runs in the background.
func (a *Auditor) Start(ctx context.Context) error {
	_, err := a.cron.AddFunc(a.schedule, func() { a.runOnce(ctx) })
	if err != nil {
		return err
	}
	a.cron.Start()
	a.log.Info().Str("schedule", a.schedule).Msg("consistency auditor started")

	go func() {
		<-ctx.Done()
		stopCtx := a.cron.Stop()
		<-stopCtx.Done()
		a.log.Info().Msg("consistency auditor stopped")
	}()
	return nil
}

func (a *Auditor) runOnce(ctx context.Context) {
	strategies, err := a.strategies.ListAllStrategies(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("list strategies failed")
		return
	}

	mismatches := 0
	for _, s := range strategies {
		if a.auditOne(ctx, s) {
			mismatches++
		}
	}
	if mismatches == 0 {
		a.log.Debug().Int("strategies", len(strategies)).Msg("consistency check ok")
	} else {
		a.log.Warn().Int("mismatches", mismatches).Msg("consistency check found mismatches")
	}
}

// auditOne returns true if the persisted history for s diverges from a
// fresh recompute.
func (a *Auditor) auditOne(ctx context.Context, s db.Strategy) bool {
	anchor, err := a.queries.GetAnchor(ctx, s.UserID, s.ID)
	if err != nil {
		a.log.Error().Err(err).Str("strategy_id", s.ID).Msg("load anchor failed")
		return false
	}
	if anchor == nil {
		return false
	}

	trades, err := a.queries.ListTradesByStrategy(ctx, s.UserID, s.ID)
	if err != nil {
		a.log.Error().Err(err).Str("strategy_id", s.ID).Msg("load trades failed")
		return false
	}
	fresh := a.compute(trades, *anchor)
	if len(fresh) == 0 {
		return false
	}

	persisted, err := a.queries.ListCapitalHistory(ctx, s.UserID, s.ID, anchor.Date, fresh[len(fresh)-1].Date)
	if err != nil {
		a.log.Error().Err(err).Str("strategy_id", s.ID).Msg("load persisted history failed")
		return false
	}

	if !historiesMatch(fresh, persisted) {
		a.bus.Publish(events.EventConsistencyMismatch, events.ConsistencyMismatchEvent{
			UserID: s.UserID, StrategyID: s.ID, Detail: "persisted capital history diverges from a fresh recompute",
		})
		return true
	}
	return false
}

func historiesMatch(fresh, persisted []db.CapitalHistoryPoint) bool {
	if len(fresh) != len(persisted) {
		return false
	}
	for i := range fresh {
		if !fresh[i].Date.Equal(persisted[i].Date) ||
			fresh[i].TotalAssets != persisted[i].TotalAssets ||
			fresh[i].AvailableFunds != persisted[i].AvailableFunds ||
			fresh[i].PositionValue != persisted[i].PositionValue {
			return false
		}
	}
	return true
}
