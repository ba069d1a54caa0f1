package consistency

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradejournal/internal/events"
	"tradejournal/pkg/db"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

type stubStrategies struct{ strategies []db.Strategy }

func (s stubStrategies) ListAllStrategies(ctx context.Context) ([]db.Strategy, error) {
	return s.strategies, nil
}

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestAuditorDetectsMismatch(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	queries := database.Queries()

	tx, err := database.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := queries.SetAnchor(ctx, tx, db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 1000, Date: day("2026-01-01")}); err != nil {
		t.Fatalf("set anchor: %v", err)
	}
	// Persist a deliberately wrong history point so the auditor finds drift.
	if err := queries.ReplaceCapitalHistory(ctx, tx, "u1", "s1", []db.CapitalHistoryPoint{
		{UserID: "u1", StrategyID: "s1", Date: day("2026-01-01"), TotalAssets: 999999, AvailableFunds: 999999, PositionValue: 0},
	}); err != nil {
		t.Fatalf("replace history: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	lister := stubStrategies{strategies: []db.Strategy{{ID: "s1", UserID: "u1"}}}
	compute := func(trades []db.TradeEvent, anchor db.CapitalAnchor) []db.CapitalHistoryPoint {
		return []db.CapitalHistoryPoint{
			{UserID: anchor.UserID, StrategyID: anchor.StrategyID, Date: anchor.Date, TotalAssets: anchor.Amount, AvailableFunds: anchor.Amount, PositionValue: 0},
		}
	}

	bus := events.NewBus()
	mismatches, unsub := bus.Subscribe(events.EventConsistencyMismatch, 4)
	defer unsub()

	auditor := New(lister, queries, compute, bus, "@every 1h", zerolog.Nop())
	auditor.runOnce(ctx)

	select {
	case <-mismatches:
	default:
		t.Fatal("expected a consistency mismatch event")
	}
}

func TestAuditorNoMismatchWhenConsistent(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	queries := database.Queries()

	tx, err := database.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := queries.SetAnchor(ctx, tx, db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 1000, Date: day("2026-01-01")}); err != nil {
		t.Fatalf("set anchor: %v", err)
	}
	if err := queries.ReplaceCapitalHistory(ctx, tx, "u1", "s1", []db.CapitalHistoryPoint{
		{UserID: "u1", StrategyID: "s1", Date: day("2026-01-01"), TotalAssets: 1000, AvailableFunds: 1000, PositionValue: 0},
	}); err != nil {
		t.Fatalf("replace history: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	lister := stubStrategies{strategies: []db.Strategy{{ID: "s1", UserID: "u1"}}}
	compute := func(trades []db.TradeEvent, anchor db.CapitalAnchor) []db.CapitalHistoryPoint {
		return []db.CapitalHistoryPoint{
			{UserID: anchor.UserID, StrategyID: anchor.StrategyID, Date: anchor.Date, TotalAssets: anchor.Amount, AvailableFunds: anchor.Amount, PositionValue: 0},
		}
	}

	bus := events.NewBus()
	mismatches, unsub := bus.Subscribe(events.EventConsistencyMismatch, 4)
	defer unsub()

	auditor := New(lister, queries, compute, bus, "@every 1h", zerolog.Nop())
	auditor.runOnce(ctx)

	select {
	case <-mismatches:
		t.Fatal("expected no mismatch event")
	default:
	}
}
