package ledger

import (
	"context"
	"testing"
	"time"

	"tradejournal/internal/apperr"
	"tradejournal/internal/events"
	"tradejournal/pkg/db"
)

type alwaysPaid struct{}

func (alwaysPaid) IsPaid(ctx context.Context, userID string) (bool, error) { return true, nil }

type neverPaid struct{}

func (neverPaid) IsPaid(ctx context.Context, userID string) (bool, error) { return false, nil }

func newTestService(t *testing.T, billingEnabled bool, billing BillingChecker) (*Service, *db.Database) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc := NewService(database, NewRecomputer(time.UTC), events.NewBus(), billing, billingEnabled)
	return svc, database
}

// S7 — risk sizing: shares derived from risk_per_trade when omitted.
func TestCreateTradeRiskSizing(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	ctx := context.Background()

	trade, err := svc.CreateTrade(ctx, "u1", "s1", CreateTradeInput{
		Code:          "600000",
		OpenTime:      day("2026-01-01"),
		OpenPrice:     20.00,
		StopLossPrice: ptrF(19.00),
		RiskPerTrade:  500,
	})
	if err != nil {
		t.Fatalf("create_trade: %v", err)
	}
	if trade.Shares != 500 {
		t.Fatalf("expected shares=500, got %v", trade.Shares)
	}
}

func TestCreateTradeBillingGate(t *testing.T) {
	svc, _ := newTestService(t, true, neverPaid{})
	ctx := context.Background()

	_, err := svc.CreateTrade(ctx, "u1", "s1", CreateTradeInput{
		Code: "600000", OpenTime: day("2026-01-01"), OpenPrice: 10, Shares: 1,
	})
	if err == nil {
		t.Fatal("expected BILLING_REQUIRED error")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Code != "BILLING_REQUIRED" {
		t.Fatalf("expected BILLING_REQUIRED, got %v", err)
	}
}

func TestCreateTradeDerivesTheoreticalRR(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	ctx := context.Background()

	trade, err := svc.CreateTrade(ctx, "u1", "s1", CreateTradeInput{
		Code: "600000", OpenTime: day("2026-01-01"), OpenPrice: 20, Shares: 100,
		StopLossPrice: ptrF(19), TakeProfitPrice: ptrF(23),
	})
	if err != nil {
		t.Fatalf("create_trade: %v", err)
	}
	if trade.TheoreticalRR == nil || *trade.TheoreticalRR != 3.0 {
		t.Fatalf("expected theoretical_rr=3.0, got %v", trade.TheoreticalRR)
	}
}

// Invariant 5 (partial close): proration of available_funds/position_value.
func TestClosePositionPartialProration(t *testing.T) {
	svc, database := newTestService(t, false, nil)
	ctx := context.Background()

	if err := svc.SetAnchor(ctx, "u1", "s1", 10000, day("2026-02-01")); err != nil {
		t.Fatalf("set_anchor: %v", err)
	}
	trade, err := svc.CreateTrade(ctx, "u1", "s1", CreateTradeInput{
		Code: "600000", OpenTime: day("2026-02-01"), OpenPrice: 10, Shares: 1000,
	})
	if err != nil {
		t.Fatalf("create_trade: %v", err)
	}

	err = svc.ClosePosition(ctx, "u1", "s1", trade.ID, ClosePositionInput{
		ClosePrice: 12, CloseTime: day("2026-02-02"), Shares: ptrF(300), OrderResult: "manual",
	})
	if err != nil {
		t.Fatalf("close_position: %v", err)
	}

	points, err := database.Queries().ListCapitalHistory(ctx, "u1", "s1", day("2026-02-01"), day("2026-02-02"))
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	d2, ok := pointOn(points, day("2026-02-02"))
	if !ok {
		t.Fatalf("missing day-2 point")
	}
	if d2.AvailableFunds != 3600 || d2.PositionValue != 7000 || d2.TotalAssets != 10600 {
		t.Fatalf("expected (3600,7000,10600), got (%v,%v,%v)", d2.AvailableFunds, d2.PositionValue, d2.TotalAssets)
	}

	parent, err := database.Queries().GetTrade(ctx, "u1", trade.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if parent.Shares != 700 || parent.Status != "open" {
		t.Fatalf("expected parent remaining open with 700 shares, got shares=%v status=%v", parent.Shares, parent.Status)
	}
}

// Invariant 4: create then delete returns history to its pre-creation state.
func TestCreateThenDeleteRestoresHistory(t *testing.T) {
	svc, database := newTestService(t, false, nil)
	ctx := context.Background()

	if err := svc.SetAnchor(ctx, "u1", "s1", 100000, day("2026-01-01")); err != nil {
		t.Fatalf("set_anchor: %v", err)
	}
	before, err := database.Queries().ListCapitalHistory(ctx, "u1", "s1", day("2026-01-01"), day("2026-01-01"))
	if err != nil {
		t.Fatalf("list history: %v", err)
	}

	trade, err := svc.CreateTrade(ctx, "u1", "s1", CreateTradeInput{
		Code: "600000", OpenTime: day("2026-01-01"), OpenPrice: 15, Shares: 1000,
	})
	if err != nil {
		t.Fatalf("create_trade: %v", err)
	}
	if err := svc.DeleteTrade(ctx, "u1", "s1", trade.ID); err != nil {
		t.Fatalf("delete_trade: %v", err)
	}

	after, err := database.Queries().ListCapitalHistory(ctx, "u1", "s1", day("2026-01-01"), day("2026-01-01"))
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(before) != len(after) || len(after) != 1 {
		t.Fatalf("expected history restored to 1 point, got before=%d after=%d", len(before), len(after))
	}
	if before[0].TotalAssets != after[0].TotalAssets {
		t.Fatalf("expected total_assets restored, got before=%v after=%v", before[0].TotalAssets, after[0].TotalAssets)
	}
}

func TestDeleteStrategyErasesHistory(t *testing.T) {
	svc, database := newTestService(t, false, nil)
	ctx := context.Background()

	if err := svc.SetAnchor(ctx, "u1", "s1", 100000, day("2026-01-01")); err != nil {
		t.Fatalf("set_anchor: %v", err)
	}
	if err := svc.DeleteStrategy(ctx, "u1", "s1"); err != nil {
		t.Fatalf("delete_strategy: %v", err)
	}
	anchor, err := database.Queries().GetAnchor(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("get anchor: %v", err)
	}
	if anchor != nil {
		t.Fatalf("expected anchor erased, got %v", anchor)
	}
}
