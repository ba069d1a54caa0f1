package ledger

import (
	"testing"
	"time"

	"tradejournal/pkg/db"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptrF(v float64) *float64     { return &v }
func ptrT(v time.Time) *time.Time { return &v }

func pointOn(points []db.CapitalHistoryPoint, d time.Time) (db.CapitalHistoryPoint, bool) {
	for _, p := range points {
		if p.Date.Equal(d) {
			return p, true
		}
	}
	return db.CapitalHistoryPoint{}, false
}

// S1 — flat history: no trades, five daily points at the anchor amount.
func TestRecomputeFlatHistory(t *testing.T) {
	r := NewRecomputer(time.UTC)
	anchor := db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 100000, Date: day("2026-01-01")}

	points := r.Compute(nil, anchor, day("2026-01-05"))

	if len(points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(points))
	}
	for _, p := range points {
		if p.TotalAssets != 100000 || p.AvailableFunds != 100000 || p.PositionValue != 0 {
			t.Errorf("point %v: expected (100000,100000,0), got (%v,%v,%v)", p.Date, p.TotalAssets, p.AvailableFunds, p.PositionValue)
		}
	}
}

// S2 — the canonical buy/close example, same day.
func TestRecomputeCanonicalBuyClose(t *testing.T) {
	r := NewRecomputer(time.UTC)
	anchor := db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 100, Date: day("2026-01-01")}

	trades := []db.TradeEvent{{
		ID: "t1", UserID: "u1", StrategyID: "s1", Code: "600000",
		Shares: 1, OpenTime: day("2026-01-01"), OpenPrice: 2.00, CommissionBuy: 5.00,
		CloseTime: ptrT(day("2026-01-01")), ClosePrice: ptrF(5.00), CommissionSell: 5.00,
		Status: "closed",
	}}

	points := r.Compute(trades, anchor, day("2026-01-01"))
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if p.AvailableFunds != 93 || p.PositionValue != 0 || p.TotalAssets != 93 {
		t.Fatalf("expected (93,0,93), got (%v,%v,%v)", p.AvailableFunds, p.PositionValue, p.TotalAssets)
	}
}

// S3 — profit: close at a higher price three days later.
func TestRecomputeProfit(t *testing.T) {
	r := NewRecomputer(time.UTC)
	anchor := db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 100000, Date: day("2026-01-01")}

	trades := []db.TradeEvent{{
		ID: "t1", UserID: "u1", StrategyID: "s1", Code: "600000",
		Shares: 1000, OpenTime: day("2026-01-01"), OpenPrice: 15.00,
		CloseTime: ptrT(day("2026-01-03")), ClosePrice: ptrF(18.00),
		Status: "closed",
	}}

	points := r.Compute(trades, anchor, day("2026-01-03"))
	last, ok := pointOn(points, day("2026-01-03"))
	if !ok {
		t.Fatalf("missing point for day 3")
	}
	if last.AvailableFunds != 103000 || last.PositionValue != 0 || last.TotalAssets != 103000 {
		t.Fatalf("expected (103000,0,103000), got (%v,%v,%v)", last.AvailableFunds, last.PositionValue, last.TotalAssets)
	}
}

// S4 — partial close leaves a smaller open lot at the original entry price.
func TestRecomputePartialClose(t *testing.T) {
	r := NewRecomputer(time.UTC)
	anchor := db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 10000, Date: day("2026-02-01")}
	parentID := "parent"

	trades := []db.TradeEvent{
		{
			ID: "parent", UserID: "u1", StrategyID: "s1", Code: "600000",
			Shares: 700, OpenTime: day("2026-02-01"), OpenPrice: 10.00,
			Status: "open",
		},
		{
			ID: "child", UserID: "u1", StrategyID: "s1", Code: "600000",
			Shares: 300, OpenTime: day("2026-02-01"), OpenPrice: 10.00,
			CloseTime: ptrT(day("2026-02-02")), ClosePrice: ptrF(12.00),
			Status: "closed", ParentTradeID: &parentID,
		},
	}

	points := r.Compute(trades, anchor, day("2026-02-02"))
	d2, ok := pointOn(points, day("2026-02-02"))
	if !ok {
		t.Fatalf("missing point for day 2")
	}
	if d2.AvailableFunds != 3600 {
		t.Fatalf("expected available_funds 3600, got %v", d2.AvailableFunds)
	}
	if d2.PositionValue != 7000 {
		t.Fatalf("expected position_value 7000, got %v", d2.PositionValue)
	}
	if d2.TotalAssets != 10600 {
		t.Fatalf("expected total_assets 10600, got %v", d2.TotalAssets)
	}
}

// S5 — deleting every trade collapses history back to the anchor point.
func TestRecomputeDeleteUndoesHistory(t *testing.T) {
	r := NewRecomputer(time.UTC)
	anchor := db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 100000, Date: day("2026-01-01")}

	withTrade := []db.TradeEvent{{
		ID: "t1", UserID: "u1", StrategyID: "s1", Code: "600000",
		Shares: 1000, OpenTime: day("2026-01-01"), OpenPrice: 15.00,
		CloseTime: ptrT(day("2026-01-03")), ClosePrice: ptrF(18.00),
		Status: "closed",
	}}
	_ = r.Compute(withTrade, anchor, day("2026-01-03"))

	afterDelete := r.Compute(nil, anchor, day("2026-01-01"))
	if len(afterDelete) != 1 {
		t.Fatalf("expected 1 point after delete, got %d", len(afterDelete))
	}
	p := afterDelete[0]
	if p.TotalAssets != 100000 || p.AvailableFunds != 100000 || p.PositionValue != 0 {
		t.Fatalf("expected (100000,100000,0), got (%v,%v,%v)", p.TotalAssets, p.AvailableFunds, p.PositionValue)
	}
}

// Invariant 2: total_assets always equals available_funds + position_value.
func TestRecomputeTotalAssetsInvariant(t *testing.T) {
	r := NewRecomputer(time.UTC)
	anchor := db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 5000, Date: day("2026-03-01")}

	trades := []db.TradeEvent{{
		ID: "t1", UserID: "u1", StrategyID: "s1", Code: "000001",
		Shares: 100, OpenTime: day("2026-03-02"), OpenPrice: 20.00, CommissionBuy: 1,
		Status: "open",
	}}

	points := r.Compute(trades, anchor, day("2026-03-05"))
	for _, p := range points {
		if p.TotalAssets != p.AvailableFunds+p.PositionValue {
			t.Errorf("invariant violated at %v: %v != %v + %v", p.Date, p.TotalAssets, p.AvailableFunds, p.PositionValue)
		}
	}
}

// An OPEN preceding the anchor date clamps to the anchor date rather than
// contributing a pre-anchor event.
func TestRecomputeClampsPreAnchorOpen(t *testing.T) {
	r := NewRecomputer(time.UTC)
	anchor := db.CapitalAnchor{UserID: "u1", StrategyID: "s1", Amount: 1000, Date: day("2026-01-10")}

	trades := []db.TradeEvent{{
		ID: "t1", UserID: "u1", StrategyID: "s1", Code: "600000",
		Shares: 10, OpenTime: day("2026-01-01"), OpenPrice: 10.00,
		Status: "open",
	}}

	points := r.Compute(trades, anchor, day("2026-01-10"))
	if len(points) != 1 {
		t.Fatalf("expected history to start at the anchor date, got %d points", len(points))
	}
	if points[0].AvailableFunds != 900 {
		t.Fatalf("expected the open cost applied on the anchor date, got available_funds=%v", points[0].AvailableFunds)
	}
}
