package db

import (
	"context"
	"testing"
	"time"
)

func TestTradeQueriesRequireUserID(t *testing.T) {
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer database.Close()

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	q := database.Queries()
	ctx := context.Background()

	t.Run("ListTradesByStrategy requires userID", func(t *testing.T) {
		_, err := q.ListTradesByStrategy(ctx, "", "strategy-1")
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("GetAnchor requires userID", func(t *testing.T) {
		_, err := q.GetAnchor(ctx, "", "strategy-1")
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("GetAlertDelivery requires userID", func(t *testing.T) {
		_, err := q.GetAlertDelivery(ctx, "", "600000", "stop_loss")
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})
}

func TestTradeQueriesDataIsolation(t *testing.T) {
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer database.Close()

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	q := database.Queries()
	ctx := context.Background()

	userA, userB := "user-a", "user-b"
	if err := database.CreateStrategy(ctx, Strategy{ID: "strat-a", UserID: userA, Name: "A share", Market: "stock"}); err != nil {
		t.Fatalf("create strategy A: %v", err)
	}
	if err := database.CreateStrategy(ctx, Strategy{ID: "strat-b", UserID: userB, Name: "B share", Market: "stock"}); err != nil {
		t.Fatalf("create strategy B: %v", err)
	}

	tx, err := database.DB.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	tradeA := TradeEvent{
		ID: "trade-a-1", UserID: userA, StrategyID: "strat-a", Code: "600000",
		Shares: 100, OpenTime: time.Now(), OpenPrice: 10, Status: "open",
	}
	tradeB := TradeEvent{
		ID: "trade-b-1", UserID: userB, StrategyID: "strat-b", Code: "000001",
		Shares: 200, OpenTime: time.Now(), OpenPrice: 20, Status: "open",
	}
	if err := q.InsertTrade(ctx, tx, tradeA); err != nil {
		t.Fatalf("insert trade A: %v", err)
	}
	if err := q.InsertTrade(ctx, tx, tradeB); err != nil {
		t.Fatalf("insert trade B: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	t.Run("user A sees only their trades", func(t *testing.T) {
		trades, err := q.ListTradesByStrategy(ctx, userA, "strat-a")
		if err != nil {
			t.Fatalf("list trades: %v", err)
		}
		if len(trades) != 1 || trades[0].ID != "trade-a-1" {
			t.Errorf("expected exactly trade-a-1, got %+v", trades)
		}
	})

	t.Run("user B sees only their trades", func(t *testing.T) {
		trades, err := q.ListTradesByStrategy(ctx, userB, "strat-b")
		if err != nil {
			t.Fatalf("list trades: %v", err)
		}
		if len(trades) != 1 || trades[0].ID != "trade-b-1" {
			t.Errorf("expected exactly trade-b-1, got %+v", trades)
		}
	})

	t.Run("cross-user strategy id returns nothing", func(t *testing.T) {
		trades, err := q.ListTradesByStrategy(ctx, userA, "strat-b")
		if err != nil {
			t.Fatalf("list trades: %v", err)
		}
		if len(trades) != 0 {
			t.Errorf("expected 0 trades, got %d", len(trades))
		}
	})
}

func TestReplaceCapitalHistoryIsAtomic(t *testing.T) {
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer database.Close()

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	q := database.Queries()
	ctx := context.Background()
	userID, strategyID := "user-1", "strat-1"

	d0, _ := time.Parse("2006-01-02", "2026-01-01")
	first := []CapitalHistoryPoint{
		{UserID: userID, StrategyID: strategyID, Date: d0, TotalAssets: 100000, AvailableFunds: 100000, PositionValue: 0},
	}
	tx, err := database.DB.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := q.ReplaceCapitalHistory(ctx, tx, userID, strategyID, first); err != nil {
		t.Fatalf("replace capital history: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	points, err := q.ListCapitalHistory(ctx, userID, strategyID, d0, d0)
	if err != nil {
		t.Fatalf("list capital history: %v", err)
	}
	if len(points) != 1 || points[0].TotalAssets != 100000 {
		t.Fatalf("expected single 100000 point, got %+v", points)
	}

	d1 := d0.AddDate(0, 0, 1)
	second := []CapitalHistoryPoint{
		{UserID: userID, StrategyID: strategyID, Date: d0, TotalAssets: 93, AvailableFunds: 93, PositionValue: 0},
		{UserID: userID, StrategyID: strategyID, Date: d1, TotalAssets: 95, AvailableFunds: 93, PositionValue: 2},
	}
	tx2, err := database.DB.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := q.ReplaceCapitalHistory(ctx, tx2, userID, strategyID, second); err != nil {
		t.Fatalf("replace capital history: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	points, err = q.ListCapitalHistory(ctx, userID, strategyID, d0, d1)
	if err != nil {
		t.Fatalf("list capital history: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected the old series fully replaced, got %d points", len(points))
	}
}

func TestAlertDeliveryRateLimit(t *testing.T) {
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer database.Close()

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	q := database.Queries()
	ctx := context.Background()

	rec, err := q.GetAlertDelivery(ctx, "user-1", "600000", "stop_loss")
	if err != nil {
		t.Fatalf("get alert delivery: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no prior delivery record, got %+v", rec)
	}

	now := time.Now().UTC()
	if err := q.RecordAlertDelivery(ctx, "user-1", "600000", "stop_loss", now); err != nil {
		t.Fatalf("record alert delivery: %v", err)
	}

	rec, err = q.GetAlertDelivery(ctx, "user-1", "600000", "stop_loss")
	if err != nil {
		t.Fatalf("get alert delivery: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a delivery record after recording one")
	}
	if now.Sub(rec.LastSentAt).Abs() > time.Second {
		t.Errorf("expected last_sent_at close to %v, got %v", now, rec.LastSentAt)
	}
	if rec.LastError != "" {
		t.Errorf("expected no error recorded after a successful send, got %q", rec.LastError)
	}
}

// A failed send must not advance last_sent_at, or the cooldown would
// suppress the retry the notification dispatcher relies on.
func TestAlertDeliveryFailureDoesNotAdvanceCooldown(t *testing.T) {
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer database.Close()
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	q := database.Queries()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := q.RecordAlertDelivery(ctx, "user-2", "EURUSD", "take_profit", now); err != nil {
		t.Fatalf("record alert delivery: %v", err)
	}
	if err := q.RecordAlertDeliveryFailure(ctx, "user-2", "EURUSD", "take_profit", "smtp timeout"); err != nil {
		t.Fatalf("record alert delivery failure: %v", err)
	}

	rec, err := q.GetAlertDelivery(ctx, "user-2", "EURUSD", "take_profit")
	if err != nil {
		t.Fatalf("get alert delivery: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a delivery record")
	}
	if rec.LastSentAt.Sub(now).Abs() > time.Second {
		t.Errorf("expected last_sent_at unchanged near %v, got %v", now, rec.LastSentAt)
	}
	if rec.LastError != "smtp timeout" {
		t.Errorf("expected last_error recorded, got %q", rec.LastError)
	}
}
