package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tradejournal/internal/apperr"
	"tradejournal/internal/events"
	"tradejournal/pkg/db"
)

// BillingChecker reports whether a user currently has an active paid plan.
type BillingChecker interface {
	IsPaid(ctx context.Context, userID string) (bool, error)
}

// Service implements every public C3 operation: it is the only component
// allowed to mutate trades, anchors and capital history.
type Service struct {
	conn           *sql.DB
	database       *db.Database
	queries        *db.TradeQueries
	locker         *Locker
	recomputer     *Recomputer
	bus            *events.Bus
	billing        BillingChecker
	billingEnabled bool
}

// NewService wires a ledger Service. billing may be nil when billingEnabled
// is false.
func NewService(database *db.Database, recomputer *Recomputer, bus *events.Bus, billing BillingChecker, billingEnabled bool) *Service {
	return &Service{
		conn:           database.DB,
		database:       database,
		queries:        database.Queries(),
		locker:         NewLocker(),
		recomputer:     recomputer,
		bus:            bus,
		billing:        billing,
		billingEnabled: billingEnabled,
	}
}

// withStrategyTx serializes access to (userID, strategyID), runs fn inside a
// transaction, and recomputes the strategy's capital history before
// committing — either the mutation and the new history both land, or
// neither does.
func (s *Service) withStrategyTx(ctx context.Context, userID, strategyID string, fn func(tx *sql.Tx) error) error {
	unlock := s.locker.Lock(userID, strategyID)
	defer unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("begin_tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := s.recompute(ctx, tx, userID, strategyID); err != nil {
		return apperr.Internal("recompute_failed", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal("commit_failed", err)
	}

	s.bus.Publish(events.EventTradeRecomputed, events.TradeRecomputedEvent{UserID: userID, StrategyID: strategyID})
	return nil
}

// recompute re-derives and persists the capital history for one strategy
// within an already-open transaction. If no anchor has ever been set, the
// history is left empty.
func (s *Service) recompute(ctx context.Context, tx *sql.Tx, userID, strategyID string) error {
	anchor, err := s.queries.GetAnchor(ctx, userID, strategyID)
	if err != nil {
		return fmt.Errorf("load anchor: %w", err)
	}
	if anchor == nil {
		return s.queries.ReplaceCapitalHistory(ctx, tx, userID, strategyID, nil)
	}

	trades, err := s.queries.ListTradesByStrategy(ctx, userID, strategyID)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}

	points := s.recomputer.Compute(trades, *anchor, time.Now())
	return s.queries.ReplaceCapitalHistory(ctx, tx, userID, strategyID, points)
}

// CreateTrade validates and inserts a new trade as open (or already closed,
// if close_price/close_time are supplied), then recomputes.
func (s *Service) CreateTrade(ctx context.Context, userID, strategyID string, in CreateTradeInput) (*db.TradeEvent, error) {
	if s.billingEnabled {
		paid, err := s.billing.IsPaid(ctx, userID)
		if err != nil {
			return nil, apperr.Internal("billing_check_failed", err)
		}
		if !paid {
			return nil, apperr.BillingRequired("an active plan is required to log new trades")
		}
	}

	shares := in.Shares
	if shares == 0 && in.RiskPerTrade > 0 {
		if in.StopLossPrice == nil || in.OpenPrice <= *in.StopLossPrice {
			return nil, apperr.Validation("invalid_risk_sizing", "buy_price must exceed stop_loss_price to size by risk_per_trade")
		}
		shares = math.Ceil(in.RiskPerTrade / (in.OpenPrice - *in.StopLossPrice))
	}
	if shares <= 0 {
		return nil, apperr.Validation("invalid_shares", "shares must be strictly positive")
	}

	var rr *float64
	if in.StopLossPrice != nil && in.TakeProfitPrice != nil {
		denom := in.OpenPrice - *in.StopLossPrice
		if denom != 0 {
			v := (*in.TakeProfitPrice - in.OpenPrice) / denom
			rr = &v
		}
	}

	now := time.Now()
	t := db.TradeEvent{
		ID:              uuid.NewString(),
		UserID:          userID,
		StrategyID:      strategyID,
		Code:            in.Code,
		DisplayName:     in.DisplayName,
		Shares:          shares,
		OpenTime:        in.OpenTime,
		OpenPrice:       in.OpenPrice,
		CommissionBuy:   in.CommissionBuy,
		CommissionSell:  in.CommissionSell,
		StopLossPrice:   in.StopLossPrice,
		TakeProfitPrice: in.TakeProfitPrice,
		StopLossAlert:   in.StopLossAlert,
		TakeProfitAlert: in.TakeProfitAlert,
		Status:          "open",
		TheoreticalRR:   rr,
		Note:            in.Note,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.ClosePrice != nil && in.CloseTime != nil {
		t.Status = "closed"
		t.ClosePrice = in.ClosePrice
		t.CloseTime = in.CloseTime
		t.OrderResult = "manual"
	}

	err := s.withStrategyTx(ctx, userID, strategyID, func(tx *sql.Tx) error {
		return s.queries.InsertTrade(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTrade applies patch to an existing trade, re-deriving dependent
// fields, then recomputes.
func (s *Service) UpdateTrade(ctx context.Context, userID, strategyID, id string, patch UpdateTradePatch) (*db.TradeEvent, error) {
	existing, err := s.queries.GetTrade(ctx, userID, id)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, apperr.NotFound("trade_not_found", "trade not found")
		}
		return nil, apperr.Internal("load_trade_failed", err)
	}

	applyPatch(existing, patch)

	if existing.Shares <= 0 {
		return nil, apperr.Validation("invalid_shares", "shares must be strictly positive")
	}

	if existing.StopLossPrice != nil && existing.TakeProfitPrice != nil {
		denom := existing.OpenPrice - *existing.StopLossPrice
		if denom != 0 {
			v := (*existing.TakeProfitPrice - existing.OpenPrice) / denom
			existing.TheoreticalRR = &v
		} else {
			existing.TheoreticalRR = nil
		}
	} else {
		existing.TheoreticalRR = nil
	}

	if existing.ClosePrice != nil && existing.CloseTime != nil {
		existing.Status = "closed"
	} else {
		existing.Status = "open"
		existing.OrderResult = ""
	}
	existing.UpdatedAt = time.Now()

	err = s.withStrategyTx(ctx, userID, strategyID, func(tx *sql.Tx) error {
		return s.queries.UpdateTrade(ctx, tx, *existing)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func applyPatch(t *db.TradeEvent, p UpdateTradePatch) {
	if p.DisplayName != nil {
		t.DisplayName = *p.DisplayName
	}
	if p.Shares != nil {
		t.Shares = *p.Shares
	}
	if p.OpenTime != nil {
		t.OpenTime = *p.OpenTime
	}
	if p.OpenPrice != nil {
		t.OpenPrice = *p.OpenPrice
	}
	if p.ClosePrice != nil {
		t.ClosePrice = p.ClosePrice
	}
	if p.CloseTime != nil {
		t.CloseTime = p.CloseTime
	}
	if p.CommissionBuy != nil {
		t.CommissionBuy = *p.CommissionBuy
	}
	if p.CommissionSell != nil {
		t.CommissionSell = *p.CommissionSell
	}
	if p.StopLossPrice != nil {
		t.StopLossPrice = p.StopLossPrice
	}
	if p.TakeProfitPrice != nil {
		t.TakeProfitPrice = p.TakeProfitPrice
	}
	if p.StopLossAlert != nil {
		t.StopLossAlert = *p.StopLossAlert
	}
	if p.TakeProfitAlert != nil {
		t.TakeProfitAlert = *p.TakeProfitAlert
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
}

// DeleteTrade soft-deletes a trade and recomputes.
func (s *Service) DeleteTrade(ctx context.Context, userID, strategyID, id string) error {
	return s.withStrategyTx(ctx, userID, strategyID, func(tx *sql.Tx) error {
		return s.queries.SoftDeleteTrade(ctx, tx, userID, id)
	})
}

// ClosePosition closes all or part of an open lot, invoked by the stop-loss
// and take-profit edge actions (or a manual close with the same shape).
func (s *Service) ClosePosition(ctx context.Context, userID, strategyID, tradeID string, in ClosePositionInput) error {
	return s.withStrategyTx(ctx, userID, strategyID, func(tx *sql.Tx) error {
		parent, err := s.queries.GetTrade(ctx, userID, tradeID)
		if err != nil {
			if err == db.ErrNotFound {
				return apperr.NotFound("trade_not_found", "trade not found")
			}
			return apperr.Internal("load_trade_failed", err)
		}
		if parent.Status != "open" {
			return apperr.Validation("trade_not_open", "trade is not open")
		}

		closeShares := parent.Shares
		if in.Shares != nil {
			closeShares = *in.Shares
		}
		if closeShares <= 0 || closeShares > parent.Shares {
			return apperr.Validation("invalid_close_shares", "close shares must be in (0, remaining shares]")
		}

		now := time.Now()

		if closeShares == parent.Shares {
			parent.Status = "closed"
			parent.ClosePrice = &in.ClosePrice
			parent.CloseTime = &in.CloseTime
			parent.OrderResult = in.OrderResult
			parent.UpdatedAt = now
			return s.queries.UpdateTrade(ctx, tx, *parent)
		}

		ratio := closeShares / parent.Shares
		childCommissionBuy := parent.CommissionBuy * ratio
		parent.CommissionBuy -= childCommissionBuy
		parent.Shares -= closeShares
		parent.UpdatedAt = now
		if err := s.queries.UpdateTrade(ctx, tx, *parent); err != nil {
			return err
		}

		parentID := parent.ID
		child := db.TradeEvent{
			ID:             uuid.NewString(),
			UserID:         userID,
			StrategyID:     strategyID,
			Code:           parent.Code,
			DisplayName:    parent.DisplayName,
			Shares:         closeShares,
			OpenTime:       parent.OpenTime,
			OpenPrice:      parent.OpenPrice,
			CloseTime:      &in.CloseTime,
			ClosePrice:     &in.ClosePrice,
			CommissionBuy:  childCommissionBuy,
			CommissionSell: 0,
			Status:         "closed",
			OrderResult:    in.OrderResult,
			ParentTradeID:  &parentID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.queries.InsertTrade(ctx, tx, child)
	})
}

// ClearAllTrades soft-deletes every trade of a strategy, yielding a flat
// capital history at the anchor amount.
func (s *Service) ClearAllTrades(ctx context.Context, userID, strategyID string) (int64, error) {
	var n int64
	err := s.withStrategyTx(ctx, userID, strategyID, func(tx *sql.Tx) error {
		var err error
		n, err = s.queries.ClearAllTrades(ctx, tx, userID, strategyID)
		return err
	})
	return n, err
}

// SetAnchor upserts the strategy's anchor and recomputes. If date is the
// zero value, the current server date is used.
func (s *Service) SetAnchor(ctx context.Context, userID, strategyID string, amount float64, date time.Time) error {
	if date.IsZero() {
		date = time.Now()
	}
	return s.withStrategyTx(ctx, userID, strategyID, func(tx *sql.Tx) error {
		return s.queries.SetAnchor(ctx, tx, db.CapitalAnchor{
			UserID: userID, StrategyID: strategyID, Amount: amount, Date: date,
		})
	})
}

// DeleteStrategy soft-deletes all its trades and erases its anchor and
// capital history; no recomputation follows since the history is now empty.
func (s *Service) DeleteStrategy(ctx context.Context, userID, strategyID string) error {
	unlock := s.locker.Lock(userID, strategyID)
	defer unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("begin_tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.database.DeleteStrategy(ctx, tx, userID, strategyID); err != nil {
		return apperr.Internal("delete_strategy_failed", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("commit_failed", err)
	}
	return nil
}

// Positions returns the current Position View for a strategy.
func (s *Service) Positions(ctx context.Context, userID, strategyID string) ([]PositionView, error) {
	parents, err := s.queries.ListOpenPositions(ctx, userID, strategyID)
	if err != nil {
		return nil, apperr.Internal("list_open_positions_failed", err)
	}

	childrenByParent := make(map[string][]db.TradeEvent, len(parents))
	for _, p := range parents {
		children, err := s.queries.ListChildren(ctx, userID, p.ID)
		if err != nil {
			return nil, apperr.Internal("list_children_failed", err)
		}
		childrenByParent[p.ID] = children
	}

	return Positions(parents, childrenByParent), nil
}
