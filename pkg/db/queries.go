// Package db provides user-isolated database queries for the trade journal.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// TradeQueries provides user-isolated queries over trade events, anchors,
// capital history and alert delivery records.
type TradeQueries struct {
	db *sql.DB
}

// NewTradeQueries creates a new TradeQueries instance.
func NewTradeQueries(db *sql.DB) *TradeQueries {
	return &TradeQueries{db: db}
}

const tradeColumns = `
	id, user_id, strategy_id, code, display_name, shares, open_time, open_price,
	close_time, close_price, commission_buy, commission_sell,
	stop_loss_price, take_profit_price, stop_loss_alert, take_profit_alert,
	status, order_result, theoretical_rr, is_deleted, parent_trade_id, note,
	created_at, updated_at`

func scanTrade(row interface{ Scan(...any) error }) (*TradeEvent, error) {
	var t TradeEvent
	if err := row.Scan(
		&t.ID, &t.UserID, &t.StrategyID, &t.Code, &t.DisplayName, &t.Shares, &t.OpenTime, &t.OpenPrice,
		&t.CloseTime, &t.ClosePrice, &t.CommissionBuy, &t.CommissionSell,
		&t.StopLossPrice, &t.TakeProfitPrice, &t.StopLossAlert, &t.TakeProfitAlert,
		&t.Status, &t.OrderResult, &t.TheoreticalRR, &t.IsDeleted, &t.ParentTradeID, &t.Note,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ----------------------------------------
// Trade Event Queries
// ----------------------------------------

// ListTradesByStrategy returns all non-deleted trades of a strategy, ordered
// by open time ascending (the order the recomputer wants to walk them in).
func (q *TradeQueries) ListTradesByStrategy(ctx context.Context, userID, strategyID string) ([]TradeEvent, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE user_id = ? AND strategy_id = ? AND is_deleted = 0
		ORDER BY open_time ASC, id ASC
	`, userID, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeEvent
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// ListOpenPositions returns all non-deleted, non-child trades with
// status = open for a strategy — the parent rows of the Position View.
func (q *TradeQueries) ListOpenPositions(ctx context.Context, userID, strategyID string) ([]TradeEvent, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE user_id = ? AND strategy_id = ? AND is_deleted = 0
		  AND status = 'open' AND parent_trade_id IS NULL
		ORDER BY open_time ASC
	`, userID, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var trades []TradeEvent
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// ListOpenPositionsAllStrategies is the monitor's per-tick enumeration of
// every (user, strategy, open position) tuple across the whole store.
func (q *TradeQueries) ListOpenPositionsAllStrategies(ctx context.Context) ([]TradeEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE is_deleted = 0 AND status = 'open' AND parent_trade_id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var trades []TradeEvent
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// ListChildren returns the partial-close children of a parent trade, ordered
// by close time.
func (q *TradeQueries) ListChildren(ctx context.Context, userID, parentID string) ([]TradeEvent, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE user_id = ? AND parent_trade_id = ? AND is_deleted = 0
		ORDER BY close_time ASC
	`, userID, parentID)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var trades []TradeEvent
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// GetTrade returns a single trade scoped to its owner.
func (q *TradeQueries) GetTrade(ctx context.Context, userID, id string) (*TradeEvent, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE id = ? AND user_id = ?
	`, id, userID)
	t, err := scanTrade(row)
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// InsertTrade inserts a new trade event (parent or partial-close child).
func (q *TradeQueries) InsertTrade(ctx context.Context, tx *sql.Tx, t TradeEvent) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trades (
			id, user_id, strategy_id, code, display_name, shares, open_time, open_price,
			close_time, close_price, commission_buy, commission_sell,
			stop_loss_price, take_profit_price, stop_loss_alert, take_profit_alert,
			status, order_result, theoretical_rr, is_deleted, parent_trade_id, note,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`,
		t.ID, t.UserID, t.StrategyID, t.Code, t.DisplayName, t.Shares, t.OpenTime, t.OpenPrice,
		t.CloseTime, t.ClosePrice, t.CommissionBuy, t.CommissionSell,
		t.StopLossPrice, t.TakeProfitPrice, t.StopLossAlert, t.TakeProfitAlert,
		t.Status, t.OrderResult, t.TheoreticalRR, t.IsDeleted, t.ParentTradeID, t.Note,
		t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// UpdateTrade persists the full row of an existing trade (used by update_trade
// and by close_position's in-place parent update).
func (q *TradeQueries) UpdateTrade(ctx context.Context, tx *sql.Tx, t TradeEvent) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE trades SET
			code = ?, display_name = ?, shares = ?, open_time = ?, open_price = ?,
			close_time = ?, close_price = ?, commission_buy = ?, commission_sell = ?,
			stop_loss_price = ?, take_profit_price = ?, stop_loss_alert = ?, take_profit_alert = ?,
			status = ?, order_result = ?, theoretical_rr = ?, note = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`,
		t.Code, t.DisplayName, t.Shares, t.OpenTime, t.OpenPrice,
		t.CloseTime, t.ClosePrice, t.CommissionBuy, t.CommissionSell,
		t.StopLossPrice, t.TakeProfitPrice, t.StopLossAlert, t.TakeProfitAlert,
		t.Status, t.OrderResult, t.TheoreticalRR, t.Note,
		t.ID, t.UserID,
	)
	return err
}

// SoftDeleteTrade marks a trade invisible to all derived views.
func (q *TradeQueries) SoftDeleteTrade(ctx context.Context, tx *sql.Tx, userID, id string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE trades SET is_deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?
	`, id, userID)
	return err
}

// ClearAllTrades soft-deletes every trade of a strategy in one statement.
func (q *TradeQueries) ClearAllTrades(ctx context.Context, tx *sql.Tx, userID, strategyID string) (int64, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE trades SET is_deleted = 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND strategy_id = ? AND is_deleted = 0
	`, userID, strategyID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ----------------------------------------
// Capital Anchor Queries
// ----------------------------------------

// GetAnchor returns the strategy's anchor, or nil if none has been set.
func (q *TradeQueries) GetAnchor(ctx context.Context, userID, strategyID string) (*CapitalAnchor, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	var a CapitalAnchor
	err := q.db.QueryRowContext(ctx, `
		SELECT strategy_id, user_id, amount, date FROM capital_anchors WHERE strategy_id = ? AND user_id = ?
	`, strategyID, userID).Scan(&a.StrategyID, &a.UserID, &a.Amount, &a.Date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query anchor: %w", err)
	}
	return &a, nil
}

// SetAnchor upserts the strategy's anchor.
func (q *TradeQueries) SetAnchor(ctx context.Context, tx *sql.Tx, a CapitalAnchor) error {
	if a.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO capital_anchors (strategy_id, user_id, amount, date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(strategy_id) DO UPDATE SET amount = excluded.amount, date = excluded.date
	`, a.StrategyID, a.UserID, a.Amount, a.Date)
	return err
}

// ----------------------------------------
// Capital History Queries
// ----------------------------------------

// ReplaceCapitalHistory atomically replaces a strategy's capital history
// series within the given transaction.
func (q *TradeQueries) ReplaceCapitalHistory(ctx context.Context, tx *sql.Tx, userID, strategyID string, points []CapitalHistoryPoint) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM capital_history WHERE user_id = ? AND strategy_id = ?`, userID, strategyID); err != nil {
		return fmt.Errorf("clear capital history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO capital_history (user_id, strategy_id, date, total_assets, available_funds, position_value)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare capital history insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, userID, strategyID, p.Date.Format("2006-01-02"), p.TotalAssets, p.AvailableFunds, p.PositionValue); err != nil {
			return fmt.Errorf("insert capital history point: %w", err)
		}
	}
	return nil
}

// ListCapitalHistory returns points for a strategy within [startDate, endDate].
func (q *TradeQueries) ListCapitalHistory(ctx context.Context, userID, strategyID string, startDate, endDate time.Time) ([]CapitalHistoryPoint, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id, strategy_id, date, total_assets, available_funds, position_value
		FROM capital_history
		WHERE user_id = ? AND strategy_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, userID, strategyID, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query capital history: %w", err)
	}
	defer rows.Close()

	var points []CapitalHistoryPoint
	for rows.Next() {
		var p CapitalHistoryPoint
		var date string
		if err := rows.Scan(&p.UserID, &p.StrategyID, &date, &p.TotalAssets, &p.AvailableFunds, &p.PositionValue); err != nil {
			return nil, fmt.Errorf("scan capital history point: %w", err)
		}
		p.Date, _ = time.Parse("2006-01-02", date)
		points = append(points, p)
	}
	return points, rows.Err()
}

// LatestCapitalHistory returns the most recent capital history point, or nil
// if none exists (no anchor has ever been set).
func (q *TradeQueries) LatestCapitalHistory(ctx context.Context, userID, strategyID string) (*CapitalHistoryPoint, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	var p CapitalHistoryPoint
	var date string
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, strategy_id, date, total_assets, available_funds, position_value
		FROM capital_history WHERE user_id = ? AND strategy_id = ?
		ORDER BY date DESC LIMIT 1
	`, userID, strategyID).Scan(&p.UserID, &p.StrategyID, &date, &p.TotalAssets, &p.AvailableFunds, &p.PositionValue)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest capital history: %w", err)
	}
	p.Date, _ = time.Parse("2006-01-02", date)
	return &p, nil
}

// ----------------------------------------
// Alert Delivery Queries
// ----------------------------------------

// GetAlertDelivery returns the last delivery record for (user, code, direction).
func (q *TradeQueries) GetAlertDelivery(ctx context.Context, userID, code, direction string) (*AlertDeliveryRecord, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	var r AlertDeliveryRecord
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, code, direction, last_sent_at, COALESCE(last_error, '')
		FROM alert_delivery WHERE user_id = ? AND code = ? AND direction = ?
	`, userID, code, direction).Scan(&r.UserID, &r.Code, &r.Direction, &r.LastSentAt, &r.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query alert delivery: %w", err)
	}
	return &r, nil
}

// RecordAlertDelivery upserts the last-sent timestamp for a successful send
// and clears any prior error for (user, code, direction).
func (q *TradeQueries) RecordAlertDelivery(ctx context.Context, userID, code, direction string, sentAt time.Time) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO alert_delivery (user_id, code, direction, last_sent_at, last_error)
		VALUES (?, ?, ?, ?, '')
		ON CONFLICT(user_id, code, direction) DO UPDATE SET
			last_sent_at = excluded.last_sent_at,
			last_error = ''
	`, userID, code, direction, sentAt)
	return err
}

// RecordAlertDeliveryFailure records a send error without advancing
// last_sent_at, so the cooldown does not suppress the next qualifying tick.
// A row created here (no prior successful send) gets a zero-value
// last_sent_at, which is always outside the cooldown window.
func (q *TradeQueries) RecordAlertDeliveryFailure(ctx context.Context, userID, code, direction, sendErr string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO alert_delivery (user_id, code, direction, last_sent_at, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, code, direction) DO UPDATE SET
			last_error = excluded.last_error
	`, userID, code, direction, time.Time{}, sendErr)
	return err
}
