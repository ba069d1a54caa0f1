package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User represents an application user.
type User struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string
	EmailAlertsEnabled bool
	IsPaid             bool
	PaidUntil          *time.Time
	Plan               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Strategy is a named, market-scoped ledger owned by a user.
type Strategy struct {
	ID             string
	UserID         string
	Name           string
	Market         string // "stock" | "forex"
	InitialCapital *float64
	InitialDate    *time.Time
	CreatedAt      time.Time
}

// TradeEvent is the fundamental log record described in the data model:
// a buy that is open, closed in stages, or recorded already closed.
type TradeEvent struct {
	ID                string
	UserID            string
	StrategyID        string
	Code              string
	DisplayName       string
	Shares            float64
	OpenTime          time.Time
	OpenPrice         float64
	CloseTime         *time.Time
	ClosePrice        *float64
	CommissionBuy     float64
	CommissionSell    float64
	StopLossPrice     *float64
	TakeProfitPrice   *float64
	StopLossAlert     bool
	TakeProfitAlert   bool
	Status            string // "open" | "closed"
	OrderResult       string // "" | "stop_loss" | "take_profit" | "manual"
	TheoreticalRR     *float64
	IsDeleted         bool
	ParentTradeID     *string
	Note              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CapitalAnchor is the per-(user,strategy) seed point for the ledger.
type CapitalAnchor struct {
	UserID     string
	StrategyID string
	Amount     float64
	Date       time.Time
}

// CapitalHistoryPoint is one day of the recomputed equity curve.
type CapitalHistoryPoint struct {
	UserID         string
	StrategyID     string
	Date           time.Time
	TotalAssets    float64
	AvailableFunds float64
	PositionValue  float64
}

// AlertDeliveryRecord rate-limits C5's email dispatch per (user, code, direction).
type AlertDeliveryRecord struct {
	UserID      string
	Code        string
	Direction   string // "stop_loss" | "take_profit"
	LastSentAt  time.Time
	LastError   string
}

// CreateUser inserts a new user row. Username/email uniqueness is enforced by
// the schema; callers translate the resulting constraint error into a
// Conflict response.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (
			id, username, email, password_hash, email_alerts_enabled,
			is_paid, paid_until, plan, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`,
		u.ID, strings.ToLower(u.Username), strings.ToLower(u.Email), u.PasswordHash, u.EmailAlertsEnabled,
		u.IsPaid, u.PaidUntil, u.Plan, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.EmailAlertsEnabled,
		&u.IsPaid, &u.PaidUntil, &u.Plan, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

const userColumns = `id, username, email, password_hash, email_alerts_enabled, is_paid, paid_until, plan, created_at, updated_at`

// GetUserByUsername returns a user by username, or nil if not found.
func (d *Database) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, strings.ToLower(username))
	return scanUser(row)
}

// GetUserByID returns a user by id, or nil if not found.
func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// SetEmailAlertsEnabled flips the per-user email alert preference.
func (d *Database) SetEmailAlertsEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE users SET email_alerts_enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, enabled, userID)
	return err
}

// SetBilling updates the billing tuple, typically from a settled payment_orders row.
func (d *Database) SetBilling(ctx context.Context, userID string, isPaid bool, paidUntil *time.Time, plan string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE users SET is_paid = ?, paid_until = ?, plan = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, isPaid, paidUntil, plan, userID)
	return err
}

// CreateStrategy inserts a new strategy owned by a user.
func (d *Database) CreateStrategy(ctx context.Context, s Strategy) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategies (id, user_id, name, market, initial_capital, initial_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, s.ID, s.UserID, s.Name, s.Market, s.InitialCapital, s.InitialDate, s.CreatedAt)
	return err
}

// ListStrategies returns a user's strategies, optionally filtered by market.
func (d *Database) ListStrategies(ctx context.Context, userID, market string) ([]Strategy, error) {
	query := `SELECT id, user_id, name, market, initial_capital, initial_date, created_at
		FROM strategies WHERE user_id = ?`
	args := []any{userID}
	if market != "" {
		query += ` AND market = ?`
		args = append(args, market)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Strategy
	for rows.Next() {
		var s Strategy
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Market, &s.InitialCapital, &s.InitialDate, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListAllStrategies returns every strategy across every user; used by the
// consistency auditor's periodic audit pass.
func (d *Database) ListAllStrategies(ctx context.Context) ([]Strategy, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, name, market, initial_capital, initial_date, created_at FROM strategies
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Strategy
	for rows.Next() {
		var s Strategy
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Market, &s.InitialCapital, &s.InitialDate, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// GetStrategy returns a strategy scoped to its owner, or nil if missing/foreign.
func (d *Database) GetStrategy(ctx context.Context, userID, id string) (*Strategy, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, market, initial_capital, initial_date, created_at
		FROM strategies WHERE id = ? AND user_id = ?
	`, id, userID)
	var s Strategy
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Market, &s.InitialCapital, &s.InitialDate, &s.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// DeleteStrategy soft-deletes its trades and erases its anchor and capital
// history, per the ownership/lifecycle rule in the data model.
func (d *Database) DeleteStrategy(ctx context.Context, tx *sql.Tx, userID, id string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE trades SET is_deleted = 1, updated_at = CURRENT_TIMESTAMP
		WHERE strategy_id = ? AND user_id = ?
	`, id, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM capital_history WHERE strategy_id = ? AND user_id = ?`, id, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM capital_anchors WHERE strategy_id = ? AND user_id = ?`, id, userID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM strategies WHERE id = ? AND user_id = ?`, id, userID)
	return err
}
