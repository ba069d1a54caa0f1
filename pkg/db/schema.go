package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    email_alerts_enabled BOOLEAN DEFAULT 1,
    is_paid BOOLEAN DEFAULT 0,
    paid_until DATETIME,
    plan TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS strategies (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    market TEXT NOT NULL CHECK (market IN ('stock','forex')),
    initial_capital REAL,
    initial_date DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(user_id) REFERENCES users(id)
);

-- Trade Event: one record per open lot, plus its partial-close children.
CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    code TEXT NOT NULL,
    display_name TEXT DEFAULT '',
    shares REAL NOT NULL,
    open_time DATETIME NOT NULL,
    open_price REAL NOT NULL,
    close_time DATETIME,
    close_price REAL,
    commission_buy REAL DEFAULT 0,
    commission_sell REAL DEFAULT 0,
    stop_loss_price REAL,
    take_profit_price REAL,
    stop_loss_alert BOOLEAN DEFAULT 0,
    take_profit_alert BOOLEAN DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open','closed')),
    order_result TEXT DEFAULT '',
    theoretical_rr REAL,
    is_deleted BOOLEAN DEFAULT 0,
    parent_trade_id TEXT,
    note TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(strategy_id) REFERENCES strategies(id),
    FOREIGN KEY(parent_trade_id) REFERENCES trades(id)
);

CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id, is_deleted);
CREATE INDEX IF NOT EXISTS idx_trades_code ON trades(strategy_id, code, is_deleted);

-- Capital Anchor: exactly zero or one per strategy.
CREATE TABLE IF NOT EXISTS capital_anchors (
    strategy_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount REAL NOT NULL,
    date DATETIME NOT NULL,
    FOREIGN KEY(strategy_id) REFERENCES strategies(id)
);

-- Capital History Point: derived, atomically replaced by the recomputer.
CREATE TABLE IF NOT EXISTS capital_history (
    user_id TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    date TEXT NOT NULL,
    total_assets REAL NOT NULL,
    available_funds REAL NOT NULL,
    position_value REAL NOT NULL,
    PRIMARY KEY (strategy_id, date)
);

-- Alert Delivery Record: rate-limits C5 per (user, code, direction).
CREATE TABLE IF NOT EXISTS alert_delivery (
    user_id TEXT NOT NULL,
    code TEXT NOT NULL,
    direction TEXT NOT NULL CHECK (direction IN ('stop_loss','take_profit')),
    last_sent_at DATETIME NOT NULL,
    last_error TEXT DEFAULT '',
    PRIMARY KEY (user_id, code, direction)
);

-- Payment orders. The billing gate reads users.is_paid/paid_until, not this table.
CREATE TABLE IF NOT EXISTS payment_orders (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    plan TEXT NOT NULL,
    amount REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','settled','failed')),
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    settled_at DATETIME,
    FOREIGN KEY(user_id) REFERENCES users(id)
);

-- Deployment-wide key/value settings. Nothing in this module reads this
-- table; runtime settings come from the environment via pkg/config.
CREATE TABLE IF NOT EXISTS admin_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "trades", "order_result", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "theoretical_rr", "REAL"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "users", "plan", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "alert_delivery", "last_error", "TEXT DEFAULT ''"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
