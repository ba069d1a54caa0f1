// Package ledger implements C3, the Event Store & Ledger Recomputer: the
// heart of the system. It owns every mutation and guarantees that, after
// each one, the persisted capital history and the derived position view are
// consistent with the event log for the affected strategy.
package ledger

import (
	"time"

	"tradejournal/pkg/db"
)

// CreateTradeInput is the validated input to create_trade.
type CreateTradeInput struct {
	Code            string
	DisplayName     string
	Shares          float64 // optional; derived from RiskPerTrade if zero
	RiskPerTrade    float64 // optional alternative to Shares
	OpenTime        time.Time
	OpenPrice       float64
	ClosePrice      *float64 // if set with CloseTime, trade is created already closed
	CloseTime       *time.Time
	CommissionBuy   float64
	CommissionSell  float64
	StopLossPrice   *float64
	TakeProfitPrice *float64
	StopLossAlert   bool
	TakeProfitAlert bool
	Note            string
}

// UpdateTradePatch carries only the fields the caller wants to change;
// nil/absent fields are left untouched.
type UpdateTradePatch struct {
	DisplayName     *string
	Shares          *float64
	OpenTime        *time.Time
	OpenPrice       *float64
	ClosePrice      *float64
	CloseTime       *time.Time
	CommissionBuy   *float64
	CommissionSell  *float64
	StopLossPrice   *float64
	TakeProfitPrice *float64
	StopLossAlert   *bool
	TakeProfitAlert *bool
	Note            *string
}

// ClosePositionInput is the input to close_position, invoked by the
// "stop loss"/"take profit" edge actions.
type ClosePositionInput struct {
	ClosePrice  float64
	CloseTime   time.Time
	Shares      *float64 // absent or equal to remaining: close parent in place
	OrderResult string   // "stop_loss" | "take_profit"
}

// PositionView is the derived, read-time-only open-lot view for one
// instrument under one strategy.
type PositionView struct {
	TradeID         string
	Code            string
	DisplayName     string
	RemainingShares float64
	AvgOpenPrice    float64
	OpenedShares    float64
	ClosedShares    float64
	StopLossPrice   *float64
	TakeProfitPrice *float64
	StopLossAlert   bool
	TakeProfitAlert bool
	Children        []db.TradeEvent
}

// eventKind marks a ledgerEvent as a logical OPEN or CLOSE in the
// chronological walk.
type eventKind int

const (
	eventOpen eventKind = iota
	eventClose
)

type ledgerEvent struct {
	kind      eventKind
	at        time.Time
	tradeID   string
	code      string
	cashDelta float64 // negative for OPEN (cost), positive for CLOSE (proceeds)
	shares    float64
	price     float64
}
