package events

// Event enumerates high-level topics inside the trade journal server.
type Event string

const (
	// EventPriceTick fires whenever the price cache (C2) refreshes a code,
	// consumed by the /api/ws/prices push channel.
	EventPriceTick Event = "price_tick"

	// EventAlertTriggered carries an AlertEvent from the monitor (C4) to the
	// notification dispatcher (C5).
	EventAlertTriggered Event = "alert_triggered"

	// EventTradeRecomputed fires after C3 successfully recomputes a
	// strategy's capital history. No component in this module subscribes
	// to it.
	EventTradeRecomputed Event = "trade_recomputed"

	// EventConsistencyMismatch fires when the consistency auditor detects
	// that persisted capital history has drifted from a fresh recompute.
	EventConsistencyMismatch Event = "consistency_mismatch"
)

// AlertEvent is the payload published on EventAlertTriggered.
type AlertEvent struct {
	UserID     string
	StrategyID string
	Code       string
	Direction  string // "stop_loss" | "take_profit"
	Price      float64
	Target     float64
}

// TradeRecomputedEvent is the payload published on EventTradeRecomputed.
type TradeRecomputedEvent struct {
	UserID     string
	StrategyID string
}

// PriceTickEvent is the payload published on EventPriceTick.
type PriceTickEvent struct {
	Code   string
	Price  float64
	Source string
}

// ConsistencyMismatchEvent is the payload published on EventConsistencyMismatch.
type ConsistencyMismatchEvent struct {
	UserID     string
	StrategyID string
	Detail     string
}
