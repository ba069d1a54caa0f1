package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradejournal/internal/ledger"
)

type positionView struct {
	TradeID         string          `json:"trade_id"`
	Code            string          `json:"code"`
	DisplayName     string          `json:"display_name"`
	RemainingShares float64         `json:"remaining_shares"`
	AvgOpenPrice    float64         `json:"avg_open_price"`
	OpenedShares    float64         `json:"opened_shares"`
	ClosedShares    float64         `json:"closed_shares"`
	StopLossPrice   *float64        `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64        `json:"take_profit_price,omitempty"`
	StopLossAlert   bool            `json:"stop_loss_alert"`
	TakeProfitAlert bool            `json:"take_profit_alert"`
	Children        []tradeView     `json:"children,omitempty"`
}

func toPositionView(p ledger.PositionView) positionView {
	children := make([]tradeView, 0, len(p.Children))
	for _, c := range p.Children {
		children = append(children, toTradeView(c))
	}
	return positionView{
		TradeID: p.TradeID, Code: p.Code, DisplayName: p.DisplayName,
		RemainingShares: p.RemainingShares, AvgOpenPrice: p.AvgOpenPrice,
		OpenedShares: p.OpenedShares, ClosedShares: p.ClosedShares,
		StopLossPrice: p.StopLossPrice, TakeProfitPrice: p.TakeProfitPrice,
		StopLossAlert: p.StopLossAlert, TakeProfitAlert: p.TakeProfitAlert,
		Children: children,
	}
}

// GET /api/positions?strategy_id=…
func (s *Server) listPositions(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}

	positions, err := s.Ledger.Positions(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	c.JSON(http.StatusOK, views)
}

// PUT /api/positions/{id}: toggle stop_loss_alert/take_profit_alert, adjust
// target prices. Addresses the underlying trade row directly.
func (s *Server) updatePosition(c *gin.Context) {
	userID := CurrentUserID(c)
	id := c.Param("id")

	var req struct {
		StrategyID      string   `json:"strategy_id"`
		StopLossPrice   *float64 `json:"stop_loss_price"`
		TakeProfitPrice *float64 `json:"take_profit_price"`
		StopLossAlert   *bool    `json:"stop_loss_alert"`
		TakeProfitAlert *bool    `json:"take_profit_alert"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, invalidPayload(err))
		return
	}
	if req.StrategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}

	trade, err := s.Ledger.UpdateTrade(c.Request.Context(), userID, req.StrategyID, id, ledger.UpdateTradePatch{
		StopLossPrice: req.StopLossPrice, TakeProfitPrice: req.TakeProfitPrice,
		StopLossAlert: req.StopLossAlert, TakeProfitAlert: req.TakeProfitAlert,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeView(*trade))
}

type closePositionRequest struct {
	StrategyID string     `json:"strategy_id"`
	SellPrice  float64    `json:"sell_price"`
	CloseDate  *time.Time `json:"close_date"`
	Shares     *float64   `json:"shares"`
}

func (s *Server) closePosition(c *gin.Context, orderResult string) {
	userID := CurrentUserID(c)
	id := c.Param("id")

	var req closePositionRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, invalidPayload(err))
		return
	}
	if req.StrategyID == "" || req.SellPrice <= 0 {
		respondValidation(c, "MISSING_REQUIRED_FIELDS", "strategy_id and sell_price are required")
		return
	}
	closeTime := time.Now()
	if req.CloseDate != nil {
		closeTime = *req.CloseDate
	}

	err := s.Ledger.ClosePosition(c.Request.Context(), userID, req.StrategyID, id, ledger.ClosePositionInput{
		ClosePrice: req.SellPrice, CloseTime: closeTime, Shares: req.Shares, OrderResult: orderResult,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// POST /api/positions/{id}/take-profit {sell_price,close_date?,shares?}
func (s *Server) takeProfitPosition(c *gin.Context) { s.closePosition(c, "take_profit") }

// POST /api/positions/{id}/stop-loss {sell_price,close_date?,shares?}
func (s *Server) stopLossPosition(c *gin.Context) { s.closePosition(c, "stop_loss") }
