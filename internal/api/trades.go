package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"tradejournal/internal/ledger"
	"tradejournal/pkg/db"
)

type tradeView struct {
	ID              string     `json:"id"`
	StrategyID      string     `json:"strategy_id"`
	Code            string     `json:"code"`
	DisplayName     string     `json:"display_name"`
	Shares          float64    `json:"shares"`
	OpenTime        time.Time  `json:"open_time"`
	OpenPrice       float64    `json:"open_price"`
	CloseTime       *time.Time `json:"close_time,omitempty"`
	ClosePrice      *float64   `json:"close_price,omitempty"`
	CommissionBuy   float64    `json:"commission_buy"`
	CommissionSell  float64    `json:"commission_sell"`
	StopLossPrice   *float64   `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64   `json:"take_profit_price,omitempty"`
	StopLossAlert   bool       `json:"stop_loss_alert"`
	TakeProfitAlert bool       `json:"take_profit_alert"`
	Status          string     `json:"status"`
	OrderResult     string     `json:"order_result,omitempty"`
	TheoreticalRR   *float64   `json:"theoretical_risk_reward_ratio,omitempty"`
	ParentTradeID   *string    `json:"parent_trade_id,omitempty"`
	Note            string     `json:"note,omitempty"`
}

func toTradeView(t db.TradeEvent) tradeView {
	return tradeView{
		ID: t.ID, StrategyID: t.StrategyID, Code: t.Code, DisplayName: t.DisplayName,
		Shares: t.Shares, OpenTime: t.OpenTime, OpenPrice: t.OpenPrice,
		CloseTime: t.CloseTime, ClosePrice: t.ClosePrice,
		CommissionBuy: t.CommissionBuy, CommissionSell: t.CommissionSell,
		StopLossPrice: t.StopLossPrice, TakeProfitPrice: t.TakeProfitPrice,
		StopLossAlert: t.StopLossAlert, TakeProfitAlert: t.TakeProfitAlert,
		Status: t.Status, OrderResult: t.OrderResult, TheoreticalRR: t.TheoreticalRR,
		ParentTradeID: t.ParentTradeID, Note: t.Note,
	}
}

// GET /api/trades?strategy_id=…&page=&page_size=
func (s *Server) listTrades(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}
	page, pageSize := parsePage(c)

	trades, err := s.DB.Queries().ListTradesByStrategy(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondInternal(c, err)
		return
	}

	total := len(trades)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	items := make([]tradeView, 0, end-start)
	for _, t := range trades[start:end] {
		items = append(items, toTradeView(t))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page, "total_pages": totalPages})
}

// GET /api/trades/date/{YYYY-MM-DD}?strategy_id=…
func (s *Server) getTradesByDate(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		respondValidation(c, "INVALID_DATE", "date must be YYYY-MM-DD")
		return
	}

	trades, err := s.DB.Queries().ListTradesByStrategy(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondInternal(c, err)
		return
	}

	out := make([]tradeView, 0)
	for _, t := range trades {
		if sameDate(t.OpenTime, date) {
			out = append(out, toTradeView(t))
		}
	}
	c.JSON(http.StatusOK, out)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// GET /api/trades/dates?strategy_id=…
func (s *Server) listTradeDates(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")

	trades, err := s.DB.Queries().ListTradesByStrategy(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondInternal(c, err)
		return
	}

	seen := make(map[string]bool)
	var dates []string
	for _, t := range trades {
		d := t.OpenTime.Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	c.JSON(http.StatusOK, dates)
}

// GET /api/trades/stock-codes?strategy_id=…
func (s *Server) listStockCodes(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")

	trades, err := s.DB.Queries().ListTradesByStrategy(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondInternal(c, err)
		return
	}

	seen := make(map[string]string)
	var codes []string
	for _, t := range trades {
		if _, ok := seen[t.Code]; !ok {
			seen[t.Code] = t.DisplayName
			codes = append(codes, t.Code)
		}
	}
	sort.Strings(codes)
	out := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		out = append(out, gin.H{"code": code, "name": seen[code]})
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/trades/stock/{code}?strategy_id=…
func (s *Server) getStockDetail(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	code := c.Param("code")

	trades, err := s.DB.Queries().ListTradesByStrategy(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondInternal(c, err)
		return
	}

	var matched []db.TradeEvent
	var totalPL float64
	var rrSum float64
	var rrCount int
	for _, t := range trades {
		if t.Code != code {
			continue
		}
		matched = append(matched, t)
		if t.Status == "closed" && t.ClosePrice != nil {
			totalPL += (*t.ClosePrice-t.OpenPrice)*t.Shares - t.CommissionBuy - t.CommissionSell
		}
		if t.TheoreticalRR != nil {
			rrSum += *t.TheoreticalRR
			rrCount++
		}
	}

	avgRR := 0.0
	if rrCount > 0 {
		avgRR = rrSum / float64(rrCount)
	}

	views := make([]tradeView, 0, len(matched))
	for _, t := range matched {
		views = append(views, toTradeView(t))
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": views,
		"statistics": gin.H{
			"total_profit_loss":                       totalPL,
			"average_theoretical_risk_reward_ratio":    avgRR,
			"trade_count":                              len(matched),
		},
	})
}

type createTradeRequest struct {
	StrategyID      string     `json:"strategy_id"`
	Code            string     `json:"code"`
	DisplayName     string     `json:"display_name"`
	Shares          float64    `json:"shares"`
	RiskPerTrade    float64    `json:"risk_per_trade"`
	OpenTime        time.Time  `json:"open_time"`
	OpenPrice       float64    `json:"open_price"`
	ClosePrice      *float64   `json:"close_price"`
	CloseTime       *time.Time `json:"close_time"`
	CommissionBuy   float64    `json:"commission_buy"`
	CommissionSell  float64    `json:"commission_sell"`
	StopLossPrice   *float64   `json:"stop_loss_price"`
	TakeProfitPrice *float64   `json:"take_profit_price"`
	StopLossAlert   bool       `json:"stop_loss_alert"`
	TakeProfitAlert bool       `json:"take_profit_alert"`
	Note            string     `json:"note"`
}

// POST /api/trades
func (s *Server) createTrade(c *gin.Context) {
	userID := CurrentUserID(c)

	var req createTradeRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, invalidPayload(err))
		return
	}
	if req.StrategyID == "" || req.Code == "" || req.OpenPrice <= 0 {
		respondValidation(c, "MISSING_REQUIRED_FIELDS", "strategy_id, code and open_price are required")
		return
	}
	if req.OpenTime.IsZero() {
		req.OpenTime = time.Now()
	}

	trade, err := s.Ledger.CreateTrade(c.Request.Context(), userID, req.StrategyID, ledger.CreateTradeInput{
		Code: req.Code, DisplayName: req.DisplayName, Shares: req.Shares, RiskPerTrade: req.RiskPerTrade,
		OpenTime: req.OpenTime, OpenPrice: req.OpenPrice, ClosePrice: req.ClosePrice, CloseTime: req.CloseTime,
		CommissionBuy: req.CommissionBuy, CommissionSell: req.CommissionSell,
		StopLossPrice: req.StopLossPrice, TakeProfitPrice: req.TakeProfitPrice,
		StopLossAlert: req.StopLossAlert, TakeProfitAlert: req.TakeProfitAlert, Note: req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTradeView(*trade))
}

type updateTradeRequest struct {
	DisplayName     *string    `json:"display_name"`
	Shares          *float64   `json:"shares"`
	OpenTime        *time.Time `json:"open_time"`
	OpenPrice       *float64   `json:"open_price"`
	ClosePrice      *float64   `json:"close_price"`
	CloseTime       *time.Time `json:"close_time"`
	CommissionBuy   *float64   `json:"commission_buy"`
	CommissionSell  *float64   `json:"commission_sell"`
	StopLossPrice   *float64   `json:"stop_loss_price"`
	TakeProfitPrice *float64   `json:"take_profit_price"`
	StopLossAlert   *bool      `json:"stop_loss_alert"`
	TakeProfitAlert *bool      `json:"take_profit_alert"`
	Note            *string    `json:"note"`
	StrategyID      string     `json:"strategy_id"`
}

// PUT /api/trades/{id}
func (s *Server) updateTrade(c *gin.Context) {
	userID := CurrentUserID(c)
	id := c.Param("id")

	var req updateTradeRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, invalidPayload(err))
		return
	}
	if req.StrategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}

	trade, err := s.Ledger.UpdateTrade(c.Request.Context(), userID, req.StrategyID, id, ledger.UpdateTradePatch{
		DisplayName: req.DisplayName, Shares: req.Shares, OpenTime: req.OpenTime, OpenPrice: req.OpenPrice,
		ClosePrice: req.ClosePrice, CloseTime: req.CloseTime, CommissionBuy: req.CommissionBuy, CommissionSell: req.CommissionSell,
		StopLossPrice: req.StopLossPrice, TakeProfitPrice: req.TakeProfitPrice,
		StopLossAlert: req.StopLossAlert, TakeProfitAlert: req.TakeProfitAlert, Note: req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeView(*trade))
}

// DELETE /api/trades/{id}
func (s *Server) deleteTrade(c *gin.Context) {
	userID := CurrentUserID(c)
	id := c.Param("id")
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}
	if err := s.Ledger.DeleteTrade(c.Request.Context(), userID, strategyID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// DELETE /api/trades/clear-all?strategy_id=…
func (s *Server) clearAllTrades(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}
	n, err := s.Ledger.ClearAllTrades(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}
