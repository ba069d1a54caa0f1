package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tradejournal/pkg/db"
)

type strategyView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Market         string     `json:"market"`
	InitialCapital *float64   `json:"initial_capital,omitempty"`
	InitialDate    *time.Time `json:"initial_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toStrategyView(s db.Strategy) strategyView {
	return strategyView{
		ID: s.ID, Name: s.Name, Market: s.Market,
		InitialCapital: s.InitialCapital, InitialDate: s.InitialDate, CreatedAt: s.CreatedAt,
	}
}

// GET /api/user/strategies?market=stock|forex
func (s *Server) listStrategies(c *gin.Context) {
	userID := CurrentUserID(c)
	market := c.Query("market")

	strategies, err := s.DB.ListStrategies(c.Request.Context(), userID, market)
	if err != nil {
		respondInternal(c, err)
		return
	}
	views := make([]strategyView, 0, len(strategies))
	for _, st := range strategies {
		views = append(views, toStrategyView(st))
	}
	c.JSON(http.StatusOK, views)
}

// POST /api/user/strategies?market=… {name}
func (s *Server) createStrategy(c *gin.Context) {
	userID := CurrentUserID(c)
	market := c.Query("market")
	if market != "stock" && market != "forex" {
		respondValidation(c, "INVALID_MARKET", "market must be 'stock' or 'forex'")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, invalidPayload(err))
		return
	}
	if req.Name == "" {
		respondValidation(c, "MISSING_NAME", "name is required")
		return
	}

	st := db.Strategy{
		ID: uuid.NewString(), UserID: userID, Name: req.Name, Market: market, CreatedAt: time.Now(),
	}
	if err := s.DB.CreateStrategy(c.Request.Context(), st); err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStrategyView(st))
}

// DELETE /api/user/strategies/{id}?market=…
func (s *Server) deleteStrategy(c *gin.Context) {
	userID := CurrentUserID(c)
	id := c.Param("id")
	if err := s.Ledger.DeleteStrategy(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// DELETE /api/user/strategies?market=… (delete all)
func (s *Server) deleteAllStrategies(c *gin.Context) {
	userID := CurrentUserID(c)
	market := c.Query("market")
	ctx := c.Request.Context()

	strategies, err := s.DB.ListStrategies(ctx, userID, market)
	if err != nil {
		respondInternal(c, err)
		return
	}
	for _, st := range strategies {
		if err := s.Ledger.DeleteStrategy(ctx, userID, st.ID); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": len(strategies)})
}

// GET /api/user/capital?strategy_id=… (today)
func (s *Server) getCapital(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}

	point, err := s.DB.Queries().LatestCapitalHistory(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if point == nil {
		c.JSON(http.StatusOK, gin.H{"total_assets": 0, "available_funds": 0, "position_value": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_assets": point.TotalAssets, "available_funds": point.AvailableFunds, "position_value": point.PositionValue,
	})
}

// GET /api/forex/account/initial?strategy_id=…
func (s *Server) getInitialCapital(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}

	st, err := s.DB.GetStrategy(c.Request.Context(), userID, strategyID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if st == nil {
		respondNotFound(c, "STRATEGY_NOT_FOUND", "strategy not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"initial_capital": st.InitialCapital, "initial_date": st.InitialDate})
}

// POST /api/user/capital?strategy_id=… {capital,date?}
func (s *Server) setCapital(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}

	var req struct {
		Capital float64 `json:"capital"`
		Date    string  `json:"date"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, invalidPayload(err))
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			respondValidation(c, "INVALID_DATE", "date must be YYYY-MM-DD")
			return
		}
	}

	if err := s.Ledger.SetAnchor(c.Request.Context(), userID, strategyID, req.Capital, date); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func parseHistoryRange(c *gin.Context) (start, end time.Time, ok bool) {
	startStr := c.Query("start_date")
	endStr := c.Query("end_date")
	var err error
	if startStr != "" {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			respondValidation(c, "INVALID_START_DATE", "start_date must be YYYY-MM-DD")
			return start, end, false
		}
	}
	if endStr != "" {
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			respondValidation(c, "INVALID_END_DATE", "end_date must be YYYY-MM-DD")
			return start, end, false
		}
	} else {
		end = time.Now()
	}
	return start, end, true
}

// GET /api/user/capital-history?strategy_id=…&start_date=…&end_date=…
func (s *Server) getCapitalHistory(c *gin.Context) {
	userID := CurrentUserID(c)
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		respondValidation(c, "MISSING_STRATEGY_ID", "strategy_id is required")
		return
	}
	start, end, ok := parseHistoryRange(c)
	if !ok {
		return
	}

	points, err := s.DB.Queries().ListCapitalHistory(c.Request.Context(), userID, strategyID, start, end)
	if err != nil {
		respondInternal(c, err)
		return
	}
	out := make([]gin.H, 0, len(points))
	for _, p := range points {
		out = append(out, gin.H{
			"date": p.Date.Format("2006-01-02"), "capital": p.TotalAssets,
			"available_funds": p.AvailableFunds, "position_value": p.PositionValue,
		})
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/user/strategies/capital-histories?market=…&start_date=…&end_date=…
func (s *Server) getCapitalHistories(c *gin.Context) {
	userID := CurrentUserID(c)
	market := c.Query("market")
	start, end, ok := parseHistoryRange(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	strategies, err := s.DB.ListStrategies(ctx, userID, market)
	if err != nil {
		respondInternal(c, err)
		return
	}

	strategiesOut := make([]gin.H, 0, len(strategies))
	seriesByID := make(gin.H, len(strategies))
	for _, st := range strategies {
		strategiesOut = append(strategiesOut, gin.H{"id": st.ID, "name": st.Name})

		points, err := s.DB.Queries().ListCapitalHistory(ctx, userID, st.ID, start, end)
		if err != nil {
			respondInternal(c, err)
			return
		}
		series := make([]gin.H, 0, len(points))
		for _, p := range points {
			series = append(series, gin.H{
				"date": p.Date.Format("2006-01-02"), "capital": p.TotalAssets,
				"equity": p.TotalAssets, "available_funds": p.AvailableFunds, "position_value": p.PositionValue,
			})
		}
		seriesByID[st.ID] = series
	}

	c.JSON(http.StatusOK, gin.H{"strategies": strategiesOut, "series_by_strategy_id": seriesByID})
}

func parsePage(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
