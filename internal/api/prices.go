package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GET /api/price/{code}?force_refresh=<bool>
func (s *Server) getPrice(c *gin.Context) {
	code := c.Param("code")
	force := c.Query("force_refresh") == "true"

	res := s.Prices.Get(c.Request.Context(), code, force)
	c.JSON(http.StatusOK, gin.H{"price": res.Price, "source": res.Source})
}

// POST /api/price/batch {codes:[…]}?force_refresh=<bool>
func (s *Server) getPricesBatch(c *gin.Context) {
	force := c.Query("force_refresh") == "true"

	var req struct {
		Codes []string `json:"codes"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, invalidPayload(err))
		return
	}
	if len(req.Codes) == 0 {
		c.JSON(http.StatusOK, []gin.H{})
		return
	}

	results := s.Prices.Batch(c.Request.Context(), req.Codes, force)
	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, gin.H{"stock_code": r.Code, "price": r.Price, "source": r.Source})
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/forex/quotes?codes=EURUSD,USDJPY&force_refresh=<bool>
func (s *Server) getForexQuotes(c *gin.Context) {
	force := c.Query("force_refresh") == "true"

	raw := c.Query("codes")
	if raw == "" {
		c.JSON(http.StatusOK, []gin.H{})
		return
	}
	codes := strings.Split(raw, ",")
	for i := range codes {
		codes[i] = strings.TrimSpace(codes[i])
	}

	results := s.Prices.Batch(c.Request.Context(), codes, force)
	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, gin.H{"stock_code": r.Code, "price": r.Price, "source": r.Source})
	}
	c.JSON(http.StatusOK, out)
}
