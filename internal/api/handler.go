package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tradejournal/internal/events"
	"tradejournal/internal/ledger"
	"tradejournal/internal/notify"
	"tradejournal/internal/pricecache"
	"tradejournal/internal/quote"
	"tradejournal/pkg/db"
)

// Server wires the HTTP/JSON surface around C1-C5: every trade, anchor and
// capital-history mutation goes through Ledger and prices are read through
// Prices; handlers write to the database directly only for user/strategy
// bookkeeping, and read trades and capital history from it directly.
type Server struct {
	Router *gin.Engine
	Bus    *events.Bus
	DB     *db.Database

	Ledger *ledger.Service
	Prices *pricecache.Cache
	Quotes *quote.Chain
	Mailer notify.Sender

	JWTSecret      string
	BillingEnabled bool

	Hub *wsHub

	log zerolog.Logger
}

// NewServer builds the gin engine, registers middleware and routes, and
// starts the price-tick websocket hub.
func NewServer(
	bus *events.Bus,
	database *db.Database,
	ledgerSvc *ledger.Service,
	prices *pricecache.Cache,
	quotes *quote.Chain,
	mailer notify.Sender,
	jwtSecret string,
	billingEnabled bool,
	log zerolog.Logger,
) *Server {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:         r,
		Bus:            bus,
		DB:             database,
		Ledger:         ledgerSvc,
		Prices:         prices,
		Quotes:         quotes,
		Mailer:         mailer,
		JWTSecret:      jwtSecret,
		BillingEnabled: billingEnabled,
		Hub:            newWSHub(bus, log),
		log:            log.With().Str("component", "api").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/api/ws/prices", s.handlePriceWS)

	api := s.Router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			user := protected.Group("/user")
			{
				user.GET("/profile", s.getProfile)
				user.POST("/email-alerts", s.setEmailAlerts)
				user.POST("/test-email", s.sendTestEmail)
				user.GET("/billing-status", s.getBillingStatus)

				user.GET("/strategies", s.listStrategies)
				user.POST("/strategies", s.createStrategy)
				user.DELETE("/strategies/:id", s.deleteStrategy)
				user.DELETE("/strategies", s.deleteAllStrategies)

				user.GET("/capital", s.getCapital)
				user.POST("/capital", s.setCapital)
				user.GET("/capital-history", s.getCapitalHistory)
				user.GET("/strategies/capital-histories", s.getCapitalHistories)
			}

			trades := protected.Group("/trades")
			{
				trades.GET("", s.listTrades)
				trades.GET("/date/:date", s.getTradesByDate)
				trades.GET("/dates", s.listTradeDates)
				trades.GET("/stock-codes", s.listStockCodes)
				trades.GET("/stock/:code", s.getStockDetail)
				trades.POST("", s.createTrade)
				trades.PUT("/:id", s.updateTrade)
				trades.DELETE("/clear-all", s.clearAllTrades)
				trades.DELETE("/:id", s.deleteTrade)
			}

			positions := protected.Group("/positions")
			{
				positions.GET("", s.listPositions)
				positions.PUT("/:id", s.updatePosition)
				positions.POST("/:id/take-profit", s.takeProfitPosition)
				positions.POST("/:id/stop-loss", s.stopLossPosition)
			}

			prices := protected.Group("/price")
			{
				prices.GET("/:code", s.getPrice)
				prices.POST("/batch", s.getPricesBatch)
			}

			// Forex shares the handlers above: Strategy.Market scopes each
			// strategy to "stock" or "forex" and the handlers are agnostic
			// to which; these paths delegate straight through, except
			// /account/initial and /quotes, which have their own handlers.
			forex := protected.Group("/forex")
			{
				forex.GET("/account", s.getCapital)
				forex.GET("/account/initial", s.getInitialCapital)
				forex.POST("/account/reset", s.setCapital)
				forex.GET("/trades", s.listTrades)
				forex.POST("/trades", s.createTrade)
				forex.PUT("/trades/:id", s.updateTrade)
				forex.DELETE("/trades/:id", s.deleteTrade)
				forex.DELETE("/trades/clear-all", s.clearAllTrades)
				forex.GET("/positions", s.listPositions)
				forex.GET("/capital-history", s.getCapitalHistory)
				forex.GET("/quotes", s.getForexQuotes)
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
