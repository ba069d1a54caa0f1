package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tradejournal/internal/api"
	"tradejournal/internal/consistency"
	"tradejournal/internal/events"
	"tradejournal/internal/ledger"
	"tradejournal/internal/monitor"
	"tradejournal/internal/notify"
	"tradejournal/internal/pricecache"
	"tradejournal/internal/quote"
	"tradejournal/pkg/config"
	"tradejournal/pkg/db"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	quotes := quote.NewChain(
		quote.NewAShareProvider("sina", cfg.AShareQuoteURL, cfg.ProviderTimeout),
		quote.NewForexProvider("fxquote", cfg.ForexQuoteURL, cfg.ProviderTimeout),
	)
	prices := pricecache.New(quotes, cfg.PriceTTL, bus)

	recomputer := ledger.NewRecomputer(reportingLocation(cfg.ReportingTimezone, &log))
	billing := ledger.NewDBBillingChecker(database)
	ledgerSvc := ledger.NewService(database, recomputer, bus, billing, cfg.BillingEnabled)

	mon := monitor.New(database.Queries(), prices, bus, cfg.MonitorTickInterval, log)
	mon.Start(ctx)

	sender := buildSender(cfg, &log)
	dispatcher := notify.New(database, database.Queries(), sender, cfg.AlertCoolDown, log)
	dispatcher.Start(ctx, bus)

	auditor := consistency.New(
		database,
		database.Queries(),
		func(trades []db.TradeEvent, anchor db.CapitalAnchor) []db.CapitalHistoryPoint {
			return recomputer.Compute(trades, anchor, time.Now())
		},
		bus,
		fmt.Sprintf("@every %s", cfg.ConsistencyInterval),
		log,
	)
	if err := auditor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start consistency auditor")
	}

	server := api.NewServer(
		bus,
		database,
		ledgerSvc,
		prices,
		quotes,
		sender,
		cfg.JWTSecret,
		cfg.BillingEnabled,
		log,
	)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("api server exited")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("trade journal server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down")
}

// reportingLocation loads the deployment's single fixed reporting timezone;
// an unresolvable zone falls back to UTC rather than failing startup.
func reportingLocation(name string, log *zerolog.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("timezone", name).Msg("unknown reporting timezone, falling back to UTC")
		return time.UTC
	}
	return loc
}

// buildSender picks the SendGrid transport when an API key is configured,
// otherwise falls back to direct SMTP; see DESIGN.md for why SMTP is the
// one stdlib-backed collaborator in the notification path.
func buildSender(cfg *config.Config, log *zerolog.Logger) notify.Sender {
	if cfg.SendGridAPIKey != "" {
		log.Info().Msg("using SendGrid notification transport")
		return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.SMTPFrom, "Trade Journal")
	}
	log.Info().Str("host", cfg.SMTPHost).Msg("using SMTP notification transport")
	return notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
}
