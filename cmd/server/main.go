// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Command server runs the Bookcore HTTP API with its supervised background
// services: the domain event bus, the recurring availability expander, and
// the payment deadline sweeper.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/openvoyage/bookcore/internal/api"
	"github.com/openvoyage/bookcore/internal/availability"
	"github.com/openvoyage/bookcore/internal/booking"
	"github.com/openvoyage/bookcore/internal/cache"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/eventbus"
	"github.com/openvoyage/bookcore/internal/jobs"
	"github.com/openvoyage/bookcore/internal/logging"
	"github.com/openvoyage/bookcore/internal/notifications"
	"github.com/openvoyage/bookcore/internal/payments"
	"github.com/openvoyage/bookcore/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("default_gateway", cfg.Payments.DefaultGateway).
		Msg("Starting Bookcore")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Shared infrastructure.
	c := cache.New(cfg.Cache.ListTTL)
	bus := eventbus.New(cfg.EventBus, db)
	notifier := notifications.New(cfg.Notifications)

	// Payment gateways. Sandbox is always available for testing; Stripe only
	// when credentials are configured.
	registry := payments.NewRegistry()
	if cfg.Payments.Sandbox.Enabled {
		registry.Register(payments.NewSandboxGateway(cfg.Payments.Sandbox.CommissionRate))
	}
	if cfg.Payments.Stripe.Enabled {
		registry.Register(payments.NewStripeGateway(cfg.Payments.Stripe, cfg.Payments.GatewayTimeout))
	}

	// Domain services, constructed once and injected.
	availabilitySvc := availability.New(db, c, bus, cfg.Cache)
	bookingSvc := booking.New(db, availabilitySvc, c, bus, notifier, cfg.Booking, cfg.Cache)
	paymentSvc := payments.New(db, bookingSvc, registry, c, bus, cfg.Payments, cfg.Cache)

	router := api.NewRouter(db, availabilitySvc, bookingSvc, paymentSvc, cfg.Server)
	server := api.NewServer(cfg.Server, router.Setup())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Supervisor tree: messaging, jobs, and API layers restart independently.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(bus)
	tree.AddJobService(jobs.NewRecurringExpander(availabilitySvc, cfg.Jobs))
	tree.AddJobService(jobs.NewDeadlineSweeper(bookingSvc, cfg.Jobs))
	tree.AddAPIService(server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	if err := bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("Event bus close was not clean")
	}

	logging.Info().Msg("Bookcore stopped gracefully")
}
