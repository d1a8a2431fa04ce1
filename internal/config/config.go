// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

// Package config provides layered configuration for Bookcore using Koanf v2.
//
// Loading order (highest priority wins):
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables with the BOOKCORE_ prefix
//     (BOOKCORE_SERVER_PORT -> server.port, BOOKCORE_BOOKING_TAX_PERCENT -> booking.tax_percent)
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Cache         CacheConfig         `koanf:"cache"`
	EventBus      EventBusConfig      `koanf:"eventbus"`
	Booking       BookingConfig       `koanf:"booking"`
	Payments      PaymentsConfig      `koanf:"payments"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Jobs          JobsConfig          `koanf:"jobs"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds the DuckDB connection settings.
type DatabaseConfig struct {
	// Path is the database file path, or ":memory:" for tests.
	Path         string        `koanf:"path"`
	MaxMemory    string        `koanf:"max_memory"`
	Threads      int           `koanf:"threads"` // 0 = runtime.NumCPU()
	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	ConnLifetime time.Duration `koanf:"conn_lifetime"`
}

// CacheConfig holds in-memory cache TTLs. Stats/metrics aggregates are cached
// far longer than listing queries, which are invalidated on every write anyway.
type CacheConfig struct {
	ListTTL  time.Duration `koanf:"list_ttl"`
	StatsTTL time.Duration `koanf:"stats_ttl"`
}

// EventBusConfig holds domain event bus settings.
type EventBusConfig struct {
	// Synchronous dispatches events inline instead of fire-and-forget.
	Synchronous bool `koanf:"synchronous"`
	// HistorySize caps the retained event history (oldest evicted first).
	HistorySize int `koanf:"history_size"`
	// HistoryMaxAge evicts history entries older than this.
	HistoryMaxAge time.Duration `koanf:"history_max_age"`
	// BufferSize is the gochannel subscriber buffer.
	BufferSize int64 `koanf:"buffer_size"`
}

// BookingConfig holds booking business parameters.
type BookingConfig struct {
	// TaxPercent is applied to the subtotal (18 = 18%).
	TaxPercent int `koanf:"tax_percent"`
	// PaymentDeadline is how long a pending booking holds its seats.
	PaymentDeadline time.Duration `koanf:"payment_deadline"`
	Currency        string        `koanf:"currency"`
}

// GatewayCredentials holds per-gateway API access settings.
type GatewayCredentials struct {
	Enabled        bool    `koanf:"enabled"`
	APIKey         string  `koanf:"api_key"`
	SecretKey      string  `koanf:"secret_key"`
	BaseURL        string  `koanf:"base_url"`
	CommissionRate float64 `koanf:"commission_rate"`
}

// PaymentsConfig holds payment processing settings.
type PaymentsConfig struct {
	DefaultGateway string             `koanf:"default_gateway"`
	Stripe         GatewayCredentials `koanf:"stripe"`
	Sandbox        GatewayCredentials `koanf:"sandbox"`
	// FraudMaxAmount rejects single transactions above this (minor units).
	FraudMaxAmount int64 `koanf:"fraud_max_amount"`
	// FraudBlockedCountries is a comma-separated ISO country list.
	FraudBlockedCountries []string `koanf:"fraud_blocked_countries"`
	// GatewayTimeout bounds each outbound gateway call.
	GatewayTimeout time.Duration `koanf:"gateway_timeout"`
}

// NotificationsConfig holds outbound notification settings.
type NotificationsConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Channel      string  `koanf:"channel"` // email or log
	SMTPHost     string  `koanf:"smtp_host"`
	SMTPPort     int     `koanf:"smtp_port"`
	SMTPUsername string  `koanf:"smtp_username"`
	SMTPPassword string  `koanf:"smtp_password"`
	FromAddress  string  `koanf:"from_address"`
	// SendsPerSecond throttles outbound sends (x/time rate limiter).
	SendsPerSecond float64 `koanf:"sends_per_second"`
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	// ExpandInterval is how often recurring templates are materialized.
	ExpandInterval time.Duration `koanf:"expand_interval"`
	// ExpandHorizonDays is how far ahead slots are materialized.
	ExpandHorizonDays int `koanf:"expand_horizon_days"`
	// SweepInterval is how often overdue pending bookings are expired.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LoggingConfig holds log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are
// overridden by the config file and environment variables, in that order.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8460,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:         "/data/bookcore.duckdb",
			MaxMemory:    "1GB",
			Threads:      0,
			MaxOpenConns: 8,
			MaxIdleConns: 4,
			ConnLifetime: time.Hour,
		},
		Cache: CacheConfig{
			ListTTL:  2 * time.Minute,
			StatsTTL: 4 * time.Hour,
		},
		EventBus: EventBusConfig{
			Synchronous:   false,
			HistorySize:   10000,
			HistoryMaxAge: 24 * time.Hour,
			BufferSize:    1024,
		},
		Booking: BookingConfig{
			TaxPercent:      18,
			PaymentDeadline: 72 * time.Hour,
			Currency:        "EUR",
		},
		Payments: PaymentsConfig{
			DefaultGateway: "sandbox",
			Sandbox: GatewayCredentials{
				Enabled:        true,
				CommissionRate: 0.02,
			},
			Stripe: GatewayCredentials{
				Enabled:        false,
				BaseURL:        "https://api.stripe.com",
				CommissionRate: 0.029,
			},
			FraudMaxAmount:        5_000_00,
			FraudBlockedCountries: nil,
			GatewayTimeout:        30 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled:        true,
			Channel:        "log",
			SMTPPort:       587,
			SendsPerSecond: 5,
		},
		Jobs: JobsConfig{
			ExpandInterval:    6 * time.Hour,
			ExpandHorizonDays: 90,
			SweepInterval:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks configuration consistency. It is called by Load; call it
// directly when constructing Config by hand in tests.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Booking.TaxPercent < 0 || c.Booking.TaxPercent > 100 {
		return fmt.Errorf("booking.tax_percent must be in 0..100, got %d", c.Booking.TaxPercent)
	}
	if c.Booking.PaymentDeadline <= 0 {
		return fmt.Errorf("booking.payment_deadline must be positive")
	}
	if c.EventBus.HistorySize <= 0 {
		return fmt.Errorf("eventbus.history_size must be positive")
	}
	if c.Payments.DefaultGateway == "" {
		return fmt.Errorf("payments.default_gateway is required")
	}
	if c.Payments.Stripe.Enabled && c.Payments.Stripe.SecretKey == "" {
		return fmt.Errorf("payments.stripe.secret_key is required when stripe is enabled")
	}
	if c.Notifications.Enabled && c.Notifications.Channel == "email" {
		if c.Notifications.SMTPHost == "" || c.Notifications.FromAddress == "" {
			return fmt.Errorf("notifications: smtp_host and from_address are required for the email channel")
		}
	}
	if c.Jobs.ExpandHorizonDays <= 0 {
		return fmt.Errorf("jobs.expand_horizon_days must be positive")
	}
	return nil
}
