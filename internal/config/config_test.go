// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8460 {
		t.Errorf("Server.Port = %d, want 8460", cfg.Server.Port)
	}
	if cfg.Booking.TaxPercent != 18 {
		t.Errorf("Booking.TaxPercent = %d, want 18", cfg.Booking.TaxPercent)
	}
	if cfg.Booking.PaymentDeadline != 72*time.Hour {
		t.Errorf("Booking.PaymentDeadline = %v, want 72h", cfg.Booking.PaymentDeadline)
	}
	if cfg.Payments.DefaultGateway != "sandbox" {
		t.Errorf("Payments.DefaultGateway = %q, want sandbox", cfg.Payments.DefaultGateway)
	}
	if !cfg.Payments.Sandbox.Enabled {
		t.Error("Payments.Sandbox.Enabled = false, want true")
	}
	if cfg.EventBus.HistorySize != 10000 {
		t.Errorf("EventBus.HistorySize = %d, want 10000", cfg.EventBus.HistorySize)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want level info format json", cfg.Logging)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BOOKCORE_SERVER_PORT", "9090")
	t.Setenv("BOOKCORE_BOOKING_TAX_PERCENT", "23")
	t.Setenv("BOOKCORE_BOOKING_PAYMENT_DEADLINE", "48h")
	t.Setenv("BOOKCORE_PAYMENTS_FRAUD_BLOCKED_COUNTRIES", "KP, IR,SY")
	t.Setenv("BOOKCORE_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Booking.TaxPercent != 23 {
		t.Errorf("Booking.TaxPercent = %d, want 23", cfg.Booking.TaxPercent)
	}
	if cfg.Booking.PaymentDeadline != 48*time.Hour {
		t.Errorf("Booking.PaymentDeadline = %v, want 48h", cfg.Booking.PaymentDeadline)
	}
	want := []string{"KP", "IR", "SY"}
	if len(cfg.Payments.FraudBlockedCountries) != len(want) {
		t.Fatalf("FraudBlockedCountries = %v, want %v", cfg.Payments.FraudBlockedCountries, want)
	}
	for i := range want {
		if cfg.Payments.FraudBlockedCountries[i] != want[i] {
			t.Errorf("FraudBlockedCountries[%d] = %q, want %q", i, cfg.Payments.FraudBlockedCountries[i], want[i])
		}
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8888
booking:
  currency: GBP
database:
  path: /tmp/bookcore-test.duckdb
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8888 {
		t.Errorf("Server.Port = %d, want 8888 from config file", cfg.Server.Port)
	}
	if cfg.Booking.Currency != "GBP" {
		t.Errorf("Booking.Currency = %q, want GBP from config file", cfg.Booking.Currency)
	}
	if cfg.Database.Path != "/tmp/bookcore-test.duckdb" {
		t.Errorf("Database.Path = %q, want file value", cfg.Database.Path)
	}
	// Untouched keys keep their defaults.
	if cfg.Booking.TaxPercent != 18 {
		t.Errorf("Booking.TaxPercent = %d, want default 18", cfg.Booking.TaxPercent)
	}
}

func TestEnvironmentBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8888\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("BOOKCORE_SERVER_PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want environment value 9191", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "tax percent above 100",
			mutate:  func(c *Config) { c.Booking.TaxPercent = 150 },
			wantErr: true,
		},
		{
			name:    "non-positive payment deadline",
			mutate:  func(c *Config) { c.Booking.PaymentDeadline = 0 },
			wantErr: true,
		},
		{
			name:    "non-positive history size",
			mutate:  func(c *Config) { c.EventBus.HistorySize = 0 },
			wantErr: true,
		},
		{
			name:    "missing default gateway",
			mutate:  func(c *Config) { c.Payments.DefaultGateway = "" },
			wantErr: true,
		},
		{
			name: "stripe enabled without secret key",
			mutate: func(c *Config) {
				c.Payments.Stripe.Enabled = true
				c.Payments.Stripe.SecretKey = ""
			},
			wantErr: true,
		},
		{
			name: "email channel without SMTP host",
			mutate: func(c *Config) {
				c.Notifications.Enabled = true
				c.Notifications.Channel = "email"
				c.Notifications.SMTPHost = ""
				c.Notifications.FromAddress = "bookings@example.com"
			},
			wantErr: true,
		},
		{
			name: "email channel fully configured",
			mutate: func(c *Config) {
				c.Notifications.Enabled = true
				c.Notifications.Channel = "email"
				c.Notifications.SMTPHost = "smtp.example.com"
				c.Notifications.FromAddress = "bookings@example.com"
			},
		},
		{
			name:    "non-positive expand horizon",
			mutate:  func(c *Config) { c.Jobs.ExpandHorizonDays = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate returned nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate returned %v, want nil", err)
			}
		})
	}
}
