// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package notifications

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/logging"
)

// EmailChannel delivers messages over SMTP.
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
}

// NewEmailChannel creates an SMTP channel from configuration.
func NewEmailChannel(cfg config.NotificationsConfig) *EmailChannel {
	return &EmailChannel{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.FromAddress,
		timeout:  30 * time.Second,
	}
}

// Name returns the channel identifier.
func (c *EmailChannel) Name() string { return "email" }

// Send delivers one message over SMTP.
func (c *EmailChannel) Send(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if c.username != "" && c.password != "" {
		auth := smtp.PlainAuth("", c.username, c.password, c.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := writer.Write([]byte(c.buildMessage(to, subject, body))); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	// Quit failures after a successful DATA are not delivery failures.
	_ = client.Quit()
	return nil
}

func (c *EmailChannel) buildMessage(to, subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: Bookcore <%s>\r\n", c.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// LogChannel writes messages to the application log. It is the default
// channel for development and for deployments without an SMTP relay.
type LogChannel struct{}

// NewLogChannel creates a logging channel.
func NewLogChannel() *LogChannel { return &LogChannel{} }

// Name returns the channel identifier.
func (c *LogChannel) Name() string { return "log" }

// Send logs the message instead of delivering it.
func (c *LogChannel) Send(ctx context.Context, to, subject, body string) error {
	logging.Ctx(ctx).Info().
		Str("to", to).
		Str("subject", subject).
		Msg("Notification (log channel)")
	return nil
}
