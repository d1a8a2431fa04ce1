// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package eventbus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/openvoyage/bookcore/internal/logging"
)

// captureLogs points the global logger at a buffer for the duration of the
// test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() {
		logging.Init(logging.DefaultConfig())
	})
	return &buf
}

func TestWatermillLoggerLevels(t *testing.T) {
	buf := captureLogs(t)
	logger := newWatermillLogger()

	logger.Error("publish failed", errors.New("broker gone"), watermill.LogFields{"topic": "bookcore.events"})
	logger.Info("message handled", nil)
	logger.Debug("subscriber attached", nil)
	logger.Trace("poll tick", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d log lines, want 4:\n%s", len(lines), buf.String())
	}

	if !strings.Contains(lines[0], `"level":"error"`) {
		t.Errorf("Error line = %s, want error level", lines[0])
	}
	if !strings.Contains(lines[0], "broker gone") || !strings.Contains(lines[0], "publish failed") {
		t.Errorf("Error line = %s, missing error or message", lines[0])
	}
	if !strings.Contains(lines[0], `"topic":"bookcore.events"`) {
		t.Errorf("Error line = %s, missing field", lines[0])
	}

	// Transport chatter stays at debug level.
	for i, line := range lines[1:] {
		if !strings.Contains(line, `"level":"debug"`) {
			t.Errorf("line %d = %s, want debug level", i+1, line)
		}
	}
}

func TestWatermillLoggerWithFields(t *testing.T) {
	buf := captureLogs(t)
	logger := newWatermillLogger()

	child := logger.With(watermill.LogFields{"subscriber": "dispatcher"})
	child.Debug("received", watermill.LogFields{"topic": "bookcore.events"})

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, `"subscriber":"dispatcher"`) {
		t.Errorf("child line = %s, missing With field", line)
	}
	if !strings.Contains(line, `"topic":"bookcore.events"`) {
		t.Errorf("child line = %s, missing call field", line)
	}

	// The parent is unchanged by With.
	buf.Reset()
	logger.Debug("parent line", nil)
	if strings.Contains(buf.String(), "subscriber") {
		t.Errorf("parent line = %s, inherited child field", buf.String())
	}
}
