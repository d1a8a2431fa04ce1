// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package cache

import (
	"strings"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("slots:abc", []string{"slot-1", "slot-2"})

	got, ok := c.Get("slots:abc")
	if !ok {
		t.Fatal("Get returned miss for freshly set key")
	}
	slots, ok := got.([]string)
	if !ok || len(slots) != 2 {
		t.Errorf("Get returned %v, want two slot IDs", got)
	}

	if _, ok := c.Get("slots:missing"); ok {
		t.Error("Get returned hit for unknown key")
	}
}

func TestExpiredEntryEvictedOnAccess(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("bookings:page1", "stale", -time.Second)

	if _, ok := c.Get("bookings:page1"); ok {
		t.Error("Get returned expired entry")
	}

	stats := c.GetStats()
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(time.Minute)

	c.Set("bookings:page1", 1)
	c.Set("bookings:page2", 2)
	c.Set("slots:search", 3)

	c.InvalidatePrefix("bookings:")

	if _, ok := c.Get("bookings:page1"); ok {
		t.Error("bookings:page1 survived prefix invalidation")
	}
	if _, ok := c.Get("bookings:page2"); ok {
		t.Error("bookings:page2 survived prefix invalidation")
	}
	if _, ok := c.Get("slots:search"); !ok {
		t.Error("slots:search was invalidated by an unrelated prefix")
	}

	if stats := c.GetStats(); stats.TotalKeys != 1 {
		t.Errorf("TotalKeys = %d, want 1", stats.TotalKeys)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key still readable")
	}

	c.Clear()
	if _, ok := c.Get("b"); ok {
		t.Error("key survived Clear")
	}
	if stats := c.GetStats(); stats.TotalKeys != 0 {
		t.Errorf("TotalKeys after Clear = %d, want 0", stats.TotalKeys)
	}
}

func TestHitRate(t *testing.T) {
	c := New(time.Minute)

	if rate := c.HitRate(); rate != 0.0 {
		t.Errorf("HitRate on empty cache = %f, want 0", rate)
	}

	c.Set("k", 1)
	c.Get("k")          // hit
	c.Get("k")          // hit
	c.Get("absent-key") // miss

	want := float64(2) / float64(3) * 100.0
	if rate := c.HitRate(); rate != want {
		t.Errorf("HitRate = %f, want %f", rate, want)
	}
}

func TestGenerateKeyStability(t *testing.T) {
	type filter struct {
		TourID string
		Limit  int
	}

	a := GenerateKey("slots", filter{TourID: "tour-douro-cruise", Limit: 20})
	b := GenerateKey("slots", filter{TourID: "tour-douro-cruise", Limit: 20})
	if a != b {
		t.Errorf("identical params produced different keys: %q vs %q", a, b)
	}

	c := GenerateKey("slots", filter{TourID: "tour-douro-cruise", Limit: 50})
	if a == c {
		t.Error("different params produced the same key")
	}

	d := GenerateKey("bookings", filter{TourID: "tour-douro-cruise", Limit: 20})
	if !strings.HasPrefix(d, "bookings:") {
		t.Errorf("key %q missing namespace prefix", d)
	}
	if a == d {
		t.Error("different namespaces produced the same key")
	}
}
