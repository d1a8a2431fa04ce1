// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package payments

import (
	"strings"

	"github.com/openvoyage/bookcore/internal/config"
)

// disposableEmailDomains are providers whose addresses carry elevated
// chargeback risk.
var disposableEmailDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.dev":      true,
	"throwaway.email":   true,
}

// fraudChecker applies the initiation-time risk heuristics: single-charge
// amount cap, country blocklist, disposable email domains.
type fraudChecker struct {
	maxAmount        int64
	blockedCountries map[string]bool
}

func newFraudChecker(cfg config.PaymentsConfig) *fraudChecker {
	blocked := make(map[string]bool, len(cfg.FraudBlockedCountries))
	for _, country := range cfg.FraudBlockedCountries {
		blocked[strings.ToUpper(strings.TrimSpace(country))] = true
	}
	return &fraudChecker{
		maxAmount:        cfg.FraudMaxAmount,
		blockedCountries: blocked,
	}
}

// check returns the name of the violated rule, or "" when the payment passes.
func (f *fraudChecker) check(amount int64, payerEmail, payerCountry string) string {
	if f.maxAmount > 0 && amount > f.maxAmount {
		return "amount_limit"
	}
	if payerCountry != "" && f.blockedCountries[strings.ToUpper(payerCountry)] {
		return "blocked_country"
	}
	if at := strings.LastIndex(payerEmail, "@"); at >= 0 {
		domain := strings.ToLower(payerEmail[at+1:])
		if disposableEmailDomains[domain] {
			return "disposable_email"
		}
	}
	return ""
}
