// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/openvoyage/bookcore/internal/models"
)

// SandboxGateway is an in-process gateway for development and tests. Charges
// are recorded in memory and verify as paid immediately.
type SandboxGateway struct {
	commissionRate float64

	mu      sync.Mutex
	charges map[string]int64 // externalID -> amount
	seq     int
}

// NewSandboxGateway creates a sandbox gateway with the given commission rate.
func NewSandboxGateway(commissionRate float64) *SandboxGateway {
	return &SandboxGateway{
		commissionRate: commissionRate,
		charges:        make(map[string]int64),
	}
}

// Name returns "sandbox".
func (g *SandboxGateway) Name() string { return "sandbox" }

// CreatePayment records the charge and returns a synthetic payment URL.
func (g *SandboxGateway) CreatePayment(_ context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	externalID := fmt.Sprintf("sbx_%06d", g.seq)
	g.charges[externalID] = req.Amount
	return &CreatePaymentResult{
		ExternalID: externalID,
		PaymentURL: fmt.Sprintf("https://sandbox.openvoyage.dev/pay/%s", externalID),
	}, nil
}

// VerifyPayment reports true for any charge this gateway created.
func (g *SandboxGateway) VerifyPayment(_ context.Context, externalID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.charges[externalID]
	return ok, nil
}

// Refund accepts any refund for a known charge.
func (g *SandboxGateway) Refund(_ context.Context, externalID string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[externalID]; !ok {
		return "", fmt.Errorf("sandbox charge %s not found", externalID)
	}
	g.seq++
	return fmt.Sprintf("sbx_re_%06d", g.seq), nil
}

// MapStatus maps the sandbox status vocabulary.
func (g *SandboxGateway) MapStatus(gatewayStatus string) (models.TransactionStatus, bool) {
	switch gatewayStatus {
	case "paid", "succeeded":
		return models.TransactionStatusCompleted, true
	case "created", "processing":
		return models.TransactionStatusPending, true
	case "failed", "declined":
		return models.TransactionStatusFailed, true
	default:
		return "", false
	}
}

// CommissionRate returns the configured fee fraction.
func (g *SandboxGateway) CommissionRate() float64 { return g.commissionRate }
