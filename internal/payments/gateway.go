// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openvoyage/bookcore/internal/models"
)

// CreatePaymentRequest carries what a gateway needs to start a charge.
type CreatePaymentRequest struct {
	TransactionID string
	BookingID     string
	Amount        int64
	Currency      string
	PayerEmail    string
	Description   string
}

// CreatePaymentResult is the gateway's answer to a charge initiation.
type CreatePaymentResult struct {
	ExternalID string
	PaymentURL string
}

// Gateway is one payment provider integration. Implementations must be safe
// for concurrent use.
type Gateway interface {
	Name() string

	// CreatePayment starts a charge and returns the provider reference plus
	// the URL the payer completes the charge at.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)

	// VerifyPayment re-checks a charge with the provider. It returns false
	// (with nil error) when the provider reports the charge as not paid.
	VerifyPayment(ctx context.Context, externalID string) (bool, error)

	// Refund returns money for a charge and reports the provider's refund
	// reference.
	Refund(ctx context.Context, externalID string, amount int64) (string, error)

	// MapStatus translates the provider's status vocabulary to the internal
	// one. ok is false for statuses with no mapping; callers route those to
	// manual review.
	MapStatus(gatewayStatus string) (status models.TransactionStatus, ok bool)

	// CommissionRate is the provider's fee as a fraction of the amount.
	CommissionRate() float64
}

// Registry is the closed set of configured gateways, replacing a string
// switch with explicit registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewRegistry creates an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

// Register adds a gateway under its name. Registering twice replaces the
// earlier entry.
func (r *Registry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gw.Name()] = gw
}

// Resolve returns the gateway for a name or ErrGatewayNotConfigured.
func (r *Registry) Resolve(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("gateway %q: %w", name, ErrGatewayNotConfigured)
	}
	return gw, nil
}

// Names returns the registered gateway names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
