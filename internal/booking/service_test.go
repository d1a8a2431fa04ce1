// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/availability"
	"github.com/openvoyage/bookcore/internal/cache"
	"github.com/openvoyage/bookcore/internal/config"
	"github.com/openvoyage/bookcore/internal/database"
	"github.com/openvoyage/bookcore/internal/models"
)

// testDBSemaphore serializes DuckDB access across tests in this package.
// Concurrent CGO calls from parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

var testDBMutex sync.Mutex

type testEnv struct {
	db      *database.DB
	avail   *availability.Service
	booking *Service
}

// setupTest wires a booking service against an in-memory database with a
// fixed 18% tax and a 72h payment deadline. The semaphore is held for the
// entire test via t.Cleanup.
func setupTest(t *testing.T) *testEnv {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	testDBMutex.Lock()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	testDBMutex.Unlock()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	c := cache.New(time.Minute)
	availSvc := availability.New(db, c, nil, config.CacheConfig{ListTTL: time.Minute, StatsTTL: time.Minute})
	bookingSvc := New(db, availSvc, c, nil, nil, config.BookingConfig{
		TaxPercent:      18,
		PaymentDeadline: 72 * time.Hour,
		Currency:        "EUR",
	}, config.CacheConfig{ListTTL: time.Minute})

	return &testEnv{db: db, avail: availSvc, booking: bookingSvc}
}

// seedSlot inserts a slot daysAhead days out with the given capacity and a
// 4500-cent base price.
func (env *testEnv) seedSlot(t *testing.T, daysAhead, capacity int) *models.AvailabilitySlot {
	t.Helper()
	now := time.Now().UTC()
	slot := &models.AvailabilitySlot{
		ID:              uuid.New(),
		TourID:          "tour-douro-cruise",
		Date:            now.AddDate(0, 0, daysAhead).Truncate(24 * time.Hour),
		StartTime:       "10:00",
		TotalCapacity:   capacity,
		AvailableSpaces: capacity,
		Status:          models.SlotStatusAvailable,
		BasePrice:       4500,
		Currency:        "EUR",
		PriceMultiplier: 1.0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := env.db.InsertSlot(context.Background(), slot); err != nil {
		t.Fatalf("seed slot failed: %v", err)
	}
	return slot
}

// seedPolicy inserts a refund policy tier for the test tour.
func (env *testEnv) seedPolicy(t *testing.T, daysBefore, percent int) {
	t.Helper()
	p := &models.RefundPolicy{
		ID:             uuid.New(),
		TourID:         "tour-douro-cruise",
		DaysBeforeTour: daysBefore,
		RefundPercent:  percent,
	}
	if err := env.db.InsertRefundPolicy(context.Background(), p); err != nil {
		t.Fatalf("seed refund policy failed: %v", err)
	}
}

func createParams(slot *models.AvailabilitySlot, email string, participants int) CreateParams {
	p := CreateParams{
		TourID:       slot.TourID,
		TourDate:     slot.Date,
		ContactName:  "Ines Costa",
		ContactEmail: email,
		ContactPhone: "+351961234567",
	}
	for i := 0; i < participants; i++ {
		p.Participants = append(p.Participants, ParticipantParams{
			FullName: "Traveller " + string(rune('A'+i)),
			Age:      30 + i,
		})
	}
	return p
}

func TestCreateHoldsCapacityAndPrices(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 10)

	booking, err := env.booking.Create(ctx, createParams(slot, "ines@example.com", 2))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if booking.Status != models.BookingStatusPendingPayment {
		t.Errorf("Status = %q, want pending_payment", booking.Status)
	}
	if booking.Subtotal != 9000 {
		t.Errorf("Subtotal = %d, want 9000", booking.Subtotal)
	}
	if booking.TaxAmount != 1620 {
		t.Errorf("TaxAmount = %d, want 1620 (18%% of subtotal)", booking.TaxAmount)
	}
	if booking.TotalAmount != 10620 {
		t.Errorf("TotalAmount = %d, want 10620", booking.TotalAmount)
	}
	if !strings.HasPrefix(booking.ConfirmationCode, "BK-") {
		t.Errorf("ConfirmationCode = %q, want BK- prefix", booking.ConfirmationCode)
	}
	if booking.PaymentDeadline.Sub(booking.CreatedAt) != 72*time.Hour {
		t.Errorf("payment deadline window = %v, want 72h", booking.PaymentDeadline.Sub(booking.CreatedAt))
	}

	// The pending booking is a hard hold on reserved capacity.
	got, err := env.db.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if got.ReservedSpaces != 2 || got.AvailableSpaces != 8 {
		t.Errorf("slot reserved=%d available=%d, want 2/8", got.ReservedSpaces, got.AvailableSpaces)
	}
}

func TestCreateRejectsWhenCapacityShort(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 2)

	if _, err := env.booking.Create(ctx, createParams(slot, "big-group@example.com", 3)); !errors.Is(err, ErrTourUnavailable) {
		t.Errorf("oversize create error = %v, want ErrTourUnavailable", err)
	}

	// No capacity leaked by the rejected attempt.
	got, err := env.db.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if got.ReservedSpaces != 0 || got.AvailableSpaces != 2 {
		t.Errorf("slot reserved=%d available=%d, want 0/2", got.ReservedSpaces, got.AvailableSpaces)
	}
}

func TestCreateRejectsDuplicateContact(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 10)

	if _, err := env.booking.Create(ctx, createParams(slot, "dup@example.com", 1)); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := env.booking.Create(ctx, createParams(slot, "dup@example.com", 1)); !errors.Is(err, database.ErrDuplicateBooking) {
		t.Errorf("duplicate create error = %v, want ErrDuplicateBooking", err)
	}

	// The failed attempt released its capacity hold.
	got, err := env.db.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if got.ReservedSpaces != 1 {
		t.Errorf("slot reserved=%d after duplicate rejection, want 1", got.ReservedSpaces)
	}
}

func TestCreateAppliesDiscount(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 10)

	now := time.Now().UTC()
	code := &models.DiscountCode{
		ID:         uuid.New(),
		Code:       "WELCOME20",
		PercentOff: 20,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(24 * time.Hour),
		MaxUses:    1,
		Active:     true,
	}
	if err := env.db.InsertDiscountCode(ctx, code); err != nil {
		t.Fatalf("insert discount failed: %v", err)
	}

	params := createParams(slot, "ines@example.com", 2)
	params.DiscountCode = "WELCOME20"
	booking, err := env.booking.Create(ctx, params)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// 9000 subtotal, 1620 tax, 1800 discount (20% of subtotal).
	if booking.DiscountAmount != 1800 {
		t.Errorf("DiscountAmount = %d, want 1800", booking.DiscountAmount)
	}
	if booking.TotalAmount != 8820 {
		t.Errorf("TotalAmount = %d, want 8820", booking.TotalAmount)
	}

	// The code was consumed; its cap of 1 makes it unusable now.
	params2 := createParams(slot, "other@example.com", 1)
	params2.DiscountCode = "WELCOME20"
	if _, err := env.booking.Create(ctx, params2); !errors.Is(err, ErrInvalidDiscountCode) {
		t.Errorf("exhausted code error = %v, want ErrInvalidDiscountCode", err)
	}
}

func TestCreateRejectsUnknownDiscount(t *testing.T) {
	env := setupTest(t)
	slot := env.seedSlot(t, 14, 10)

	params := createParams(slot, "ines@example.com", 1)
	params.DiscountCode = "NOSUCH"
	if _, err := env.booking.Create(context.Background(), params); !errors.Is(err, ErrInvalidDiscountCode) {
		t.Errorf("unknown code error = %v, want ErrInvalidDiscountCode", err)
	}
}

func TestCreateRejectsBlockedDate(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 10)

	if _, err := env.avail.BlockAvailability(ctx, slot.TourID,
		slot.Date.AddDate(0, 0, -1), slot.Date.AddDate(0, 0, 1), "river flooding"); err != nil {
		t.Fatalf("BlockAvailability failed: %v", err)
	}

	if _, err := env.booking.Create(ctx, createParams(slot, "ines@example.com", 1)); !errors.Is(err, ErrTourUnavailable) {
		t.Errorf("blocked date error = %v, want ErrTourUnavailable", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	env := setupTest(t)
	slot := env.seedSlot(t, 14, 10)

	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"missing contact email", func(p *CreateParams) { p.ContactEmail = "" }},
		{"malformed contact email", func(p *CreateParams) { p.ContactEmail = "not-an-email" }},
		{"no participants", func(p *CreateParams) { p.Participants = nil }},
		{"participant without name", func(p *CreateParams) { p.Participants[0].FullName = "" }},
		{"missing tour", func(p *CreateParams) { p.TourID = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := createParams(slot, "ines@example.com", 1)
			tc.mutate(&params)
			if _, err := env.booking.Create(context.Background(), params); err == nil {
				t.Error("Create succeeded, want validation error")
			}
		})
	}
}

func TestConfirmPaymentConvertsHold(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 10)

	booking, err := env.booking.Create(ctx, createParams(slot, "ines@example.com", 3))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	confirmed, err := env.booking.ConfirmPayment(ctx, booking.ID, uuid.New())
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Errorf("Status = %q, want confirmed", confirmed.Status)
	}
	if confirmed.PaymentStatus != models.PaymentStateCompleted {
		t.Errorf("PaymentStatus = %q, want completed", confirmed.PaymentStatus)
	}

	got, err := env.db.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if got.BookedSpaces != 3 || got.ReservedSpaces != 0 {
		t.Errorf("slot booked=%d reserved=%d, want 3/0", got.BookedSpaces, got.ReservedSpaces)
	}

	// Confirming twice is an illegal edge.
	if _, err := env.booking.ConfirmPayment(ctx, booking.ID, uuid.New()); !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("double confirm error = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelRefundPolicyTiers(t *testing.T) {
	tests := []struct {
		name        string
		daysAhead   int
		paid        bool
		wantPercent int
		wantErr     error
	}{
		{"far out gets full refund", 14, true, 100, nil},
		{"close gets partial refund", 3, true, 50, nil},
		{"too close is rejected", 1, true, 0, ErrRefundNotAllowed},
		{"unpaid cancel records no pending refund", 14, false, 100, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTest(t)
			ctx := context.Background()
			env.seedPolicy(t, 7, 100)
			env.seedPolicy(t, 2, 50)
			slot := env.seedSlot(t, tc.daysAhead, 10)

			booking, err := env.booking.Create(ctx, createParams(slot, "ines@example.com", 2))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if tc.paid {
				if _, err := env.booking.ConfirmPayment(ctx, booking.ID, uuid.New()); err != nil {
					t.Fatalf("ConfirmPayment failed: %v", err)
				}
			}

			cancelled, err := env.booking.Cancel(ctx, booking.ID, "change of plans", "customer")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Cancel error = %v, want %v", err, tc.wantErr)
				}
				// The booking keeps its prior status.
				got, gerr := env.db.GetBooking(ctx, booking.ID)
				if gerr != nil {
					t.Fatalf("GetBooking failed: %v", gerr)
				}
				if got.Status == models.BookingStatusCancelled {
					t.Error("rejected cancellation still cancelled the booking")
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel failed: %v", err)
			}

			wantRefund := booking.TotalAmount * int64(tc.wantPercent) / 100
			if cancelled.RefundAmount != wantRefund {
				t.Errorf("RefundAmount = %d, want %d", cancelled.RefundAmount, wantRefund)
			}
			wantState := models.RefundStateNone
			if tc.paid && wantRefund > 0 {
				wantState = models.RefundStatePending
			}
			if cancelled.RefundStatus != wantState {
				t.Errorf("RefundStatus = %q, want %q", cancelled.RefundStatus, wantState)
			}

			// Capacity released whichever pool held it.
			got, err := env.db.GetSlot(ctx, slot.ID)
			if err != nil {
				t.Fatalf("GetSlot failed: %v", err)
			}
			if got.BookedSpaces != 0 || got.ReservedSpaces != 0 || got.AvailableSpaces != 10 {
				t.Errorf("slot booked=%d reserved=%d available=%d after cancel, want 0/0/10",
					got.BookedSpaces, got.ReservedSpaces, got.AvailableSpaces)
			}
		})
	}
}

func TestCancelTerminalStates(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	env.seedPolicy(t, 0, 100)
	slot := env.seedSlot(t, 14, 10)

	booking, err := env.booking.Create(ctx, createParams(slot, "ines@example.com", 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := env.booking.Cancel(ctx, booking.ID, "first", "customer"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if _, err := env.booking.Cancel(ctx, booking.ID, "second", "customer"); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("double cancel error = %v, want ErrAlreadyCancelled", err)
	}
}

func TestUpdateClosedBooking(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	env.seedPolicy(t, 0, 100)
	slot := env.seedSlot(t, 14, 10)

	booking, err := env.booking.Create(ctx, createParams(slot, "ines@example.com", 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := env.booking.Update(ctx, booking.ID, UpdateParams{DietaryNotes: "vegetarian"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.DietaryNotes != "vegetarian" {
		t.Errorf("DietaryNotes = %q, want vegetarian", updated.DietaryNotes)
	}

	if _, err := env.booking.Cancel(ctx, booking.ID, "done", "customer"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := env.booking.Update(ctx, booking.ID, UpdateParams{DietaryNotes: "vegan"}); !errors.Is(err, ErrBookingClosed) {
		t.Errorf("update of cancelled booking error = %v, want ErrBookingClosed", err)
	}
}

func TestExpireOverdueReleasesHolds(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 10)

	booking, err := env.booking.Create(ctx, createParams(slot, "slowpayer@example.com", 2))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Nothing is overdue yet.
	expired, err := env.booking.ExpireOverdue(ctx, 100)
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("expired %d bookings before deadline, want 0", expired)
	}

	// Advance the sweeper's clock past the 72h deadline.
	env.booking.now = func() time.Time { return time.Now().UTC().Add(73 * time.Hour) }
	expired, err = env.booking.ExpireOverdue(ctx, 100)
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired %d bookings, want 1", expired)
	}

	got, err := env.db.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if got.Status != models.BookingStatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
	if got.CancelledBy != "system" {
		t.Errorf("CancelledBy = %q, want system", got.CancelledBy)
	}

	slotAfter, err := env.db.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if slotAfter.ReservedSpaces != 0 || slotAfter.AvailableSpaces != 10 {
		t.Errorf("slot reserved=%d available=%d after expiry, want 0/10",
			slotAfter.ReservedSpaces, slotAfter.AvailableSpaces)
	}
}

func TestListUsesFilterAndPagination(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	slot := env.seedSlot(t, 14, 20)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := env.booking.Create(ctx, createParams(slot, email, 1)); err != nil {
			t.Fatalf("Create(%s) failed: %v", email, err)
		}
	}

	page, total, err := env.booking.List(ctx, models.BookingFilter{TourID: slot.TourID}, 2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Errorf("List returned %d/%d, want 2 of 3", len(page), total)
	}

	// Second call hits the cache and must agree.
	page2, total2, err := env.booking.List(ctx, models.BookingFilter{TourID: slot.TourID}, 2, 0)
	if err != nil {
		t.Fatalf("cached List failed: %v", err)
	}
	if total2 != total || len(page2) != len(page) {
		t.Errorf("cached List returned %d/%d, want %d/%d", len(page2), total2, len(page), total)
	}
}
