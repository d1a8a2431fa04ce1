// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package validation

import (
	"strings"
	"testing"
)

type signupForm struct {
	Name     string `validate:"required,min=2"`
	Email    string `validate:"required,email"`
	Currency string `validate:"omitempty,len=3"`
	Party    int    `validate:"gte=1,lte=20"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(signupForm{
		Name:     "Ana",
		Email:    "ana@example.com",
		Currency: "EUR",
		Party:    2,
	})
	if err != nil {
		t.Errorf("ValidateStruct returned %v for a valid struct", err)
	}
}

func TestValidateStructCollectsFieldErrors(t *testing.T) {
	err := ValidateStruct(signupForm{
		Name:  "A",
		Email: "not-an-email",
		Party: 0,
	})
	if err == nil {
		t.Fatal("ValidateStruct returned nil for an invalid struct")
	}

	fields := make(map[string]FieldError)
	for _, fe := range err.Errors() {
		fields[fe.Field] = fe
	}
	if len(fields) != 3 {
		t.Errorf("got %d field errors (%v), want 3", len(fields), fields)
	}

	if fe, ok := fields["Name"]; !ok || fe.Tag != "min" {
		t.Errorf("Name error = %+v, want min violation", fe)
	}
	if fe, ok := fields["Email"]; !ok || fe.Tag != "email" {
		t.Errorf("Email error = %+v, want email violation", fe)
	}
	if fe, ok := fields["Party"]; !ok || fe.Tag != "gte" {
		t.Errorf("Party error = %+v, want gte violation", fe)
	}

	if msg := fields["Email"].Message; !strings.Contains(msg, "valid email") {
		t.Errorf("Email message = %q, want readable translation", msg)
	}
	if !strings.Contains(err.Error(), ";") {
		t.Errorf("combined Error() = %q, want joined messages", err.Error())
	}
}

func TestValidateStructDetailsShape(t *testing.T) {
	err := ValidateStruct(signupForm{})
	if err == nil {
		t.Fatal("ValidateStruct returned nil for a zero struct")
	}

	details := err.Details()
	if len(details) == 0 {
		t.Fatal("Details returned no entries")
	}
	for _, d := range details {
		for _, key := range []string{"field", "tag", "message"} {
			if _, ok := d[key]; !ok {
				t.Errorf("detail %v missing %q", d, key)
			}
		}
	}
}
