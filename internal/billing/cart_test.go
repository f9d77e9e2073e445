package billing

import (
	"testing"

	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/domain"
)

func TestParseCart(t *testing.T) {
	lines := ParseCart("1:2;3:1.5")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ProductID != 1 || !lines[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("line 0: %+v", lines[0])
	}
	if lines[1].ProductID != 3 || !lines[1].Quantity.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("line 1: %+v", lines[1])
	}
	if lines[0].UnitPrice != nil || lines[0].GSTPercent != nil {
		t.Fatalf("line 0 should carry no overrides")
	}
}

func TestParseCartOverrides(t *testing.T) {
	lines := ParseCart("4:2:55.50:12")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].UnitPrice == nil || !lines[0].UnitPrice.Equal(decimal.NewFromFloat(55.5)) {
		t.Fatalf("unit price override: %+v", lines[0].UnitPrice)
	}
	if lines[0].GSTPercent == nil || !lines[0].GSTPercent.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("gst override: %+v", lines[0].GSTPercent)
	}
}

func TestParseCartDropsBadSegments(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{";;", 0},
		{"abc", 0},
		{"1", 0},
		{"x:2", 0},
		{"1:0", 0},
		{"1:-1", 0},
		{"0:2", 0},
		{"1:abc", 0},
		{"1:2:notaprice", 0},
		{"1:2:10:notgst", 0},
		{"1:0;2:3;junk", 1},
		{" 1 : 2 ; 2:1", 2},
	}
	for _, tc := range cases {
		if got := len(ParseCart(tc.raw)); got != tc.want {
			t.Errorf("ParseCart(%q): got %d lines, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestParsePaymentMethod(t *testing.T) {
	cases := []struct {
		raw  string
		want domain.PaymentMethod
	}{
		{"CASH", domain.PaymentCash},
		{"cash", domain.PaymentCash},
		{"UPI", domain.PaymentUPI},
		{" upi ", domain.PaymentUPI},
		{"CREDIT_CARD", domain.PaymentCreditCard},
		{"credit card", domain.PaymentCreditCard},
		{"netbanking", domain.PaymentCash},
		{"", domain.PaymentCash},
	}
	for _, tc := range cases {
		if got := ParsePaymentMethod(tc.raw); got != tc.want {
			t.Errorf("ParsePaymentMethod(%q): got %s, want %s", tc.raw, got, tc.want)
		}
	}
}
