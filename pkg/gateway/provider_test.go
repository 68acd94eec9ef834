package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMinorUnitConversion(t *testing.T) {
	testCases := []struct {
		name  string
		major string
		minor int64
	}{
		{"whole amount", "10.00", 1000},
		{"single cent", "0.01", 1},
		{"tenth", "0.10", 10},
		{"arbitrary", "33.33", 3333},
		{"large", "162.16", 16216},
		{"zero", "0.00", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.major)
			if got := toMinorUnits(amount); got != tc.minor {
				t.Errorf("toMinorUnits(%s) = %d, want %d", tc.major, got, tc.minor)
			}
			if got := fromMinorUnits(tc.minor); !got.Equal(amount) {
				t.Errorf("fromMinorUnits(%d) = %s, want %s", tc.minor, got, tc.major)
			}
		})
	}
}

func TestStatusMapsNeverSucceedOnUnknownInput(t *testing.T) {
	unknowns := []string{"", "explosion", "SUCCEEDED ", "ok", "venta_exitosa2"}
	for _, s := range unknowns {
		if got := mapStripeStatus(s); got == StatusSucceeded {
			t.Errorf("mapStripeStatus(%q) = Succeeded, unknown input must fail closed", s)
		}
		if got := mapCulqiStatus(s); got == StatusSucceeded {
			t.Errorf("mapCulqiStatus(%q) = Succeeded, unknown input must fail closed", s)
		}
		if got := mapIzipayStatus(s); got == StatusSucceeded {
			t.Errorf("mapIzipayStatus(%q) = Succeeded, unknown input must fail closed", s)
		}
	}
}

func TestStripeStatusMap(t *testing.T) {
	testCases := map[string]Status{
		"succeeded":               StatusSucceeded,
		"processing":              StatusProcessing,
		"requires_payment_method": StatusFailed,
		"requires_confirmation":   StatusPending,
		"requires_action":         StatusPending,
		"canceled":                StatusCanceled,
		"something_new":           StatusFailed,
	}
	for native, want := range testCases {
		if got := mapStripeStatus(native); got != want {
			t.Errorf("mapStripeStatus(%q) = %s, want %s", native, got, want)
		}
	}
}

func TestCulqiStatusMap(t *testing.T) {
	testCases := map[string]Status{
		"venta_exitosa": StatusSucceeded,
		"pending":       StatusProcessing,
		"rechazada":     StatusFailed,
		"cancelada":     StatusCanceled,
		"desconocida":   StatusFailed,
	}
	for native, want := range testCases {
		if got := mapCulqiStatus(native); got != want {
			t.Errorf("mapCulqiStatus(%q) = %s, want %s", native, got, want)
		}
	}
}

func TestIzipayStatusMap(t *testing.T) {
	testCases := map[string]Status{
		"PAID":      StatusSucceeded,
		"RUNNING":   StatusProcessing,
		"UNPAID":    StatusPending,
		"CANCELLED": StatusCanceled,
		"ABANDONED": StatusFailed,
		"PARTIAL":   StatusFailed,
	}
	for native, want := range testCases {
		if got := mapIzipayStatus(native); got != want {
			t.Errorf("mapIzipayStatus(%q) = %s, want %s", native, got, want)
		}
	}
}

func TestNewSelectsProviderByName(t *testing.T) {
	testCases := []struct {
		provider string
		wantName string
	}{
		{"stripe", "Stripe"},
		{"", "Stripe"},
		{"culqi", "Culqi"},
		{"izipay", "Izipay"},
	}
	for _, tc := range testCases {
		p, err := New(Config{Provider: tc.provider})
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", tc.provider, err)
		}
		if p.Name() != tc.wantName {
			t.Errorf("New(%q).Name() = %s, want %s", tc.provider, p.Name(), tc.wantName)
		}
	}

	if _, err := New(Config{Provider: "paypal"}); err == nil {
		t.Error("expected error for unknown provider name, got nil")
	}
}

func TestIzipayCurrencyCodes(t *testing.T) {
	testCases := map[string]int{"USD": 840, "pen": 604, "EUR": 978}
	for alpha, want := range testCases {
		got, err := izipayCurrency(alpha)
		if err != nil {
			t.Fatalf("izipayCurrency(%q) returned error: %v", alpha, err)
		}
		if got != want {
			t.Errorf("izipayCurrency(%q) = %d, want %d", alpha, got, want)
		}
	}
	if _, err := izipayCurrency("GBP"); err == nil {
		t.Error("expected error for unsupported currency, got nil")
	}
}
