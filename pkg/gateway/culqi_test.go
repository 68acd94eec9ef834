package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCulqiCreateChargeSendsCentimos(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/charges" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_culqi" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "chr_test_1",
			"amount":        8500,
			"currency_code": "PEN",
			"outcome":       map[string]string{"type": "venta_exitosa"},
		})
	}))
	defer server.Close()

	provider := NewCulqiProvider("sk_test_culqi", server.URL)
	result, err := provider.CreateCharge(context.Background(), ChargeRequest{
		Amount:        decimal.RequireFromString("85.00"),
		Currency:      "PEN",
		CustomerEmail: "provider@example.com",
		PaymentToken:  "tkn_test_1",
	})
	if err != nil {
		t.Fatalf("CreateCharge returned error: %v", err)
	}

	if amount, ok := gotBody["amount"].(float64); !ok || int64(amount) != 8500 {
		t.Errorf("amount sent = %v, want 8500", gotBody["amount"])
	}
	if !result.Success {
		t.Error("expected Success=true for venta_exitosa")
	}
	if result.TransactionID != "chr_test_1" {
		t.Errorf("TransactionID = %s, want chr_test_1", result.TransactionID)
	}
}

func TestCulqiRejectedChargeIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chr_test_2",
			"outcome": map[string]string{"type": "rechazada", "user_message": "Tarjeta rechazada"},
		})
	}))
	defer server.Close()

	provider := NewCulqiProvider("sk_test_culqi", server.URL)
	result, err := provider.CreateCharge(context.Background(), ChargeRequest{
		Amount:   decimal.RequireFromString("85.00"),
		Currency: "PEN",
	})
	if err != nil {
		t.Fatalf("rejection must not surface as an error, got: %v", err)
	}
	if result.Success {
		t.Error("expected Success=false for rechazada")
	}
	if result.Status != StatusFailed {
		t.Errorf("Status = %s, want Failed", result.Status)
	}
	if result.ErrorMessage != "Tarjeta rechazada" {
		t.Errorf("ErrorMessage = %q", result.ErrorMessage)
	}
}

func TestCulqiGetCheckoutSessionReportsPaidOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/orders/ord_test_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "ord_test_1",
			"amount":        1899,
			"currency_code": "pen",
			"state":         "paid",
			"payment_code":  "chr_test_3",
			"metadata":      map[string]string{"userId": "7"},
		})
	}))
	defer server.Close()

	provider := NewCulqiProvider("sk_test_culqi", server.URL)
	session, err := provider.GetCheckoutSession(context.Background(), "ord_test_1")
	if err != nil {
		t.Fatalf("GetCheckoutSession returned error: %v", err)
	}
	if session.PaymentStatus != CheckoutStatusPaid {
		t.Errorf("PaymentStatus = %s, want paid", session.PaymentStatus)
	}
	if session.PaymentIntentID != "chr_test_3" {
		t.Errorf("PaymentIntentID = %s, want chr_test_3", session.PaymentIntentID)
	}
	if !session.AmountTotal.Equal(decimal.RequireFromString("18.99")) {
		t.Errorf("AmountTotal = %s, want 18.99", session.AmountTotal)
	}
	if session.Currency != "PEN" {
		t.Errorf("Currency = %s, want PEN", session.Currency)
	}
}
