package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStripeCreateCheckoutSessionSendsCentsAndMetadata(t *testing.T) {
	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_123" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		gotForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "cs_test_abc",
			"url":            "https://checkout.stripe.com/pay/cs_test_abc",
			"payment_status": "unpaid",
			"amount_total":   1899,
			"currency":       "usd",
		})
	}))
	defer server.Close()

	provider := NewStripeProvider("sk_test_123", server.URL)
	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:        decimal.RequireFromString("18.99"),
		Currency:      "USD",
		ProductName:   "Basic Plan",
		CustomerEmail: "owner@example.com",
		SuccessURL:    "https://app.example.com/success",
		CancelURL:     "https://app.example.com/cancel",
		Metadata:      map[string]string{"userId": "42", "planId": "1"},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession returned error: %v", err)
	}

	if got := gotForm["line_items[0][price_data][unit_amount]"]; len(got) != 1 || got[0] != "1899" {
		t.Errorf("unit_amount = %v, want [1899]", got)
	}
	if got := gotForm["metadata[userId]"]; len(got) != 1 || got[0] != "42" {
		t.Errorf("metadata[userId] = %v, want [42]", got)
	}
	if got := gotForm["metadata[planId]"]; len(got) != 1 || got[0] != "1" {
		t.Errorf("metadata[planId] = %v, want [1]", got)
	}
	if session.ID != "cs_test_abc" {
		t.Errorf("session.ID = %s, want cs_test_abc", session.ID)
	}
	if !session.AmountTotal.Equal(decimal.RequireFromString("18.99")) {
		t.Errorf("session.AmountTotal = %s, want 18.99", session.AmountTotal)
	}
}

func TestStripeGetCheckoutSessionReportsPaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions/cs_test_abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":               "cs_test_abc",
			"payment_intent":   "pi_test_1",
			"payment_status":   "paid",
			"customer_details": map[string]string{"email": "owner@example.com"},
			"amount_total":     10000,
			"currency":         "usd",
			"metadata":         map[string]string{"paymentType": "service"},
		})
	}))
	defer server.Close()

	provider := NewStripeProvider("sk_test_123", server.URL)
	session, err := provider.GetCheckoutSession(context.Background(), "cs_test_abc")
	if err != nil {
		t.Fatalf("GetCheckoutSession returned error: %v", err)
	}
	if session.PaymentStatus != CheckoutStatusPaid {
		t.Errorf("PaymentStatus = %s, want paid", session.PaymentStatus)
	}
	if session.PaymentIntentID != "pi_test_1" {
		t.Errorf("PaymentIntentID = %s, want pi_test_1", session.PaymentIntentID)
	}
	if session.CustomerEmail != "owner@example.com" {
		t.Errorf("CustomerEmail = %s, want owner@example.com", session.CustomerEmail)
	}
	if session.Metadata["paymentType"] != "service" {
		t.Errorf("metadata paymentType = %s, want service", session.Metadata["paymentType"])
	}
}

func TestStripeCreateChargeDeclineIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"type":    "card_error",
				"code":    "card_declined",
				"message": "Your card was declined.",
			},
		})
	}))
	defer server.Close()

	provider := NewStripeProvider("sk_test_123", server.URL)
	result, err := provider.CreateCharge(context.Background(), ChargeRequest{
		Amount:       decimal.RequireFromString("50.00"),
		Currency:     "USD",
		PaymentToken: "pm_card_declined",
	})
	if err != nil {
		t.Fatalf("decline must not surface as an error, got: %v", err)
	}
	if result.Success {
		t.Error("expected Success=false for a declined card")
	}
	if result.Status != StatusFailed {
		t.Errorf("Status = %s, want Failed", result.Status)
	}
	if result.ErrorMessage != "Your card was declined." {
		t.Errorf("ErrorMessage = %q", result.ErrorMessage)
	}
}

func TestStripeServerErrorSurfacesAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "api_error", "message": "boom"},
		})
	}))
	defer server.Close()

	provider := NewStripeProvider("sk_test_123", server.URL)
	if _, err := provider.CreateCharge(context.Background(), ChargeRequest{
		Amount:   decimal.RequireFromString("50.00"),
		Currency: "USD",
	}); err == nil {
		t.Fatal("expected transport-level error for 500 response")
	}
}
