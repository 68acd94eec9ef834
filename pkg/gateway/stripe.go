/**
 * @description
 * Stripe provider implementation. Talks to the Stripe REST API directly with
 * form-encoded requests (hosted Checkout Sessions for redirects, Payment Intents
 * for direct charges, Refunds for refunds). Stripe works in the smallest currency
 * unit, so all amounts are converted to and from cents at this boundary.
 */

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com"

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewStripeProvider creates a Stripe provider. baseURL is overridable for tests.
func NewStripeProvider(secretKey, baseURL string) *StripeProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultStripeAPIBaseURL
	}
	return &StripeProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *StripeProvider) Name() string { return "Stripe" }

type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	PaymentIntent   string            `json:"payment_intent"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	AmountTotal int64             `json:"amount_total"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

type stripePaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession creates a hosted Checkout Session with the business
// metadata attached for later recovery at completion time.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	if req.ProductDescription != "" {
		form.Set("line_items[0][price_data][product_data][description]", req.ProductDescription)
	}
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(toMinorUnits(req.Amount), 10))
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var session stripeCheckoutSession
	if err := p.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return p.toCheckoutSession(&session), nil
}

// GetCheckoutSession fetches the authoritative state of a Checkout Session.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var session stripeCheckoutSession
	if err := p.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return p.toCheckoutSession(&session), nil
}

func (p *StripeProvider) toCheckoutSession(s *stripeCheckoutSession) *CheckoutSession {
	email := s.CustomerEmail
	if email == "" && s.CustomerDetails != nil {
		email = s.CustomerDetails.Email
	}
	return &CheckoutSession{
		ID:              s.ID,
		URL:             s.URL,
		PaymentIntentID: s.PaymentIntent,
		PaymentStatus:   s.PaymentStatus,
		CustomerEmail:   email,
		AmountTotal:     fromMinorUnits(s.AmountTotal),
		Currency:        strings.ToUpper(s.Currency),
		Metadata:        s.Metadata,
	}
}

// CreateCharge creates and confirms a Payment Intent. Declines are returned as a
// failed ChargeResult, never as an error.
func (p *StripeProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(req.Amount), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("description", req.Description)
	form.Set("receipt_email", req.CustomerEmail)
	form.Set("payment_method", req.PaymentToken)
	form.Set("confirm", "true")
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("automatic_payment_methods[allow_redirects]", "never")
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var intent stripePaymentIntent
	if err := p.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		if declineMsg, ok := stripeDecline(err); ok {
			return &ChargeResult{
				Success:      false,
				Status:       StatusFailed,
				Amount:       req.Amount,
				Currency:     req.Currency,
				ErrorMessage: declineMsg,
			}, nil
		}
		return nil, err
	}

	status := mapStripeStatus(intent.Status)
	result := &ChargeResult{
		Success:       status == StatusSucceeded,
		TransactionID: intent.ID,
		Status:        status,
		Amount:        req.Amount,
		Currency:      req.Currency,
	}
	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("Payment %s", intent.Status)
	}
	return result, nil
}

// GetStatus fetches and normalizes the status of a Payment Intent.
func (p *StripeProvider) GetStatus(ctx context.Context, transactionRef string) (Status, error) {
	var intent stripePaymentIntent
	if err := p.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(transactionRef), nil, &intent); err != nil {
		return StatusFailed, err
	}
	return mapStripeStatus(intent.Status), nil
}

// Refund refunds a Payment Intent, fully when amount is nil.
func (p *StripeProvider) Refund(ctx context.Context, transactionRef string, amount *decimal.Decimal) (*RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", transactionRef)
	if amount != nil {
		form.Set("amount", strconv.FormatInt(toMinorUnits(*amount), 10))
	}

	var refund stripeRefund
	if err := p.do(ctx, http.MethodPost, "/v1/refunds", form, &refund); err != nil {
		if declineMsg, ok := stripeDecline(err); ok {
			return &RefundResult{Success: false, ErrorMessage: declineMsg}, nil
		}
		return nil, err
	}

	result := &RefundResult{
		Success:  refund.Status == "succeeded" || refund.Status == "pending",
		RefundID: refund.ID,
		Amount:   fromMinorUnits(refund.Amount),
	}
	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("Refund %s", refund.Status)
	}
	return result, nil
}

// stripeAPIError carries a decoded Stripe error response so callers can tell a
// business decline from a transport failure.
type stripeAPIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *stripeAPIError) Error() string {
	return fmt.Sprintf("stripe api error (%d %s): %s", e.StatusCode, e.Type, e.Message)
}

func stripeDecline(err error) (string, bool) {
	apiErr, ok := err.(*stripeAPIError)
	if !ok {
		return "", false
	}
	if apiErr.Type == "card_error" || apiErr.StatusCode == http.StatusPaymentRequired {
		return apiErr.Message, true
	}
	return "", false
}

func (p *StripeProvider) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach stripe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope stripeErrorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr != nil {
			return &stripeAPIError{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		log.Printf("level=warn component=stripe_provider msg=\"api error\" status=%d type=%s", resp.StatusCode, envelope.Error.Type)
		return &stripeAPIError{
			StatusCode: resp.StatusCode,
			Type:       envelope.Error.Type,
			Message:    envelope.Error.Message,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode stripe response: %w", err)
	}
	return nil
}

func mapStripeStatus(stripeStatus string) Status {
	switch stripeStatus {
	case "succeeded":
		return StatusSucceeded
	case "processing":
		return StatusProcessing
	case "requires_confirmation", "requires_action":
		return StatusPending
	case "requires_payment_method":
		return StatusFailed
	case "canceled":
		return StatusCanceled
	default:
		return StatusFailed
	}
}
