/**
 * @description
 * Culqi provider implementation for the Peruvian market. Uses the Charges API
 * for direct card charges and the Orders API as the hosted checkout surface.
 * Culqi expects amounts in céntimos, JSON bodies, and a bearer secret key.
 */

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultCulqiAPIBaseURL = "https://api.culqi.com"

// CulqiProvider implements Provider against the Culqi API.
type CulqiProvider struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewCulqiProvider creates a Culqi provider. baseURL is overridable for tests.
func NewCulqiProvider(secretKey, baseURL string) *CulqiProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultCulqiAPIBaseURL
	}
	return &CulqiProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *CulqiProvider) Name() string { return "Culqi" }

type culqiCharge struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
	Outcome      struct {
		Type            string `json:"type"`
		UserMessage     string `json:"user_message"`
		MerchantMessage string `json:"merchant_message"`
	} `json:"outcome"`
}

type culqiOrder struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	CurrencyCode string            `json:"currency_code"`
	State        string            `json:"state"`
	PaymentCode  string            `json:"payment_code"`
	URLPe        string            `json:"url_pe"`
	Metadata     map[string]string `json:"metadata"`
	ClientDetails struct {
		Email string `json:"email"`
	} `json:"client_details"`
}

type culqiRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

type culqiErrorResponse struct {
	Object          string `json:"object"`
	Type            string `json:"type"`
	MerchantMessage string `json:"merchant_message"`
	UserMessage     string `json:"user_message"`
}

// CreateCheckoutSession creates an order to be paid through Culqi's hosted flow.
func (p *CulqiProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	payload := map[string]interface{}{
		"amount":        toMinorUnits(req.Amount),
		"currency_code": strings.ToUpper(req.Currency),
		"description":   req.ProductName,
		"order_number":  fmt.Sprintf("ord-%d", time.Now().UnixNano()),
		"client_details": map[string]string{
			"email": req.CustomerEmail,
		},
		"expiration_date": time.Now().Add(24 * time.Hour).Unix(),
		"metadata":        req.Metadata,
	}

	var order culqiOrder
	if err := p.do(ctx, http.MethodPost, "/v2/orders", payload, &order); err != nil {
		return nil, err
	}
	return p.toCheckoutSession(&order), nil
}

// GetCheckoutSession fetches an order and normalizes its state.
func (p *CulqiProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var order culqiOrder
	if err := p.do(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(sessionID), nil, &order); err != nil {
		return nil, err
	}
	return p.toCheckoutSession(&order), nil
}

func (p *CulqiProvider) toCheckoutSession(o *culqiOrder) *CheckoutSession {
	paymentStatus := "unpaid"
	if o.State == "paid" || o.State == "pagado" {
		paymentStatus = CheckoutStatusPaid
	}
	return &CheckoutSession{
		ID:              o.ID,
		URL:             o.URLPe,
		PaymentIntentID: o.PaymentCode,
		PaymentStatus:   paymentStatus,
		CustomerEmail:   o.ClientDetails.Email,
		AmountTotal:     fromMinorUnits(o.Amount),
		Currency:        strings.ToUpper(o.CurrencyCode),
		Metadata:        o.Metadata,
	}
}

// CreateCharge charges a tokenized card. Declines are returned as a failed
// ChargeResult, never as an error.
func (p *CulqiProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"amount":        toMinorUnits(req.Amount),
		"currency_code": strings.ToUpper(req.Currency),
		"email":         req.CustomerEmail,
		"source_id":     req.PaymentToken,
		"description":   req.Description,
		"metadata":      req.Metadata,
	}

	var charge culqiCharge
	if err := p.do(ctx, http.MethodPost, "/v2/charges", payload, &charge); err != nil {
		if declineMsg, ok := culqiDecline(err); ok {
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

	status := mapCulqiStatus(charge.Outcome.Type)
	result := &ChargeResult{
		Success:       status == StatusSucceeded,
		TransactionID: charge.ID,
		Status:        status,
		Amount:        req.Amount,
		Currency:      req.Currency,
	}
	if !result.Success {
		result.ErrorMessage = charge.Outcome.UserMessage
	}
	return result, nil
}

// GetStatus fetches a charge and normalizes its outcome.
func (p *CulqiProvider) GetStatus(ctx context.Context, transactionRef string) (Status, error) {
	var charge culqiCharge
	if err := p.do(ctx, http.MethodGet, "/v2/charges/"+url.PathEscape(transactionRef), nil, &charge); err != nil {
		return StatusFailed, err
	}
	return mapCulqiStatus(charge.Outcome.Type), nil
}

// Refund refunds a charge, fully when amount is nil.
func (p *CulqiProvider) Refund(ctx context.Context, transactionRef string, amount *decimal.Decimal) (*RefundResult, error) {
	payload := map[string]interface{}{
		"charge_id": transactionRef,
		"reason":    "solicitud_comprador",
	}
	if amount != nil {
		payload["amount"] = toMinorUnits(*amount)
	}

	var refund culqiRefund
	if err := p.do(ctx, http.MethodPost, "/v2/refunds", payload, &refund); err != nil {
		if declineMsg, ok := culqiDecline(err); ok {
			return &RefundResult{Success: false, ErrorMessage: declineMsg}, nil
		}
		return nil, err
	}
	return &RefundResult{
		Success:  true,
		RefundID: refund.ID,
		Amount:   fromMinorUnits(refund.Amount),
	}, nil
}

// culqiAPIError carries a decoded Culqi error response.
type culqiAPIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *culqiAPIError) Error() string {
	return fmt.Sprintf("culqi api error (%d %s): %s", e.StatusCode, e.Type, e.Message)
}

func culqiDecline(err error) (string, bool) {
	apiErr, ok := err.(*culqiAPIError)
	if !ok {
		return "", false
	}
	if apiErr.Type == "card_error" || apiErr.StatusCode == http.StatusPaymentRequired {
		return apiErr.Message, true
	}
	return "", false
}

func (p *CulqiProvider) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("failed to encode culqi request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("failed to create culqi request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach culqi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp culqiErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr != nil {
			return &culqiAPIError{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		log.Printf("level=warn component=culqi_provider msg=\"api error\" status=%d type=%s", resp.StatusCode, errResp.Type)
		return &culqiAPIError{
			StatusCode: resp.StatusCode,
			Type:       errResp.Type,
			Message:    errResp.MerchantMessage,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode culqi response: %w", err)
	}
	return nil
}

func mapCulqiStatus(outcomeType string) Status {
	switch outcomeType {
	case "venta_exitosa":
		return StatusSucceeded
	case "pending":
		return StatusProcessing
	case "rechazada":
		return StatusFailed
	case "cancelada":
		return StatusCanceled
	default:
		return StatusFailed
	}
}
