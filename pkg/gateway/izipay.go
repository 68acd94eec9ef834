/**
 * @description
 * Izipay provider implementation. Izipay authenticates with HTTP basic auth
 * (shop id as user, API key as password), takes amounts in cents, identifies
 * currencies by their numeric ISO 4217 codes, and wraps every response in a
 * {status, answer} envelope.
 */

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultIzipayAPIBaseURL = "https://api.micuentaweb.pe"

// izipayCurrencyCodes maps ISO 4217 alphabetic codes to the numeric codes
// Izipay expects on the wire.
var izipayCurrencyCodes = map[string]int{
	"USD": 840,
	"PEN": 604,
	"EUR": 978,
}

// IzipayProvider implements Provider against the Izipay API.
type IzipayProvider struct {
	baseURL    string
	shopID     string
	apiKey     string
	httpClient *http.Client
}

// NewIzipayProvider creates an Izipay provider. baseURL is overridable for tests.
func NewIzipayProvider(shopID, apiKey, baseURL string) *IzipayProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultIzipayAPIBaseURL
	}
	return &IzipayProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		shopID:     shopID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *IzipayProvider) Name() string { return "Izipay" }

type izipayEnvelope struct {
	Status string          `json:"status"`
	Answer json.RawMessage `json:"answer"`
}

type izipayError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type izipayPayment struct {
	OrderStatus string `json:"orderStatus"`
	OrderID     string `json:"orderId"`
	PaymentURL  string `json:"paymentURL"`
	FormToken   string `json:"formToken"`
	OrderDetails struct {
		OrderTotalAmount int64  `json:"orderTotalAmount"`
		OrderCurrency    string `json:"orderCurrency"`
	} `json:"orderDetails"`
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	Transactions []struct {
		UUID           string `json:"uuid"`
		Status         string `json:"status"`
		DetailedStatus string `json:"detailedStatus"`
	} `json:"transactions"`
	Metadata map[string]string `json:"metadata"`
}

type izipayTransaction struct {
	UUID           string `json:"uuid"`
	Status         string `json:"status"`
	DetailedStatus string `json:"detailedStatus"`
	Amount         int64  `json:"amount"`
}

// CreateCheckoutSession creates a payment order and returns its hosted page.
func (p *IzipayProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	currency, err := izipayCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	orderID := fmt.Sprintf("ord-%d", time.Now().UnixNano())
	payload := map[string]interface{}{
		"amount":   toMinorUnits(req.Amount),
		"currency": currency,
		"orderId":  orderID,
		"customer": map[string]string{
			"email": req.CustomerEmail,
		},
		"returnUrl": req.SuccessURL,
		"metadata":  req.Metadata,
	}

	var payment izipayPayment
	if err := p.do(ctx, "/api-payment/V4/Charge/CreatePayment", payload, &payment); err != nil {
		return nil, err
	}
	if payment.OrderID == "" {
		payment.OrderID = orderID
	}
	session := p.toCheckoutSession(&payment)
	if session.URL == "" {
		session.URL = p.baseURL + "/payment?formToken=" + payment.FormToken
	}
	return session, nil
}

// GetCheckoutSession fetches an order by id and normalizes its state.
func (p *IzipayProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	payload := map[string]interface{}{"orderId": sessionID}

	var payment izipayPayment
	if err := p.do(ctx, "/api-payment/V4/Order/Get", payload, &payment); err != nil {
		return nil, err
	}
	if payment.OrderID == "" {
		payment.OrderID = sessionID
	}
	return p.toCheckoutSession(&payment), nil
}

func (p *IzipayProvider) toCheckoutSession(pay *izipayPayment) *CheckoutSession {
	paymentStatus := "unpaid"
	if pay.OrderStatus == "PAID" {
		paymentStatus = CheckoutStatusPaid
	}
	var txnRef string
	if len(pay.Transactions) > 0 {
		txnRef = pay.Transactions[0].UUID
	}
	currency := pay.OrderDetails.OrderCurrency
	if code, err := strconv.Atoi(currency); err == nil {
		for alpha, numeric := range izipayCurrencyCodes {
			if numeric == code {
				currency = alpha
				break
			}
		}
	}
	return &CheckoutSession{
		ID:              pay.OrderID,
		URL:             pay.PaymentURL,
		PaymentIntentID: txnRef,
		PaymentStatus:   paymentStatus,
		CustomerEmail:   pay.Customer.Email,
		AmountTotal:     fromMinorUnits(pay.OrderDetails.OrderTotalAmount),
		Currency:        currency,
		Metadata:        pay.Metadata,
	}
}

// CreateCharge creates and captures a payment with a tokenized payment method.
func (p *IzipayProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	currency, err := izipayCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"amount":             toMinorUnits(req.Amount),
		"currency":           currency,
		"orderId":            fmt.Sprintf("ord-%d", time.Now().UnixNano()),
		"formAction":         "SILENT",
		"paymentMethodToken": req.PaymentToken,
		"customer": map[string]string{
			"email": req.CustomerEmail,
		},
		"metadata": req.Metadata,
	}

	var payment izipayPayment
	if err := p.do(ctx, "/api-payment/V4/Charge/CreatePayment", payload, &payment); err != nil {
		if declineMsg, ok := izipayDecline(err); ok {
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

	status := mapIzipayStatus(payment.OrderStatus)
	var txnRef string
	if len(payment.Transactions) > 0 {
		txnRef = payment.Transactions[0].UUID
	}
	result := &ChargeResult{
		Success:       status == StatusSucceeded,
		TransactionID: txnRef,
		Status:        status,
		Amount:        req.Amount,
		Currency:      req.Currency,
	}
	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("Payment %s", payment.OrderStatus)
	}
	return result, nil
}

// GetStatus fetches a transaction by uuid and normalizes its status.
func (p *IzipayProvider) GetStatus(ctx context.Context, transactionRef string) (Status, error) {
	payload := map[string]interface{}{"uuid": transactionRef}

	var txn izipayTransaction
	if err := p.do(ctx, "/api-payment/V4/Transaction/Get", payload, &txn); err != nil {
		return StatusFailed, err
	}
	return mapIzipayStatus(txn.Status), nil
}

// Refund issues a refund against a transaction, fully when amount is nil.
func (p *IzipayProvider) Refund(ctx context.Context, transactionRef string, amount *decimal.Decimal) (*RefundResult, error) {
	payload := map[string]interface{}{
		"uuid":       transactionRef,
		"resolution": "REFUND",
	}
	if amount != nil {
		payload["amount"] = toMinorUnits(*amount)
	}

	var txn izipayTransaction
	if err := p.do(ctx, "/api-payment/V4/Transaction/CancelOrRefund", payload, &txn); err != nil {
		if declineMsg, ok := izipayDecline(err); ok {
			return &RefundResult{Success: false, ErrorMessage: declineMsg}, nil
		}
		return nil, err
	}
	return &RefundResult{
		Success:  true,
		RefundID: txn.UUID,
		Amount:   fromMinorUnits(txn.Amount),
	}, nil
}

// izipayAPIError carries a decoded Izipay error answer.
type izipayAPIError struct {
	Code    string
	Message string
}

func (e *izipayAPIError) Error() string {
	return fmt.Sprintf("izipay api error (%s): %s", e.Code, e.Message)
}

func izipayDecline(err error) (string, bool) {
	apiErr, ok := err.(*izipayAPIError)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(apiErr.Code, "PSP_") || strings.HasPrefix(apiErr.Code, "ACQ_") {
		return apiErr.Message, true
	}
	return "", false
}

func izipayCurrency(alpha string) (int, error) {
	code, ok := izipayCurrencyCodes[strings.ToUpper(alpha)]
	if !ok {
		return 0, fmt.Errorf("unsupported izipay currency: %s", alpha)
	}
	return code, nil
}

func (p *IzipayProvider) do(ctx context.Context, path string, payload interface{}, out interface{}) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("failed to encode izipay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("failed to create izipay request: %w", err)
	}
	req.SetBasicAuth(p.shopID, p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach izipay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("izipay request failed with status %d", resp.StatusCode)
	}

	var envelope izipayEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode izipay response: %w", err)
	}
	if envelope.Status != "SUCCESS" {
		var apiErr izipayError
		if err := json.Unmarshal(envelope.Answer, &apiErr); err != nil {
			return fmt.Errorf("izipay returned status %s", envelope.Status)
		}
		log.Printf("level=warn component=izipay_provider msg=\"api error\" code=%s", apiErr.ErrorCode)
		return &izipayAPIError{Code: apiErr.ErrorCode, Message: apiErr.ErrorMessage}
	}
	return json.Unmarshal(envelope.Answer, out)
}

func mapIzipayStatus(orderStatus string) Status {
	switch orderStatus {
	case "PAID":
		return StatusSucceeded
	case "RUNNING":
		return StatusProcessing
	case "UNPAID":
		return StatusPending
	case "CANCELLED":
		return StatusCanceled
	case "ABANDONED":
		return StatusFailed
	default:
		return StatusFailed
	}
}
