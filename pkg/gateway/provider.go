/**
 * @description
 * This package abstracts the external payment gateway behind a single capability
 * interface so concrete providers (Stripe, Culqi, Izipay) are interchangeable and
 * selected by configuration. Every adapter normalizes its native status vocabulary
 * onto one closed Status set; anything unrecognized maps to StatusFailed, never to
 * StatusSucceeded. Amounts cross this boundary as major-unit decimals; each adapter
 * owns its own minor-unit (cents) conversion internally.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Major-unit monetary amounts.
 */

package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the normalized payment status shared by every provider.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
	StatusCanceled   Status = "Canceled"
	StatusRefunded   Status = "Refunded"
)

// CheckoutStatusPaid is the normalized checkout-session payment state meaning the
// gateway has captured the funds.
const CheckoutStatusPaid = "paid"

// CheckoutSessionRequest describes a hosted checkout to create. Metadata is the
// sole channel for recovering business context at completion time, so callers must
// attach every identifier they will need later.
type CheckoutSessionRequest struct {
	Amount             decimal.Decimal
	Currency           string
	ProductName        string
	ProductDescription string
	CustomerEmail      string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

// CheckoutSession is the gateway-side view of a hosted checkout. PaymentStatus is
// normalized by the adapter; "paid" means funds are captured.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	PaymentStatus   string
	CustomerEmail   string
	AmountTotal     decimal.Decimal
	Currency        string
	Metadata        map[string]string
}

// ChargeRequest describes a direct charge against a tokenized payment method.
type ChargeRequest struct {
	Amount        decimal.Decimal
	Currency      string
	Description   string
	CustomerEmail string
	CustomerName  string
	PaymentToken  string
	Metadata      map[string]string
}

// ChargeResult reports the outcome of a charge attempt. Business declines come
// back with Success=false and an ErrorMessage; only transport failures surface as
// an error from the call itself.
type ChargeResult struct {
	Success       bool
	TransactionID string
	Status        Status
	Amount        decimal.Decimal
	Currency      string
	ErrorMessage  string
}

// RefundResult reports the outcome of a refund attempt.
type RefundResult struct {
	Success      bool
	RefundID     string
	Amount       decimal.Decimal
	ErrorMessage string
}

// Provider is the capability set every concrete gateway implements.
type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	GetStatus(ctx context.Context, transactionRef string) (Status, error)
	Refund(ctx context.Context, transactionRef string, amount *decimal.Decimal) (*RefundResult, error)
}

// toMinorUnits converts a major-unit decimal amount to the smallest currency unit.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromMinorUnits converts a smallest-currency-unit amount back to a major-unit decimal.
func fromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}

// Config selects and configures the concrete provider at bootstrap.
type Config struct {
	Provider string

	StripeSecretKey  string
	StripeAPIBaseURL string

	CulqiSecretKey  string
	CulqiAPIBaseURL string

	IzipayShopID     string
	IzipayAPIKey     string
	IzipayAPIBaseURL string
}

// New returns the configured provider implementation.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "stripe", "":
		return NewStripeProvider(cfg.StripeSecretKey, cfg.StripeAPIBaseURL), nil
	case "culqi":
		return NewCulqiProvider(cfg.CulqiSecretKey, cfg.CulqiAPIBaseURL), nil
	case "izipay":
		return NewIzipayProvider(cfg.IzipayShopID, cfg.IzipayAPIKey, cfg.IzipayAPIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
