/**
 * @description
 * This file defines the SubscriptionPayment aggregate: a one-sided charge from a
 * subscriber to the platform for a subscription plan. The record is keyed by the
 * gateway checkout session id, which is the idempotency anchor for completion, and
 * it is only ever status-transitioned, never deleted.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Monetary amounts.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment lifecycle statuses shared by both payment aggregates.
const (
	PaymentStatusPending   = "Pending"
	PaymentStatusCompleted = "Completed"
	PaymentStatusFailed    = "Failed"
	PaymentStatusRefunded  = "Refunded"
)

// SubscriptionPayment records a subscriber paying the platform for a plan.
type SubscriptionPayment struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	PlanID           int64           `json:"plan_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	GatewaySessionID string          `json:"gateway_session_id"`
	CustomerEmail    string          `json:"customer_email"`
	Description      string          `json:"description"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// NewSubscriptionPayment returns a Pending payment for the given plan checkout.
func NewSubscriptionPayment(userID, planID int64, amount decimal.Decimal, currency, gatewaySessionID, customerEmail, description string) *SubscriptionPayment {
	return &SubscriptionPayment{
		UserID:           userID,
		PlanID:           planID,
		Amount:           amount,
		Currency:         currency,
		GatewaySessionID: gatewaySessionID,
		CustomerEmail:    customerEmail,
		Description:      description,
		Status:           PaymentStatusPending,
		CreatedAt:        time.Now().UTC(),
	}
}

// MarkCompleted transitions the payment to Completed and stamps the completion time.
func (p *SubscriptionPayment) MarkCompleted() {
	now := time.Now().UTC()
	p.Status = PaymentStatusCompleted
	p.CompletedAt = &now
}

// MarkFailed transitions the payment to Failed. A failed record is never reused;
// a retry goes through a fresh checkout.
func (p *SubscriptionPayment) MarkFailed() {
	p.Status = PaymentStatusFailed
}

// MarkRefunded transitions the payment to Refunded.
func (p *SubscriptionPayment) MarkRefunded() {
	p.Status = PaymentStatusRefunded
}
