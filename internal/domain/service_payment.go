/**
 * @description
 * This file defines the ServicePayment aggregate: a two-sided settlement where an
 * Owner pays for a completed work order, the platform retains a commission, and the
 * Provider receives the remainder. The commission split is computed at construction
 * time, before the gateway redirect, so completion is a pure state transition and
 * never a recomputation.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Monetary amounts.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServicePayment records an Owner paying a Provider for a completed work order,
// with the platform fee carved out up front.
type ServicePayment struct {
	ID               int64           `json:"id"`
	WorkOrderID      int64           `json:"work_order_id"`
	ServiceRequestID int64           `json:"service_request_id"`
	OwnerID          int64           `json:"owner_id"`
	ProviderID       int64           `json:"provider_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	ProviderAmount   decimal.Decimal `json:"provider_amount"`
	GatewayChargeRef *string         `json:"gateway_charge_ref,omitempty"`
	GatewayTxnRef    *string         `json:"gateway_txn_ref,omitempty"`
	Status           string          `json:"status"`
	Description      string          `json:"description"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// NewServicePayment builds a Pending service payment, splitting totalAmount into
// platform fee and provider share using the given commission percentage.
func NewServicePayment(workOrderID, serviceRequestID, ownerID, providerID int64, totalAmount, feePercent decimal.Decimal, description string) (*ServicePayment, error) {
	split, err := Split(totalAmount, feePercent)
	if err != nil {
		return nil, err
	}
	return &ServicePayment{
		WorkOrderID:      workOrderID,
		ServiceRequestID: serviceRequestID,
		OwnerID:          ownerID,
		ProviderID:       providerID,
		TotalAmount:      split.TotalAmount,
		PlatformFee:      split.PlatformFee,
		ProviderAmount:   split.CounterpartyAmount,
		Status:           PaymentStatusPending,
		Description:      description,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// MarkCompleted transitions the payment to Completed, recording the gateway
// references and the completion timestamp.
func (p *ServicePayment) MarkCompleted(chargeRef, txnRef string) {
	now := time.Now().UTC()
	p.Status = PaymentStatusCompleted
	p.GatewayChargeRef = &chargeRef
	p.GatewayTxnRef = &txnRef
	p.CompletedAt = &now
}

// MarkFailed transitions the payment to Failed.
func (p *ServicePayment) MarkFailed() {
	p.Status = PaymentStatusFailed
}

// MarkRefunded transitions the payment to Refunded.
func (p *ServicePayment) MarkRefunded() {
	p.Status = PaymentStatusRefunded
}
