/**
 * @description
 * This file defines the domain events published to the message bus after a
 * settlement completes. Events are immutable facts and carry denormalized amounts
 * so downstream consumers do not need to query this service back. Each event gets
 * a unique id so at-least-once consumers can deduplicate redeliveries.
 *
 * @dependencies
 * - github.com/google/uuid: Event ids for consumer-side deduplication.
 * - github.com/shopspring/decimal: Monetary amounts.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment types carried on PaymentProcessedEvent.
const (
	PaymentTypeSubscription = "Subscription"
	PaymentTypeService      = "Service"
)

// PaymentProcessedEvent is published once per successful completion transition,
// for both subscription and service payments.
type PaymentProcessedEvent struct {
	EventID          uuid.UUID        `json:"event_id"`
	PaymentID        int64            `json:"payment_id"`
	PaymentType      string           `json:"payment_type"`
	UserID           int64            `json:"user_id"`
	Amount           decimal.Decimal  `json:"amount"`
	SubscriptionID   *int64           `json:"subscription_id,omitempty"`
	ServicePaymentID *int64           `json:"service_payment_id,omitempty"`
	ProviderID       *int64           `json:"provider_id,omitempty"`
	ProviderAmount   *decimal.Decimal `json:"provider_amount,omitempty"`
	GatewaySessionID string           `json:"gateway_session_id"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// NewSubscriptionPaymentProcessedEvent builds the event for a completed plan payment.
func NewSubscriptionPaymentProcessedEvent(paymentID, userID, planID int64, amount decimal.Decimal, gatewaySessionID string) PaymentProcessedEvent {
	return PaymentProcessedEvent{
		EventID:          uuid.New(),
		PaymentID:        paymentID,
		PaymentType:      PaymentTypeSubscription,
		UserID:           userID,
		Amount:           amount,
		SubscriptionID:   &planID,
		GatewaySessionID: gatewaySessionID,
		OccurredAt:       time.Now().UTC(),
	}
}

// NewServicePaymentProcessedEvent builds the event for a completed service payment.
func NewServicePaymentProcessedEvent(sp *ServicePayment, gatewaySessionID string) PaymentProcessedEvent {
	providerAmount := sp.ProviderAmount
	return PaymentProcessedEvent{
		EventID:          uuid.New(),
		PaymentID:        sp.ID,
		PaymentType:      PaymentTypeService,
		UserID:           sp.OwnerID,
		Amount:           sp.TotalAmount,
		ServicePaymentID: &sp.ID,
		ProviderID:       &sp.ProviderID,
		ProviderAmount:   &providerAmount,
		GatewaySessionID: gatewaySessionID,
		OccurredAt:       time.Now().UTC(),
	}
}

// ServicePaymentCompletedEvent is published once per successful service-payment
// completion, carrying the full settlement breakdown.
type ServicePaymentCompletedEvent struct {
	EventID          uuid.UUID       `json:"event_id"`
	ServicePaymentID int64           `json:"service_payment_id"`
	WorkOrderID      int64           `json:"work_order_id"`
	OwnerID          int64           `json:"owner_id"`
	ProviderID       int64           `json:"provider_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	ProviderAmount   decimal.Decimal `json:"provider_amount"`
	GatewaySessionID string          `json:"gateway_session_id"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// NewServicePaymentCompletedEvent builds the settlement event from the aggregate.
func NewServicePaymentCompletedEvent(sp *ServicePayment, gatewaySessionID string) ServicePaymentCompletedEvent {
	return ServicePaymentCompletedEvent{
		EventID:          uuid.New(),
		ServicePaymentID: sp.ID,
		WorkOrderID:      sp.WorkOrderID,
		OwnerID:          sp.OwnerID,
		ProviderID:       sp.ProviderID,
		TotalAmount:      sp.TotalAmount,
		PlatformFee:      sp.PlatformFee,
		ProviderAmount:   sp.ProviderAmount,
		GatewaySessionID: gatewaySessionID,
		OccurredAt:       time.Now().UTC(),
	}
}
