/**
 * @description
 * This file contains the checkout creation flows. Both flows persist a Pending
 * payment record before handing the user to the gateway's hosted page, and attach
 * everything completion will need to the session metadata. Amount metadata is
 * formatted with exactly two fractional digits so completion-side consumers parse
 * a stable shape.
 *
 * @dependencies
 * - context, fmt, log, strconv: Standard Go libraries.
 * - internal/domain: For domain models.
 * - pkg/gateway: Hosted checkout session creation.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ositopolar/payments-service/internal/domain"
	"github.com/ositopolar/payments-service/pkg/gateway"
)

// Work order status required before an owner can pay for it.
const workOrderStatusResolved = "Resolved"

// CheckoutResult is returned by both checkout creation flows.
type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// ServiceCheckoutResult adds the settlement breakdown the owner confirms before paying.
type ServiceCheckoutResult struct {
	CheckoutResult
	ServicePaymentID int64           `json:"service_payment_id"`
	ProviderCompany  string          `json:"provider_company,omitempty"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	ProviderAmount   decimal.Decimal `json:"provider_amount"`
}

// CreateSubscriptionCheckout starts a plan purchase. The price always comes from
// the catalog, never from the client, and the Pending payment row persisted here
// is the idempotency anchor completion keys on.
func (s *Service) CreateSubscriptionCheckout(ctx context.Context, userID, planID int64, customerEmail, successURL, cancelURL string) (*CheckoutResult, error) {
	log.Printf("CreateSubscriptionCheckout: user %d plan %d", userID, planID)

	if err := s.consumeCheckoutRateLimit(ctx, "subscription_checkout", userID); err != nil {
		return nil, err
	}

	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionRequest{
		Amount:             plan.Price,
		Currency:           plan.Currency,
		ProductName:        plan.Name,
		ProductDescription: fmt.Sprintf("Monthly subscription to the %s plan", plan.Name),
		CustomerEmail:      customerEmail,
		SuccessURL:         successURL,
		CancelURL:          cancelURL,
		Metadata: map[string]string{
			"userId": strconv.FormatInt(userID, 10),
			"planId": strconv.FormatInt(planID, 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	if _, err := s.repo.CreatePayment(ctx, domain.NewSubscriptionPayment(
		userID, planID, plan.Price, plan.Currency, session.ID, customerEmail,
		fmt.Sprintf("Subscription to %s", plan.Name),
	)); err != nil {
		return nil, fmt.Errorf("failed to record pending payment: %w", err)
	}

	return &CheckoutResult{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// CreateServicePaymentCheckout starts an owner's payment for a resolved work
// order. Authorization is three-party: the requester must hold the owner profile
// on the work order, and the linked service request must belong to that same
// owner. The commission split is computed and persisted here, before the
// redirect, so completion is a pure state transition.
func (s *Service) CreateServicePaymentCheckout(ctx context.Context, userID, workOrderID int64, customerEmail, successURL, cancelURL string) (*ServiceCheckoutResult, error) {
	log.Printf("CreateServicePaymentCheckout: user %d work order %d", userID, workOrderID)

	if err := s.consumeCheckoutRateLimit(ctx, "service_checkout", userID); err != nil {
		return nil, err
	}

	// 1. Load the work order and check it is payable.
	workOrder, err := s.workOrders.GetWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load work order %d: %w", workOrderID, err)
	}
	if workOrder.Status != workOrderStatusResolved {
		return nil, ErrWorkOrderNotPayable
	}
	totalAmount, err := decimal.NewFromString(workOrder.Cost)
	if err != nil || !totalAmount.IsPositive() {
		return nil, ErrWorkOrderNotPayable
	}

	// 2. Requester must be the owner on the work order.
	ownerID, found, err := s.profiles.GetOwnerIDByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owner profile: %w", err)
	}
	if !found || ownerID != workOrder.OwnerID {
		return nil, ErrNotAuthorized
	}

	// 3. The linked service request must belong to the same owner.
	serviceRequest, err := s.serviceRequests.GetServiceRequest(ctx, workOrder.ServiceRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load service request %d: %w", workOrder.ServiceRequestID, err)
	}
	if serviceRequest.OwnerID != workOrder.OwnerID {
		return nil, ErrNotAuthorized
	}

	// 4. Compute the split and persist the Pending payment before the redirect.
	payment, err := domain.NewServicePayment(
		workOrder.ID, workOrder.ServiceRequestID, workOrder.OwnerID, workOrder.ProviderID,
		totalAmount, s.feePercent, workOrder.Description,
	)
	if err != nil {
		return nil, err
	}
	payment, err = s.repo.CreateServicePayment(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("failed to record pending service payment: %w", err)
	}

	// Provider company name is presentation only; a lookup failure does not block checkout.
	var providerCompany string
	if contact, err := s.profiles.GetProviderContact(ctx, workOrder.ProviderID); err != nil {
		log.Printf("CreateServicePaymentCheckout: provider contact lookup failed for payment %d: %v", payment.ID, err)
	} else {
		providerCompany = contact.CompanyName
	}

	productName := fmt.Sprintf("Work order #%d", workOrder.ID)
	if providerCompany != "" {
		productName = fmt.Sprintf("Work order #%d (%s)", workOrder.ID, providerCompany)
	}

	// 5. Create the gateway session carrying the full settlement context.
	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionRequest{
		Amount:             payment.TotalAmount,
		Currency:           s.currency,
		ProductName:        productName,
		ProductDescription: workOrder.Description,
		CustomerEmail:      customerEmail,
		SuccessURL:         successURL,
		CancelURL:          cancelURL,
		Metadata: map[string]string{
			"paymentType":      "service",
			"servicePaymentId": strconv.FormatInt(payment.ID, 10),
			"workOrderId":      strconv.FormatInt(payment.WorkOrderID, 10),
			"serviceRequestId": strconv.FormatInt(payment.ServiceRequestID, 10),
			"ownerId":          strconv.FormatInt(payment.OwnerID, 10),
			"providerId":       strconv.FormatInt(payment.ProviderID, 10),
			"totalAmount":      payment.TotalAmount.StringFixed(2),
			"platformFee":      payment.PlatformFee.StringFixed(2),
			"providerAmount":   payment.ProviderAmount.StringFixed(2),
		},
	})
	if err != nil {
		// The Pending row stays behind; a failed session is retried with a fresh checkout.
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &ServiceCheckoutResult{
		CheckoutResult:   CheckoutResult{SessionID: session.ID, CheckoutURL: session.URL},
		ServicePaymentID: payment.ID,
		ProviderCompany:  providerCompany,
		TotalAmount:      payment.TotalAmount,
		PlatformFee:      payment.PlatformFee,
		ProviderAmount:   payment.ProviderAmount,
	}, nil
}
