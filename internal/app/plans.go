/**
 * @description
 * This file contains the read-side operations and the smaller commands that sit
 * next to the settlement flows: plan catalog queries, payment history, work order
 * payment lookup, direct plan changes, and refunds.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ositopolar/payments-service/internal/domain"
	"github.com/ositopolar/payments-service/internal/store"
)

var ErrRefundRejected = errors.New("gateway rejected the refund")

// GetPlanByID returns a single plan catalog entry.
func (s *Service) GetPlanByID(ctx context.Context, planID int64) (*domain.Plan, error) {
	return s.repo.GetPlanByID(ctx, planID)
}

// GetPlans returns the plan catalog, optionally narrowed to the owner or
// provider slice of the id range.
func (s *Service) GetPlans(ctx context.Context, userType string) ([]domain.Plan, error) {
	return s.repo.ListPlansByUserType(ctx, userType)
}

// ListPayments returns a user's subscription payment history.
func (s *Service) ListPayments(ctx context.Context, userID int64) ([]domain.SubscriptionPayment, error) {
	return s.repo.ListPaymentsByUserID(ctx, userID)
}

// GetServicePaymentByWorkOrder returns the latest service payment recorded for a
// work order.
func (s *Service) GetServicePaymentByWorkOrder(ctx context.Context, workOrderID int64) (*domain.ServicePayment, error) {
	return s.repo.GetServicePaymentByWorkOrderID(ctx, workOrderID)
}

// UpgradePlan moves a user's profile onto a new plan without a payment, used for
// administrative plan changes. Resolution order matches completion: owner first,
// then provider.
func (s *Service) UpgradePlan(ctx context.Context, userID, planID int64) (*domain.Plan, error) {
	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	result := &SubscriptionUpgradeResult{}
	if err := s.activatePlan(ctx, userID, planID, result); err != nil {
		return nil, err
	}
	log.Printf("UpgradePlan: user %d moved to plan %d (%s)", userID, planID, result.UserType)
	return plan, nil
}

// RefundServicePayment refunds a completed service payment through the gateway
// and transitions it to Refunded. Only completed payments with a recorded
// gateway transaction can be refunded.
func (s *Service) RefundServicePayment(ctx context.Context, servicePaymentID int64) (*domain.ServicePayment, error) {
	payment, err := s.repo.GetServicePaymentByID(ctx, servicePaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted || payment.GatewayTxnRef == nil || *payment.GatewayTxnRef == "" {
		return nil, store.ErrNotPending
	}

	refund, err := s.gateway.Refund(ctx, *payment.GatewayTxnRef, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to refund through gateway: %w", err)
	}
	if !refund.Success {
		log.Printf("RefundServicePayment: gateway rejected refund for payment %d: %s", payment.ID, refund.ErrorMessage)
		return nil, ErrRefundRejected
	}

	if err := s.repo.MarkServicePaymentRefunded(ctx, payment.ID); err != nil {
		return nil, err
	}
	payment.MarkRefunded()
	log.Printf("RefundServicePayment: payment %d refunded (refund id %s)", payment.ID, refund.RefundID)
	return payment, nil
}
