/**
 * @description
 * This file contains the core business logic for the payments-service. The `Service`
 * struct orchestrates both settlement flows, coordinating between the database
 * repository, the payment gateway, the counterparty facades, and the message broker.
 *
 * Key features:
 * - Completes subscription upgrades after a paid checkout: activates the plan on the
 *   matching owner or provider profile.
 * - Completes service payments: credits the provider's share and publishes
 *   settlement events.
 * - Completion is idempotent: the conditional status transition in the store picks a
 *   single winner, replays return the stored outcome and never touch the facades again.
 * - A facade failure after the local transition leaves the payment Completed and flags
 *   the result as SettlementPending for operator follow-up.
 *
 * @dependencies
 * - context, errors, fmt, log, strconv, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/gateway, pkg/rabbitmq, pkg/*client: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ositopolar/payments-service/internal/domain"
	"github.com/ositopolar/payments-service/internal/store"
	"github.com/ositopolar/payments-service/pkg/gateway"
	"github.com/ositopolar/payments-service/pkg/notificationsclient"
	"github.com/ositopolar/payments-service/pkg/profilesclient"
	"github.com/ositopolar/payments-service/pkg/rabbitmq"
	"github.com/ositopolar/payments-service/pkg/servicerequestsclient"
	"github.com/ositopolar/payments-service/pkg/workordersclient"
)

var (
	ErrCheckoutNotPaid     = errors.New("checkout session is not paid")
	ErrMissingMetadata     = errors.New("checkout session metadata is incomplete")
	ErrNoProfileForUser    = errors.New("user has no owner or provider profile")
	ErrNotAuthorized       = errors.New("requester is not authorized for this payment")
	ErrWorkOrderNotPayable = errors.New("work order is not payable")
	ErrRateLimited         = errors.New("too many checkout attempts")
)

const publishRetryAttempts = 3

// ProfilesClient is the slice of the profiles service the settlement flows use.
type ProfilesClient interface {
	GetOwnerIDByUserID(ctx context.Context, userID int64) (int64, bool, error)
	GetProviderIDByUserID(ctx context.Context, userID int64) (int64, bool, error)
	UpdateOwnerPlan(ctx context.Context, ownerID, planID int64) error
	UpdateProviderPlan(ctx context.Context, providerID, planID int64) error
	CreditProviderBalance(ctx context.Context, providerID int64, amount decimal.Decimal) error
	GetProviderContact(ctx context.Context, providerID int64) (*profilesclient.ProviderContact, error)
}

// WorkOrdersClient is the read-only slice of the work orders service the
// payment flows use.
type WorkOrdersClient interface {
	GetWorkOrder(ctx context.Context, workOrderID int64) (*workordersclient.WorkOrder, error)
}

// ServiceRequestsClient is the read-only slice of the service requests service
// the payment flows use.
type ServiceRequestsClient interface {
	GetServiceRequest(ctx context.Context, serviceRequestID int64) (*servicerequestsclient.ServiceRequest, error)
}

// NotificationsClient delivers best-effort user notifications.
type NotificationsClient interface {
	Send(ctx context.Context, notification notificationsclient.Notification) error
}

// Service provides the core business logic for payments and settlement.
type Service struct {
	repo            store.Repository
	gateway         gateway.Provider
	profiles        ProfilesClient
	workOrders      WorkOrdersClient
	serviceRequests ServiceRequestsClient
	notifications   NotificationsClient
	eventProducer   rabbitmq.Publisher
	limiter         CheckoutRateLimiter

	feePercent decimal.Decimal
	currency   string

	checkoutRateLimit  int
	checkoutRateWindow time.Duration
}

// NewService creates a new payments service instance.
func NewService(
	repo store.Repository,
	gw gateway.Provider,
	profiles ProfilesClient,
	workOrders WorkOrdersClient,
	serviceRequests ServiceRequestsClient,
	notifications NotificationsClient,
	producer rabbitmq.Publisher,
	limiter CheckoutRateLimiter,
	feePercent decimal.Decimal,
	currency string,
	checkoutRateLimit int,
	checkoutRateWindow time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		gateway:            gw,
		profiles:           profiles,
		workOrders:         workOrders,
		serviceRequests:    serviceRequests,
		notifications:      notifications,
		eventProducer:      producer,
		limiter:            limiter,
		feePercent:         feePercent,
		currency:           currency,
		checkoutRateLimit:  checkoutRateLimit,
		checkoutRateWindow: checkoutRateWindow,
	}
}

// SubscriptionUpgradeResult reports the outcome of a subscription completion.
type SubscriptionUpgradeResult struct {
	PaymentID         int64      `json:"payment_id"`
	UserType          string     `json:"user_type"`
	PlanID            int64      `json:"plan_id"`
	PlanName          string     `json:"plan_name"`
	MaxEquipment      *int       `json:"max_equipment,omitempty"`
	MaxClients        *int       `json:"max_clients,omitempty"`
	TransactionID     string     `json:"transaction_id"`
	AlreadyCompleted  bool       `json:"already_completed"`
	SettlementPending bool       `json:"settlement_pending"`
}

// ServicePaymentResult reports the outcome of a service payment completion.
type ServicePaymentResult struct {
	ServicePayment    *domain.ServicePayment `json:"service_payment"`
	AlreadyCompleted  bool                   `json:"already_completed"`
	SettlementPending bool                   `json:"settlement_pending"`
}

// CompleteSubscriptionUpgrade finalizes a plan purchase after the subscriber
// returns from hosted checkout. The session id is the idempotency anchor: repeat
// calls for the same session return the original outcome without a second plan
// activation.
func (s *Service) CompleteSubscriptionUpgrade(ctx context.Context, sessionID string) (*SubscriptionUpgradeResult, error) {
	log.Printf("CompleteSubscriptionUpgrade: verifying session %s", sessionID)

	// 1. Verify the session against the gateway. Anything short of "paid" mutates nothing.
	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify checkout session: %w", err)
	}
	if session.PaymentStatus != gateway.CheckoutStatusPaid {
		log.Printf("CompleteSubscriptionUpgrade: session %s not paid (status=%s)", sessionID, session.PaymentStatus)
		return nil, ErrCheckoutNotPaid
	}

	// 2. Recover the business context from the session metadata.
	userID, err := metadataInt64(session.Metadata, "userId")
	if err != nil {
		return nil, err
	}
	planID, err := metadataInt64(session.Metadata, "planId")
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %d: %w", planID, err)
	}

	// 3. Find or create the payment record for this session. Checkout creation
	// normally persisted it already; recreating here covers records lost between
	// redirect and completion.
	payment, err := s.repo.GetPaymentBySessionID(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrPaymentNotFound) {
			return nil, err
		}
		payment, err = s.repo.CreatePayment(ctx, domain.NewSubscriptionPayment(
			userID, planID, plan.Price, plan.Currency, sessionID, session.CustomerEmail,
			fmt.Sprintf("Subscription to %s", plan.Name),
		))
		if err != nil {
			return nil, fmt.Errorf("failed to create payment record: %w", err)
		}
	}

	result := &SubscriptionUpgradeResult{
		PaymentID:     payment.ID,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		MaxEquipment:  plan.MaxEquipment,
		MaxClients:    plan.MaxClients,
		TransactionID: session.PaymentIntentID,
	}
	if plan.IsOwnerPlan() {
		result.UserType = domain.UserTypeOwner
	} else {
		result.UserType = domain.UserTypeProvider
	}

	// 4. Single-winner transition. Replays return the stored outcome and never
	// reach the profiles facade again.
	payment, err = s.repo.CompletePayment(ctx, payment.ID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyCompleted) {
			log.Printf("CompleteSubscriptionUpgrade: payment %d already completed, replay", payment.ID)
			result.AlreadyCompleted = true
			return result, nil
		}
		return nil, err
	}

	// 5. Activate the plan on the matching profile, owner first then provider.
	if err := s.activatePlan(ctx, userID, planID, result); err != nil {
		if errors.Is(err, ErrNoProfileForUser) {
			return nil, err
		}
		log.Printf("CompleteSubscriptionUpgrade: plan activation pending for payment %d: %v", payment.ID, err)
		result.SettlementPending = true
	}

	// 6. Publish the settlement event and notify the subscriber. Neither failure
	// reverts the completed payment.
	event := domain.NewSubscriptionPaymentProcessedEvent(payment.ID, userID, planID, payment.Amount, sessionID)
	s.publishWithRetry(ctx, func() error {
		return s.eventProducer.PublishPaymentProcessed(ctx, event)
	}, "payment.processed", payment.ID)

	s.notify(ctx, notificationsclient.Notification{
		UserID:   userID,
		Title:    "Subscription activated",
		Message:  fmt.Sprintf("Your %s subscription is now active.", plan.Name),
		Category: "payments",
	})

	return result, nil
}

func (s *Service) activatePlan(ctx context.Context, userID, planID int64, result *SubscriptionUpgradeResult) error {
	ownerID, found, err := s.profiles.GetOwnerIDByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve owner profile: %w", err)
	}
	if found {
		result.UserType = domain.UserTypeOwner
		if err := s.profiles.UpdateOwnerPlan(ctx, ownerID, planID); err != nil {
			return fmt.Errorf("failed to update owner plan: %w", err)
		}
		return nil
	}

	providerID, found, err := s.profiles.GetProviderIDByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve provider profile: %w", err)
	}
	if found {
		result.UserType = domain.UserTypeProvider
		if err := s.profiles.UpdateProviderPlan(ctx, providerID, planID); err != nil {
			return fmt.Errorf("failed to update provider plan: %w", err)
		}
		return nil
	}

	return ErrNoProfileForUser
}

// CompleteServicePayment finalizes a work order payment after the owner returns
// from hosted checkout. Same idempotency contract as subscription completion:
// one winner runs the settlement side effects, replays get the stored outcome.
func (s *Service) CompleteServicePayment(ctx context.Context, sessionID string) (*ServicePaymentResult, error) {
	log.Printf("CompleteServicePayment: verifying session %s", sessionID)

	// 1. Verify the session against the gateway.
	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify checkout session: %w", err)
	}
	if session.PaymentStatus != gateway.CheckoutStatusPaid {
		log.Printf("CompleteServicePayment: session %s not paid (status=%s)", sessionID, session.PaymentStatus)
		return nil, ErrCheckoutNotPaid
	}

	// 2. Recover the service payment id from the session metadata.
	if session.Metadata["paymentType"] != "service" {
		return nil, ErrMissingMetadata
	}
	servicePaymentID, err := metadataInt64(session.Metadata, "servicePaymentId")
	if err != nil {
		return nil, err
	}

	// 3. Single-winner transition, recording the gateway references.
	payment, err := s.repo.CompleteServicePayment(ctx, servicePaymentID, session.ID, session.PaymentIntentID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyCompleted) {
			log.Printf("CompleteServicePayment: service payment %d already completed, replay", servicePaymentID)
			return &ServicePaymentResult{ServicePayment: payment, AlreadyCompleted: true}, nil
		}
		return nil, err
	}

	result := &ServicePaymentResult{ServicePayment: payment}

	// 4. Credit the provider's share. A failure leaves the payment Completed and
	// flags the result; a later reconciliation pass picks these up.
	if err := s.profiles.CreditProviderBalance(ctx, payment.ProviderID, payment.ProviderAmount); err != nil {
		log.Printf("CompleteServicePayment: provider balance credit pending for payment %d: %v", payment.ID, err)
		result.SettlementPending = true
	}

	// 5. Publish settlement events.
	processedEvent := domain.NewServicePaymentProcessedEvent(payment, sessionID)
	s.publishWithRetry(ctx, func() error {
		return s.eventProducer.PublishPaymentProcessed(ctx, processedEvent)
	}, "payment.processed", payment.ID)

	completedEvent := domain.NewServicePaymentCompletedEvent(payment, sessionID)
	s.publishWithRetry(ctx, func() error {
		return s.eventProducer.PublishServicePaymentCompleted(ctx, completedEvent)
	}, "service_payment.completed", payment.ID)

	// 6. Best-effort provider notification.
	if contact, err := s.profiles.GetProviderContact(ctx, payment.ProviderID); err != nil {
		log.Printf("CompleteServicePayment: provider contact lookup failed for payment %d: %v", payment.ID, err)
	} else {
		s.notify(ctx, notificationsclient.Notification{
			UserID:   contact.UserID,
			Title:    "Payment received",
			Message:  fmt.Sprintf("%s has been credited to %s for work order %d.", payment.ProviderAmount.StringFixed(2), contact.CompanyName, payment.WorkOrderID),
			Category: "payments",
		})
	}

	return result, nil
}

// VerifyCheckoutSession returns the gateway's current view of a checkout session
// without mutating anything.
func (s *Service) VerifyCheckoutSession(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
	return s.gateway.GetCheckoutSession(ctx, sessionID)
}

// GetGatewayStatus returns the normalized status of a gateway transaction.
func (s *Service) GetGatewayStatus(ctx context.Context, transactionRef string) (gateway.Status, error) {
	return s.gateway.GetStatus(ctx, transactionRef)
}

// publishWithRetry attempts a publish a bounded number of times with incremental
// backoff. Exhausting the attempts is logged, never propagated: a settled payment
// must not fail because the broker is down.
func (s *Service) publishWithRetry(ctx context.Context, publish func() error, routingKey string, paymentID int64) {
	var err error
	for attempt := 1; attempt <= publishRetryAttempts; attempt++ {
		if err = publish(); err == nil {
			return
		}
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s payment_id=%d attempt=%d err=%v", routingKey, paymentID, attempt, err)
		if attempt < publishRetryAttempts {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}
	log.Printf("level=error component=service msg=\"event publish dropped\" routing_key=%s payment_id=%d err=%v", routingKey, paymentID, err)
}

func (s *Service) notify(ctx context.Context, notification notificationsclient.Notification) {
	if s.notifications == nil {
		return
	}
	if err := s.notifications.Send(ctx, notification); err != nil {
		log.Printf("level=warn component=service msg=\"notification delivery failed\" user_id=%d err=%v", notification.UserID, err)
	}
}

// consumeCheckoutRateLimit counts one checkout attempt for the user. The limiter
// fails open: a redis error disables limiting for the call rather than blocking
// checkout creation.
func (s *Service) consumeCheckoutRateLimit(ctx context.Context, scope string, userID int64) error {
	if s.limiter == nil || s.checkoutRateLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, strconv.FormatInt(userID, 10), s.checkoutRateLimit, s.checkoutRateWindow)
	if err != nil {
		log.Printf("level=warn component=service msg=\"rate limiter unavailable, allowing request\" scope=%s user_id=%d err=%v", scope, userID, err)
		return nil
	}
	if count > s.checkoutRateLimit {
		log.Printf("level=warn component=service msg=\"checkout rate limited\" scope=%s user_id=%d retry_after=%d", scope, userID, retryAfter)
		return ErrRateLimited
	}
	return nil
}

func metadataInt64(metadata map[string]string, key string) (int64, error) {
	raw, ok := metadata[key]
	if !ok || raw == "" {
		return 0, ErrMissingMetadata
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrMissingMetadata, key, err)
	}
	return value, nil
}
