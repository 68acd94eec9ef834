package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ositopolar/payments-service/internal/domain"
	"github.com/ositopolar/payments-service/internal/store"
	"github.com/ositopolar/payments-service/pkg/gateway"
	"github.com/ositopolar/payments-service/pkg/notificationsclient"
	"github.com/ositopolar/payments-service/pkg/profilesclient"
	"github.com/ositopolar/payments-service/pkg/servicerequestsclient"
	"github.com/ositopolar/payments-service/pkg/workordersclient"
)

type stubRepository struct {
	store.Repository

	getPlanByIDFn            func(ctx context.Context, planID int64) (*domain.Plan, error)
	getPaymentBySessionIDFn  func(ctx context.Context, sessionID string) (*domain.SubscriptionPayment, error)
	createPaymentFn          func(ctx context.Context, payment *domain.SubscriptionPayment) (*domain.SubscriptionPayment, error)
	completePaymentFn        func(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error)
	createServicePaymentFn   func(ctx context.Context, payment *domain.ServicePayment) (*domain.ServicePayment, error)
	completeServicePaymentFn func(ctx context.Context, id int64, chargeRef, txnRef string) (*domain.ServicePayment, error)

	createServicePaymentCalls   int
	completeServicePaymentCalls int
	completePaymentCalls        int
}

func (r *stubRepository) GetPlanByID(ctx context.Context, planID int64) (*domain.Plan, error) {
	return r.getPlanByIDFn(ctx, planID)
}

func (r *stubRepository) GetPaymentBySessionID(ctx context.Context, sessionID string) (*domain.SubscriptionPayment, error) {
	return r.getPaymentBySessionIDFn(ctx, sessionID)
}

func (r *stubRepository) CreatePayment(ctx context.Context, payment *domain.SubscriptionPayment) (*domain.SubscriptionPayment, error) {
	return r.createPaymentFn(ctx, payment)
}

func (r *stubRepository) CompletePayment(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error) {
	r.completePaymentCalls++
	return r.completePaymentFn(ctx, paymentID)
}

func (r *stubRepository) CreateServicePayment(ctx context.Context, payment *domain.ServicePayment) (*domain.ServicePayment, error) {
	r.createServicePaymentCalls++
	return r.createServicePaymentFn(ctx, payment)
}

func (r *stubRepository) CompleteServicePayment(ctx context.Context, id int64, chargeRef, txnRef string) (*domain.ServicePayment, error) {
	r.completeServicePaymentCalls++
	return r.completeServicePaymentFn(ctx, id, chargeRef, txnRef)
}

type stubGateway struct {
	gateway.Provider

	getCheckoutSessionFn    func(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error)
	createCheckoutSessionFn func(ctx context.Context, req gateway.CheckoutSessionRequest) (*gateway.CheckoutSession, error)
	refundFn                func(ctx context.Context, transactionRef string, amount *decimal.Decimal) (*gateway.RefundResult, error)
}

func (g *stubGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
	return g.getCheckoutSessionFn(ctx, sessionID)
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutSessionRequest) (*gateway.CheckoutSession, error) {
	return g.createCheckoutSessionFn(ctx, req)
}

func (g *stubGateway) Refund(ctx context.Context, transactionRef string, amount *decimal.Decimal) (*gateway.RefundResult, error) {
	return g.refundFn(ctx, transactionRef, amount)
}

type stubProfiles struct {
	ownerID    int64
	providerID int64

	creditCalls          int
	updateOwnerPlanCalls int
	updateProviderCalls  int
	creditErr            error
}

func (p *stubProfiles) GetOwnerIDByUserID(ctx context.Context, userID int64) (int64, bool, error) {
	return p.ownerID, p.ownerID != 0, nil
}

func (p *stubProfiles) GetProviderIDByUserID(ctx context.Context, userID int64) (int64, bool, error) {
	return p.providerID, p.providerID != 0, nil
}

func (p *stubProfiles) UpdateOwnerPlan(ctx context.Context, ownerID, planID int64) error {
	p.updateOwnerPlanCalls++
	return nil
}

func (p *stubProfiles) UpdateProviderPlan(ctx context.Context, providerID, planID int64) error {
	p.updateProviderCalls++
	return nil
}

func (p *stubProfiles) CreditProviderBalance(ctx context.Context, providerID int64, amount decimal.Decimal) error {
	p.creditCalls++
	return p.creditErr
}

func (p *stubProfiles) GetProviderContact(ctx context.Context, providerID int64) (*profilesclient.ProviderContact, error) {
	return &profilesclient.ProviderContact{UserID: 900, CompanyName: "Fix-It Ltd"}, nil
}

type stubWorkOrders struct {
	order *workordersclient.WorkOrder
}

func (w *stubWorkOrders) GetWorkOrder(ctx context.Context, workOrderID int64) (*workordersclient.WorkOrder, error) {
	if w.order == nil {
		return nil, errors.New("work order not found")
	}
	return w.order, nil
}

type stubServiceRequests struct {
	request *servicerequestsclient.ServiceRequest
}

func (s *stubServiceRequests) GetServiceRequest(ctx context.Context, serviceRequestID int64) (*servicerequestsclient.ServiceRequest, error) {
	if s.request == nil {
		return nil, errors.New("service request not found")
	}
	return s.request, nil
}

type stubNotifications struct {
	sent []notificationsclient.Notification
}

func (n *stubNotifications) Send(ctx context.Context, notification notificationsclient.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

type stubPublisher struct {
	processedEvents []domain.PaymentProcessedEvent
	completedEvents []domain.ServicePaymentCompletedEvent
	publishErr      error
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return p.publishErr
}

func (p *stubPublisher) PublishPaymentProcessed(ctx context.Context, event domain.PaymentProcessedEvent) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.processedEvents = append(p.processedEvents, event)
	return nil
}

func (p *stubPublisher) PublishServicePaymentCompleted(ctx context.Context, event domain.ServicePaymentCompletedEvent) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.completedEvents = append(p.completedEvents, event)
	return nil
}

func (p *stubPublisher) Close() {}

type testDeps struct {
	repo            *stubRepository
	gateway         *stubGateway
	profiles        *stubProfiles
	workOrders      *stubWorkOrders
	serviceRequests *stubServiceRequests
	notifications   *stubNotifications
	publisher       *stubPublisher
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		repo:            &stubRepository{},
		gateway:         &stubGateway{},
		profiles:        &stubProfiles{},
		workOrders:      &stubWorkOrders{},
		serviceRequests: &stubServiceRequests{},
		notifications:   &stubNotifications{},
		publisher:       &stubPublisher{},
	}
	svc := NewService(
		deps.repo,
		deps.gateway,
		deps.profiles,
		deps.workOrders,
		deps.serviceRequests,
		deps.notifications,
		deps.publisher,
		nil,
		decimal.RequireFromString("15.0"),
		"USD",
		0,
		time.Minute,
	)
	return svc, deps
}

func pendingServicePayment() *domain.ServicePayment {
	sp, _ := domain.NewServicePayment(10, 20, 30, 40, decimal.RequireFromString("100.00"), decimal.RequireFromString("15.0"), "Pipe repair")
	sp.ID = 55
	return sp
}

func paidServiceSession() *gateway.CheckoutSession {
	return &gateway.CheckoutSession{
		ID:              "cs_1",
		PaymentIntentID: "pi_1",
		PaymentStatus:   gateway.CheckoutStatusPaid,
		Metadata: map[string]string{
			"paymentType":      "service",
			"servicePaymentId": "55",
		},
	}
}

func TestCompleteServicePayment_SettlesOnce(t *testing.T) {
	svc, deps := newTestService(t)

	completed := pendingServicePayment()
	completed.MarkCompleted("cs_1", "pi_1")

	deps.gateway.getCheckoutSessionFn = func(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
		return paidServiceSession(), nil
	}
	deps.repo.completeServicePaymentFn = func(ctx context.Context, id int64, chargeRef, txnRef string) (*domain.ServicePayment, error) {
		if id != 55 {
			t.Fatalf("unexpected service payment id %d", id)
		}
		if chargeRef != "cs_1" || txnRef != "pi_1" {
			t.Fatalf("unexpected gateway refs %s/%s", chargeRef, txnRef)
		}
		return completed, nil
	}

	result, err := svc.CompleteServicePayment(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("CompleteServicePayment returned error: %v", err)
	}
	if result.AlreadyCompleted {
		t.Error("first completion must not be flagged as a replay")
	}
	if result.SettlementPending {
		t.Error("settlement must not be pending when all facades succeed")
	}
	if deps.profiles.creditCalls != 1 {
		t.Errorf("provider balance credited %d times, want 1", deps.profiles.creditCalls)
	}
	if !completed.ProviderAmount.Equal(decimal.RequireFromString("85.00")) {
		t.Errorf("provider amount = %s, want 85.00", completed.ProviderAmount)
	}
	if len(deps.publisher.completedEvents) != 1 {
		t.Fatalf("expected one settlement event, got %d", len(deps.publisher.completedEvents))
	}
	if !deps.publisher.completedEvents[0].PlatformFee.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("event platform fee = %s, want 15.00", deps.publisher.completedEvents[0].PlatformFee)
	}
}

func TestCompleteServicePayment_ReplayNeverTouchesFacades(t *testing.T) {
	svc, deps := newTestService(t)

	completed := pendingServicePayment()
	completed.MarkCompleted("cs_1", "pi_1")

	deps.gateway.getCheckoutSessionFn = func(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
		return paidServiceSession(), nil
	}
	firstCall := true
	deps.repo.completeServicePaymentFn = func(ctx context.Context, id int64, chargeRef, txnRef string) (*domain.ServicePayment, error) {
		if firstCall {
			firstCall = false
			return completed, nil
		}
		return completed, store.ErrAlreadyCompleted
	}

	if _, err := svc.CompleteServicePayment(context.Background(), "cs_1"); err != nil {
		t.Fatalf("first completion returned error: %v", err)
	}
	result, err := svc.CompleteServicePayment(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}

	if !result.AlreadyCompleted {
		t.Error("replay must be flagged AlreadyCompleted")
	}
	if deps.profiles.creditCalls != 1 {
		t.Errorf("provider balance credited %d times across replay, want exactly 1", deps.profiles.creditCalls)
	}
	if len(deps.publisher.completedEvents) != 1 {
		t.Errorf("settlement event published %d times across replay, want exactly 1", len(deps.publisher.completedEvents))
	}
}

func TestCompleteServicePayment_UnpaidSessionMutatesNothing(t *testing.T) {
	svc, deps := newTestService(t)

	deps.gateway.getCheckoutSessionFn = func(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
		session := paidServiceSession()
		session.PaymentStatus = "unpaid"
		return session, nil
	}

	_, err := svc.CompleteServicePayment(context.Background(), "cs_1")
	if !errors.Is(err, ErrCheckoutNotPaid) {
		t.Fatalf("expected ErrCheckoutNotPaid, got %v", err)
	}
	if deps.repo.completeServicePaymentCalls != 0 {
		t.Error("an unpaid session must not reach the store")
	}
	if deps.profiles.creditCalls != 0 {
		t.Error("an unpaid session must not reach the profiles facade")
	}
}

func TestCompleteServicePayment_MalformedMetadataIsAValidationError(t *testing.T) {
	svc, deps := newTestService(t)

	deps.gateway.getCheckoutSessionFn = func(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
		session := paidServiceSession()
		session.Metadata["servicePaymentId"] = "not-a-number"
		return session, nil
	}

	_, err := svc.CompleteServicePayment(context.Background(), "cs_1")
	if !errors.Is(err, ErrMissingMetadata) {
		t.Fatalf("expected ErrMissingMetadata for a non-numeric id, got %v", err)
	}
	if deps.repo.completeServicePaymentCalls != 0 {
		t.Error("malformed metadata must not reach the store")
	}
}

func TestCompleteServicePayment_FacadeFailureLeavesPaymentCompleted(t *testing.T) {
	svc, deps := newTestService(t)

	completed := pendingServicePayment()
	completed.MarkCompleted("cs_1", "pi_1")

	deps.gateway.getCheckoutSessionFn = func(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
		return paidServiceSession(), nil
	}
	deps.repo.completeServicePaymentFn = func(ctx context.Context, id int64, chargeRef, txnRef string) (*domain.ServicePayment, error) {
		return completed, nil
	}
	deps.profiles.creditErr = errors.New("profiles service unavailable")

	result, err := svc.CompleteServicePayment(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("facade failure must not fail completion, got %v", err)
	}
	if !result.SettlementPending {
		t.Error("expected SettlementPending when the balance credit fails")
	}
	if result.ServicePayment.Status != domain.PaymentStatusCompleted {
		t.Errorf("payment status = %s, must stay Completed", result.ServicePayment.Status)
	}
}

func TestCompleteSubscriptionUpgrade_OwnerResolvedFirst(t *testing.T) {
	svc, deps := newTestService(t)
	deps.profiles.ownerID = 7
	deps.profiles.providerID = 8

	wireSubscriptionStubs(deps)

	result, err := svc.CompleteSubscriptionUpgrade(context.Background(), "cs_sub_1")
	if err != nil {
		t.Fatalf("CompleteSubscriptionUpgrade returned error: %v", err)
	}
	if result.UserType != domain.UserTypeOwner {
		t.Errorf("user type = %s, want owner", result.UserType)
	}
	if deps.profiles.updateOwnerPlanCalls != 1 {
		t.Errorf("owner plan updated %d times, want 1", deps.profiles.updateOwnerPlanCalls)
	}
	if deps.profiles.updateProviderCalls != 0 {
		t.Error("provider plan must not be touched when an owner profile exists")
	}
	if len(deps.publisher.processedEvents) != 1 {
		t.Fatalf("expected one processed event, got %d", len(deps.publisher.processedEvents))
	}
	if deps.publisher.processedEvents[0].PaymentType != domain.PaymentTypeSubscription {
		t.Errorf("event payment type = %s, want Subscription", deps.publisher.processedEvents[0].PaymentType)
	}
}

func TestCompleteSubscriptionUpgrade_FallsBackToProvider(t *testing.T) {
	svc, deps := newTestService(t)
	deps.profiles.ownerID = 0
	deps.profiles.providerID = 8

	wireSubscriptionStubs(deps)

	result, err := svc.CompleteSubscriptionUpgrade(context.Background(), "cs_sub_1")
	if err != nil {
		t.Fatalf("CompleteSubscriptionUpgrade returned error: %v", err)
	}
	if result.UserType != domain.UserTypeProvider {
		t.Errorf("user type = %s, want provider", result.UserType)
	}
	if deps.profiles.updateProviderCalls != 1 {
		t.Errorf("provider plan updated %d times, want 1", deps.profiles.updateProviderCalls)
	}
}

func TestCompleteSubscriptionUpgrade_ReplayReturnsPriorOutcome(t *testing.T) {
	svc, deps := newTestService(t)
	deps.profiles.ownerID = 7

	wireSubscriptionStubs(deps)
	stored := domain.NewSubscriptionPayment(42, 1, decimal.RequireFromString("18.99"), "USD", "cs_sub_1", "owner@example.com", "Subscription to Basic (Polar Bear)")
	stored.ID = 11
	stored.MarkCompleted()
	deps.repo.getPaymentBySessionIDFn = func(ctx context.Context, sessionID string) (*domain.SubscriptionPayment, error) {
		return stored, nil
	}
	deps.repo.completePaymentFn = func(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error) {
		return stored, store.ErrAlreadyCompleted
	}

	result, err := svc.CompleteSubscriptionUpgrade(context.Background(), "cs_sub_1")
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if !result.AlreadyCompleted {
		t.Error("replay must be flagged AlreadyCompleted")
	}
	if deps.profiles.updateOwnerPlanCalls != 0 {
		t.Error("replay must not touch the profiles facade")
	}
	if len(deps.publisher.processedEvents) != 0 {
		t.Error("replay must not publish another event")
	}
}

func TestCompleteSubscriptionUpgrade_PublishFailureDoesNotFailCompletion(t *testing.T) {
	svc, deps := newTestService(t)
	deps.profiles.ownerID = 7
	deps.publisher.publishErr = errors.New("broker unavailable")

	wireSubscriptionStubs(deps)

	result, err := svc.CompleteSubscriptionUpgrade(context.Background(), "cs_sub_1")
	if err != nil {
		t.Fatalf("publish failure must not fail completion, got %v", err)
	}
	if result.SettlementPending {
		t.Error("publish failure must not flag SettlementPending")
	}
}

// wireSubscriptionStubs sets up a paid subscription session for user 42 and plan 1
// with a pending payment record.
func wireSubscriptionStubs(deps *testDeps) {
	plan := domain.SeedPlans()[0]

	deps.gateway.getCheckoutSessionFn = func(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
		return &gateway.CheckoutSession{
			ID:              sessionID,
			PaymentIntentID: "pi_sub_1",
			PaymentStatus:   gateway.CheckoutStatusPaid,
			CustomerEmail:   "owner@example.com",
			Metadata:        map[string]string{"userId": "42", "planId": "1"},
		}, nil
	}
	deps.repo.getPlanByIDFn = func(ctx context.Context, planID int64) (*domain.Plan, error) {
		if planID != plan.ID {
			return nil, store.ErrPlanNotFound
		}
		return &plan, nil
	}
	pending := domain.NewSubscriptionPayment(42, 1, plan.Price, plan.Currency, "cs_sub_1", "owner@example.com", "Subscription to Basic (Polar Bear)")
	pending.ID = 11
	deps.repo.getPaymentBySessionIDFn = func(ctx context.Context, sessionID string) (*domain.SubscriptionPayment, error) {
		return pending, nil
	}
	deps.repo.completePaymentFn = func(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error) {
		pending.MarkCompleted()
		return pending, nil
	}
}
