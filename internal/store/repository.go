/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payments-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/ositopolar/payments-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Subscription payment methods
	// CreatePayment inserts a pending subscription payment keyed by its checkout
	// session id. A repeated insert for the same session returns the stored row
	// instead of creating a duplicate.
	CreatePayment(ctx context.Context, payment *domain.SubscriptionPayment) (*domain.SubscriptionPayment, error)
	GetPaymentByID(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error)
	GetPaymentBySessionID(ctx context.Context, sessionID string) (*domain.SubscriptionPayment, error)
	// CompletePayment transitions Pending -> Completed in a single conditional
	// write. A payment already Completed returns ErrAlreadyCompleted so callers
	// can treat the call as a replay.
	CompletePayment(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error)
	MarkPaymentFailed(ctx context.Context, paymentID int64) error
	MarkPaymentRefunded(ctx context.Context, paymentID int64) error
	ListPaymentsByUserID(ctx context.Context, userID int64) ([]domain.SubscriptionPayment, error)

	// Service payment methods
	CreateServicePayment(ctx context.Context, payment *domain.ServicePayment) (*domain.ServicePayment, error)
	GetServicePaymentByID(ctx context.Context, servicePaymentID int64) (*domain.ServicePayment, error)
	GetServicePaymentByWorkOrderID(ctx context.Context, workOrderID int64) (*domain.ServicePayment, error)
	// CompleteServicePayment transitions Pending -> Completed and records the
	// gateway references in the same conditional write. Same replay contract as
	// CompletePayment.
	CompleteServicePayment(ctx context.Context, servicePaymentID int64, chargeRef, txnRef string) (*domain.ServicePayment, error)
	MarkServicePaymentFailed(ctx context.Context, servicePaymentID int64) error
	MarkServicePaymentRefunded(ctx context.Context, servicePaymentID int64) error
	ListServicePaymentsByOwnerID(ctx context.Context, ownerID int64) ([]domain.ServicePayment, error)
	ListServicePaymentsByProviderID(ctx context.Context, providerID int64) ([]domain.ServicePayment, error)

	// Plan catalog methods
	GetPlanByID(ctx context.Context, planID int64) (*domain.Plan, error)
	ListPlansByUserType(ctx context.Context, userType string) ([]domain.Plan, error)
}
