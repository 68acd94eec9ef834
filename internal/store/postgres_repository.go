/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * for subscription payments, service payments with commission splits, and the
 * subscription plan catalog.
 *
 * Status transitions are single conditional UPDATEs guarded by the current status,
 * so the read-check-write race between concurrent completion calls collapses to
 * one row-level winner. The loser re-reads the row and reports the replay through
 * ErrAlreadyCompleted.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ositopolar/payments-service/internal/domain"
)

var (
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrServicePaymentNotFound = errors.New("service payment not found")
	ErrPlanNotFound           = errors.New("plan not found")
	ErrAlreadyCompleted       = errors.New("payment already completed")
	ErrNotPending             = errors.New("payment is not pending")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the service's tables when they do not exist yet and seeds
// the plan catalog. Called once at startup.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS plans (
			id            BIGINT PRIMARY KEY,
			name          TEXT NOT NULL,
			price         NUMERIC(12, 2) NOT NULL,
			currency      TEXT NOT NULL,
			billing_cycle TEXT NOT NULL,
			max_equipment INT,
			max_clients   INT
		);

		CREATE TABLE IF NOT EXISTS payments (
			id                 BIGSERIAL PRIMARY KEY,
			user_id            BIGINT NOT NULL,
			plan_id            BIGINT NOT NULL REFERENCES plans (id),
			amount             NUMERIC(12, 2) NOT NULL,
			currency           TEXT NOT NULL,
			gateway_session_id TEXT NOT NULL UNIQUE,
			customer_email     TEXT NOT NULL DEFAULT '',
			description        TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at       TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments (user_id);

		CREATE TABLE IF NOT EXISTS service_payments (
			id                 BIGSERIAL PRIMARY KEY,
			work_order_id      BIGINT NOT NULL,
			service_request_id BIGINT NOT NULL,
			owner_id           BIGINT NOT NULL,
			provider_id        BIGINT NOT NULL,
			total_amount       NUMERIC(12, 2) NOT NULL,
			platform_fee       NUMERIC(12, 2) NOT NULL,
			provider_amount    NUMERIC(12, 2) NOT NULL,
			gateway_charge_ref TEXT,
			gateway_txn_ref    TEXT,
			status             TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at       TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_service_payments_work_order_id ON service_payments (work_order_id);
		CREATE INDEX IF NOT EXISTS idx_service_payments_owner_id ON service_payments (owner_id);
		CREATE INDEX IF NOT EXISTS idx_service_payments_provider_id ON service_payments (provider_id);
	`
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return r.seedPlans(ctx)
}

func (r *PostgresRepository) seedPlans(ctx context.Context) error {
	query := `
		INSERT INTO plans (id, name, price, currency, billing_cycle, max_equipment, max_clients)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	for _, plan := range domain.SeedPlans() {
		if _, err := r.db.Exec(ctx, query, plan.ID, plan.Name, plan.Price, plan.Currency, plan.BillingCycle, plan.MaxEquipment, plan.MaxClients); err != nil {
			return fmt.Errorf("failed to seed plan %d: %w", plan.ID, err)
		}
	}
	return nil
}

// CreatePayment inserts a pending subscription payment. The unique constraint on
// gateway_session_id absorbs duplicate checkout callbacks; on conflict the stored
// row is returned as-is.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.SubscriptionPayment) (*domain.SubscriptionPayment, error) {
	query := `
		INSERT INTO payments (user_id, plan_id, amount, currency, gateway_session_id, customer_email, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (gateway_session_id) DO NOTHING
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		payment.UserID,
		payment.PlanID,
		payment.Amount,
		payment.Currency,
		payment.GatewaySessionID,
		payment.CustomerEmail,
		payment.Description,
		payment.Status,
		payment.CreatedAt,
	).Scan(&payment.ID)
	if err == nil {
		return payment, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}
	// Conflict path: a payment for this session already exists.
	return r.GetPaymentBySessionID(ctx, payment.GatewaySessionID)
}

// GetPaymentByID retrieves a subscription payment by its id.
func (r *PostgresRepository) GetPaymentByID(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error) {
	return r.getPayment(ctx, "id = $1", paymentID)
}

// GetPaymentBySessionID retrieves a subscription payment by its checkout session id.
func (r *PostgresRepository) GetPaymentBySessionID(ctx context.Context, sessionID string) (*domain.SubscriptionPayment, error) {
	return r.getPayment(ctx, "gateway_session_id = $1", sessionID)
}

func (r *PostgresRepository) getPayment(ctx context.Context, where string, arg interface{}) (*domain.SubscriptionPayment, error) {
	var payment domain.SubscriptionPayment
	query := `
		SELECT id, user_id, plan_id, amount, currency, gateway_session_id, customer_email, description, status, created_at, completed_at
		FROM payments
		WHERE ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&payment.ID,
		&payment.UserID,
		&payment.PlanID,
		&payment.Amount,
		&payment.Currency,
		&payment.GatewaySessionID,
		&payment.CustomerEmail,
		&payment.Description,
		&payment.Status,
		&payment.CreatedAt,
		&payment.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// CompletePayment transitions a subscription payment Pending -> Completed. The
// guard on the current status makes the transition idempotent under concurrent
// completion calls: exactly one caller observes the transition, replays get
// ErrAlreadyCompleted with the stored row.
func (r *PostgresRepository) CompletePayment(ctx context.Context, paymentID int64) (*domain.SubscriptionPayment, error) {
	query := `
		UPDATE payments
		SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, paymentID, domain.PaymentStatusCompleted, domain.PaymentStatusPending)
	if err != nil {
		return nil, err
	}

	payment, readErr := r.GetPaymentByID(ctx, paymentID)
	if readErr != nil {
		return nil, readErr
	}
	if tag.RowsAffected() == 0 {
		if payment.Status == domain.PaymentStatusCompleted {
			return payment, ErrAlreadyCompleted
		}
		return payment, ErrNotPending
	}
	return payment, nil
}

// MarkPaymentFailed transitions a pending subscription payment to Failed. A
// payment that already left Pending is untouched.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, paymentID int64) error {
	return r.transitionPayment(ctx, paymentID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
}

// MarkPaymentRefunded transitions a completed subscription payment to Refunded.
func (r *PostgresRepository) MarkPaymentRefunded(ctx context.Context, paymentID int64) error {
	return r.transitionPayment(ctx, paymentID, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded)
}

func (r *PostgresRepository) transitionPayment(ctx context.Context, paymentID int64, from, to string) error {
	query := `UPDATE payments SET status = $2 WHERE id = $1 AND status = $3`
	tag, err := r.db.Exec(ctx, query, paymentID, to, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, readErr := r.GetPaymentByID(ctx, paymentID); readErr != nil {
			return readErr
		}
		return ErrNotPending
	}
	return nil
}

// ListPaymentsByUserID returns a user's subscription payments, newest first.
func (r *PostgresRepository) ListPaymentsByUserID(ctx context.Context, userID int64) ([]domain.SubscriptionPayment, error) {
	query := `
		SELECT id, user_id, plan_id, amount, currency, gateway_session_id, customer_email, description, status, created_at, completed_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.SubscriptionPayment
	for rows.Next() {
		var payment domain.SubscriptionPayment
		if err := rows.Scan(
			&payment.ID,
			&payment.UserID,
			&payment.PlanID,
			&payment.Amount,
			&payment.Currency,
			&payment.GatewaySessionID,
			&payment.CustomerEmail,
			&payment.Description,
			&payment.Status,
			&payment.CreatedAt,
			&payment.CompletedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// CreateServicePayment inserts a pending service payment with its commission
// split already computed.
func (r *PostgresRepository) CreateServicePayment(ctx context.Context, payment *domain.ServicePayment) (*domain.ServicePayment, error) {
	query := `
		INSERT INTO service_payments (work_order_id, service_request_id, owner_id, provider_id, total_amount, platform_fee, provider_amount, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		payment.WorkOrderID,
		payment.ServiceRequestID,
		payment.OwnerID,
		payment.ProviderID,
		payment.TotalAmount,
		payment.PlatformFee,
		payment.ProviderAmount,
		payment.Status,
		payment.Description,
		payment.CreatedAt,
	).Scan(&payment.ID)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// GetServicePaymentByID retrieves a service payment by its id.
func (r *PostgresRepository) GetServicePaymentByID(ctx context.Context, servicePaymentID int64) (*domain.ServicePayment, error) {
	return r.getServicePayment(ctx, "id = $1", servicePaymentID)
}

// GetServicePaymentByWorkOrderID retrieves the most recent service payment for a
// work order.
func (r *PostgresRepository) GetServicePaymentByWorkOrderID(ctx context.Context, workOrderID int64) (*domain.ServicePayment, error) {
	return r.getServicePayment(ctx, "work_order_id = $1 ORDER BY created_at DESC LIMIT 1", workOrderID)
}

func (r *PostgresRepository) getServicePayment(ctx context.Context, where string, arg interface{}) (*domain.ServicePayment, error) {
	var payment domain.ServicePayment
	query := `
		SELECT id, work_order_id, service_request_id, owner_id, provider_id, total_amount, platform_fee, provider_amount, gateway_charge_ref, gateway_txn_ref, status, description, created_at, completed_at
		FROM service_payments
		WHERE ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&payment.ID,
		&payment.WorkOrderID,
		&payment.ServiceRequestID,
		&payment.OwnerID,
		&payment.ProviderID,
		&payment.TotalAmount,
		&payment.PlatformFee,
		&payment.ProviderAmount,
		&payment.GatewayChargeRef,
		&payment.GatewayTxnRef,
		&payment.Status,
		&payment.Description,
		&payment.CreatedAt,
		&payment.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrServicePaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// CompleteServicePayment transitions a service payment Pending -> Completed and
// records the gateway charge and transaction references in the same write. The
// status guard gives concurrent completion calls a single winner; replays get
// ErrAlreadyCompleted with the stored row so the caller can reuse the original
// references.
func (r *PostgresRepository) CompleteServicePayment(ctx context.Context, servicePaymentID int64, chargeRef, txnRef string) (*domain.ServicePayment, error) {
	query := `
		UPDATE service_payments
		SET status = $2, gateway_charge_ref = $3, gateway_txn_ref = $4, completed_at = NOW()
		WHERE id = $1 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, servicePaymentID, domain.PaymentStatusCompleted, chargeRef, txnRef, domain.PaymentStatusPending)
	if err != nil {
		return nil, err
	}

	payment, readErr := r.GetServicePaymentByID(ctx, servicePaymentID)
	if readErr != nil {
		return nil, readErr
	}
	if tag.RowsAffected() == 0 {
		if payment.Status == domain.PaymentStatusCompleted {
			return payment, ErrAlreadyCompleted
		}
		return payment, ErrNotPending
	}
	return payment, nil
}

// MarkServicePaymentFailed transitions a pending service payment to Failed.
func (r *PostgresRepository) MarkServicePaymentFailed(ctx context.Context, servicePaymentID int64) error {
	return r.transitionServicePayment(ctx, servicePaymentID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
}

// MarkServicePaymentRefunded transitions a completed service payment to Refunded.
func (r *PostgresRepository) MarkServicePaymentRefunded(ctx context.Context, servicePaymentID int64) error {
	return r.transitionServicePayment(ctx, servicePaymentID, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded)
}

func (r *PostgresRepository) transitionServicePayment(ctx context.Context, servicePaymentID int64, from, to string) error {
	query := `UPDATE service_payments SET status = $2 WHERE id = $1 AND status = $3`
	tag, err := r.db.Exec(ctx, query, servicePaymentID, to, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, readErr := r.GetServicePaymentByID(ctx, servicePaymentID); readErr != nil {
			return readErr
		}
		return ErrNotPending
	}
	return nil
}

// ListServicePaymentsByOwnerID returns an owner's service payments, newest first.
func (r *PostgresRepository) ListServicePaymentsByOwnerID(ctx context.Context, ownerID int64) ([]domain.ServicePayment, error) {
	return r.listServicePayments(ctx, "owner_id = $1", ownerID)
}

// ListServicePaymentsByProviderID returns a provider's service payments, newest first.
func (r *PostgresRepository) ListServicePaymentsByProviderID(ctx context.Context, providerID int64) ([]domain.ServicePayment, error) {
	return r.listServicePayments(ctx, "provider_id = $1", providerID)
}

func (r *PostgresRepository) listServicePayments(ctx context.Context, where string, arg interface{}) ([]domain.ServicePayment, error) {
	query := `
		SELECT id, work_order_id, service_request_id, owner_id, provider_id, total_amount, platform_fee, provider_amount, gateway_charge_ref, gateway_txn_ref, status, description, created_at, completed_at
		FROM service_payments
		WHERE ` + where + `
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.ServicePayment
	for rows.Next() {
		var payment domain.ServicePayment
		if err := rows.Scan(
			&payment.ID,
			&payment.WorkOrderID,
			&payment.ServiceRequestID,
			&payment.OwnerID,
			&payment.ProviderID,
			&payment.TotalAmount,
			&payment.PlatformFee,
			&payment.ProviderAmount,
			&payment.GatewayChargeRef,
			&payment.GatewayTxnRef,
			&payment.Status,
			&payment.Description,
			&payment.CreatedAt,
			&payment.CompletedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// GetPlanByID retrieves a plan catalog entry by its id.
func (r *PostgresRepository) GetPlanByID(ctx context.Context, planID int64) (*domain.Plan, error) {
	var plan domain.Plan
	query := `
		SELECT id, name, price, currency, billing_cycle, max_equipment, max_clients
		FROM plans
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, planID).Scan(
		&plan.ID,
		&plan.Name,
		&plan.Price,
		&plan.Currency,
		&plan.BillingCycle,
		&plan.MaxEquipment,
		&plan.MaxClients,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// ListPlansByUserType returns the owner or provider slice of the catalog, using
// the id-range partition convention from the domain package. An empty userType
// returns the whole catalog.
func (r *PostgresRepository) ListPlansByUserType(ctx context.Context, userType string) ([]domain.Plan, error) {
	query := `
		SELECT id, name, price, currency, billing_cycle, max_equipment, max_clients
		FROM plans
	`
	var args []interface{}
	switch userType {
	case domain.UserTypeOwner:
		query += ` WHERE id <= $1`
		args = append(args, domain.MaxOwnerPlanID)
	case domain.UserTypeProvider:
		query += ` WHERE id >= $1`
		args = append(args, domain.MinProviderPlanID)
	case "":
	default:
		return nil, fmt.Errorf("unknown user type %q", userType)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var plan domain.Plan
		if err := rows.Scan(
			&plan.ID,
			&plan.Name,
			&plan.Price,
			&plan.Currency,
			&plan.BillingCycle,
			&plan.MaxEquipment,
			&plan.MaxClients,
		); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}
