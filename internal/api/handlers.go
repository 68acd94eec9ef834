/**
 * @description
 * This file contains the HTTP handlers for the payments-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http, strconv: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/store: For service logic and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ositopolar/payments-service/internal/app"
	"github.com/ositopolar/payments-service/internal/store"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service *app.Service
}

func NewPaymentHandlers(service *app.Service) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

type createCheckoutRequest struct {
	PlanID        int64  `json:"plan_id"`
	CustomerEmail string `json:"customer_email"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

type createServiceCheckoutRequest struct {
	WorkOrderID   int64  `json:"work_order_id"`
	CustomerEmail string `json:"customer_email"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

type completeRequest struct {
	SessionID string `json:"session_id"`
}

type upgradePlanRequest struct {
	PlanID int64 `json:"plan_id"`
}

// CreateCheckoutSessionHandler starts a subscription plan purchase.
func (h *PaymentHandlers) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.PlanID <= 0 || req.SuccessURL == "" || req.CancelURL == "" {
		http.Error(w, "plan_id, success_url and cancel_url are required", http.StatusBadRequest)
		return
	}

	result, err := h.service.CreateSubscriptionCheckout(r.Context(), userID, req.PlanID, req.CustomerEmail, req.SuccessURL, req.CancelURL)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_checkout outcome=failed user_id=%d err=%v", userID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_checkout outcome=created user_id=%d plan_id=%d session_id=%s", userID, req.PlanID, result.SessionID)
	h.writeJSON(w, http.StatusCreated, result)
}

// VerifyCheckoutHandler reports the gateway's current view of a session without
// completing anything.
func (h *PaymentHandlers) VerifyCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	session, err := h.service.VerifyCheckoutSession(r.Context(), sessionID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=verify_checkout outcome=failed session_id=%s err=%v", sessionID, err)
		http.Error(w, "Failed to verify checkout session", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"session_id":     session.ID,
		"payment_status": session.PaymentStatus,
	})
}

// CompleteUpgradeHandler finalizes a subscription purchase after checkout.
func (h *PaymentHandlers) CompleteUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.CompleteSubscriptionUpgrade(r.Context(), req.SessionID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=complete_upgrade outcome=failed session_id=%s err=%v", req.SessionID, err)
		h.writeServiceError(w, err)
		return
	}

	message := "Subscription activated"
	if result.SettlementPending {
		message = "Payment recorded, plan activation pending"
	}
	log.Printf("level=info component=api endpoint=complete_upgrade outcome=completed session_id=%s payment_id=%d replay=%t", req.SessionID, result.PaymentID, result.AlreadyCompleted)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"result":  result,
	})
}

// PaymentStatusHandler reports the normalized status of a gateway transaction.
func (h *PaymentHandlers) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		http.Error(w, "transaction id is required", http.StatusBadRequest)
		return
	}

	status, err := h.service.GetGatewayStatus(r.Context(), transactionID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=payment_status outcome=failed transaction_id=%s err=%v", transactionID, err)
		http.Error(w, "Failed to fetch payment status", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"transaction_id": transactionID,
		"status":         string(status),
	})
}

// ListPaymentsHandler returns the authenticated user's subscription payment history.
func (h *PaymentHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	payments, err := h.service.ListPayments(r.Context(), userID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=list_payments outcome=failed user_id=%d err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, payments)
}

// CreateServiceCheckoutHandler starts an owner's payment for a resolved work order.
func (h *PaymentHandlers) CreateServiceCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req createServiceCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.WorkOrderID <= 0 || req.SuccessURL == "" || req.CancelURL == "" {
		http.Error(w, "work_order_id, success_url and cancel_url are required", http.StatusBadRequest)
		return
	}

	result, err := h.service.CreateServicePaymentCheckout(r.Context(), userID, req.WorkOrderID, req.CustomerEmail, req.SuccessURL, req.CancelURL)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_service_checkout outcome=failed user_id=%d work_order_id=%d err=%v", userID, req.WorkOrderID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_service_checkout outcome=created user_id=%d work_order_id=%d session_id=%s", userID, req.WorkOrderID, result.SessionID)
	h.writeJSON(w, http.StatusCreated, result)
}

// CompleteServicePaymentHandler finalizes a service payment after checkout.
func (h *PaymentHandlers) CompleteServicePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.CompleteServicePayment(r.Context(), req.SessionID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=complete_service_payment outcome=failed session_id=%s err=%v", req.SessionID, err)
		h.writeServiceError(w, err)
		return
	}

	message := "Payment completed"
	if result.SettlementPending {
		message = "Payment recorded, downstream settlement pending"
	}
	log.Printf("level=info component=api endpoint=complete_service_payment outcome=completed session_id=%s service_payment_id=%d replay=%t", req.SessionID, result.ServicePayment.ID, result.AlreadyCompleted)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"result":  result,
	})
}

// ServicePaymentByWorkOrderHandler returns the latest payment for a work order.
func (h *PaymentHandlers) ServicePaymentByWorkOrderHandler(w http.ResponseWriter, r *http.Request) {
	workOrderID, err := strconv.ParseInt(chi.URLParam(r, "workOrderID"), 10, 64)
	if err != nil || workOrderID <= 0 {
		http.Error(w, "Invalid work order id", http.StatusBadRequest)
		return
	}

	payment, err := h.service.GetServicePaymentByWorkOrder(r.Context(), workOrderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// RefundServicePaymentHandler refunds a completed service payment.
func (h *PaymentHandlers) RefundServicePaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
	if err != nil || paymentID <= 0 {
		http.Error(w, "Invalid payment id", http.StatusBadRequest)
		return
	}

	payment, err := h.service.RefundServicePayment(r.Context(), paymentID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=refund_service_payment outcome=failed payment_id=%d err=%v", paymentID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=refund_service_payment outcome=refunded payment_id=%d", paymentID)
	h.writeJSON(w, http.StatusOK, payment)
}

// ListPlansHandler returns the plan catalog, optionally filtered by user type.
func (h *PaymentHandlers) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.GetPlans(r.Context(), r.URL.Query().Get("user_type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, plans)
}

// GetPlanHandler returns a single plan catalog entry.
func (h *PaymentHandlers) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	planID, err := strconv.ParseInt(chi.URLParam(r, "planID"), 10, 64)
	if err != nil || planID <= 0 {
		http.Error(w, "Invalid plan id", http.StatusBadRequest)
		return
	}

	plan, err := h.service.GetPlanByID(r.Context(), planID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// UpgradePlanHandler moves the authenticated user's profile onto a new plan.
func (h *PaymentHandlers) UpgradePlanHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req upgradePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID <= 0 {
		http.Error(w, "plan_id is required", http.StatusBadRequest)
		return
	}

	plan, err := h.service.UpgradePlan(r.Context(), userID, req.PlanID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=upgrade_plan outcome=failed user_id=%d plan_id=%d err=%v", userID, req.PlanID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// writeServiceError maps application errors onto HTTP status codes.
func (h *PaymentHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrCheckoutNotPaid):
		h.writeError(w, http.StatusPaymentRequired, "Checkout session has not been paid")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many checkout attempts, try again later")
	case errors.Is(err, app.ErrNotAuthorized):
		h.writeError(w, http.StatusForbidden, "You are not authorized to pay for this work order")
	case errors.Is(err, app.ErrWorkOrderNotPayable):
		h.writeError(w, http.StatusConflict, "Work order is not payable")
	case errors.Is(err, app.ErrMissingMetadata):
		h.writeError(w, http.StatusBadRequest, "Checkout session metadata is incomplete")
	case errors.Is(err, app.ErrNoProfileForUser):
		h.writeError(w, http.StatusNotFound, "No owner or provider profile for this user")
	case errors.Is(err, app.ErrRefundRejected):
		h.writeError(w, http.StatusPaymentRequired, "Gateway rejected the refund")
	case errors.Is(err, store.ErrPlanNotFound):
		h.writeError(w, http.StatusNotFound, "Plan not found")
	case errors.Is(err, store.ErrPaymentNotFound):
		h.writeError(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, store.ErrServicePaymentNotFound):
		h.writeError(w, http.StatusNotFound, "Service payment not found")
	case errors.Is(err, store.ErrNotPending):
		h.writeError(w, http.StatusConflict, "Payment is not in a state that allows this operation")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
