/**
 * @description
 * This file contains the HTTP handler functions for the
 * subscription-service. Handlers parse incoming requests, resolve the
 * acting user from the token subject, call the service layer, and map
 * service errors to HTTP statuses.
 */
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/algoflow/subscription-service/internal/app"
	"github.com/algoflow/subscription-service/internal/domain"
	"github.com/algoflow/subscription-service/internal/store"
)

// Handler holds the application service and exchange client that
// handlers interact with.
type Handler struct {
	service  *app.Service
	exchange ExchangeClient
	limiter  *app.RedisVerificationRateLimiter

	verifyLimit  int
	verifyWindow time.Duration
}

// NewHandler creates a new Handler.
func NewHandler(service *app.Service, exchange ExchangeClient, limiter *app.RedisVerificationRateLimiter, verifyLimit int, verifyWindow time.Duration) *Handler {
	return &Handler{
		service:      service,
		exchange:     exchange,
		limiter:      limiter,
		verifyLimit:  verifyLimit,
		verifyWindow: verifyWindow,
	}
}

// actingUser resolves the authenticated caller's platform record.
func (h *Handler) actingUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get identity from context", http.StatusInternalServerError)
		return nil, false
	}

	user, err := h.service.UserBySubject(r.Context(), subject)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			http.Error(w, "User not provisioned", http.StatusForbidden)
			return nil, false
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}

// handleProvisionUser creates the platform record for a freshly
// signed-up identity, resolving its referral code and snapshotting the
// upline.
func (h *Handler) handleProvisionUser(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get identity from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		Email        string `json:"email"`
		DisplayName  string `json:"display_name"`
		ReferralCode string `json:"referral_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	user, err := h.service.ProvisionUser(r.Context(), subject, req.Email, req.DisplayName, req.ReferralCode)
	if err != nil {
		if errors.Is(err, app.ErrMissingEmail) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusCreated, user)
}

// handleListPlans returns the plan catalog.
func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.Plans(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, plans)
}

// handleSubmitSubscription records a payment-proof submission as a
// pending subscription.
func (h *Handler) handleSubmitSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actingUser(w, r)
	if !ok {
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	sub, err := h.service.SubmitSubscription(r.Context(), user.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPlanNotFound):
			http.Error(w, "Unknown plan", http.StatusNotFound)
		case errors.Is(err, app.ErrInvalidPaidAmount), errors.Is(err, app.ErrMissingPaymentProof):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, sub)
}

// handleMySubscription returns the caller's most recent subscription.
func (h *Handler) handleMySubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actingUser(w, r)
	if !ok {
		return
	}

	sub, err := h.service.LatestSubscription(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			http.Error(w, "No subscription found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleMyReferrals returns the caller's referral summary and ledger.
func (h *Handler) handleMyReferrals(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actingUser(w, r)
	if !ok {
		return
	}

	summary, err := h.service.ReferralSummary(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// handleListSubscriptions returns the admin review queue for a status.
func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actingUser(w, r)
	if !ok {
		return
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = domain.SubscriptionPendingApproval
	}

	subs, err := h.service.SubscriptionsByStatus(r.Context(), user.ID, status)
	if err != nil {
		h.respondApprovalError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, subs)
}

// handleApproveSubscription transitions a pending subscription to active
// and fans out referral commissions.
func (h *Handler) handleApproveSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actingUser(w, r)
	if !ok {
		return
	}

	subscriptionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid subscription id", http.StatusBadRequest)
		return
	}

	outcome, err := h.service.Approve(r.Context(), subscriptionID, user.ID)
	if err != nil {
		h.respondApprovalError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"subscription":     outcome.Subscription,
		"commission_count": len(outcome.Commissions),
	})
}

// handleRejectSubscription flips a pending subscription to rejected.
func (h *Handler) handleRejectSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actingUser(w, r)
	if !ok {
		return
	}

	subscriptionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid subscription id", http.StatusBadRequest)
		return
	}

	sub, err := h.service.Reject(r.Context(), subscriptionID, user.ID)
	if err != nil {
		h.respondApprovalError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// respondApprovalError maps approval workflow errors to HTTP statuses.
func (h *Handler) respondApprovalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		http.Error(w, "Admin rights required", http.StatusForbidden)
	case errors.Is(err, store.ErrSubscriptionNotFound):
		http.Error(w, "Subscription not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidState):
		http.Error(w, "Subscription is not pending approval", http.StatusConflict)
	case errors.Is(err, store.ErrOwnerNotFound):
		http.Error(w, "Subscription owner not found", http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
