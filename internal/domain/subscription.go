/**
 * @description
 * This file defines the subscription model and its API DTOs. A
 * subscription is created in `pending_approval` after the user submits
 * payment proof, and transitions to `active` or `rejected` exactly once
 * through an administrator review.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription status values.
const (
	SubscriptionPendingApproval = "pending_approval"
	SubscriptionActive          = "active"
	SubscriptionRejected        = "rejected"
)

// Subscription maps directly to the `subscriptions` table.
type Subscription struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	PlanID          string          `json:"plan_id"`
	Status          string          `json:"status"`
	PaidAmount      decimal.Decimal `json:"paid_amount"` // USD
	PaymentProofURL string          `json:"payment_proof_url"`
	CreatedAt       time.Time       `json:"created_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy      *uuid.UUID      `json:"approved_by,omitempty"`
}

// CreateSubscriptionRequest is the DTO for submitting a new subscription
// with manual payment proof.
type CreateSubscriptionRequest struct {
	PlanID          string          `json:"plan_id"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	PaymentProofURL string          `json:"payment_proof_url"`
}

// ApprovalOutcome captures everything the approval transaction wrote,
// so the caller can publish events and build responses without
// re-reading the store.
type ApprovalOutcome struct {
	Subscription *Subscription
	Owner        *User
	Commissions  []Commission
}
