/**
 * @description
 * This file defines the core user model for the subscription-service.
 * A user carries a denormalized referral upline: the ordered list of
 * ancestor referrers (nearest first, at most five) snapshotted at the
 * moment the account was created. The upline is never recomputed after
 * creation, so later changes to an ancestor's own referrer do not
 * propagate to existing users.
 */
package domain

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription status values stored on the user record.
const (
	UserStatusInactive = "inactive"
	UserStatusPending  = "pending"
	UserStatusActive   = "active"
	UserStatusRejected = "rejected"
)

// MaxUplineDepth is the maximum number of ancestor referrers a user carries.
const MaxUplineDepth = 5

// User represents a platform account. This struct maps directly to the
// `users` table.
type User struct {
	ID                 uuid.UUID       `json:"id"`
	IdentitySubject    string          `json:"-"` // subject claim from the identity provider
	Email              string          `json:"email"`
	DisplayName        string          `json:"display_name"`
	ReferralCode       string          `json:"referral_code"`
	ReferrerID         *uuid.UUID      `json:"referrer_id,omitempty"`
	Upline             []uuid.UUID     `json:"upline"`
	SubscriptionStatus string          `json:"subscription_status"`
	PlanID             *string         `json:"plan_id,omitempty"`
	ProfitShare        decimal.Decimal `json:"profit_share"`
	IsAdmin            bool            `json:"is_admin"`
	CreatedAt          time.Time       `json:"created_at"`
}

// DefaultProfitShare is the fee share applied to new accounts.
var DefaultProfitShare = decimal.RequireFromString("3.5")

// ReferralCodeFromID derives a user's referral code from their id.
// The code is the first eight characters of the base64 encoding of the
// raw id bytes, which keeps it short, URL-safe and deterministic.
func ReferralCodeFromID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])[:8]
}

// BuildUpline computes the upline snapshot for a new user referred by
// the given referrer: the referrer first, followed by up to four of the
// referrer's own ancestors. A nil referrer yields an empty upline.
func BuildUpline(referrer *User) []uuid.UUID {
	if referrer == nil {
		return []uuid.UUID{}
	}
	upline := make([]uuid.UUID, 0, MaxUplineDepth)
	upline = append(upline, referrer.ID)
	for _, ancestor := range referrer.Upline {
		if len(upline) >= MaxUplineDepth {
			break
		}
		upline = append(upline, ancestor)
	}
	return upline
}
