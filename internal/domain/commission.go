/**
 * @description
 * This file defines the referral commission model and the fan-out
 * computation performed when a subscription is approved. Commission
 * records are append-only: they are written once by the approval
 * transaction and never updated or deleted afterwards.
 *
 * @notes
 * - Amounts use shopspring decimals so that the invariant
 *   amount == paid_amount * rate holds exactly, with no float drift.
 * - The rate table is a fixed policy indexed by upline position, not a
 *   stored setting.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionRates maps upline position (0-based) to the commission rate
// applied at that level. Level 1 is the direct referrer.
var CommissionRates = []decimal.Decimal{
	decimal.RequireFromString("0.005"), // level 1
	decimal.RequireFromString("0.004"), // level 2
	decimal.RequireFromString("0.003"), // level 3
	decimal.RequireFromString("0.002"), // level 4
	decimal.RequireFromString("0.001"), // level 5
}

// Commission is a credit recorded for an upline ancestor when a
// descendant's subscription is approved. Maps to the `commissions` table.
type Commission struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`      // the earning ancestor
	FromUserID     uuid.UUID       `json:"from_user_id"` // the subscriber who triggered it
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	Level          int             `json:"level"` // 1..5
	Rate           decimal.Decimal `json:"rate"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BuildCommissions computes the commission fan-out for an approved
// subscription: one record per upline ancestor, capped at five levels.
// An upline shorter than five levels yields fewer records; there is no
// zero-amount padding.
func BuildCommissions(sub *Subscription, owner *User, now time.Time) []Commission {
	if owner == nil || len(owner.Upline) == 0 {
		return nil
	}

	depth := len(owner.Upline)
	if depth > MaxUplineDepth {
		depth = MaxUplineDepth
	}

	commissions := make([]Commission, 0, depth)
	for i := 0; i < depth; i++ {
		rate := CommissionRates[i]
		commissions = append(commissions, Commission{
			ID:             uuid.New(),
			UserID:         owner.Upline[i],
			FromUserID:     owner.ID,
			SubscriptionID: sub.ID,
			Amount:         sub.PaidAmount.Mul(rate),
			Level:          i + 1,
			Rate:           rate,
			CreatedAt:      now,
		})
	}
	return commissions
}
