package domain

import "github.com/shopspring/decimal"

// ReferralSummary is the DTO returned for a user's referral standing.
type ReferralSummary struct {
	ReferralCode    string          `json:"referral_code"`
	DirectReferrals int             `json:"direct_referrals"`
	TotalEarned     decimal.Decimal `json:"total_earned"`
	Commissions     []Commission    `json:"commissions"`
}
