package domain

import "github.com/shopspring/decimal"

// Plan represents a subscription tier. Plans are seeded at startup and
// treated as read-only at runtime.
type Plan struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"` // USD per year
	Target   string          `json:"target"`
	Features []string        `json:"features"`
}

// SeedPlans is the fixed plan catalog.
var SeedPlans = []Plan{
	{
		ID:     "starter",
		Name:   "Starter",
		Price:  decimal.NewFromInt(150),
		Target: "2% to 5%",
		Features: []string{
			"Basic Bot Access",
			"Standard Risk Settings",
			"Community Support",
		},
	},
	{
		ID:     "growth",
		Name:   "Growth",
		Price:  decimal.NewFromInt(460),
		Target: "6% to 17%",
		Features: []string{
			"Full Bot Access",
			"Advanced Risk Controls",
			"Priority Support",
			"Paper Trading Mode",
		},
	},
	{
		ID:     "max",
		Name:   "Max",
		Price:  decimal.NewFromInt(740),
		Target: "18% to 39%",
		Features: []string{
			"All Growth Features",
			"AI Strategy Insights",
			"Dedicated Account Manager",
			"Early Access to New Features",
		},
	},
}
