// Package tier enforces subscription limits and pay-per-use accounting.
// A Gate answers "may this operation proceed" and, for paid tiers, accrues
// overage transactions into a monthly Ledger. Real payment processing is
// external; the gate only models transaction state transitions.
package tier

import "time"

// Tier identifies a subscription level.
type Tier string

const (
	Freemium Tier = "freemium"
	Pro      Tier = "pro"
	Studio   Tier = "studio"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case Freemium, Pro, Studio:
		return true
	}
	return false
}

// Unlimited marks a quota with no cap.
const Unlimited = -1

// Limits holds the quotas and rates for one tier.
type Limits struct {
	MaxPieces       int     `json:"maxPieces" yaml:"maxPieces"`
	MaxSaves        int     `json:"maxSaves" yaml:"maxSaves"`
	MaxCustomPieces int     `json:"maxCustomPieces" yaml:"maxCustomPieces"`
	OverageRate     float64 `json:"overageRate" yaml:"overageRate"`
	MonthlyPrice    float64 `json:"monthlyPrice" yaml:"monthlyPrice"`
}

// PayPerUse reports whether the tier may exceed its piece quota for a fee.
func (l Limits) PayPerUse() bool { return l.OverageRate > 0 }

// Table maps each tier to its limits.
type Table map[Tier]Limits

// DefaultTable returns the standard tier table.
func DefaultTable() Table {
	return Table{
		Freemium: {MaxPieces: 10, MaxSaves: 0, MaxCustomPieces: 0},
		Pro:      {MaxPieces: 25, MaxSaves: 10, MaxCustomPieces: 10, OverageRate: 0.02, MonthlyPrice: 5},
		Studio:   {MaxPieces: 50, MaxSaves: 25, MaxCustomPieces: Unlimited, OverageRate: 0.01, MonthlyPrice: 15},
	}
}

// Thresholds holds the billing trigger levels in dollars.
type Thresholds struct {
	PaymentMinimum float64 `json:"paymentMinimum" yaml:"paymentMinimum"`
	WarningLevel   float64 `json:"warningLevel" yaml:"warningLevel"`
	AutoBillLevel  float64 `json:"autoBillLevel" yaml:"autoBillLevel"`
}

// DefaultThresholds returns the standard billing thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{PaymentMinimum: 1, WarningLevel: 5, AutoBillLevel: 10}
}

// PeriodKey returns the billing period key for t, e.g. "2025-03".
func PeriodKey(t time.Time) string { return t.Format("2006-01") }
