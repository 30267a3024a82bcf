// Package settlement holds the freight settlement domain: contracts, the
// missions they spawn, security deposits (cautions), payments and the
// demurrage (stationnement) rules that price idle containers.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Business constants that are invariants of the data model rather than
// operator tunables.
var (
	// MaxCautionRatio caps a contract's caution at half of its total.
	MaxCautionRatio = decimal.NewFromFloat(0.5)
	// MaxCommissionRatio caps a transitaire commission at 30% of the payment.
	MaxCommissionRatio = decimal.NewFromFloat(0.3)
)

// Policy carries the tunable settlement rates.
type Policy struct {
	FreeDays        int
	DemurrageRate   decimal.Decimal
	LatePenaltyRate decimal.Decimal
	DeadlineDays    int
	Location        *time.Location
}

// DefaultPolicy returns 3 free business days, 25 000 FCFA per day for both
// demurrage and late returns, and a 23-day return deadline.
func DefaultPolicy() Policy {
	return Policy{
		FreeDays:        3,
		DemurrageRate:   decimal.NewFromInt(25000),
		LatePenaltyRate: decimal.NewFromInt(25000),
		DeadlineDays:    23,
		Location:        time.UTC,
	}
}

// Today returns the calendar date of now in the policy's location.
func (p Policy) Today(now time.Time) time.Time {
	return DateIn(now, p.Location)
}
