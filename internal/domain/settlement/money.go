package settlement

import "github.com/shopspring/decimal"

// FCFA formats an amount the way it appears in user-facing messages.
func FCFA(d decimal.Decimal) string {
	return d.StringFixed(0) + " FCFA"
}

func isSet(id string) bool { return id != "" }
