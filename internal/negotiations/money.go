package negotiations

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount as "$1,000" or "$1,000.50".
func FormatMoney(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	whole, cents, _ := strings.Cut(amount.StringFixed(2), ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + "$" + b.String()
	if cents != "00" {
		out += "." + cents
	}
	return out
}
