package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount accepts the amount shapes providers send: JSON numbers, numeric
// strings and user-formatted strings such as "7,500", "KES 7,500.00" or "Ksh 100".
// A leading '-' is kept; anything else that is not a digit or '.' is dropped.
func ParseAmount(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("amount missing")
	case string:
		return parseAmountString(v)
	case json.Number:
		return parseAmountString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("invalid amount type %T", i)
	}
}

func parseAmountString(v string) (decimal.Decimal, error) {
	s := strings.TrimSpace(v)
	if s != "" {
		s = strings.ReplaceAll(s, ",", "")
		for _, cur := range []string{"KES", "kes", "Ksh", "KSh", "ksh", "KSH"} {
			s = strings.ReplaceAll(s, cur, "")
		}
		s = strings.TrimSpace(s)
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", v)
	}
	if neg {
		clean = "-" + clean
	}
	return decimal.NewFromString(clean)
}
