package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingPolicy computes the shipping charge for an order subtotal.
type ShippingPolicy func(subtotal decimal.Decimal, storeCollection bool) decimal.Decimal

const (
	ShippingPolicyPercentage = "percentage"
	ShippingPolicyFree       = "free"
)

// PercentageShipping charges rate * subtotal with a floor. Subtotals at or above freeThreshold ship free;
// a zero threshold disables that rule. Store collection is never charged.
func PercentageShipping(rate, minimum, freeThreshold decimal.Decimal) ShippingPolicy {
	return func(subtotal decimal.Decimal, storeCollection bool) decimal.Decimal {
		if storeCollection || !subtotal.IsPositive() {
			return decimal.Zero
		}
		if freeThreshold.IsPositive() && subtotal.GreaterThanOrEqual(freeThreshold) {
			return decimal.Zero
		}
		return RoundMoney(decimal.Max(subtotal.Mul(rate), minimum))
	}
}

// FreeShipping never charges.
func FreeShipping() ShippingPolicy {
	return func(decimal.Decimal, bool) decimal.Decimal { return decimal.Zero }
}

// ShippingRule is the serialisable description of a shipping policy.
type ShippingRule struct {
	Policy        string
	Rate          decimal.Decimal
	Minimum       decimal.Decimal
	FreeThreshold decimal.Decimal
}

// DefaultShippingRule charges 5% with a 10.00 floor and ships free from 2500.00.
func DefaultShippingRule() ShippingRule {
	return ShippingRule{
		Policy:        ShippingPolicyPercentage,
		Rate:          decimal.RequireFromString("0.05"),
		Minimum:       decimal.RequireFromString("10.00"),
		FreeThreshold: decimal.RequireFromString("2500.00"),
	}
}

// NewShippingPolicy builds the policy named by the rule.
func NewShippingPolicy(rule ShippingRule) (ShippingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(rule.Policy)) {
	case "", ShippingPolicyPercentage:
		if rule.Rate.IsNegative() || rule.Minimum.IsNegative() || rule.FreeThreshold.IsNegative() {
			return nil, fmt.Errorf("shipping: percentage policy values must not be negative")
		}
		return PercentageShipping(rule.Rate, rule.Minimum, rule.FreeThreshold), nil
	case ShippingPolicyFree:
		return FreeShipping(), nil
	default:
		return nil, fmt.Errorf("shipping: unknown policy %q", rule.Policy)
	}
}
