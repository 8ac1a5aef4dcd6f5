package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxCouponCodeLength bounds coupon codes. Deleted coupons get a 37 character suffix on top.
const MaxCouponCodeLength = 32

// CouponEligibility decides whether a user may redeem a coupon.
type CouponEligibility interface {
	Eligible(user User) bool
}

// PublicEligibility admits every user.
type PublicEligibility struct{}

func (PublicEligibility) Eligible(User) bool { return true }

// RoleEligibility admits users whose role is listed.
type RoleEligibility struct {
	Roles []UserRole
}

func (e RoleEligibility) Eligible(user User) bool {
	for _, role := range e.Roles {
		if role == user.Role {
			return true
		}
	}
	return false
}

// UserListEligibility admits users whose id is listed.
type UserListEligibility struct {
	UserIDs []string
}

func (e UserListEligibility) Eligible(user User) bool {
	for _, id := range e.UserIDs {
		if id == user.ID {
			return true
		}
	}
	return false
}

type denyEligibility struct{}

func (denyEligibility) Eligible(User) bool { return false }

// Eligibility returns the eligibility rule carried by the coupon. Unknown kinds admit nobody.
func (c Coupon) Eligibility() CouponEligibility {
	switch c.EligibilityType {
	case EligibilityPublic:
		return PublicEligibility{}
	case EligibilityUserRole:
		return RoleEligibility{Roles: c.EligibleRoles}
	case EligibilitySpecificUsers:
		return UserListEligibility{UserIDs: c.EligibleUserIDs}
	default:
		return denyEligibility{}
	}
}

// NotYetValid reports whether now precedes the validity window. ValidFrom is inclusive.
func (c Coupon) NotYetValid(now time.Time) bool {
	return c.ValidFrom != nil && now.Before(*c.ValidFrom)
}

// Expired reports whether the validity window has closed. ValidUntil is exclusive.
func (c Coupon) Expired(now time.Time) bool {
	return c.ValidUntil != nil && !now.Before(*c.ValidUntil)
}

// GlobalUsageExhausted reports whether the coupon reached its total usage cap.
func (c Coupon) GlobalUsageExhausted() bool {
	return c.MaxUsage != nil && c.UsageCount >= *c.MaxUsage
}

// PerUserUsageExhausted reports whether a user with the given redemption count may not redeem again.
func (c Coupon) PerUserUsageExhausted(userUsage int) bool {
	return c.MaxUsagePerUser != nil && userUsage >= *c.MaxUsagePerUser
}

// BelowMinimum reports whether the order amount fails the minimum order rule.
func (c Coupon) BelowMinimum(orderAmount decimal.Decimal) bool {
	return c.MinimumOrderAmount != nil && orderAmount.LessThan(*c.MinimumOrderAmount)
}

// Discount computes the discount for an order amount. The result never exceeds the order amount,
// never exceeds MaximumDiscountAmount and is never negative.
func (c Coupon) Discount(orderAmount decimal.Decimal) decimal.Decimal {
	if !orderAmount.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch c.Type {
	case CouponTypePercentage:
		discount = orderAmount.Mul(c.Value).Div(hundred)
	case CouponTypeFixedAmount:
		discount = c.Value
	default:
		return decimal.Zero
	}
	if c.MaximumDiscountAmount != nil && discount.GreaterThan(*c.MaximumDiscountAmount) {
		discount = *c.MaximumDiscountAmount
	}
	discount = decimal.Min(discount, orderAmount)
	if discount.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(discount)
}
