package domain

import "github.com/shopspring/decimal"

// CaseDiscountPercent is applied to the unit price when the quantity is an exact multiple of the case size.
const CaseDiscountPercent = 5

var (
	hundred            = decimal.NewFromInt(100)
	caseDiscountFactor = hundred.Sub(decimal.NewFromInt(CaseDiscountPercent)).Div(hundred)
)

// RoundMoney rounds to cents.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// TierPrice selects the role-tiered list price. A zero tier price falls back to the variant price,
// and a zero variant price falls back to the product base price.
func TierPrice(product Product, variant *ProductVariant, role UserRole) decimal.Decimal {
	if variant == nil {
		return product.BasePrice
	}
	var tier decimal.Decimal
	switch role {
	case RoleDealer:
		tier = variant.DealerPrice
	case RoleDistributor:
		tier = variant.DistributorPrice
	case RoleContractor:
		tier = variant.ContractorPrice
	}
	if tier.IsPositive() {
		return tier
	}
	if variant.Price.IsPositive() {
		return variant.Price
	}
	return product.BasePrice
}

// IsCaseQuantity reports whether quantity is a positive exact multiple of the product case size.
func IsCaseQuantity(product Product, quantity int) bool {
	if product.CaseSize == nil || *product.CaseSize <= 0 || quantity <= 0 {
		return false
	}
	return quantity%*product.CaseSize == 0
}

// ResolveUnitPrice returns the unit price for a line, including the case-quantity discount.
func ResolveUnitPrice(product Product, variant *ProductVariant, role UserRole, quantity int) decimal.Decimal {
	price := TierPrice(product, variant, role)
	if IsCaseQuantity(product, quantity) {
		price = price.Mul(caseDiscountFactor)
	}
	return RoundMoney(price)
}

// LineTotal multiplies a unit price by quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}
