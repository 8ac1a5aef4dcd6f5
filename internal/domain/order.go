package domain

import "github.com/shopspring/decimal"

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusPaymentPending, OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusPaymentPending: {OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:        {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:      {OrderStatusRefunded},
	OrderStatusFailed:         {OrderStatusCancelled},
	OrderStatusCancelled:      {OrderStatusRefunded},
	OrderStatusRefunded:       {},
}

// adminSettable lists statuses an administrator may set directly. Payment states are driven by gateways.
var adminSettable = map[OrderStatus]struct{}{
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// Valid reports whether the status is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionOrder reports whether current may move to target.
func CanTransitionOrder(current, target OrderStatus) bool {
	if current == target {
		return true
	}
	for _, allowed := range orderTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AdminSettable reports whether an administrator may set the status directly.
func AdminSettable(status OrderStatus) bool {
	_, ok := adminSettable[status]
	return ok
}

// OrderTotal returns max(0, subtotal + shipping - discount).
func OrderTotal(subtotal, shipping, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(total)
}

// Paid reports whether the order settled.
func (o Order) Paid() bool {
	return o.PaymentStatus == PaymentStatusCompleted
}
