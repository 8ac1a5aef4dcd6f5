package domain

import "testing"

func TestCanTransitionOrder(t *testing.T) {
	allowed := [][2]OrderStatus{
		{OrderStatusPaymentPending, OrderStatusConfirmed},
		{OrderStatusPaymentPending, OrderStatusFailed},
		{OrderStatusConfirmed, OrderStatusProcessing},
		{OrderStatusProcessing, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusRefunded},
		{OrderStatusConfirmed, OrderStatusCancelled},
	}
	for _, pair := range allowed {
		if !CanTransitionOrder(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]OrderStatus{
		{OrderStatusDelivered, OrderStatusPending},
		{OrderStatusFailed, OrderStatusConfirmed},
		{OrderStatusRefunded, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusCancelled},
	}
	for _, pair := range denied {
		if CanTransitionOrder(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be rejected", pair[0], pair[1])
		}
	}
}

func TestAdminSettable(t *testing.T) {
	if AdminSettable(OrderStatusConfirmed) || AdminSettable(OrderStatusFailed) {
		t.Fatalf("payment states must not be admin settable")
	}
	if !AdminSettable(OrderStatusDelivered) {
		t.Fatalf("delivered should be admin settable")
	}
}

func TestOrderTotal(t *testing.T) {
	if got := OrderTotal(dec("200"), dec("10"), dec("20")); !got.Equal(dec("190")) {
		t.Fatalf("expected 190, got %s", got)
	}
	if got := OrderTotal(dec("10"), dec("0"), dec("50")); !got.IsZero() {
		t.Fatalf("expected clamp to zero, got %s", got)
	}
}

func TestPercentageShipping(t *testing.T) {
	policy := PercentageShipping(dec("0.05"), dec("10"), dec("2500"))
	cases := []struct {
		subtotal string
		store    bool
		want     string
	}{
		{"100", false, "10"},
		{"400", false, "20"},
		{"2500", false, "0"},
		{"400", true, "0"},
	}
	for _, tc := range cases {
		if got := policy(dec(tc.subtotal), tc.store); !got.Equal(dec(tc.want)) {
			t.Fatalf("subtotal %s store %v: expected %s, got %s", tc.subtotal, tc.store, tc.want, got)
		}
	}
}

func TestNewShippingPolicy(t *testing.T) {
	policy, err := NewShippingPolicy(ShippingRule{Policy: "free"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := policy(dec("100"), false); !got.IsZero() {
		t.Fatalf("free policy charged %s", got)
	}
	if _, err := NewShippingPolicy(ShippingRule{Policy: "weight"}); err == nil {
		t.Fatalf("expected unknown policy error")
	}
	if _, err := NewShippingPolicy(DefaultShippingRule()); err != nil {
		t.Fatalf("default rule: %v", err)
	}
}
