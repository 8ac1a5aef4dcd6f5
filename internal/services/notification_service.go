package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/repositories"
)

const notificationIDPrefix = "ntf_"

// ErrNotifierPublisherMissing indicates the notifier was wired without a publisher.
var ErrNotifierPublisherMissing = errors.New("notifier: publisher not configured")

// NotifierDeps bundles collaborators used to render and publish notifications.
type NotifierDeps struct {
	Publisher   NotificationPublisher
	AdminEmails repositories.AdminEmailRepository
	Currency    string
	Language    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type notifier struct {
	publisher   NotificationPublisher
	adminEmails repositories.AdminEmailRepository
	unit        currency.Unit
	printer     *message.Printer
	clock       func() time.Time
	newID       func() string
	logger      Logger
}

var _ Notifier = (*notifier)(nil)

// NewNotifier renders order and wallet notifications and hands them to the publisher. Delivery
// failures are logged and never surface to the caller.
func NewNotifier(deps NotifierDeps) (Notifier, error) {
	if deps.Publisher == nil {
		return nil, ErrNotifierPublisherMissing
	}
	code := strings.TrimSpace(deps.Currency)
	if code == "" {
		code = "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("notifier: currency %q: %w", code, err)
	}
	tag := language.AmericanEnglish
	if lang := strings.TrimSpace(deps.Language); lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("notifier: language %q: %w", lang, err)
		}
		tag = parsed
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &notifier{
		publisher:   deps.Publisher,
		adminEmails: deps.AdminEmails,
		unit:        unit,
		printer:     message.NewPrinter(tag),
		clock:       utcClock(deps.Clock),
		newID:       defaultIDGenerator(deps.IDGenerator),
		logger:      logger,
	}, nil
}

// money renders amount as the narrow currency symbol followed by the grouped figure, e.g. $1,234.50.
func (n *notifier) money(amount decimal.Decimal) string {
	rounded := domain.RoundMoney(amount)
	sign := ""
	if rounded.IsNegative() {
		sign, rounded = "-", rounded.Neg()
	}
	symbol := n.printer.Sprint(currency.NarrowSymbol(n.unit))
	return sign + symbol + n.printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(2)))
}

// OrderPlaced sends the customer confirmation and the new-order alert to every admin address
// registered at the time of sending.
func (n *notifier) OrderPlaced(ctx context.Context, order Order, user User) {
	total := n.money(order.Total)
	data := map[string]string{
		"total":   domain.RoundMoney(order.Total).StringFixed(2),
		"gateway": string(order.Gateway),
		"items":   fmt.Sprint(len(order.Items)),
	}

	n.send(ctx, NotificationMessage{
		Kind:       NotificationOrderConfirmation,
		Recipients: userRecipients(user),
		Subject:    n.printer.Sprintf("Order %s confirmed", order.ID),
		Body: n.printer.Sprintf("Hi %s, we received your order %s of %d item(s) totalling %s.",
			displayName(user), order.ID, len(order.Items), total),
		UserID:  user.ID,
		OrderID: order.ID,
		Data:    data,
	})

	admins := n.adminRecipients(ctx)
	if len(admins) == 0 {
		return
	}
	n.send(ctx, NotificationMessage{
		Kind:       NotificationOrderNewAdmin,
		Recipients: admins,
		Subject:    n.printer.Sprintf("New order %s", order.ID),
		Body: n.printer.Sprintf("%s placed order %s totalling %s via %s.",
			firstNonEmpty(user.Email, user.ID), order.ID, total, order.Gateway),
		UserID:  user.ID,
		OrderID: order.ID,
		Data:    data,
	})
}

func (n *notifier) OrderStatusChanged(ctx context.Context, order Order, user User, previous domain.OrderStatus) {
	msg := NotificationMessage{
		Kind:       NotificationOrderStatus,
		Recipients: userRecipients(user),
		Subject:    n.printer.Sprintf("Order %s is now %s", order.ID, statusLabel(order.Status)),
		Body: n.printer.Sprintf("Hi %s, your order %s moved from %s to %s.",
			displayName(user), order.ID, statusLabel(previous), statusLabel(order.Status)),
		UserID:  user.ID,
		OrderID: order.ID,
		Data: map[string]string{
			"previous": string(previous),
			"status":   string(order.Status),
		},
	}
	if tracking := strings.TrimSpace(order.TrackingNumber); tracking != "" {
		msg.Data["trackingNumber"] = tracking
		msg.Body += n.printer.Sprintf(" Tracking number: %s.", tracking)
	}
	if order.Status == domain.OrderStatusDelivered {
		msg.Kind = NotificationOrderDelivered
		msg.Subject = n.printer.Sprintf("Order %s delivered", order.ID)
	}
	n.send(ctx, msg)
}

func (n *notifier) WalletBalanceChanged(ctx context.Context, wallet Wallet, user User, delta decimal.Decimal) {
	verb := "credited with"
	if delta.IsNegative() {
		verb = "debited by"
	}
	n.send(ctx, NotificationMessage{
		Kind:       NotificationWalletBalance,
		Recipients: userRecipients(user),
		Subject:    n.printer.Sprintf("Wallet balance updated"),
		Body: n.printer.Sprintf("Hi %s, your wallet was %s %s. Balance: %s. Credit due: %s.",
			displayName(user), verb, n.money(delta.Abs()), n.money(wallet.Balance), n.money(wallet.CreditDue)),
		UserID: user.ID,
		Data: map[string]string{
			"delta":     domain.RoundMoney(delta).StringFixed(2),
			"balance":   domain.RoundMoney(wallet.Balance).StringFixed(2),
			"creditDue": domain.RoundMoney(wallet.CreditDue).StringFixed(2),
		},
	})
}

func (n *notifier) PaymentRequested(ctx context.Context, user User, amount decimal.Decimal) {
	n.send(ctx, NotificationMessage{
		Kind:       NotificationPaymentRequest,
		Recipients: userRecipients(user),
		Subject:    n.printer.Sprintf("Payment request"),
		Body: n.printer.Sprintf("Hi %s, please settle your outstanding credit of %s.",
			displayName(user), n.money(amount)),
		UserID: user.ID,
		Data:   map[string]string{"amount": domain.RoundMoney(amount).StringFixed(2)},
	})
}

func (n *notifier) send(ctx context.Context, msg NotificationMessage) {
	if len(msg.Recipients) == 0 {
		n.logger(ctx, "notification.skipped", map[string]any{"kind": string(msg.Kind), "userId": msg.UserID, "reason": "no recipients"})
		return
	}
	msg.ID = notificationIDPrefix + n.newID()
	msg.CreatedAt = n.clock()
	id, err := n.publisher.PublishNotification(ctx, msg)
	if err != nil {
		n.logger(ctx, "notification.publish_failed", map[string]any{"kind": string(msg.Kind), "notificationId": msg.ID, "error": err.Error()})
		return
	}
	n.logger(ctx, "notification.published", map[string]any{"kind": string(msg.Kind), "notificationId": msg.ID, "messageId": id})
}

func (n *notifier) adminRecipients(ctx context.Context) []string {
	if n.adminEmails == nil {
		return nil
	}
	emails, err := n.adminEmails.List(ctx)
	if err != nil {
		n.logger(ctx, "notification.admin_lookup_failed", map[string]any{"error": err.Error()})
		return nil
	}
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if addr := strings.TrimSpace(e.Email); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func userRecipients(user User) []string {
	if email := strings.TrimSpace(user.Email); email != "" {
		return []string{email}
	}
	return nil
}

func displayName(user User) string {
	return firstNonEmpty(strings.TrimSpace(user.Name), strings.TrimSpace(user.Email), "there")
}

func statusLabel(status domain.OrderStatus) string {
	return strings.ReplaceAll(strings.ToLower(string(status)), "_", " ")
}
