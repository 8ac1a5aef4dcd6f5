package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/repositories"
)

type testRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e testRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

func (e testRepoError) IsNotFound() bool    { return e.notFound }
func (e testRepoError) IsConflict() bool    { return e.conflict }
func (e testRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errTestNotFound = testRepoError{notFound: true}
	errTestConflict = testRepoError{conflict: true}
)

// recordingUnitOfWork counts transactions and discards nothing; fakes apply writes immediately.
type recordingUnitOfWork struct {
	calls int
}

func (u *recordingUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.calls++
	return fn(ctx)
}

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemoryUsers(users ...domain.User) *memoryUsers {
	m := &memoryUsers{users: map[string]domain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryUsers) Insert(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return errTestConflict
	}
	m.users[user.ID] = user
	return nil
}

func (m *memoryUsers) Update(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return errTestNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, errTestNotFound
	}
	return u, nil
}

func (m *memoryUsers) FindByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryUsers) List(_ context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Approved != nil && u.Approved != *filter.Approved {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.User]{Items: out}, nil
}

type memoryWallets struct {
	mu        sync.Mutex
	wallets   map[string]domain.Wallet
	locks     int
	adjustErr error
}

func newMemoryWallets(wallets ...domain.Wallet) *memoryWallets {
	m := &memoryWallets{wallets: map[string]domain.Wallet{}}
	for _, w := range wallets {
		m.wallets[w.UserID] = w
	}
	return m
}

func (m *memoryWallets) Insert(_ context.Context, wallet domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[wallet.UserID]; ok {
		return errTestConflict
	}
	m.wallets[wallet.UserID] = wallet
	return nil
}

func (m *memoryWallets) FindByUserID(_ context.Context, userID string) (domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return domain.Wallet{}, errTestNotFound
	}
	return w, nil
}

func (m *memoryWallets) LockByUserID(ctx context.Context, userID string) (domain.Wallet, error) {
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
	return m.FindByUserID(ctx, userID)
}

func (m *memoryWallets) Adjust(_ context.Context, userID string, balanceDelta, creditDueDelta decimal.Decimal, at time.Time) (domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustErr != nil {
		return domain.Wallet{}, m.adjustErr
	}
	w, ok := m.wallets[userID]
	if !ok {
		return domain.Wallet{}, errTestNotFound
	}
	balance := w.Balance.Add(balanceDelta)
	due := w.CreditDue.Add(creditDueDelta)
	if balance.IsNegative() || due.IsNegative() {
		return domain.Wallet{}, errTestConflict
	}
	w.Balance, w.CreditDue, w.UpdatedAt = balance, due, at
	m.wallets[userID] = w
	return w, nil
}

func (m *memoryWallets) Set(_ context.Context, userID string, balance, creditDue decimal.Decimal, at time.Time) (domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return domain.Wallet{}, errTestNotFound
	}
	if balance.IsNegative() || creditDue.IsNegative() {
		return domain.Wallet{}, errTestConflict
	}
	w.Balance, w.CreditDue, w.UpdatedAt = balance, creditDue, at
	m.wallets[userID] = w
	return w, nil
}

type memoryTransactions struct {
	mu    sync.Mutex
	items []domain.Transaction
}

func (m *memoryTransactions) Insert(_ context.Context, txn domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, txn)
	return nil
}

func (m *memoryTransactions) FindByPaymentTransactionID(_ context.Context, id string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.items {
		if txn.PaymentTransactionID == id {
			return txn, nil
		}
	}
	return domain.Transaction{}, errTestNotFound
}

func (m *memoryTransactions) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Transaction], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].UserID == userID {
			out = append(out, m.items[i])
		}
	}
	return domain.CursorPage[domain.Transaction]{Items: out}, nil
}

func (m *memoryTransactions) byType(kind domain.TransactionType) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range m.items {
		if txn.Type == kind {
			out = append(out, txn)
		}
	}
	return out
}

type memoryCards struct {
	cards map[string]domain.CardSummary
}

func (m *memoryCards) Upsert(_ context.Context, card domain.CardSummary) error {
	if m.cards == nil {
		m.cards = map[string]domain.CardSummary{}
	}
	m.cards[card.UserID] = card
	return nil
}

func (m *memoryCards) FindByUserID(_ context.Context, userID string) (domain.CardSummary, error) {
	card, ok := m.cards[userID]
	if !ok {
		return domain.CardSummary{}, errTestNotFound
	}
	return card, nil
}

type memoryProducts struct {
	products map[string]domain.Product
}

func newMemoryProducts(products ...domain.Product) *memoryProducts {
	m := &memoryProducts{products: map[string]domain.Product{}}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memoryProducts) Insert(_ context.Context, p domain.Product) error {
	m.products[p.ID] = p
	return nil
}

func (m *memoryProducts) Update(_ context.Context, p domain.Product) error {
	existing, ok := m.products[p.ID]
	if !ok {
		return errTestNotFound
	}
	p.Variants = existing.Variants
	m.products[p.ID] = p
	return nil
}

func (m *memoryProducts) InsertVariant(_ context.Context, v domain.ProductVariant) error {
	p, ok := m.products[v.ProductID]
	if !ok {
		return errTestNotFound
	}
	p.Variants = append(p.Variants, v)
	m.products[p.ID] = p
	return nil
}

func (m *memoryProducts) UpdateVariant(_ context.Context, v domain.ProductVariant) error {
	p, ok := m.products[v.ProductID]
	if !ok {
		return errTestNotFound
	}
	variants := append([]domain.ProductVariant(nil), p.Variants...)
	for i := range variants {
		if variants[i].ID == v.ID {
			variants[i] = v
			p.Variants = variants
			m.products[p.ID] = p
			return nil
		}
	}
	return errTestNotFound
}

func (m *memoryProducts) SoftDeleteVariant(_ context.Context, productID, variantID string, _ time.Time) error {
	p, ok := m.products[productID]
	if !ok {
		return errTestNotFound
	}
	kept := make([]domain.ProductVariant, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v.ID != variantID {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(p.Variants) {
		return errTestNotFound
	}
	p.Variants = kept
	m.products[p.ID] = p
	return nil
}

func (m *memoryProducts) FindByID(_ context.Context, id string) (domain.Product, error) {
	p, ok := m.products[id]
	if !ok || p.DeletedAt != nil {
		return domain.Product{}, errTestNotFound
	}
	return p, nil
}

func (m *memoryProducts) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	var out []domain.Product
	for _, id := range ids {
		if p, err := m.FindByID(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryProducts) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	var out []domain.Product
	for _, p := range m.products {
		if p.DeletedAt != nil {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.Product]{Items: out}, nil
}

func (m *memoryProducts) SoftDelete(_ context.Context, id string, at time.Time) error {
	p, ok := m.products[id]
	if !ok {
		return errTestNotFound
	}
	p.DeletedAt = &at
	m.products[id] = p
	return nil
}

type memoryCategories struct {
	categories map[string]domain.Category
}

func newMemoryCategories(categories ...domain.Category) *memoryCategories {
	m := &memoryCategories{categories: map[string]domain.Category{}}
	for _, c := range categories {
		m.categories[c.ID] = c
	}
	return m
}

func (m *memoryCategories) Insert(_ context.Context, c domain.Category) error {
	m.categories[c.ID] = c
	return nil
}

func (m *memoryCategories) Update(_ context.Context, c domain.Category) error {
	if _, ok := m.categories[c.ID]; !ok {
		return errTestNotFound
	}
	m.categories[c.ID] = c
	return nil
}

func (m *memoryCategories) FindByID(_ context.Context, id string) (domain.Category, error) {
	c, ok := m.categories[id]
	if !ok || c.DeletedAt != nil {
		return domain.Category{}, errTestNotFound
	}
	return c, nil
}

func (m *memoryCategories) SlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	for _, c := range m.categories {
		if c.DeletedAt == nil && c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryCategories) List(_ context.Context) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range m.categories {
		if c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *memoryCategories) ListChildren(_ context.Context, parentID string) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range m.categories {
		if c.DeletedAt == nil && c.ParentID != nil && *c.ParentID == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryCategories) SoftDelete(_ context.Context, id string, at time.Time) error {
	c, ok := m.categories[id]
	if !ok {
		return errTestNotFound
	}
	c.DeletedAt = &at
	m.categories[id] = c
	return nil
}

type memoryOrders struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	updateErr map[string]error
}

func newMemoryOrders(orders ...domain.Order) *memoryOrders {
	m := &memoryOrders{orders: map[string]domain.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memoryOrders) Insert(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memoryOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, errTestNotFound
	}
	return o, nil
}

func (m *memoryOrders) UpdateIfStatus(_ context.Context, o domain.Order, expected domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[o.ID]; err != nil {
		return err
	}
	current, ok := m.orders[o.ID]
	if !ok {
		return errTestNotFound
	}
	if current.Status != expected {
		return errTestConflict
	}
	o.Items = current.Items
	m.orders[o.ID] = o
	return nil
}

func (m *memoryOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, o.Status) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

func (m *memoryOrders) ListStale(_ context.Context, status domain.OrderStatus, before time.Time, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status == status && o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryCoupons struct {
	mu      sync.Mutex
	coupons map[string]domain.Coupon
	locks   int
}

func newMemoryCoupons(coupons ...domain.Coupon) *memoryCoupons {
	m := &memoryCoupons{coupons: map[string]domain.Coupon{}}
	for _, c := range coupons {
		m.coupons[c.ID] = c
	}
	return m
}

func (m *memoryCoupons) Insert(_ context.Context, c domain.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.coupons {
		if existing.DeletedAt == nil && existing.Code == c.Code {
			return errTestConflict
		}
	}
	m.coupons[c.ID] = c
	return nil
}

func (m *memoryCoupons) Update(_ context.Context, c domain.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.coupons[c.ID]
	if !ok {
		return errTestNotFound
	}
	c.UsageCount = existing.UsageCount
	m.coupons[c.ID] = c
	return nil
}

func (m *memoryCoupons) FindByID(_ context.Context, id string) (domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok || c.DeletedAt != nil {
		return domain.Coupon{}, errTestNotFound
	}
	return c, nil
}

func (m *memoryCoupons) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.coupons {
		if c.DeletedAt == nil && c.Code == code {
			return c, nil
		}
	}
	return domain.Coupon{}, errTestNotFound
}

func (m *memoryCoupons) LockByID(ctx context.Context, id string) (domain.Coupon, error) {
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
	return m.FindByID(ctx, id)
}

func (m *memoryCoupons) IncrementUsage(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return errTestNotFound
	}
	c.UsageCount++
	c.UpdatedAt = at
	m.coupons[id] = c
	return nil
}

func (m *memoryCoupons) List(_ context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Coupon
	for _, c := range m.coupons {
		if c.DeletedAt != nil || (filter.ActiveOnly && !c.Active) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.Coupon]{Items: out}, nil
}

func (m *memoryCoupons) ListActive(ctx context.Context) ([]domain.Coupon, error) {
	page, err := m.List(ctx, repositories.CouponListFilter{ActiveOnly: true})
	return page.Items, err
}

func (m *memoryCoupons) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return errTestNotFound
	}
	c.DeletedAt = &at
	c.Active = false
	m.coupons[id] = c
	return nil
}

func (m *memoryCoupons) raw(id string) domain.Coupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coupons[id]
}

type memoryCouponUsage struct {
	mu    sync.Mutex
	items []domain.CouponUsage
}

func (m *memoryCouponUsage) Insert(_ context.Context, u domain.CouponUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.CouponID == u.CouponID && existing.OrderID == u.OrderID {
			return errTestConflict
		}
	}
	m.items = append(m.items, u)
	return nil
}

func (m *memoryCouponUsage) ExistsForOrder(_ context.Context, couponID, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if u.CouponID == couponID && u.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryCouponUsage) CountByUser(_ context.Context, couponID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.items {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memoryCouponUsage) Stats(_ context.Context, couponID string) (domain.CouponUsageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := domain.CouponUsageStats{TotalDiscountGiven: decimal.Zero}
	users := map[string]struct{}{}
	for _, u := range m.items {
		if u.CouponID != couponID {
			continue
		}
		stats.TotalUsage++
		users[u.UserID] = struct{}{}
		stats.TotalDiscountGiven = stats.TotalDiscountGiven.Add(u.DiscountAmount)
	}
	stats.UniqueUsers = len(users)
	return stats, nil
}

func (m *memoryCouponUsage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memoryAdminEmails struct {
	items []domain.AdminEmail
}

func (m *memoryAdminEmails) Insert(_ context.Context, e domain.AdminEmail) error {
	for _, existing := range m.items {
		if existing.Email == e.Email {
			return errTestConflict
		}
	}
	m.items = append(m.items, e)
	return nil
}

func (m *memoryAdminEmails) List(context.Context) ([]domain.AdminEmail, error) {
	return slices.Clone(m.items), nil
}

func (m *memoryAdminEmails) Delete(_ context.Context, id string) error {
	for i, e := range m.items {
		if e.ID == id {
			m.items = slices.Delete(m.items, i, i+1)
			return nil
		}
	}
	return errTestNotFound
}

type stubDispatcher struct {
	supports  map[domain.PaymentGateway]bool
	processFn func(ctx context.Context, gateway domain.PaymentGateway, req payments.Request) (payments.Result, error)
	verifyFn  func(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (payments.Verification, error)
	inspectFn func(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (payments.Verification, error)
	requests  []payments.Request
	verified  int
}

func (s *stubDispatcher) Supports(gateway domain.PaymentGateway) bool {
	if s.supports == nil {
		return gateway != domain.GatewayWallet
	}
	return s.supports[gateway]
}

func (s *stubDispatcher) Process(ctx context.Context, gateway domain.PaymentGateway, req payments.Request) (payments.Result, error) {
	s.requests = append(s.requests, req)
	if s.processFn == nil {
		return payments.Result{}, errors.New("process not stubbed")
	}
	return s.processFn(ctx, gateway, req)
}

func (s *stubDispatcher) Verify(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (payments.Verification, error) {
	if s.verifyFn == nil {
		return payments.Verification{}, errors.New("verify not stubbed")
	}
	s.verified++
	return s.verifyFn(ctx, gateway, transactionID)
}

// Inspect falls back to verifyFn, standing in for a gateway whose Verify has no side effects.
func (s *stubDispatcher) Inspect(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (payments.Verification, error) {
	if s.inspectFn != nil {
		return s.inspectFn(ctx, gateway, transactionID)
	}
	if s.verifyFn == nil {
		return payments.Verification{}, errors.New("inspect not stubbed")
	}
	return s.verifyFn(ctx, gateway, transactionID)
}

type notification struct {
	kind   string
	userID string
	order  string
	status domain.OrderStatus
	amount decimal.Decimal
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) add(item notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, item)
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, order domain.Order, user domain.User) {
	n.add(notification{kind: "placed", userID: user.ID, order: order.ID, status: order.Status})
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, order domain.Order, user domain.User, _ domain.OrderStatus) {
	n.add(notification{kind: "status", userID: user.ID, order: order.ID, status: order.Status})
}

func (n *recordingNotifier) WalletBalanceChanged(_ context.Context, _ domain.Wallet, user domain.User, delta decimal.Decimal) {
	n.add(notification{kind: "balance", userID: user.ID, amount: delta})
}

func (n *recordingNotifier) PaymentRequested(_ context.Context, user domain.User, amount decimal.Decimal) {
	n.add(notification{kind: "payment_request", userID: user.ID, amount: amount})
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, item := range n.sent {
		out[i] = item.kind
	}
	return out
}

func sequenceIDs(ids ...string) func() string {
	i := 0
	return func() string {
		if i < len(ids) {
			id := ids[i]
			i++
			return id
		}
		i++
		return "id" + decimal.NewFromInt(int64(i)).String()
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func intPtr(v int) *int {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
