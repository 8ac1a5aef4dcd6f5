package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/observability"
	"github.com/tradeshop/api/internal/repositories"
)

const (
	couponIDPrefix      = "cpn_"
	couponUsageIDPrefix = "cpu_"

	couponMsgInvalid           = "Invalid or inactive coupon code"
	couponMsgUserNotFound      = "User not found"
	couponMsgNotEligible       = "You are not eligible for this coupon"
	couponMsgNotYetValid       = "Coupon is not yet valid"
	couponMsgExpired           = "Coupon has expired"
	couponMsgUsageExceeded     = "Coupon usage limit exceeded"
	couponMsgUserUsageExceeded = "You have exceeded the usage limit for this coupon"
	couponMsgApplied           = "Coupon applied successfully"
)

var (
	// ErrCouponInvalidInput signals a malformed coupon definition or request.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound indicates the coupon does not exist or was deleted.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponConflict indicates a duplicate coupon code.
	ErrCouponConflict = errors.New("coupon: code already exists")
	// ErrCouponExhausted indicates a usage cap was reached when recording a redemption.
	ErrCouponExhausted = errors.New("coupon: usage limit exceeded")
	// ErrCouponRepositoryMissing indicates the service was wired without storage.
	ErrCouponRepositoryMissing = errors.New("coupon: repository not configured")
)

// CouponServiceDeps bundles collaborators required by the coupon service.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Usage       repositories.CouponUsageRepository
	Users       repositories.UserRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Metrics     *observability.Metrics
	Logger      Logger
}

type couponService struct {
	coupons    repositories.CouponRepository
	usage      repositories.CouponUsageRepository
	users      repositories.UserRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	metrics    *observability.Metrics
	logger     Logger
}

var _ CouponService = (*couponService)(nil)

// NewCouponService wires the coupon validator and administration service.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil || deps.Usage == nil || deps.Users == nil {
		return nil, ErrCouponRepositoryMissing
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &couponService{
		coupons:    deps.Coupons,
		usage:      deps.Usage,
		users:      deps.Users,
		unitOfWork: unit,
		clock:      utcClock(deps.Clock),
		newID:      defaultIDGenerator(deps.IDGenerator),
		metrics:    deps.Metrics,
		logger:     logger,
	}, nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CouponValidation{}, fmt.Errorf("%w: user id is required", ErrCouponInvalidInput)
	}
	if cmd.OrderAmount.IsNegative() {
		return CouponValidation{}, fmt.Errorf("%w: order amount must not be negative", ErrCouponInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.reject(couponMsgUserNotFound, "user_not_found", nil), nil
		}
		return CouponValidation{}, s.mapRepositoryError(err)
	}
	return s.Evaluate(ctx, cmd.Code, cmd.OrderAmount, user)
}

// Evaluate checks, in order: existence and active flag, eligibility, validity window,
// minimum order amount, global cap, per-user cap. The first failure wins.
func (s *couponService) Evaluate(ctx context.Context, code string, orderAmount decimal.Decimal, user User) (CouponValidation, error) {
	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return s.reject(couponMsgInvalid, "invalid", nil), nil
	}
	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return s.reject(couponMsgInvalid, "invalid", nil), nil
		}
		return CouponValidation{}, s.mapRepositoryError(err)
	}
	if !coupon.Active {
		return s.reject(couponMsgInvalid, "invalid", nil), nil
	}
	if !coupon.Eligibility().Eligible(user) {
		return s.reject(couponMsgNotEligible, "not_eligible", &coupon), nil
	}

	now := s.clock()
	if coupon.NotYetValid(now) {
		return s.reject(couponMsgNotYetValid, "not_yet_valid", &coupon), nil
	}
	if coupon.Expired(now) {
		return s.reject(couponMsgExpired, "expired", &coupon), nil
	}
	if coupon.BelowMinimum(orderAmount) {
		msg := fmt.Sprintf("Minimum order amount of $%s required", coupon.MinimumOrderAmount.StringFixed(2))
		return s.reject(msg, "below_minimum", &coupon), nil
	}
	if coupon.GlobalUsageExhausted() {
		return s.reject(couponMsgUsageExceeded, "exhausted", &coupon), nil
	}
	if coupon.MaxUsagePerUser != nil {
		used, err := s.usage.CountByUser(ctx, coupon.ID, user.ID)
		if err != nil {
			return CouponValidation{}, s.mapRepositoryError(err)
		}
		if coupon.PerUserUsageExhausted(used) {
			return s.reject(couponMsgUserUsageExceeded, "user_exhausted", &coupon), nil
		}
	}

	s.metrics.CouponValidation("valid")
	return CouponValidation{
		Valid:    true,
		Coupon:   &coupon,
		Discount: coupon.Discount(orderAmount),
		Message:  couponMsgApplied,
	}, nil
}

func (s *couponService) reject(message, reason string, coupon *Coupon) CouponValidation {
	s.metrics.CouponValidation(reason)
	return CouponValidation{Valid: false, Coupon: coupon, Discount: decimal.Zero, Message: message}
}

// Eligible lists active coupons the user could redeem right now, ignoring order amount.
func (s *couponService) Eligible(ctx context.Context, userID string) ([]Coupon, error) {
	user, err := s.users.FindByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	active, err := s.coupons.ListActive(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	now := s.clock()
	result := make([]Coupon, 0, len(active))
	for _, coupon := range active {
		if !coupon.Active || !coupon.Eligibility().Eligible(user) {
			continue
		}
		if coupon.NotYetValid(now) || coupon.Expired(now) || coupon.GlobalUsageExhausted() {
			continue
		}
		if coupon.MaxUsagePerUser != nil {
			used, err := s.usage.CountByUser(ctx, coupon.ID, user.ID)
			if err != nil {
				return nil, s.mapRepositoryError(err)
			}
			if coupon.PerUserUsageExhausted(used) {
				continue
			}
		}
		result = append(result, coupon)
	}
	return result, nil
}

func (s *couponService) Create(ctx context.Context, cmd CreateCouponCommand) (Coupon, error) {
	now := s.clock()
	coupon := Coupon{
		ID:                    couponIDPrefix + s.newID(),
		Code:                  normalizeCouponCode(cmd.Code),
		Name:                  sanitizeText(cmd.Name),
		Description:           sanitizeText(cmd.Description),
		Type:                  cmd.Type,
		Value:                 cmd.Value,
		EligibilityType:       cmd.EligibilityType,
		EligibleRoles:         slices.Clone(cmd.EligibleRoles),
		EligibleUserIDs:       normalizeIDs(cmd.EligibleUserIDs),
		ValidFrom:             utcPtr(cmd.ValidFrom),
		ValidUntil:            utcPtr(cmd.ValidUntil),
		MaxUsage:              cmd.MaxUsage,
		MaxUsagePerUser:       cmd.MaxUsagePerUser,
		MinimumOrderAmount:    cmd.MinimumOrderAmount,
		MaximumDiscountAmount: cmd.MaximumDiscountAmount,
		Active:                true,
		CreatedBy:             strings.TrimSpace(cmd.ActorID),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if coupon.EligibilityType == "" {
		coupon.EligibilityType = domain.EligibilityPublic
	}
	if cmd.Active != nil {
		coupon.Active = *cmd.Active
	}
	if err := s.validateDefinition(ctx, coupon); err != nil {
		return Coupon{}, err
	}

	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureCodeAvailable(txCtx, coupon.Code, ""); err != nil {
			return err
		}
		return s.coupons.Insert(txCtx, coupon)
	})
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "coupon.created", map[string]any{"couponId": coupon.ID, "code": coupon.Code, "actor": coupon.CreatedBy})
	return coupon, nil
}

func (s *couponService) Update(ctx context.Context, cmd UpdateCouponCommand) (Coupon, error) {
	couponID := strings.TrimSpace(cmd.CouponID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	var updated Coupon
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		coupon, err := s.coupons.LockByID(txCtx, couponID)
		if err != nil {
			return err
		}
		if cmd.Code != nil {
			coupon.Code = normalizeCouponCode(*cmd.Code)
		}
		if cmd.Name != nil {
			coupon.Name = sanitizeText(*cmd.Name)
		}
		if cmd.Description != nil {
			coupon.Description = sanitizeText(*cmd.Description)
		}
		if cmd.Type != nil {
			coupon.Type = *cmd.Type
		}
		if cmd.Value != nil {
			coupon.Value = *cmd.Value
		}
		if cmd.EligibilityType != nil {
			coupon.EligibilityType = *cmd.EligibilityType
		}
		if cmd.EligibleRoles != nil {
			coupon.EligibleRoles = slices.Clone(*cmd.EligibleRoles)
		}
		if cmd.EligibleUserIDs != nil {
			coupon.EligibleUserIDs = normalizeIDs(*cmd.EligibleUserIDs)
		}
		if cmd.ValidFrom != nil {
			coupon.ValidFrom = utcPtr(cmd.ValidFrom)
		}
		if cmd.ValidUntil != nil {
			coupon.ValidUntil = utcPtr(cmd.ValidUntil)
		}
		if cmd.MaxUsage != nil {
			coupon.MaxUsage = cmd.MaxUsage
		}
		if cmd.MaxUsagePerUser != nil {
			coupon.MaxUsagePerUser = cmd.MaxUsagePerUser
		}
		if cmd.MinimumOrderAmount != nil {
			coupon.MinimumOrderAmount = cmd.MinimumOrderAmount
		}
		if cmd.MaximumDiscountAmount != nil {
			coupon.MaximumDiscountAmount = cmd.MaximumDiscountAmount
		}
		if cmd.Active != nil {
			coupon.Active = *cmd.Active
		}
		if err := s.validateDefinition(txCtx, coupon); err != nil {
			return err
		}
		if err := s.ensureCodeAvailable(txCtx, coupon.Code, coupon.ID); err != nil {
			return err
		}
		coupon.UpdatedAt = s.clock()
		if err := s.coupons.Update(txCtx, coupon); err != nil {
			return err
		}
		updated = coupon
		return nil
	})
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "coupon.updated", map[string]any{"couponId": updated.ID, "code": updated.Code})
	return updated, nil
}

func (s *couponService) Get(ctx context.Context, couponID string) (Coupon, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	coupon, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *couponService) List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error) {
	page, err := s.coupons.List(ctx, repositories.CouponListFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Coupon]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Delete frees the code for reuse by suffixing it, deactivates the coupon and soft-deletes it.
// Historical usage rows keep pointing at the renamed coupon.
func (s *couponService) Delete(ctx context.Context, couponID string) error {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		coupon, err := s.coupons.LockByID(txCtx, couponID)
		if err != nil {
			return err
		}
		now := s.clock()
		coupon.Code = coupon.Code + "-" + uuid.NewString()
		coupon.Active = false
		coupon.UpdatedAt = now
		if err := s.coupons.Update(txCtx, coupon); err != nil {
			return err
		}
		return s.coupons.SoftDelete(txCtx, coupon.ID, now)
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "coupon.deleted", map[string]any{"couponId": couponID})
	return nil
}

func (s *couponService) Stats(ctx context.Context, couponID string) (CouponStats, error) {
	coupon, err := s.Get(ctx, couponID)
	if err != nil {
		return CouponStats{}, err
	}
	stats, err := s.usage.Stats(ctx, coupon.ID)
	if err != nil {
		return CouponStats{}, s.mapRepositoryError(err)
	}
	return CouponStats{
		Coupon:             coupon,
		TotalUsage:         stats.TotalUsage,
		UniqueUsers:        stats.UniqueUsers,
		TotalDiscountGiven: domain.RoundMoney(stats.TotalDiscountGiven),
	}, nil
}

// RecordUsage locks the coupon row, re-checks both caps, then inserts the usage row and bumps
// the counter. A second call for the same order is a no-op.
func (s *couponService) RecordUsage(ctx context.Context, cmd RecordCouponUsageCommand) error {
	couponID := strings.TrimSpace(cmd.CouponID)
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if couponID == "" || orderID == "" || userID == "" {
		return fmt.Errorf("%w: coupon, order and user ids are required", ErrCouponInvalidInput)
	}
	recorded := false
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		coupon, err := s.coupons.LockByID(txCtx, couponID)
		if err != nil {
			return err
		}
		exists, err := s.usage.ExistsForOrder(txCtx, couponID, orderID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if coupon.GlobalUsageExhausted() {
			return ErrCouponExhausted
		}
		if coupon.MaxUsagePerUser != nil {
			used, err := s.usage.CountByUser(txCtx, couponID, userID)
			if err != nil {
				return err
			}
			if coupon.PerUserUsageExhausted(used) {
				return ErrCouponExhausted
			}
		}
		now := s.clock()
		if err := s.usage.Insert(txCtx, domain.CouponUsage{
			ID:             couponUsageIDPrefix + s.newID(),
			CouponID:       couponID,
			UserID:         userID,
			OrderID:        orderID,
			DiscountAmount: domain.RoundMoney(cmd.DiscountAmount),
			OrderAmount:    domain.RoundMoney(cmd.OrderAmount),
			UsedAt:         now,
		}); err != nil {
			return err
		}
		if err := s.coupons.IncrementUsage(txCtx, couponID, now); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCouponExhausted) {
			return err
		}
		return s.mapRepositoryError(err)
	}
	if recorded {
		s.logger(ctx, "coupon.usage.recorded", map[string]any{
			"couponId": couponID,
			"orderId":  orderID,
			"userId":   userID,
			"discount": cmd.DiscountAmount.StringFixed(2),
		})
	}
	return nil
}

func (s *couponService) validateDefinition(ctx context.Context, coupon Coupon) error {
	if coupon.Code == "" {
		return fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	if utf8.RuneCountInString(coupon.Code) > domain.MaxCouponCodeLength {
		return fmt.Errorf("%w: code must be at most %d characters", ErrCouponInvalidInput, domain.MaxCouponCodeLength)
	}
	if coupon.Name == "" {
		return fmt.Errorf("%w: name is required", ErrCouponInvalidInput)
	}
	switch coupon.Type {
	case domain.CouponTypePercentage:
		if coupon.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage value must not exceed 100", ErrCouponInvalidInput)
		}
	case domain.CouponTypeFixedAmount:
	default:
		return fmt.Errorf("%w: unsupported coupon type %q", ErrCouponInvalidInput, coupon.Type)
	}
	if !coupon.Value.IsPositive() {
		return fmt.Errorf("%w: value must be positive", ErrCouponInvalidInput)
	}
	if coupon.MaxUsage != nil && *coupon.MaxUsage < 1 {
		return fmt.Errorf("%w: max usage must be at least 1", ErrCouponInvalidInput)
	}
	if coupon.MaxUsagePerUser != nil && *coupon.MaxUsagePerUser < 1 {
		return fmt.Errorf("%w: max usage per user must be at least 1", ErrCouponInvalidInput)
	}
	if coupon.MinimumOrderAmount != nil && coupon.MinimumOrderAmount.IsNegative() {
		return fmt.Errorf("%w: minimum order amount must not be negative", ErrCouponInvalidInput)
	}
	if coupon.MaximumDiscountAmount != nil && coupon.MaximumDiscountAmount.IsNegative() {
		return fmt.Errorf("%w: maximum discount amount must not be negative", ErrCouponInvalidInput)
	}
	if coupon.ValidFrom != nil && coupon.ValidUntil != nil && !coupon.ValidFrom.Before(*coupon.ValidUntil) {
		return fmt.Errorf("%w: valid from must precede valid until", ErrCouponInvalidInput)
	}

	switch coupon.EligibilityType {
	case domain.EligibilityPublic:
	case domain.EligibilityUserRole:
		if len(coupon.EligibleRoles) == 0 {
			return fmt.Errorf("%w: at least one eligible role is required", ErrCouponInvalidInput)
		}
		for _, role := range coupon.EligibleRoles {
			if !role.Valid() {
				return fmt.Errorf("%w: unknown role %q", ErrCouponInvalidInput, role)
			}
		}
	case domain.EligibilitySpecificUsers:
		if len(coupon.EligibleUserIDs) == 0 {
			return fmt.Errorf("%w: at least one eligible user is required", ErrCouponInvalidInput)
		}
		users, err := s.users.FindByIDs(ctx, coupon.EligibleUserIDs)
		if err != nil {
			return err
		}
		if len(users) != len(coupon.EligibleUserIDs) {
			return fmt.Errorf("%w: some specified users do not exist", ErrCouponInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unsupported eligibility type %q", ErrCouponInvalidInput, coupon.EligibilityType)
	}
	return nil
}

func (s *couponService) ensureCodeAvailable(ctx context.Context, code, ownID string) error {
	existing, err := s.coupons.FindByCode(ctx, code)
	switch {
	case err == nil:
		if existing.ID != ownID {
			return ErrCouponConflict
		}
		return nil
	case isRepoNotFound(err):
		return nil
	default:
		return err
	}
}

func (s *couponService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCouponInvalidInput) || errors.Is(err, ErrCouponConflict) || errors.Is(err, ErrCouponExhausted) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCouponNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCouponConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("coupon: repository unavailable: %w", err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
