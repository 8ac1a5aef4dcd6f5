package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/repositories"
)

const (
	walletIDPrefix     = "wal_"
	adminEmailIDPrefix = "aem_"

	maxUserNameLength = 120

	deletedUserName        = "Deleted User"
	deletedUserEmailDomain = "deleted.invalid"
)

var (
	// ErrUserInvalidInput signals malformed user data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates a missing user or admin email.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserConflict indicates a duplicate admin email.
	ErrUserConflict = errors.New("user: conflict")
	// ErrUserRepositoryMissing indicates the service was wired without storage.
	ErrUserRepositoryMissing = errors.New("user: repository not configured")
)

// UserServiceDeps bundles collaborators required by the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Wallets     repositories.WalletRepository
	AdminEmails repositories.AdminEmailRepository
	UnitOfWork  repositories.UnitOfWork
	Identities  IdentityDeleter
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type userService struct {
	users       repositories.UserRepository
	wallets     repositories.WalletRepository
	adminEmails repositories.AdminEmailRepository
	unitOfWork  repositories.UnitOfWork
	identities  IdentityDeleter
	clock       func() time.Time
	newID       func() string
	logger      Logger
}

var _ UserService = (*userService)(nil)

// NewUserService wires user provisioning and administration.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil || deps.Wallets == nil || deps.AdminEmails == nil {
		return nil, ErrUserRepositoryMissing
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &userService{
		users:       deps.Users,
		wallets:     deps.Wallets,
		adminEmails: deps.AdminEmails,
		unitOfWork:  unit,
		identities:  deps.Identities,
		clock:       utcClock(deps.Clock),
		newID:       defaultIDGenerator(deps.IDGenerator),
		logger:      logger,
	}, nil
}

// EnsureUser provisions the user row and an empty wallet on the first authenticated request.
// Existing users are returned as stored; a missing wallet is recreated.
func (s *userService) EnsureUser(ctx context.Context, cmd EnsureUserCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	var (
		user    User
		created bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.users.FindByID(txCtx, userID)
		switch {
		case err == nil:
			user = existing
		case isRepoNotFound(err):
			now := s.clock()
			user = User{
				ID:        userID,
				Email:     strings.ToLower(strings.TrimSpace(cmd.Email)),
				Name:      sanitizeText(cmd.Name),
				Phone:     strings.TrimSpace(cmd.Phone),
				Role:      domain.RoleUser,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.users.Insert(txCtx, user); err != nil {
				return err
			}
			created = true
		default:
			return err
		}
		return s.ensureWallet(txCtx, userID)
	})
	if err != nil {
		if isRepoConflict(err) {
			// A concurrent first request provisioned the user.
			return s.Get(ctx, userID)
		}
		return User{}, s.mapRepositoryError(err)
	}
	if created {
		s.logger(ctx, "user.provisioned", map[string]any{"userId": userID})
	}
	return user, nil
}

func (s *userService) ensureWallet(ctx context.Context, userID string) error {
	_, err := s.wallets.FindByUserID(ctx, userID)
	if err == nil || !isRepoNotFound(err) {
		return err
	}
	now := s.clock()
	return s.wallets.Insert(ctx, Wallet{
		ID:        walletIDPrefix + s.newID(),
		UserID:    userID,
		Balance:   decimal.Zero,
		CreditDue: decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *userService) Get(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) List(ctx context.Context, filter UserListFilter) (domain.CursorPage[User], error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return domain.CursorPage[User]{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, *filter.Role)
	}
	page, err := s.users.List(ctx, repositories.UserListFilter{
		Role:       filter.Role,
		Approved:   filter.Approved,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[User]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *userService) AdminUpdate(ctx context.Context, cmd AdminUpdateUserCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if cmd.Role != nil && !cmd.Role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, *cmd.Role)
	}
	name := sanitizeTextPtr(cmd.Name)
	if name != nil && len(*name) > maxUserNameLength {
		return User{}, fmt.Errorf("%w: name is too long", ErrUserInvalidInput)
	}

	var user User
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.users.FindByID(txCtx, userID)
		if err != nil {
			return err
		}
		if cmd.Role != nil {
			current.Role = *cmd.Role
		}
		if cmd.Approved != nil {
			current.Approved = *cmd.Approved
		}
		if name != nil {
			current.Name = *name
		}
		if cmd.Phone != nil {
			current.Phone = strings.TrimSpace(*cmd.Phone)
		}
		current.UpdatedAt = s.clock()
		user = current
		return s.users.Update(txCtx, current)
	})
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "user.updated", map[string]any{"userId": userID, "role": string(user.Role), "approved": user.Approved})
	return user, nil
}

// Delete removes the sign-in account before anonymising the stored profile.
func (s *userService) Delete(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return s.mapRepositoryError(err)
	}
	if s.identities != nil {
		if err := s.identities.DeleteUser(ctx, userID); err != nil {
			s.logger(ctx, "user.identity_delete_failed", map[string]any{"userId": userID, "error": err.Error()})
			return fmt.Errorf("user: delete identity: %w", err)
		}
	}
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.users.FindByID(txCtx, userID)
		if err != nil {
			return err
		}
		current.Name = deletedUserName
		current.Email = userID + "@" + deletedUserEmailDomain
		current.Phone = ""
		current.Role = domain.RoleUser
		current.Approved = false
		current.UpdatedAt = s.clock()
		return s.users.Update(txCtx, current)
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "user.deleted", map[string]any{"userId": userID})
	return nil
}

func (s *userService) ListAdminEmails(ctx context.Context) ([]AdminEmail, error) {
	emails, err := s.adminEmails.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return emails, nil
}

func (s *userService) AddAdminEmail(ctx context.Context, email string) (AdminEmail, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return AdminEmail{}, err
	}
	entry := AdminEmail{
		ID:        adminEmailIDPrefix + s.newID(),
		Email:     normalized,
		CreatedAt: s.clock(),
	}
	if err := s.adminEmails.Insert(ctx, entry); err != nil {
		return AdminEmail{}, s.mapRepositoryError(err)
	}
	return entry, nil
}

func (s *userService) DeleteAdminEmail(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrUserInvalidInput)
	}
	if err := s.adminEmails.Delete(ctx, id); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func normalizeEmail(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: invalid email %q", ErrUserInvalidInput, value)
	}
	return strings.ToLower(addr.Address), nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrUserConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}
	return err
}
