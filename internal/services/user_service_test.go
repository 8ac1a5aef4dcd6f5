package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/tradeshop/api/internal/domain"
)

var userNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type userFixture struct {
	svc     UserService
	users   *memoryUsers
	wallets *memoryWallets
	emails  *memoryAdminEmails
	unit    *recordingUnitOfWork
}

func newUserFixture(t *testing.T, users ...domain.User) userFixture {
	t.Helper()
	f := userFixture{
		users:   newMemoryUsers(users...),
		wallets: newMemoryWallets(),
		emails:  &memoryAdminEmails{},
		unit:    &recordingUnitOfWork{},
	}
	svc, err := NewUserService(UserServiceDeps{
		Users:       f.users,
		Wallets:     f.wallets,
		AdminEmails: f.emails,
		UnitOfWork:  f.unit,
		Clock:       fixedClock(userNow),
		IDGenerator: sequenceIDs("A1", "A2", "A3"),
	})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	f.svc = svc
	return f
}

func TestEnsureUserProvisionsUserAndWallet(t *testing.T) {
	f := newUserFixture(t)

	user, err := f.svc.EnsureUser(context.Background(), EnsureUserCommand{UserID: "uid-1", Email: " Ann@Example.com ", Name: "Ann <i>Lee</i>"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if user.Role != domain.RoleUser || user.Approved || user.Email != "ann@example.com" || user.Name != "Ann Lee" {
		t.Fatalf("unexpected user %+v", user)
	}
	wallet, err := f.wallets.FindByUserID(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("wallet not created: %v", err)
	}
	if wallet.ID != "wal_A1" || !wallet.Balance.IsZero() || !wallet.CreditDue.IsZero() {
		t.Fatalf("unexpected wallet %+v", wallet)
	}

	again, err := f.svc.EnsureUser(context.Background(), EnsureUserCommand{UserID: "uid-1", Email: "other@example.com"})
	if err != nil {
		t.Fatalf("EnsureUser second call: %v", err)
	}
	if again.Email != "ann@example.com" {
		t.Fatalf("existing user must be returned unchanged, got %+v", again)
	}
	if len(f.wallets.wallets) != 1 {
		t.Fatalf("expected a single wallet, got %d", len(f.wallets.wallets))
	}
}

func TestEnsureUserRecreatesMissingWallet(t *testing.T) {
	f := newUserFixture(t, domain.User{ID: "uid-2", Role: domain.RoleDealer, Approved: true})
	user, err := f.svc.EnsureUser(context.Background(), EnsureUserCommand{UserID: "uid-2"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if user.Role != domain.RoleDealer {
		t.Fatalf("role must be preserved, got %s", user.Role)
	}
	if _, err := f.wallets.FindByUserID(context.Background(), "uid-2"); err != nil {
		t.Fatalf("expected wallet to be created: %v", err)
	}
}

func TestEnsureUserRequiresID(t *testing.T) {
	f := newUserFixture(t)
	if _, err := f.svc.EnsureUser(context.Background(), EnsureUserCommand{}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAdminUpdateUser(t *testing.T) {
	f := newUserFixture(t, domain.User{ID: "uid-3", Role: domain.RoleUser})
	role := domain.RoleContractor
	approved := true

	user, err := f.svc.AdminUpdate(context.Background(), AdminUpdateUserCommand{UserID: "uid-3", Role: &role, Approved: &approved})
	if err != nil {
		t.Fatalf("AdminUpdate: %v", err)
	}
	if user.Role != domain.RoleContractor || !user.Approved || !user.UpdatedAt.Equal(userNow) {
		t.Fatalf("unexpected user %+v", user)
	}

	bad := domain.UserRole("OWNER")
	if _, err := f.svc.AdminUpdate(context.Background(), AdminUpdateUserCommand{UserID: "uid-3", Role: &bad}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if _, err := f.svc.AdminUpdate(context.Background(), AdminUpdateUserCommand{UserID: "nobody", Approved: &approved}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	page, err := f.svc.List(context.Background(), UserListFilter{Role: &role})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "uid-3" {
		t.Fatalf("unexpected listing %+v", page.Items)
	}
}

func TestAdminEmails(t *testing.T) {
	f := newUserFixture(t)

	entry, err := f.svc.AddAdminEmail(context.Background(), " Ops@Shop.Example ")
	if err != nil {
		t.Fatalf("AddAdminEmail: %v", err)
	}
	if entry.ID != "aem_A1" || entry.Email != "ops@shop.example" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, err := f.svc.AddAdminEmail(context.Background(), "ops@shop.example"); !errors.Is(err, ErrUserConflict) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	for _, bad := range []string{"", "not-an-email", "Ops <ops@shop.example>"} {
		if _, err := f.svc.AddAdminEmail(context.Background(), bad); !errors.Is(err, ErrUserInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", bad, err)
		}
	}

	emails, err := f.svc.ListAdminEmails(context.Background())
	if err != nil || len(emails) != 1 {
		t.Fatalf("unexpected list %v %v", emails, err)
	}
	if err := f.svc.DeleteAdminEmail(context.Background(), entry.ID); err != nil {
		t.Fatalf("DeleteAdminEmail: %v", err)
	}
	if err := f.svc.DeleteAdminEmail(context.Background(), entry.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type recordingIdentities struct {
	deleted []string
	err     error
}

func (r *recordingIdentities) DeleteUser(_ context.Context, uid string) error {
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, uid)
	return nil
}

func TestDeleteUserAnonymisesProfile(t *testing.T) {
	users := newMemoryUsers(domain.User{ID: "uid-9", Email: "dan@example.com", Name: "Dan", Phone: "555", Role: domain.RoleDealer, Approved: true})
	identities := &recordingIdentities{}
	svc, err := NewUserService(UserServiceDeps{
		Users:       users,
		Wallets:     newMemoryWallets(),
		AdminEmails: &memoryAdminEmails{},
		Identities:  identities,
		Clock:       fixedClock(userNow),
	})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}

	if err := svc.Delete(context.Background(), " uid-9 "); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(identities.deleted) != 1 || identities.deleted[0] != "uid-9" {
		t.Fatalf("expected sign-in account removed, got %v", identities.deleted)
	}
	stored, _ := users.FindByID(context.Background(), "uid-9")
	if stored.Name != "Deleted User" || stored.Email != "uid-9@deleted.invalid" || stored.Phone != "" {
		t.Fatalf("expected anonymised profile, got %+v", stored)
	}
	if stored.Approved || stored.Role != domain.RoleUser || !stored.UpdatedAt.Equal(userNow) {
		t.Fatalf("expected pricing access revoked, got %+v", stored)
	}

	if err := svc.Delete(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Delete(context.Background(), ""); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDeleteUserKeepsProfileWhenAccountRemovalFails(t *testing.T) {
	users := newMemoryUsers(domain.User{ID: "uid-10", Name: "Eve", Approved: true})
	svc, _ := NewUserService(UserServiceDeps{
		Users:       users,
		Wallets:     newMemoryWallets(),
		AdminEmails: &memoryAdminEmails{},
		Identities:  &recordingIdentities{err: errors.New("identity toolkit: 503")},
	})
	if err := svc.Delete(context.Background(), "uid-10"); err == nil {
		t.Fatalf("expected error when the account cannot be removed")
	}
	stored, _ := users.FindByID(context.Background(), "uid-10")
	if stored.Name != "Eve" || !stored.Approved {
		t.Fatalf("profile must be untouched, got %+v", stored)
	}
}
