package sqlstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/database"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/repositories"
)

// UserRepository stores users.
type UserRepository struct {
	db *gorm.DB
}

func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	model := toUserModel(user)
	return database.WrapError("users.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	model := toUserModel(user)
	res := database.Conn(ctx, r.db).Model(&userModel{}).Where("id = ?", user.ID).
		Select("email", "name", "phone", "role", "approved", "updated_at").Updates(&model)
	if res.Error != nil {
		return database.WrapError("users.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("users.update")
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	var model userModel
	if err := database.Conn(ctx, r.db).Where("id = ?", userID).Take(&model).Error; err != nil {
		return domain.User{}, database.WrapError("users.find", err)
	}
	return model.toDomain(), nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, userIDs []string) ([]domain.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var models []userModel
	if err := database.Conn(ctx, r.db).Where("id IN ?", userIDs).Find(&models).Error; err != nil {
		return nil, database.WrapError("users.find_many", err)
	}
	out := make([]domain.User, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.User], error) {
	limit, offset, err := pagination.Window(filter.Pagination.PageSize, filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.User]{}, err
	}
	query := database.Conn(ctx, r.db).Model(&userModel{})
	if filter.Role != nil {
		query = query.Where("role = ?", string(*filter.Role))
	}
	if filter.Approved != nil {
		query = query.Where("approved = ?", *filter.Approved)
	}
	var models []userModel
	if err := query.Order("created_at DESC").Order("id").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return domain.CursorPage[domain.User]{}, database.WrapError("users.list", err)
	}
	page := domain.CursorPage[domain.User]{Items: make([]domain.User, 0, len(models))}
	for _, m := range models {
		page.Items = append(page.Items, m.toDomain())
	}
	page.NextPageToken = pagination.NextToken(offset, limit, len(models))
	return page, nil
}

// WalletRepository stores wallets. Balance changes go through guarded updates.
type WalletRepository struct {
	db *gorm.DB
}

func (r *WalletRepository) Insert(ctx context.Context, wallet domain.Wallet) error {
	model := walletModel{
		ID:        wallet.ID,
		UserID:    wallet.UserID,
		Balance:   wallet.Balance,
		CreditDue: wallet.CreditDue,
		CreatedAt: wallet.CreatedAt,
		UpdatedAt: wallet.UpdatedAt,
	}
	return database.WrapError("wallets.insert", database.Conn(ctx, r.db).Omit("User").Create(&model).Error)
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID string) (domain.Wallet, error) {
	var model walletModel
	if err := database.Conn(ctx, r.db).Where("user_id = ?", userID).Take(&model).Error; err != nil {
		return domain.Wallet{}, database.WrapError("wallets.find", err)
	}
	return model.toDomain(), nil
}

func (r *WalletRepository) LockByUserID(ctx context.Context, userID string) (domain.Wallet, error) {
	var model walletModel
	err := database.Conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).Take(&model).Error
	if err != nil {
		return domain.Wallet{}, database.WrapError("wallets.lock", err)
	}
	return model.toDomain(), nil
}

func (r *WalletRepository) Adjust(ctx context.Context, userID string, balanceDelta, creditDueDelta decimal.Decimal, at time.Time) (domain.Wallet, error) {
	conn := database.Conn(ctx, r.db)
	res := conn.Model(&walletModel{}).
		Where("user_id = ? AND balance + ? >= 0 AND credit_due + ? >= 0", userID, balanceDelta, creditDueDelta).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", balanceDelta),
			"credit_due": gorm.Expr("credit_due + ?", creditDueDelta),
			"updated_at": at,
		})
	if res.Error != nil {
		return domain.Wallet{}, database.WrapError("wallets.adjust", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByUserID(ctx, userID); err != nil {
			return domain.Wallet{}, err
		}
		return domain.Wallet{}, database.WrapError("wallets.adjust", database.ErrGuardFailed)
	}
	return r.FindByUserID(ctx, userID)
}

func (r *WalletRepository) Set(ctx context.Context, userID string, balance, creditDue decimal.Decimal, at time.Time) (domain.Wallet, error) {
	if balance.IsNegative() || creditDue.IsNegative() {
		return domain.Wallet{}, database.WrapError("wallets.set", database.ErrGuardFailed)
	}
	res := database.Conn(ctx, r.db).Model(&walletModel{}).Where("user_id = ?", userID).
		Updates(map[string]any{"balance": balance, "credit_due": creditDue, "updated_at": at})
	if res.Error != nil {
		return domain.Wallet{}, database.WrapError("wallets.set", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByUserID(ctx, userID); err != nil {
			return domain.Wallet{}, err
		}
	}
	return r.FindByUserID(ctx, userID)
}

// TransactionRepository appends ledger entries.
type TransactionRepository struct {
	db *gorm.DB
}

func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	model := toTransactionModel(txn)
	return database.WrapError("transactions.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *TransactionRepository) FindByPaymentTransactionID(ctx context.Context, paymentTransactionID string) (domain.Transaction, error) {
	var model transactionModel
	err := database.Conn(ctx, r.db).Where("payment_transaction_id = ?", paymentTransactionID).
		Order("created_at").Take(&model).Error
	if err != nil {
		return domain.Transaction{}, database.WrapError("transactions.find", err)
	}
	return model.toDomain(), nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Transaction], error) {
	limit, offset, err := pagination.Window(pager.PageSize, pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Transaction]{}, err
	}
	var models []transactionModel
	err = database.Conn(ctx, r.db).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&models).Error
	if err != nil {
		return domain.CursorPage[domain.Transaction]{}, database.WrapError("transactions.list", err)
	}
	page := domain.CursorPage[domain.Transaction]{Items: make([]domain.Transaction, 0, len(models))}
	for _, m := range models {
		page.Items = append(page.Items, m.toDomain())
	}
	page.NextPageToken = pagination.NextToken(offset, limit, len(models))
	return page, nil
}

// CardRepository stores the last-used card summary per user.
type CardRepository struct {
	db *gorm.DB
}

func (r *CardRepository) Upsert(ctx context.Context, card domain.CardSummary) error {
	model := cardModel{
		UserID:         card.UserID,
		Brand:          card.Brand,
		Last4:          card.Last4,
		ExpirationDate: card.ExpirationDate,
		UpdatedAt:      card.UpdatedAt,
	}
	err := database.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"brand", "last4", "expiration_date", "updated_at"}),
	}).Create(&model).Error
	return database.WrapError("cards.upsert", err)
}

func (r *CardRepository) FindByUserID(ctx context.Context, userID string) (domain.CardSummary, error) {
	var model cardModel
	if err := database.Conn(ctx, r.db).Where("user_id = ?", userID).Take(&model).Error; err != nil {
		return domain.CardSummary{}, database.WrapError("cards.find", err)
	}
	return domain.CardSummary{
		UserID:         model.UserID,
		Brand:          model.Brand,
		Last4:          model.Last4,
		ExpirationDate: model.ExpirationDate,
		UpdatedAt:      model.UpdatedAt.UTC(),
	}, nil
}

// AdminEmailRepository stores admin notification recipients.
type AdminEmailRepository struct {
	db *gorm.DB
}

func (r *AdminEmailRepository) Insert(ctx context.Context, email domain.AdminEmail) error {
	model := adminEmailModel{ID: email.ID, Email: email.Email, CreatedAt: email.CreatedAt}
	return database.WrapError("admin_emails.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *AdminEmailRepository) List(ctx context.Context) ([]domain.AdminEmail, error) {
	var models []adminEmailModel
	if err := database.Conn(ctx, r.db).Order("created_at").Find(&models).Error; err != nil {
		return nil, database.WrapError("admin_emails.list", err)
	}
	out := make([]domain.AdminEmail, 0, len(models))
	for _, m := range models {
		out = append(out, domain.AdminEmail{ID: m.ID, Email: m.Email, CreatedAt: m.CreatedAt.UTC()})
	}
	return out, nil
}

func (r *AdminEmailRepository) Delete(ctx context.Context, id string) error {
	res := database.Conn(ctx, r.db).Where("id = ?", id).Delete(&adminEmailModel{})
	if res.Error != nil {
		return database.WrapError("admin_emails.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("admin_emails.delete")
	}
	return nil
}
