// internal/repository/account.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts an account. A user may own only one personal account.
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	if account.IsPersonalAccount {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Account{}).
			Where("primary_owner_user_id = ? AND is_personal_account = ?", account.PrimaryOwnerUserID, true).
			Count(&count).Error; err != nil {
			return fmt.Errorf("checking existing personal account: %w", err)
		}
		if count > 0 {
			return domain.ErrDuplicatePersonalAccount
		}
	}

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return &account, nil
}

// FindPersonalByUser returns the personal account owned by userID.
func (r *AccountRepository) FindPersonalByUser(ctx context.Context, userID uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Where("primary_owner_user_id = ? AND is_personal_account = ?", userID, true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding personal account: %w", err)
	}
	return &account, nil
}

// FindPersonalByEmail matches case-insensitively on the account email.
func (r *AccountRepository) FindPersonalByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ? AND is_personal_account = ?", strings.ToLower(strings.TrimSpace(email)), true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding personal account by email: %w", err)
	}
	return &account, nil
}

// FindTeamOwnedBy returns the oldest team account whose primary owner is userID.
func (r *AccountRepository) FindTeamOwnedBy(ctx context.Context, userID uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Where("primary_owner_user_id = ? AND is_personal_account = ?", userID, false).
		Order("created_at ASC").
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding team account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *model.Account) error {
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return nil
}

// AddMember creates the membership, leaving an existing one untouched.
func (r *AccountRepository) AddMember(ctx context.Context, m *model.AccountMembership) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(m).Error
	if err != nil {
		return fmt.Errorf("creating account membership: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindMembership(ctx context.Context, accountID, userID uuid.UUID) (*model.AccountMembership, error) {
	var m model.AccountMembership
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND user_id = ?", accountID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("finding membership: %w", err)
	}
	return &m, nil
}

// FindMembers returns all memberships of the given account
func (r *AccountRepository) FindMembers(ctx context.Context, accountID uuid.UUID) ([]*model.AccountMembership, error) {
	var members []*model.AccountMembership
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("finding account members: %w", err)
	}
	return members, nil
}

// FindByUser returns every account userID is a member of.
func (r *AccountRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]model.Account, error) {
	var accounts []model.Account
	if err := r.db.WithContext(ctx).
		Joins("JOIN accounts_memberships ON accounts.id = accounts_memberships.account_id").
		Where("accounts_memberships.user_id = ?", userID).
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("finding user accounts: %w", err)
	}
	return accounts, nil
}

// FindUnclaimedByEmail returns the account created for a guest checkout
// with this email that no user owns yet.
func (r *AccountRepository) FindUnclaimedByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ? AND primary_owner_user_id = ?", strings.ToLower(strings.TrimSpace(email)), uuid.Nil).
		Order("created_at ASC").
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding unclaimed account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) ListUnclaimedByEmail(ctx context.Context, email string) ([]*model.Account, error) {
	var accounts []*model.Account
	if err := r.db.WithContext(ctx).
		Where("LOWER(email) = ? AND primary_owner_user_id = ?", strings.ToLower(strings.TrimSpace(email)), uuid.Nil).
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("listing unclaimed accounts: %w", err)
	}
	return accounts, nil
}
