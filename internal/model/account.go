// internal/model/account.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleMember MembershipRole = "member"
)

// Account is either a user's personal account (ID equals the user's ID) or
// a team account that holds purchased seats.
type Account struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name               string    `gorm:"type:text;not null" json:"name"`
	Slug               *string   `gorm:"type:text;uniqueIndex" json:"slug,omitempty"`
	Email              string    `gorm:"type:text;index" json:"email"`
	IsPersonalAccount  bool      `gorm:"not null;default:false" json:"is_personal_account"`
	PrimaryOwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"primary_owner_user_id"`
	StripeCustomerID   string    `gorm:"type:text;index" json:"stripe_customer_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Memberships []AccountMembership `gorm:"foreignKey:AccountID" json:"-"`
}

func (Account) TableName() string { return "accounts" }

// Unclaimed reports whether the account was opened for a guest checkout and
// has not been taken over by a signed-in user yet.
func (a Account) Unclaimed() bool {
	return a.PrimaryOwnerUserID == uuid.Nil
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

type AccountMembership struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_membership_account_user" json:"account_id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_membership_account_user;index" json:"user_id"`
	Role      MembershipRole `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (AccountMembership) TableName() string { return "accounts_memberships" }

func (m *AccountMembership) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
