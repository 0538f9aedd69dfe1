// internal/model/commerce.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CourseProduct maps a Stripe price to the course it sells. It is the only
// place price ids are resolved to courses.
type CourseProduct struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StripePriceID string    `gorm:"type:text;not null;uniqueIndex" json:"stripe_price_id"`
	CourseID      uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Active        bool      `gorm:"not null" json:"active"`
	UnitAmount    int64     `gorm:"not null;default:0" json:"unit_amount"`
	Currency      string    `gorm:"type:text" json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (CourseProduct) TableName() string { return "course_products" }

func (p *CourseProduct) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

type PurchaseStatus string

const (
	PurchasePending         PurchaseStatus = "pending"
	PurchaseAwaitingPayment PurchaseStatus = "awaiting_payment"
	PurchaseFulfilled       PurchaseStatus = "fulfilled"
	PurchaseFailed          PurchaseStatus = "failed"
	PurchaseExpired         PurchaseStatus = "expired"
	PurchaseRefunded        PurchaseStatus = "refunded"
)

// Terminal reports whether no further fulfillment may happen for the status.
func (s PurchaseStatus) Terminal() bool {
	switch s {
	case PurchaseFulfilled, PurchaseFailed, PurchaseExpired, PurchaseRefunded:
		return true
	}
	return false
}

// CanTransition reports whether a purchase may move from s to next.
func (s PurchaseStatus) CanTransition(next PurchaseStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case PurchasePending:
		return true
	case PurchaseAwaitingPayment:
		return next != PurchasePending
	case PurchaseFulfilled:
		return next == PurchaseRefunded
	}
	return false
}

type PurchaseType string

const (
	PurchasePersonal PurchaseType = "personal"
	PurchaseTeam     PurchaseType = "team"
)

// Purchase is one Stripe checkout session and its fulfillment state.
type Purchase struct {
	ID                      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StripeCheckoutSessionID string         `gorm:"type:text;not null;uniqueIndex" json:"stripe_checkout_session_id"`
	StripePaymentIntentID   string         `gorm:"type:text;index" json:"stripe_payment_intent_id,omitempty"`
	StripeCustomerID        string         `gorm:"type:text" json:"stripe_customer_id,omitempty"`
	Status                  PurchaseStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	Type                    PurchaseType   `gorm:"type:text" json:"type,omitempty"`
	AccountID               *uuid.UUID     `gorm:"type:uuid;index" json:"account_id,omitempty"`
	UserID                  *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Email                   string         `gorm:"type:text" json:"email,omitempty"`
	AmountTotal             int64          `gorm:"not null;default:0" json:"amount_total"`
	Currency                string         `gorm:"type:text" json:"currency,omitempty"`
	FailureReason           string         `gorm:"type:text" json:"failure_reason,omitempty"`
	FulfilledAt             *time.Time     `json:"fulfilled_at,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

func (Purchase) TableName() string { return "purchases" }

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// StripeEvent is the processed-event ledger used to drop webhook retries.
type StripeEvent struct {
	ID          string         `gorm:"type:text;primaryKey" json:"id"`
	Type        string         `gorm:"type:text;not null;index" json:"type"`
	Payload     datatypes.JSON `json:"payload"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (StripeEvent) TableName() string { return "stripe_events" }
