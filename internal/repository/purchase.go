// internal/repository/purchase.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) FindBySessionID(ctx context.Context, sessionID string) (*model.Purchase, error) {
	return r.findBySession(r.db.WithContext(ctx), sessionID)
}

// FindBySessionIDForUpdate locks the purchase row; call it inside a transaction.
func (r *PurchaseRepository) FindBySessionIDForUpdate(ctx context.Context, sessionID string) (*model.Purchase, error) {
	return r.findBySession(forUpdate(r.db.WithContext(ctx)), sessionID)
}

func (r *PurchaseRepository) findBySession(db *gorm.DB, sessionID string) (*model.Purchase, error) {
	var p model.Purchase
	if err := db.Where("stripe_checkout_session_id = ?", sessionID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("finding purchase: %w", err)
	}
	return &p, nil
}

func (r *PurchaseRepository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Purchase, error) {
	var p model.Purchase
	if err := r.db.WithContext(ctx).Where("stripe_payment_intent_id = ?", paymentIntentID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("finding purchase by payment intent: %w", err)
	}
	return &p, nil
}

// CreateIfAbsent inserts p unless a purchase for the same checkout session
// already exists. It reports whether a row was inserted.
func (r *PurchaseRepository) CreateIfAbsent(ctx context.Context, p *model.Purchase) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_checkout_session_id"}},
			DoNothing: true,
		}).
		Create(p)
	if result.Error != nil {
		return false, fmt.Errorf("creating purchase: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *PurchaseRepository) Update(ctx context.Context, p *model.Purchase) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("updating purchase: %w", err)
	}
	return nil
}

// FindStale returns non-terminal purchases last touched before olderThan,
// oldest first.
func (r *PurchaseRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.Purchase, error) {
	var purchases []*model.Purchase
	query := r.db.WithContext(ctx).
		Where("status IN ?", []model.PurchaseStatus{model.PurchasePending, model.PurchaseAwaitingPayment}).
		Where("updated_at < ?", olderThan).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("finding stale purchases: %w", err)
	}
	return purchases, nil
}

// CreateGrant records the seats a purchase adds for a course. It returns
// false when the grant already existed.
func (r *PurchaseRepository) CreateGrant(ctx context.Context, g *model.SeatGrant) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "purchase_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(g)
	if result.Error != nil {
		return false, fmt.Errorf("creating seat grant: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *PurchaseRepository) GrantsForPurchase(ctx context.Context, purchaseID uuid.UUID) ([]*model.SeatGrant, error) {
	var grants []*model.SeatGrant
	if err := r.db.WithContext(ctx).Where("purchase_id = ?", purchaseID).Order("created_at ASC").Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("finding seat grants: %w", err)
	}
	return grants, nil
}

func (r *PurchaseRepository) UpdateGrant(ctx context.Context, g *model.SeatGrant) error {
	if err := r.db.WithContext(ctx).Save(g).Error; err != nil {
		return fmt.Errorf("updating seat grant: %w", err)
	}
	return nil
}
