// internal/repository/invitation.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *model.CourseInvitation) error {
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("creating invitation: %w", err)
	}
	return nil
}

func (r *InvitationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CourseInvitation, error) {
	var inv model.CourseInvitation
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("finding invitation: %w", err)
	}
	return &inv, nil
}

func (r *InvitationRepository) FindByTokenHash(ctx context.Context, hash string) (*model.CourseInvitation, error) {
	var inv model.CourseInvitation
	if err := r.db.WithContext(ctx).First(&inv, "token_hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("finding invitation by token: %w", err)
	}
	return &inv, nil
}

// FindPending returns the pending invitation for email to a course on behalf
// of an account.
func (r *InvitationRepository) FindPending(ctx context.Context, email string, courseID, accountID uuid.UUID) (*model.CourseInvitation, error) {
	var inv model.CourseInvitation
	err := r.db.WithContext(ctx).
		Where("email = ? AND course_id = ? AND account_id = ? AND status = ?",
			strings.ToLower(strings.TrimSpace(email)), courseID, accountID, model.InvitationPending).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("finding pending invitation: %w", err)
	}
	return &inv, nil
}

func (r *InvitationRepository) ListPendingByEmail(ctx context.Context, email string) ([]*model.CourseInvitation, error) {
	var invitations []*model.CourseInvitation
	if err := r.db.WithContext(ctx).
		Where("email = ? AND status = ?", strings.ToLower(strings.TrimSpace(email)), model.InvitationPending).
		Order("created_at ASC").
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("listing pending invitations: %w", err)
	}
	return invitations, nil
}

// ListPendingByPurchase returns the pending invitations a purchase issued.
func (r *InvitationRepository) ListPendingByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]*model.CourseInvitation, error) {
	var invitations []*model.CourseInvitation
	if err := r.db.WithContext(ctx).
		Where("purchase_id = ? AND status = ?", purchaseID, model.InvitationPending).
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("listing purchase invitations: %w", err)
	}
	return invitations, nil
}

// ListExpiredPending returns up to limit pending invitations whose expiry
// is before now, oldest first.
func (r *InvitationRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.CourseInvitation, error) {
	var invitations []*model.CourseInvitation
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.InvitationPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("listing expired invitations: %w", err)
	}
	return invitations, nil
}

func (r *InvitationRepository) Update(ctx context.Context, inv *model.CourseInvitation) error {
	if err := r.db.WithContext(ctx).Save(inv).Error; err != nil {
		return fmt.Errorf("updating invitation: %w", err)
	}
	return nil
}
