// internal/repository/enrollment.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EnrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *model.CourseEnrollment) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("creating enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CourseEnrollment, error) {
	var e model.CourseEnrollment
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("finding enrollment: %w", err)
	}
	return &e, nil
}

// Find returns the enrollment of userID in courseID regardless of status.
func (r *EnrollmentRepository) Find(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseEnrollment, error) {
	var e model.CourseEnrollment
	if err := r.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("finding enrollment: %w", err)
	}
	return &e, nil
}

func (r *EnrollmentRepository) Update(ctx context.Context, e *model.CourseEnrollment) error {
	if err := r.db.WithContext(ctx).Save(e).Error; err != nil {
		return fmt.Errorf("updating enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.CourseEnrollment, error) {
	var enrollments []*model.CourseEnrollment
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.EnrollmentActive).
		Order("enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}
	return enrollments, nil
}

func (r *EnrollmentRepository) ListByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]*model.CourseEnrollment, error) {
	var enrollments []*model.CourseEnrollment
	if err := r.db.WithContext(ctx).Where("purchase_id = ?", purchaseID).Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("listing purchase enrollments: %w", err)
	}
	return enrollments, nil
}

// ListSummaries lists a user's active enrollments with course titles.
func (r *EnrollmentRepository) ListSummaries(ctx context.Context, userID uuid.UUID) ([]model.EnrollmentSummary, error) {
	var out []model.EnrollmentSummary
	err := r.db.WithContext(ctx).
		Table("course_enrollments AS e").
		Select("e.id, e.course_id, c.title AS course_title, c.slug AS course_slug, e.account_id, e.status, e.progress, e.enrolled_at, e.completed_at").
		Joins("JOIN courses c ON c.id = e.course_id").
		Where("e.user_id = ? AND e.status = ?", userID, model.EnrollmentActive).
		Order("e.enrolled_at DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing enrollment summaries: %w", err)
	}
	return out, nil
}
