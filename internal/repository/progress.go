// internal/repository/progress.go
package repository

import (
	"context"
	"fmt"

	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// MarkComplete records lesson completion once; repeated calls are no-ops.
func (r *ProgressRepository) MarkComplete(ctx context.Context, p *model.LessonProgress) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
			DoNothing: true,
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("recording lesson progress: %w", err)
	}
	return nil
}

func (r *ProgressRepository) CountCompleted(ctx context.Context, userID, courseID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.LessonProgress{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting completed lessons: %w", err)
	}
	return count, nil
}

func (r *ProgressRepository) CompletedLessons(ctx context.Context, userID, courseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&model.LessonProgress{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("completed_at ASC").
		Pluck("lesson_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing completed lessons: %w", err)
	}
	return ids, nil
}

func (r *ProgressRepository) CreateAttempt(ctx context.Context, a *model.QuizAttempt) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("recording quiz attempt: %w", err)
	}
	return nil
}
