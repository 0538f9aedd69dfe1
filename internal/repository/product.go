// internal/repository/product.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CourseProductRepositoryIface defines the price catalog storage.
type CourseProductRepositoryIface interface {
	FindByPriceID(ctx context.Context, priceID string) (*model.CourseProduct, error)
	FindActiveByCourse(ctx context.Context, courseID uuid.UUID) (*model.CourseProduct, error)
	Upsert(ctx context.Context, product *model.CourseProduct) error
	List(ctx context.Context) ([]*model.CourseProduct, error)
	Deactivate(ctx context.Context, priceID string) error
}

type CourseProductRepository struct {
	db *gorm.DB
}

func NewCourseProductRepository(db *gorm.DB) *CourseProductRepository {
	return &CourseProductRepository{db: db}
}

func (r *CourseProductRepository) FindByPriceID(ctx context.Context, priceID string) (*model.CourseProduct, error) {
	var p model.CourseProduct
	if err := r.db.WithContext(ctx).First(&p, "stripe_price_id = ?", priceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnknownPrice
		}
		return nil, fmt.Errorf("finding course product: %w", err)
	}
	return &p, nil
}

func (r *CourseProductRepository) FindActiveByCourse(ctx context.Context, courseID uuid.UUID) (*model.CourseProduct, error) {
	var p model.CourseProduct
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND active = ?", courseID, true).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("finding product for course: %w", err)
	}
	return &p, nil
}

// Upsert inserts the product or updates the mapping of an existing price.
func (r *CourseProductRepository) Upsert(ctx context.Context, p *model.CourseProduct) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_price_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"course_id", "active", "unit_amount", "currency", "updated_at"}),
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("upserting course product: %w", err)
	}
	return nil
}

func (r *CourseProductRepository) List(ctx context.Context) ([]*model.CourseProduct, error) {
	var products []*model.CourseProduct
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("listing course products: %w", err)
	}
	return products, nil
}

func (r *CourseProductRepository) Deactivate(ctx context.Context, priceID string) error {
	result := r.db.WithContext(ctx).Model(&model.CourseProduct{}).
		Where("stripe_price_id = ?", priceID).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("deactivating course product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrUnknownPrice
	}
	return nil
}
