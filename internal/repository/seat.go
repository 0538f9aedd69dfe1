// internal/repository/seat.go
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

type SeatRepository struct {
	db *gorm.DB
}

func NewSeatRepository(db *gorm.DB) *SeatRepository {
	return &SeatRepository{db: db}
}

func (r *SeatRepository) FindPool(ctx context.Context, accountID, courseID uuid.UUID) (*model.CourseSeat, error) {
	return r.findPool(r.db.WithContext(ctx), accountID, courseID)
}

func (r *SeatRepository) FindPoolForUpdate(ctx context.Context, accountID, courseID uuid.UUID) (*model.CourseSeat, error) {
	return r.findPool(forUpdate(r.db.WithContext(ctx)), accountID, courseID)
}

func (r *SeatRepository) findPool(db *gorm.DB, accountID, courseID uuid.UUID) (*model.CourseSeat, error) {
	var seat model.CourseSeat
	if err := db.Where("account_id = ? AND course_id = ?", accountID, courseID).First(&seat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSeatPoolNotFound
		}
		return nil, fmt.Errorf("finding seat pool: %w", err)
	}
	return &seat, nil
}

// AddSeats grows the account's pool for a course by n, creating the pool
// when it does not exist.
func (r *SeatRepository) AddSeats(ctx context.Context, accountID, courseID uuid.UUID, n int) (*model.CourseSeat, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: seat quantity must be positive", domain.ErrInvalidInput)
	}
	pool := &model.CourseSeat{AccountID: accountID, CourseID: courseID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(pool).Error
	if err != nil {
		return nil, fmt.Errorf("ensuring seat pool: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&model.CourseSeat{}).
		Where("account_id = ? AND course_id = ?", accountID, courseID).
		Update("total_seats", gorm.Expr("total_seats + ?", n)).Error; err != nil {
		return nil, fmt.Errorf("adding seats: %w", err)
	}
	return r.FindPool(ctx, accountID, courseID)
}

// Reserve takes one seat from the pool. The update only matches while a
// seat is free, so concurrent reservations never exceed the total.
func (r *SeatRepository) Reserve(ctx context.Context, accountID, courseID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&model.CourseSeat{}).
		Where("account_id = ? AND course_id = ? AND used_seats < total_seats", accountID, courseID).
		Update("used_seats", gorm.Expr("used_seats + 1"))
	if result.Error != nil {
		return fmt.Errorf("reserving seat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindPool(ctx, accountID, courseID); err != nil {
			return err
		}
		return domain.ErrNoSeatsAvailable
	}
	return nil
}

// Release returns one seat to the pool; it never drops used seats below zero.
func (r *SeatRepository) Release(ctx context.Context, accountID, courseID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&model.CourseSeat{}).
		Where("account_id = ? AND course_id = ? AND used_seats > 0", accountID, courseID).
		Update("used_seats", gorm.Expr("used_seats - 1"))
	if result.Error != nil {
		return fmt.Errorf("releasing seat: %w", result.Error)
	}
	return nil
}

func (r *SeatRepository) Save(ctx context.Context, seat *model.CourseSeat) error {
	if err := r.db.WithContext(ctx).Save(seat).Error; err != nil {
		return fmt.Errorf("saving seat pool: %w", err)
	}
	return nil
}

func (r *SeatRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*model.CourseSeat, error) {
	var seats []*model.CourseSeat
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at ASC").Find(&seats).Error; err != nil {
		return nil, fmt.Errorf("listing seat pools: %w", err)
	}
	return seats, nil
}
