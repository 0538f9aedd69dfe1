// internal/repository/stripe_event.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dangerclosesec/coursehub/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StripeEventRepository struct {
	db *gorm.DB
}

func NewStripeEventRepository(db *gorm.DB) *StripeEventRepository {
	return &StripeEventRepository{db: db}
}

// Record inserts the event if its id is new and returns the stored row.
// fresh is false when the id had been recorded before.
func (r *StripeEventRepository) Record(ctx context.Context, event *model.StripeEvent) (stored *model.StripeEvent, fresh bool, err error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return nil, false, fmt.Errorf("recording stripe event: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return event, true, nil
	}

	var existing model.StripeEvent
	if err := r.db.WithContext(ctx).First(&existing, "id = ?", event.ID).Error; err != nil {
		return nil, false, fmt.Errorf("loading recorded stripe event: %w", err)
	}
	return &existing, false, nil
}

// MarkProcessed stamps the event as handled. A non-empty errMsg is kept for
// inspection and leaves processed_at unset so a retry is processed again.
func (r *StripeEventRepository) MarkProcessed(ctx context.Context, id string, errMsg string) error {
	updates := map[string]interface{}{"error": errMsg}
	if errMsg == "" {
		updates["processed_at"] = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Model(&model.StripeEvent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("marking stripe event processed: %w", err)
	}
	return nil
}
