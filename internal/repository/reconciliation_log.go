package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dangerclosesec/coursehub/internal/model"
	"gorm.io/gorm"
)

// ReconciliationLogRepository handles database operations for reconciliation logs
type ReconciliationLogRepository struct {
	db *gorm.DB
}

// NewReconciliationLogRepository creates a new ReconciliationLogRepository
func NewReconciliationLogRepository(db *gorm.DB) *ReconciliationLogRepository {
	return &ReconciliationLogRepository{
		db: db,
	}
}

// Create inserts a new log entry
func (r *ReconciliationLogRepository) Create(ctx context.Context, log *model.ReconciliationLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create reconciliation log: %w", err)
	}
	return nil
}

// QueryParams holds parameters for querying reconciliation logs
type QueryParams struct {
	SessionID string
	Action    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// Query retrieves logs matching params, newest first, with the total count
// before pagination.
func (r *ReconciliationLogRepository) Query(ctx context.Context, params QueryParams) ([]model.ReconciliationLog, int64, error) {
	var logs []model.ReconciliationLog
	var count int64

	query := r.db.WithContext(ctx).Model(&model.ReconciliationLog{})

	if params.SessionID != "" {
		query = query.Where("session_id = ?", params.SessionID)
	}
	if params.Action != "" {
		query = query.Where("action = ?", params.Action)
	}
	if !params.StartTime.IsZero() {
		query = query.Where("timestamp >= ?", params.StartTime)
	}
	if !params.EndTime.IsZero() {
		query = query.Where("timestamp <= ?", params.EndTime)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reconciliation logs: %w", err)
	}

	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	} else {
		query = query.Limit(100)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query reconciliation logs: %w", err)
	}

	return logs, count, nil
}
