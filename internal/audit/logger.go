// Package audit records the steps taken while reconciling purchases.
package audit

import (
	"context"
	"log/slog"

	"github.com/dangerclosesec/coursehub/internal/model"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Writer persists reconciliation log rows. Both the pool-bound and the
// transaction-bound log repositories satisfy it.
type Writer interface {
	Create(ctx context.Context, log *model.ReconciliationLog) error
}

// Entry describes one reconciliation step.
type Entry struct {
	PurchaseID *uuid.UUID
	SessionID  string
	EventID    string
	Action     string
	Detail     map[string]interface{}
}

// Logger mirrors every entry to slog and to the reconciliation_logs table.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Record writes the entry through w. A nil w only logs.
func (l *Logger) Record(ctx context.Context, w Writer, e Entry) error {
	requestID := chimw.GetReqID(ctx)

	attrs := []any{
		"action", e.Action,
		"session_id", e.SessionID,
		"requestID", requestID,
	}
	if e.EventID != "" {
		attrs = append(attrs, "event_id", e.EventID)
	}
	if e.PurchaseID != nil {
		attrs = append(attrs, "purchase_id", e.PurchaseID.String())
	}
	for k, v := range e.Detail {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "reconciliation step", attrs...)

	if w == nil {
		return nil
	}
	return w.Create(ctx, &model.ReconciliationLog{
		PurchaseID: e.PurchaseID,
		SessionID:  e.SessionID,
		EventID:    e.EventID,
		Action:     e.Action,
		Detail:     datatypes.JSONMap(e.Detail),
		RequestID:  requestID,
	})
}
