package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReconciliationLog is one step taken while reconciling a checkout session.
type ReconciliationLog struct {
	ID         uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	Timestamp  time.Time         `json:"timestamp" gorm:"not null;index"`
	PurchaseID *uuid.UUID        `json:"purchase_id,omitempty" gorm:"type:uuid;index"`
	SessionID  string            `json:"session_id" gorm:"type:text;index"`
	EventID    string            `json:"event_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null;index"`
	Detail     datatypes.JSONMap `json:"detail"`
	RequestID  string            `json:"request_id,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TableName specifies the table name for ReconciliationLog
func (ReconciliationLog) TableName() string {
	return "reconciliation_logs"
}

func (l *ReconciliationLog) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	return nil
}

// Constants for ReconciliationLog actions
const (
	ActionEventReceived     = "event_received"
	ActionEventDuplicate    = "event_duplicate"
	ActionPurchaseRecorded  = "purchase_recorded"
	ActionAwaitingPayment   = "awaiting_payment"
	ActionAccountResolved   = "account_resolved"
	ActionSeatsGranted      = "seats_granted"
	ActionEnrolled          = "enrolled"
	ActionInvited           = "invited"
	ActionFulfilled         = "fulfilled"
	ActionAlreadyTerminal   = "already_terminal"
	ActionFailed            = "failed"
	ActionRetried           = "retried"
	ActionExpired           = "expired"
	ActionRefunded          = "refunded"
	ActionEnrollmentRevoked = "enrollment_revoked"
)

// All returns every model managed by AutoMigrate, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&AccountMembership{},
		&Course{},
		&CourseModule{},
		&Lesson{},
		&QuizQuestion{},
		&VideoMetadata{},
		&CourseProduct{},
		&Purchase{},
		&StripeEvent{},
		&CourseSeat{},
		&SeatGrant{},
		&CourseEnrollment{},
		&CourseInvitation{},
		&LessonProgress{},
		&QuizAttempt{},
		&ReconciliationLog{},
	}
}
