// internal/model/enrollment.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentActive  EnrollmentStatus = "active"
	EnrollmentRevoked EnrollmentStatus = "revoked"
)

type CourseEnrollment struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course;index" json:"course_id"`
	AccountID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"account_id"`
	PurchaseID  *uuid.UUID       `gorm:"type:uuid;index" json:"purchase_id,omitempty"`
	Status      EnrollmentStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	Progress    int              `gorm:"not null;default:0" json:"progress"`
	EnrolledAt  time.Time        `gorm:"not null" json:"enrolled_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (CourseEnrollment) TableName() string { return "course_enrollments" }

func (e *CourseEnrollment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}
	return nil
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

type CourseInvitation struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Email      string           `gorm:"type:text;not null;index" json:"email"`
	CourseID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"course_id"`
	AccountID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"account_id"`
	InvitedBy  *uuid.UUID       `gorm:"type:uuid" json:"invited_by,omitempty"`
	PurchaseID *uuid.UUID       `gorm:"type:uuid;index" json:"purchase_id,omitempty"`
	TokenHash  string           `gorm:"type:text;not null;uniqueIndex" json:"-"`
	Status     InvitationStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	ExpiresAt  time.Time        `gorm:"not null" json:"expires_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
	AcceptedBy *uuid.UUID       `gorm:"type:uuid" json:"accepted_by,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (CourseInvitation) TableName() string { return "course_invitations" }

func (i *CourseInvitation) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

func (i CourseInvitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

type LessonProgress struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson" json:"user_id"`
	LessonID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson" json:"lesson_id"`
	CourseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }

func (p *LessonProgress) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

type QuizAttempt struct {
	ID        uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID                `gorm:"type:uuid;not null;index" json:"user_id"`
	LessonID  uuid.UUID                `gorm:"type:uuid;not null;index" json:"lesson_id"`
	Answers   datatypes.JSONSlice[int] `json:"answers"`
	Correct   int                      `gorm:"not null" json:"correct"`
	Total     int                      `gorm:"not null" json:"total"`
	Score     int                      `gorm:"not null" json:"score"`
	Passed    bool                     `gorm:"not null" json:"passed"`
	CreatedAt time.Time                `json:"created_at"`
}

func (QuizAttempt) TableName() string { return "quiz_attempts" }

func (a *QuizAttempt) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// EnrollmentSummary is an enrollment joined with its course, as listed to
// the learner.
type EnrollmentSummary struct {
	ID          uuid.UUID        `json:"id"`
	CourseID    uuid.UUID        `json:"course_id"`
	CourseTitle string           `json:"course_title"`
	CourseSlug  string           `json:"course_slug"`
	AccountID   uuid.UUID        `json:"account_id"`
	Status      EnrollmentStatus `json:"status"`
	Progress    int              `json:"progress"`
	EnrolledAt  time.Time        `json:"enrolled_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
