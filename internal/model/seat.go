// internal/model/seat.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CourseSeat is an account's seat pool for one course.
type CourseSeat struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_seat_account_course" json:"account_id"`
	CourseID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_seat_account_course" json:"course_id"`
	TotalSeats int       `gorm:"not null;default:0" json:"total_seats"`
	UsedSeats  int       `gorm:"not null;default:0" json:"used_seats"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (CourseSeat) TableName() string { return "course_seats" }

func (s *CourseSeat) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (s CourseSeat) Available() int {
	if s.UsedSeats >= s.TotalSeats {
		return 0
	}
	return s.TotalSeats - s.UsedSeats
}

// SeatGrant records the seats one purchase added to a pool so that a
// replayed fulfillment cannot add them twice.
type SeatGrant struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_grant_purchase_course" json:"purchase_id"`
	CourseID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_grant_purchase_course" json:"course_id"`
	AccountID  uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Revoked    bool      `gorm:"not null;default:false" json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (SeatGrant) TableName() string { return "seat_grants" }

func (g *SeatGrant) BeforeCreate(tx *gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
