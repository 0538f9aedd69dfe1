// internal/repository/repository.go
package repository

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store groups the repositories that share one *gorm.DB, which is either
// the pool or an open transaction.
type Store struct {
	db *gorm.DB

	Accounts    *AccountRepository
	Courses     *CourseRepository
	Products    *CourseProductRepository
	Purchases   *PurchaseRepository
	Events      *StripeEventRepository
	Seats       *SeatRepository
	Enrollments *EnrollmentRepository
	Invitations *InvitationRepository
	Progress    *ProgressRepository
	Logs        *ReconciliationLogRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		Accounts:    NewAccountRepository(db),
		Courses:     NewCourseRepository(db),
		Products:    NewCourseProductRepository(db),
		Purchases:   NewPurchaseRepository(db),
		Events:      NewStripeEventRepository(db),
		Seats:       NewSeatRepository(db),
		Enrollments: NewEnrollmentRepository(db),
		Invitations: NewInvitationRepository(db),
		Progress:    NewProgressRepository(db),
		Logs:        NewReconciliationLogRepository(db),
	}
}

// DB returns the underlying database connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a Store bound to a single transaction. The
// transaction is rolled back when fn returns an error.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(NewStore(tx)); err != nil {
			slog.WarnContext(ctx, "Rolling back transaction", "error", err)
			return err
		}
		return nil
	})
}

// forUpdate locks the selected rows until the surrounding transaction ends.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
