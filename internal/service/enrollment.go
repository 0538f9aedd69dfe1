// internal/service/enrollment.go
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/google/uuid"
)

// EnrollmentReader lists a learner's enrollments. The Postgres
// implementation applies the caller's JWT claims so that row-level security
// decides what is visible.
type EnrollmentReader interface {
	ListForUser(ctx context.Context, userID uuid.UUID, claimsJSON string) ([]model.EnrollmentSummary, error)
}

// StoreEnrollmentReader reads through gorm without RLS.
type StoreEnrollmentReader struct {
	store *repository.Store
}

func NewStoreEnrollmentReader(store *repository.Store) *StoreEnrollmentReader {
	return &StoreEnrollmentReader{store: store}
}

func (r *StoreEnrollmentReader) ListForUser(ctx context.Context, userID uuid.UUID, _ string) ([]model.EnrollmentSummary, error) {
	return r.store.Enrollments.ListSummaries(ctx, userID)
}

type EnrollmentService struct {
	store  *repository.Store
	reader EnrollmentReader
	logger *slog.Logger
}

func NewEnrollmentService(store *repository.Store, reader EnrollmentReader, logger *slog.Logger) *EnrollmentService {
	if reader == nil {
		reader = NewStoreEnrollmentReader(store)
	}
	return &EnrollmentService{store: store, reader: reader, logger: logger}
}

// enrollOpts controls how enrollTx treats the seat pool.
type enrollOpts struct {
	purchaseID *uuid.UUID
	// seatHeld is set when the seat was reserved earlier, e.g. by an
	// invitation, so enrolling must not reserve another one.
	seatHeld bool
}

// enrollTx enrolls the user in the course on the account's seats. It
// returns the enrollment and whether a new seat was consumed. An existing
// active enrollment is returned unchanged.
func enrollTx(ctx context.Context, tx *repository.Store, userID, courseID, accountID uuid.UUID, opts enrollOpts) (*model.CourseEnrollment, bool, error) {
	existing, err := tx.Enrollments.Find(ctx, userID, courseID)
	if err != nil && !errors.Is(err, domain.ErrEnrollmentNotFound) {
		return nil, false, err
	}
	if existing != nil && existing.Status == model.EnrollmentActive {
		if opts.seatHeld {
			if err := tx.Seats.Release(ctx, accountID, courseID); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	if !opts.seatHeld {
		if err := tx.Seats.Reserve(ctx, accountID, courseID); err != nil {
			return nil, false, err
		}
	}

	if existing != nil {
		existing.Status = model.EnrollmentActive
		existing.AccountID = accountID
		existing.PurchaseID = opts.purchaseID
		existing.EnrolledAt = time.Now().UTC()
		existing.CompletedAt = nil
		if err := tx.Enrollments.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	enrollment := &model.CourseEnrollment{
		UserID:     userID,
		CourseID:   courseID,
		AccountID:  accountID,
		PurchaseID: opts.purchaseID,
		Status:     model.EnrollmentActive,
	}
	if err := tx.Enrollments.Create(ctx, enrollment); err != nil {
		return nil, false, err
	}
	return enrollment, true, nil
}

// revokeEnrollmentTx revokes the enrollment and returns its seat.
func revokeEnrollmentTx(ctx context.Context, tx *repository.Store, e *model.CourseEnrollment) error {
	if e.Status == model.EnrollmentRevoked {
		return nil
	}
	e.Status = model.EnrollmentRevoked
	if err := tx.Enrollments.Update(ctx, e); err != nil {
		return err
	}
	return tx.Seats.Release(ctx, e.AccountID, e.CourseID)
}

type EnrollInput struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	CourseID  uuid.UUID `json:"course_id" validate:"required"`
	AccountID uuid.UUID `json:"account_id" validate:"required"`
}

// Enroll assigns a seat of an account the actor owns to a user. Enrolling
// an already enrolled user returns the existing enrollment.
func (s *EnrollmentService) Enroll(ctx context.Context, actor Actor, input EnrollInput) (*model.CourseEnrollment, error) {
	var out *model.CourseEnrollment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := requireOwner(ctx, tx, actor, input.AccountID); err != nil {
			return err
		}
		if _, err := tx.Courses.FindByID(ctx, input.CourseID); err != nil {
			return err
		}
		if err := tx.Accounts.AddMember(ctx, &model.AccountMembership{
			AccountID: input.AccountID, UserID: input.UserID, Role: model.RoleMember,
		}); err != nil {
			return err
		}

		e, created, err := enrollTx(ctx, tx, input.UserID, input.CourseID, input.AccountID, enrollOpts{})
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("user enrolled", "user_id", input.UserID, "course_id", input.CourseID, "account_id", input.AccountID)
		}
		out = e
		return nil
	})
	return out, err
}

// RevokeEnrollment revokes an enrollment and returns its seat to the pool.
func (s *EnrollmentService) RevokeEnrollment(ctx context.Context, actor Actor, enrollmentID uuid.UUID) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		e, err := tx.Enrollments.FindByID(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if _, err := requireOwner(ctx, tx, actor, e.AccountID); err != nil {
			return err
		}
		if err := revokeEnrollmentTx(ctx, tx, e); err != nil {
			return err
		}
		s.logger.Info("enrollment revoked", "enrollment_id", e.ID, "user_id", e.UserID, "course_id", e.CourseID)
		return nil
	})
}

// ListEnrollments returns the actor's active enrollments.
func (s *EnrollmentService) ListEnrollments(ctx context.Context, actor Actor) ([]model.EnrollmentSummary, error) {
	if actor.UserID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	return s.reader.ListForUser(ctx, actor.UserID, actor.ClaimsJSON)
}
