// internal/service/seats.go
package service

import (
	"context"
	"log/slog"

	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/google/uuid"
)

type SeatService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewSeatService(store *repository.Store, logger *slog.Logger) *SeatService {
	return &SeatService{store: store, logger: logger}
}

type SeatSummary struct {
	CourseID    uuid.UUID `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	Total       int       `json:"total_seats"`
	Used        int       `json:"used_seats"`
	Available   int       `json:"available_seats"`
}

// AllocateSeats adds n seats for a course to an account's pool.
func (s *SeatService) AllocateSeats(ctx context.Context, accountID, courseID uuid.UUID, n int) (*model.CourseSeat, error) {
	var pool *model.CourseSeat
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Accounts.FindByID(ctx, accountID); err != nil {
			return err
		}
		if _, err := tx.Courses.FindByID(ctx, courseID); err != nil {
			return err
		}
		var err error
		pool, err = tx.Seats.AddSeats(ctx, accountID, courseID, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("seats allocated", "account_id", accountID, "course_id", courseID, "seats", n, "total", pool.TotalSeats)
	return pool, nil
}

// SeatUsage lists the seat pools of an account the actor owns.
func (s *SeatService) SeatUsage(ctx context.Context, actor Actor, accountID uuid.UUID) ([]SeatSummary, error) {
	if _, err := requireOwner(ctx, s.store, actor, accountID); err != nil {
		return nil, err
	}

	pools, err := s.store.Seats.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]SeatSummary, 0, len(pools))
	for _, p := range pools {
		summary := SeatSummary{
			CourseID:  p.CourseID,
			Total:     p.TotalSeats,
			Used:      p.UsedSeats,
			Available: p.Available(),
		}
		if course, err := s.store.Courses.FindByID(ctx, p.CourseID); err == nil {
			summary.CourseTitle = course.Title
		}
		out = append(out, summary)
	}
	return out, nil
}
