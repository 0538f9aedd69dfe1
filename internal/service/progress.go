// internal/service/progress.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/google/uuid"
)

const defaultPassPercent = 70

type ProgressService struct {
	store       *repository.Store
	passPercent int
	logger      *slog.Logger
	now         func() time.Time
}

func NewProgressService(store *repository.Store, passPercent int, logger *slog.Logger) *ProgressService {
	if passPercent <= 0 || passPercent > 100 {
		passPercent = defaultPassPercent
	}
	return &ProgressService{
		store:       store,
		passPercent: passPercent,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type CourseProgress struct {
	CourseID         uuid.UUID   `json:"course_id"`
	TotalLessons     int         `json:"total_lessons"`
	CompletedLessons []uuid.UUID `json:"completed_lessons"`
	Percent          int         `json:"percent"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

type QuizResult struct {
	Correct  int             `json:"correct"`
	Total    int             `json:"total"`
	Score    int             `json:"score"`
	Passed   bool            `json:"passed"`
	Progress *CourseProgress `json:"progress"`
}

func activeEnrollment(ctx context.Context, store *repository.Store, userID, courseID uuid.UUID) (*model.CourseEnrollment, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	e, err := store.Enrollments.Find(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, domain.ErrEnrollmentNotFound) {
			return nil, domain.ErrNotEnrolled
		}
		return nil, err
	}
	if e.Status != model.EnrollmentActive {
		return nil, domain.ErrNotEnrolled
	}
	return e, nil
}

// completeTx records the lesson and refreshes the enrollment's progress.
func (s *ProgressService) completeTx(ctx context.Context, tx *repository.Store, e *model.CourseEnrollment, lesson *model.Lesson) (*CourseProgress, error) {
	now := s.now()
	if err := tx.Progress.MarkComplete(ctx, &model.LessonProgress{
		UserID:      e.UserID,
		LessonID:    lesson.ID,
		CourseID:    lesson.CourseID,
		CompletedAt: now,
	}); err != nil {
		return nil, err
	}

	p, err := s.progressTx(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	if p.Percent != e.Progress || (p.Percent == 100 && e.CompletedAt == nil) {
		e.Progress = p.Percent
		if p.Percent == 100 && e.CompletedAt == nil {
			e.CompletedAt = &now
		}
		if err := tx.Enrollments.Update(ctx, e); err != nil {
			return nil, err
		}
	}
	p.CompletedAt = e.CompletedAt
	return p, nil
}

func (s *ProgressService) progressTx(ctx context.Context, tx *repository.Store, e *model.CourseEnrollment) (*CourseProgress, error) {
	total, err := tx.Courses.CountLessons(ctx, e.CourseID)
	if err != nil {
		return nil, err
	}
	done, err := tx.Progress.CompletedLessons(ctx, e.UserID, e.CourseID)
	if err != nil {
		return nil, err
	}
	p := &CourseProgress{
		CourseID:         e.CourseID,
		TotalLessons:     int(total),
		CompletedLessons: done,
		CompletedAt:      e.CompletedAt,
	}
	if total > 0 {
		p.Percent = len(done) * 100 / int(total)
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p, nil
}

// CompleteLesson marks a lesson done for the actor. Repeating it changes
// nothing.
func (s *ProgressService) CompleteLesson(ctx context.Context, actor Actor, lessonID uuid.UUID) (*CourseProgress, error) {
	var out *CourseProgress
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		lesson, err := tx.Courses.FindLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		e, err := activeEnrollment(ctx, tx, actor.UserID, lesson.CourseID)
		if err != nil {
			return err
		}
		out, err = s.completeTx(ctx, tx, e, lesson)
		return err
	})
	return out, err
}

// SubmitQuiz scores answers against the lesson's questions. A passing
// score completes the lesson.
func (s *ProgressService) SubmitQuiz(ctx context.Context, actor Actor, lessonID uuid.UUID, answers []int) (*QuizResult, error) {
	var out *QuizResult
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		lesson, err := tx.Courses.FindLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		e, err := activeEnrollment(ctx, tx, actor.UserID, lesson.CourseID)
		if err != nil {
			return err
		}
		questions, err := tx.Courses.FindQuestions(ctx, lessonID)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return domain.ErrNotAQuizLesson
		}
		if len(answers) != len(questions) {
			return fmt.Errorf("%w: got %d, want %d", domain.ErrAnswerCountMatch, len(answers), len(questions))
		}

		correct := 0
		for i, q := range questions {
			if answers[i] == q.CorrectIndex {
				correct++
			}
		}
		score := correct * 100 / len(questions)
		result := &QuizResult{
			Correct: correct,
			Total:   len(questions),
			Score:   score,
			Passed:  score >= s.passPercent,
		}

		if err := tx.Progress.CreateAttempt(ctx, &model.QuizAttempt{
			UserID:   actor.UserID,
			LessonID: lessonID,
			Answers:  answers,
			Correct:  correct,
			Total:    len(questions),
			Score:    score,
			Passed:   result.Passed,
		}); err != nil {
			return err
		}

		if result.Passed {
			result.Progress, err = s.completeTx(ctx, tx, e, lesson)
		} else {
			result.Progress, err = s.progressTx(ctx, tx, e)
		}
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quiz submitted", "user_id", actor.UserID, "lesson_id", lessonID, "score", out.Score, "passed", out.Passed)
	return out, nil
}

func (s *ProgressService) CourseProgress(ctx context.Context, actor Actor, courseID uuid.UUID) (*CourseProgress, error) {
	e, err := activeEnrollment(ctx, s.store, actor.UserID, courseID)
	if err != nil {
		return nil, err
	}
	return s.progressTx(ctx, s.store, e)
}
