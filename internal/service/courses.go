// internal/service/courses.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CourseService struct {
	store    *repository.Store
	logger   *slog.Logger
	validate *validator.Validate
}

func NewCourseService(store *repository.Store, logger *slog.Logger) *CourseService {
	return &CourseService{store: store, logger: logger, validate: validator.New()}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

type CreateCourseInput struct {
	// AccountID defaults to the actor's personal account.
	AccountID   uuid.UUID `json:"account_id"`
	Title       string    `json:"title" validate:"required,max=200"`
	Slug        string    `json:"slug" validate:"omitempty,max=200"`
	Description string    `json:"description"`
}

func (s *CourseService) CreateCourse(ctx context.Context, actor Actor, input CreateCourseInput) (*model.Course, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	slug := slugify(input.Slug)
	if slug == "" {
		slug = slugify(input.Title)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is empty", domain.ErrInvalidInput)
	}

	var course *model.Course
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		accountID := input.AccountID
		if accountID == uuid.Nil {
			if actor.UserID == uuid.Nil {
				return fmt.Errorf("%w: account_id is required", domain.ErrInvalidInput)
			}
			account, err := ensurePersonalAccount(ctx, tx, actor.UserID, actor.Email)
			if err != nil {
				return err
			}
			accountID = account.ID
		}
		if _, err := requireOwner(ctx, tx, actor, accountID); err != nil {
			return err
		}

		course = &model.Course{
			AccountID:   accountID,
			Title:       strings.TrimSpace(input.Title),
			Slug:        slug,
			Description: input.Description,
			Status:      model.CourseDraft,
		}
		return tx.Courses.Create(ctx, course)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("course created", "course_id", course.ID, "account_id", course.AccountID, "slug", course.Slug)
	return course, nil
}

type UpdateCourseInput struct {
	Title       *string             `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string             `json:"description"`
	Status      *model.CourseStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
}

// authorize loads the course and checks the actor owns its account.
func (s *CourseService) authorize(ctx context.Context, store *repository.Store, actor Actor, courseID uuid.UUID) (*model.Course, error) {
	course, err := store.Courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if _, err := requireOwner(ctx, store, actor, course.AccountID); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) UpdateCourse(ctx context.Context, actor Actor, courseID uuid.UUID, input UpdateCourseInput) (*model.Course, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}

	var course *model.Course
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		course, err = s.authorize(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if input.Title != nil {
			course.Title = strings.TrimSpace(*input.Title)
		}
		if input.Description != nil {
			course.Description = *input.Description
		}
		if input.Status != nil && *input.Status != course.Status {
			if *input.Status == model.CoursePublished {
				if err := s.publishTx(ctx, tx, course); err != nil {
					return err
				}
			} else {
				course.Status = *input.Status
			}
		}
		return tx.Courses.Update(ctx, course)
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) publishTx(ctx context.Context, tx *repository.Store, course *model.Course) error {
	n, err := tx.Courses.CountLessons(ctx, course.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrCourseNotReady
	}
	now := time.Now().UTC()
	course.Status = model.CoursePublished
	if course.PublishedAt == nil {
		course.PublishedAt = &now
	}
	return nil
}

// PublishCourse makes a course with at least one lesson visible to learners.
func (s *CourseService) PublishCourse(ctx context.Context, actor Actor, courseID uuid.UUID) (*model.Course, error) {
	var course *model.Course
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		course, err = s.authorize(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if course.Status == model.CoursePublished {
			return nil
		}
		if err := s.publishTx(ctx, tx, course); err != nil {
			return err
		}
		return tx.Courses.Update(ctx, course)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("course published", "course_id", course.ID)
	return course, nil
}

type AddModuleInput struct {
	Title string `json:"title" validate:"required,max=200"`
}

func (s *CourseService) AddModule(ctx context.Context, actor Actor, courseID uuid.UUID, input AddModuleInput) (*model.CourseModule, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	var m *model.CourseModule
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := s.authorize(ctx, tx, actor, courseID); err != nil {
			return err
		}
		m = &model.CourseModule{CourseID: courseID, Title: strings.TrimSpace(input.Title)}
		return tx.Courses.CreateModule(ctx, m)
	})
	return m, err
}

type AddLessonInput struct {
	Title   string           `json:"title" validate:"required,max=200"`
	Kind    model.LessonKind `json:"kind" validate:"omitempty,oneof=video text quiz"`
	Content string           `json:"content"`
}

func (s *CourseService) AddLesson(ctx context.Context, actor Actor, moduleID uuid.UUID, input AddLessonInput) (*model.Lesson, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	if input.Kind == "" {
		input.Kind = model.LessonText
	}

	var lesson *model.Lesson
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		m, err := tx.Courses.FindModule(ctx, moduleID)
		if err != nil {
			return err
		}
		if _, err := s.authorize(ctx, tx, actor, m.CourseID); err != nil {
			return err
		}
		lesson = &model.Lesson{
			ModuleID: m.ID,
			CourseID: m.CourseID,
			Title:    strings.TrimSpace(input.Title),
			Kind:     input.Kind,
			Content:  input.Content,
		}
		return tx.Courses.CreateLesson(ctx, lesson)
	})
	return lesson, err
}

type AddQuestionInput struct {
	Prompt       string   `json:"prompt" validate:"required"`
	Options      []string `json:"options" validate:"min=2,dive,required"`
	CorrectIndex int      `json:"correct_index" validate:"gte=0"`
}

func (s *CourseService) AddQuizQuestion(ctx context.Context, actor Actor, lessonID uuid.UUID, input AddQuestionInput) (*model.QuizQuestion, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	if input.CorrectIndex >= len(input.Options) {
		return nil, fmt.Errorf("%w: correct_index out of range", domain.ErrInvalidQuestion)
	}

	var q *model.QuizQuestion
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		lesson, err := tx.Courses.FindLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if _, err := s.authorize(ctx, tx, actor, lesson.CourseID); err != nil {
			return err
		}
		if lesson.Kind != model.LessonQuiz {
			lesson.Kind = model.LessonQuiz
			if err := tx.Courses.UpdateLesson(ctx, lesson); err != nil {
				return err
			}
		}
		q = &model.QuizQuestion{
			LessonID:     lesson.ID,
			Prompt:       input.Prompt,
			Options:      input.Options,
			CorrectIndex: input.CorrectIndex,
		}
		return tx.Courses.CreateQuestion(ctx, q)
	})
	return q, err
}

type VideoInput struct {
	Provider        string            `json:"provider" validate:"required"`
	ProviderAssetID string            `json:"provider_asset_id" validate:"required"`
	PlaybackURL     string            `json:"playback_url" validate:"omitempty,url"`
	DurationSeconds int               `json:"duration_seconds" validate:"gte=0"`
	Status          model.VideoStatus `json:"status" validate:"omitempty,oneof=processing ready errored"`
}

func (s *CourseService) SetVideoMetadata(ctx context.Context, actor Actor, lessonID uuid.UUID, input VideoInput) (*model.VideoMetadata, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	if input.Status == "" {
		input.Status = model.VideoProcessing
	}

	var video *model.VideoMetadata
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		lesson, err := tx.Courses.FindLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if _, err := s.authorize(ctx, tx, actor, lesson.CourseID); err != nil {
			return err
		}
		video = &model.VideoMetadata{
			LessonID:        lesson.ID,
			Provider:        input.Provider,
			ProviderAssetID: input.ProviderAssetID,
			PlaybackURL:     input.PlaybackURL,
			DurationSeconds: input.DurationSeconds,
			Status:          input.Status,
		}
		return tx.Courses.UpsertVideo(ctx, video)
	})
	return video, err
}

// GetOutline returns the ordered course tree. Drafts are visible to the
// authoring account only; lesson bodies and playback URLs are withheld from
// callers without an active enrollment.
func (s *CourseService) GetOutline(ctx context.Context, actor Actor, courseID uuid.UUID) (*model.Course, error) {
	course, err := s.store.Courses.FindOutline(ctx, courseID)
	if err != nil {
		return nil, err
	}

	owner := true
	if _, err := requireOwner(ctx, s.store, actor, course.AccountID); err != nil {
		if !errors.Is(err, domain.ErrNotAccountOwner) && !errors.Is(err, domain.ErrUnauthorized) {
			return nil, err
		}
		owner = false
	}
	if owner {
		return course, nil
	}
	if course.Status != model.CoursePublished {
		return nil, domain.ErrCourseNotFound
	}

	enrolled := false
	if actor.UserID != uuid.Nil {
		e, err := s.store.Enrollments.Find(ctx, actor.UserID, courseID)
		if err != nil && !errors.Is(err, domain.ErrEnrollmentNotFound) {
			return nil, err
		}
		enrolled = e != nil && e.Status == model.EnrollmentActive
	}
	if !enrolled {
		for i := range course.Modules {
			for j := range course.Modules[i].Lessons {
				l := &course.Modules[i].Lessons[j]
				l.Content = ""
				if l.Video != nil {
					l.Video.PlaybackURL = ""
				}
			}
		}
	}
	return course, nil
}
