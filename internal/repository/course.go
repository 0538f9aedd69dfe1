// internal/repository/course.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) Create(ctx context.Context, course *model.Course) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Course{}).Where("slug = ?", course.Slug).Count(&count).Error; err != nil {
		return fmt.Errorf("checking course slug: %w", err)
	}
	if count > 0 {
		return domain.ErrDuplicateSlug
	}
	if err := r.db.WithContext(ctx).Create(course).Error; err != nil {
		return fmt.Errorf("creating course: %w", err)
	}
	return nil
}

func (r *CourseRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	var course model.Course
	if err := r.db.WithContext(ctx).First(&course, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, fmt.Errorf("finding course: %w", err)
	}
	return &course, nil
}

// FindOutline loads a course with its modules, lessons, video metadata and
// questions, all ordered by position.
func (r *CourseRepository) FindOutline(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	var course model.Course
	err := r.db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Modules.Lessons.Video").
		Preload("Modules.Lessons.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&course, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, fmt.Errorf("finding course outline: %w", err)
	}
	return &course, nil
}

func (r *CourseRepository) Update(ctx context.Context, course *model.Course) error {
	if err := r.db.WithContext(ctx).Save(course).Error; err != nil {
		return fmt.Errorf("updating course: %w", err)
	}
	return nil
}

// CreateModule appends a module after the course's last one.
func (r *CourseRepository) CreateModule(ctx context.Context, m *model.CourseModule) error {
	var maxPos *int
	if err := r.db.WithContext(ctx).Model(&model.CourseModule{}).
		Where("course_id = ?", m.CourseID).
		Select("MAX(position)").Scan(&maxPos).Error; err != nil {
		return fmt.Errorf("finding module position: %w", err)
	}
	m.Position = nextPosition(maxPos)

	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("creating module: %w", err)
	}
	return nil
}

func (r *CourseRepository) FindModule(ctx context.Context, id uuid.UUID) (*model.CourseModule, error) {
	var m model.CourseModule
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrModuleNotFound
		}
		return nil, fmt.Errorf("finding module: %w", err)
	}
	return &m, nil
}

// CreateLesson appends a lesson after the module's last one.
func (r *CourseRepository) CreateLesson(ctx context.Context, l *model.Lesson) error {
	var maxPos *int
	if err := r.db.WithContext(ctx).Model(&model.Lesson{}).
		Where("module_id = ?", l.ModuleID).
		Select("MAX(position)").Scan(&maxPos).Error; err != nil {
		return fmt.Errorf("finding lesson position: %w", err)
	}
	l.Position = nextPosition(maxPos)

	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("creating lesson: %w", err)
	}
	return nil
}

func (r *CourseRepository) FindLesson(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	var l model.Lesson
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLessonNotFound
		}
		return nil, fmt.Errorf("finding lesson: %w", err)
	}
	return &l, nil
}

func (r *CourseRepository) UpdateLesson(ctx context.Context, l *model.Lesson) error {
	if err := r.db.WithContext(ctx).Omit("Video", "Questions").Save(l).Error; err != nil {
		return fmt.Errorf("updating lesson: %w", err)
	}
	return nil
}

func (r *CourseRepository) CountLessons(ctx context.Context, courseID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Lesson{}).Where("course_id = ?", courseID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting lessons: %w", err)
	}
	return count, nil
}

func (r *CourseRepository) CreateQuestion(ctx context.Context, q *model.QuizQuestion) error {
	var maxPos *int
	if err := r.db.WithContext(ctx).Model(&model.QuizQuestion{}).
		Where("lesson_id = ?", q.LessonID).
		Select("MAX(position)").Scan(&maxPos).Error; err != nil {
		return fmt.Errorf("finding question position: %w", err)
	}
	q.Position = nextPosition(maxPos)

	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("creating quiz question: %w", err)
	}
	return nil
}

func (r *CourseRepository) FindQuestions(ctx context.Context, lessonID uuid.UUID) ([]model.QuizQuestion, error) {
	var questions []model.QuizQuestion
	if err := r.db.WithContext(ctx).Where("lesson_id = ?", lessonID).Order("position ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("finding quiz questions: %w", err)
	}
	return questions, nil
}

// UpsertVideo stores the lesson's video metadata, replacing any previous row.
func (r *CourseRepository) UpsertVideo(ctx context.Context, v *model.VideoMetadata) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lesson_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"provider", "provider_asset_id", "playback_url", "duration_seconds", "status", "updated_at"}),
		}).
		Create(v).Error
	if err != nil {
		return fmt.Errorf("upserting video metadata: %w", err)
	}
	return nil
}

func nextPosition(maxPos *int) int {
	if maxPos == nil {
		return 1
	}
	return *maxPos + 1
}
