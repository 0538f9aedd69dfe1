// internal/model/course.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

type LessonKind string

const (
	LessonVideo LessonKind = "video"
	LessonText  LessonKind = "text"
	LessonQuiz  LessonKind = "quiz"
)

type Course struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"account_id"`
	Title       string       `gorm:"type:text;not null" json:"title"`
	Slug        string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Description string       `gorm:"type:text" json:"description"`
	Status      CourseStatus `gorm:"type:text;not null;default:'draft';index" json:"status"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	Modules []CourseModule `gorm:"foreignKey:CourseID" json:"modules,omitempty"`
}

func (Course) TableName() string { return "courses" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

type CourseModule struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Position  int       `gorm:"not null" json:"position"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lessons []Lesson `gorm:"foreignKey:ModuleID" json:"lessons,omitempty"`
}

func (CourseModule) TableName() string { return "modules" }

func (m *CourseModule) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

type Lesson struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"module_id"`
	CourseID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"course_id"`
	Position  int        `gorm:"not null" json:"position"`
	Title     string     `gorm:"type:text;not null" json:"title"`
	Kind      LessonKind `gorm:"type:text;not null;default:'text'" json:"kind"`
	Content   string     `gorm:"type:text" json:"content,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Video     *VideoMetadata `gorm:"foreignKey:LessonID" json:"video,omitempty"`
	Questions []QuizQuestion `gorm:"foreignKey:LessonID" json:"questions,omitempty"`
}

func (Lesson) TableName() string { return "lessons" }

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

type QuizQuestion struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID     uuid.UUID                   `gorm:"type:uuid;not null;index" json:"lesson_id"`
	Position     int                         `gorm:"not null" json:"position"`
	Prompt       string                      `gorm:"type:text;not null" json:"prompt"`
	Options      datatypes.JSONSlice[string] `gorm:"not null" json:"options"`
	CorrectIndex int                         `gorm:"not null" json:"-"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (QuizQuestion) TableName() string { return "quiz_questions" }

func (q *QuizQuestion) BeforeCreate(tx *gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

type VideoStatus string

const (
	VideoProcessing VideoStatus = "processing"
	VideoReady      VideoStatus = "ready"
	VideoErrored    VideoStatus = "errored"
)

type VideoMetadata struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID        uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex" json:"lesson_id"`
	Provider        string      `gorm:"type:text;not null" json:"provider"`
	ProviderAssetID string      `gorm:"type:text;not null" json:"provider_asset_id"`
	PlaybackURL     string      `gorm:"type:text" json:"playback_url,omitempty"`
	DurationSeconds int         `gorm:"not null;default:0" json:"duration_seconds"`
	Status          VideoStatus `gorm:"type:text;not null;default:'processing'" json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (VideoMetadata) TableName() string { return "video_metadata" }

func (v *VideoMetadata) BeforeCreate(tx *gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
