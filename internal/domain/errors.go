// internal/domain/errors.go
package domain

import "errors"

var (
	// General errors
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Account-related errors
	ErrAccountNotFound          = errors.New("account not found")
	ErrDuplicatePersonalAccount = errors.New("user can only have one personal account")
	ErrNotAccountOwner          = errors.New("caller does not own this account")
	ErrPersonalAccountSeats     = errors.New("personal accounts cannot invite members")

	// Course-related errors
	ErrCourseNotFound   = errors.New("course not found")
	ErrModuleNotFound   = errors.New("module not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrCourseNotReady   = errors.New("course has no lessons")
	ErrDuplicateSlug    = errors.New("course slug already exists")
	ErrInvalidQuestion  = errors.New("invalid quiz question")
	ErrNotAQuizLesson   = errors.New("lesson has no quiz questions")
	ErrAnswerCountMatch = errors.New("answer count does not match question count")

	// Enrollment and seat errors
	ErrNotEnrolled        = errors.New("user is not enrolled in this course")
	ErrAlreadyEnrolled    = errors.New("user is already enrolled in this course")
	ErrNoSeatsAvailable   = errors.New("no seats available")
	ErrSeatPoolNotFound   = errors.New("account has no seats for this course")
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// Invitation errors
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExists   = errors.New("a pending invitation already exists")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationUsed     = errors.New("invitation is no longer pending")
	ErrInvitationEmail    = errors.New("invitation was sent to a different email")

	// Purchase errors
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrUnknownPrice        = errors.New("price is not mapped to a course")
	ErrNoLineItems         = errors.New("checkout session has no purchasable items")
	ErrPurchaserUnresolved = errors.New("purchaser could not be resolved")
	ErrProductNotFound     = errors.New("no active product for course")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrPaymentsDisabled    = errors.New("payments are not configured")

	// Cache-related errors
	ErrLockNotAcquired = errors.New("lock held by another worker")
)
