// internal/email/mailer/mailer.go
package mailer

import (
	"context"
	"time"

	"github.com/dangerclosesec/coursehub/internal/email"
)

//go:generate mockgen -source=./mailer.go -destination=../../mocks/mock_notifier.go -package=mocks Notifier

// Notifier sends the learner-facing emails of the purchase flow.
type Notifier interface {
	SendCourseInvitation(ctx context.Context, data CourseInvitationData) error
	SendPurchaseReceipt(ctx context.Context, data PurchaseReceiptData) error
}

type CourseInvitationData struct {
	Email       string
	CourseTitle string
	AccountName string
	InviterName string
	AcceptURL   string
	ExpiresAt   time.Time
}

type ReceiptItem struct {
	CourseTitle string
	Seats       int
}

type PurchaseReceiptData struct {
	Email        string
	SessionID    string
	AccountName  string
	Team         bool
	Items        []ReceiptItem
	DashboardURL string
}

// CourseMailer renders the embedded templates through an email.Service.
type CourseMailer struct {
	svc *email.Service
}

func NewCourseMailer(svc *email.Service) *CourseMailer {
	return &CourseMailer{svc: svc}
}

func (m *CourseMailer) SendCourseInvitation(_ context.Context, data CourseInvitationData) error {
	return m.svc.SendEmail(email.EmailData{
		To:           data.Email,
		Subject:      "You're invited to " + data.CourseTitle,
		TemplateName: "course_invitation",
		TemplateData: data,
		Categories:   []string{"team_seats"},
	})
}

func (m *CourseMailer) SendPurchaseReceipt(_ context.Context, data PurchaseReceiptData) error {
	return m.svc.SendEmail(email.EmailData{
		To:           data.Email,
		Subject:      "Your course purchase is complete",
		TemplateName: "purchase_receipt",
		TemplateData: data,
	})
}
