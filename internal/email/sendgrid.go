package email

import (
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendgridSender is the part of *sendgrid.Client used for course mail.
type sendgridSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridError carries the API status of a rejected message. 4xx responses
// are not worth retrying.
type SendgridError struct {
	StatusCode int
	Body       string
}

func (e *SendgridError) Error() string {
	return fmt.Sprintf("sendgrid rejected message: status %d: %s", e.StatusCode, e.Body)
}

func (e *SendgridError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// sendgridMessage builds the v3 payload. Every message is tagged with the
// template name so invitation and receipt traffic can be told apart in the
// Sendgrid activity feed.
func sendgridMessage(data EmailData, htmlContent, textContent string) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(data.FromName, data.From))
	m.Subject = data.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", data.To))
	p.SetCustomArg("template", data.TemplateName)
	m.AddPersonalizations(p)

	// Plain text must precede HTML in the content list.
	m.AddContent(mail.NewContent("text/plain", textContent), mail.NewContent("text/html", htmlContent))

	if data.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", data.ReplyTo))
	}

	categories := append([]string{data.TemplateName}, data.Categories...)
	m.AddCategories(categories...)
	return m
}

func (s *Service) sendWithSendgrid(data EmailData, htmlContent, textContent string) error {
	if s.sendgrid == nil {
		return fmt.Errorf("sendgrid client not configured")
	}

	response, err := s.sendgrid.Send(sendgridMessage(data, htmlContent, textContent))
	if err != nil {
		return fmt.Errorf("sending %s via sendgrid: %w", data.TemplateName, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &SendgridError{StatusCode: response.StatusCode, Body: response.Body}
	}

	s.logger.Debug("email accepted by sendgrid", "template", data.TemplateName, "status", response.StatusCode)
	return nil
}
