package email

import (
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/dangerclosesec/coursehub/internal/config"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiptData() map[string]interface{} {
	return map[string]interface{}{
		"SessionID": "cs_1", "Items": []map[string]interface{}{{"CourseTitle": "Go", "Seats": 1}},
		"Team": false, "AccountName": "", "DashboardURL": "https://app.example.com",
	}
}

type fakeSendgrid struct {
	sent   []*sgmail.SGMailV3
	status int
	err    error
}

func (f *fakeSendgrid) Send(m *sgmail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, m)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status, Body: "body"}, nil
}

func TestLoadTemplates(t *testing.T) {
	svc, err := NewEmailService(&config.Config{}, ProviderLog, nil)
	require.NoError(t, err)

	assert.Contains(t, svc.Templates, "course_invitation")
	assert.Contains(t, svc.Templates, "purchase_receipt")
}

func TestRenderInvitation(t *testing.T) {
	svc, err := NewEmailService(&config.Config{}, ProviderLog, nil)
	require.NoError(t, err)

	html, text, err := svc.renderTemplate("course_invitation", map[string]interface{}{
		"Email":       "dev@example.com",
		"CourseTitle": "Go <Basics>",
		"AccountName": "Acme",
		"InviterName": "",
		"AcceptURL":   "https://app.example.com/invitations/accept?token=abc",
		"ExpiresAt":   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Go &lt;Basics&gt;")
	assert.Contains(t, text, "Go <Basics>")
	assert.Contains(t, text, "March 1, 2026")
	assert.Contains(t, text, "token=abc")
}

func TestSendEmail_UnknownTemplate(t *testing.T) {
	svc, err := NewEmailService(&config.Config{}, ProviderLog, nil)
	require.NoError(t, err)

	err = svc.SendEmail(EmailData{To: "a@example.com", TemplateName: "missing"})
	assert.Error(t, err)

	err = svc.SendEmail(EmailData{To: "a@example.com", TemplateName: "purchase_receipt", TemplateData: map[string]interface{}{
		"SessionID": "cs_1", "Items": []map[string]interface{}{{"CourseTitle": "Go", "Seats": 1}},
		"Team": false, "AccountName": "", "DashboardURL": "https://app.example.com",
	}})
	assert.NoError(t, err)
}

func TestSendEmail_SMTPRequiresServer(t *testing.T) {
	svc, err := NewEmailService(&config.Config{}, ProviderSMTP, nil)
	require.NoError(t, err)

	err = svc.SendEmail(EmailData{To: "a@example.com", From: "noreply@example.com", TemplateName: "purchase_receipt", TemplateData: map[string]interface{}{
		"SessionID": "cs_1", "Items": nil, "Team": false, "AccountName": "", "DashboardURL": "",
	}})
	assert.ErrorContains(t, err, "smtp server not configured")
}

func TestSendgridMessage(t *testing.T) {
	m := sendgridMessage(EmailData{
		To:           "dev@example.com",
		From:         "noreply@coursehub.test",
		FromName:     "CourseHub",
		ReplyTo:      "support@coursehub.test",
		Subject:      "You're invited to Go",
		TemplateName: "course_invitation",
		Categories:   []string{"team_seats"},
	}, "<p>hi</p>", "hi")

	require.NotNil(t, m.From)
	assert.Equal(t, "noreply@coursehub.test", m.From.Address)
	assert.Equal(t, "CourseHub", m.From.Name)
	require.Len(t, m.Personalizations, 1)
	require.Len(t, m.Personalizations[0].To, 1)
	assert.Equal(t, "dev@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "course_invitation", m.Personalizations[0].CustomArgs["template"])
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "support@coursehub.test", m.ReplyTo.Address)
	assert.Equal(t, []string{"course_invitation", "team_seats"}, m.Categories)

	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)

	bare := sendgridMessage(EmailData{To: "a@example.com", From: "b@example.com", TemplateName: "purchase_receipt"}, "", "")
	assert.Nil(t, bare.ReplyTo)
	assert.Equal(t, []string{"purchase_receipt"}, bare.Categories)
}

func TestSendEmail_Sendgrid(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sendgrid.From = "noreply@coursehub.test"
	cfg.Email.FromName = "CourseHub"
	cfg.Email.ReplyTo = "support@coursehub.test"

	svc, err := NewEmailService(cfg, ProviderSendgrid, nil)
	require.NoError(t, err)

	for _, tc := range []struct {
		name      string
		fake      *fakeSendgrid
		wantErr   bool
		permanent bool
	}{
		{"accepted", &fakeSendgrid{status: 202}, false, false},
		{"bad request", &fakeSendgrid{status: 400}, true, true},
		{"server error", &fakeSendgrid{status: 503}, true, false},
		{"transport", &fakeSendgrid{err: errors.New("dial tcp: timeout")}, true, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc.sendgrid = tc.fake
			err := svc.SendEmail(EmailData{To: "dev@example.com", Subject: "Receipt", TemplateName: "purchase_receipt", TemplateData: receiptData()})
			require.Len(t, tc.fake.sent, 1)
			assert.Equal(t, "noreply@coursehub.test", tc.fake.sent[0].From.Address)
			assert.Equal(t, "support@coursehub.test", tc.fake.sent[0].ReplyTo.Address)

			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var sgErr *SendgridError
			if errors.As(err, &sgErr) {
				assert.Equal(t, tc.permanent, sgErr.Permanent())
			} else {
				assert.False(t, tc.permanent)
				assert.ErrorContains(t, err, "purchase_receipt")
			}
		})
	}
}

func TestMimeMessage(t *testing.T) {
	html := "<p>" + strings.Repeat("Welcome to the course. ", 20) + "</p>"
	raw := mimeMessage(EmailData{
		To:           "dev@example.com",
		From:         "noreply@coursehub.test",
		FromName:     "CourseHub Académie",
		ReplyTo:      "support@coursehub.test",
		Subject:      "You're invited to Café Go",
		TemplateName: "course_invitation",
	}, html, "plain body", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	for _, line := range strings.Split(string(raw), "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
	}

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "You're invited to Café Go", subject)

	from, err := msg.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "CourseHub Académie", from[0].Name)
	assert.Equal(t, "noreply@coursehub.test", from[0].Address)

	assert.Equal(t, "support@coursehub.test", msg.Header.Get("Reply-To"))
	assert.Equal(t, "course_invitation", msg.Header.Get("X-CourseHub-Template"))
	assert.True(t, strings.HasSuffix(msg.Header.Get("Message-ID"), "@coursehub.test>"))

	date, err := msg.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	var bodies []string
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		encoded, err := io.ReadAll(part)
		require.NoError(t, err)
		decoded, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(string(encoded)))
		require.NoError(t, err)
		bodies = append(bodies, string(decoded))
	}
	assert.Equal(t, []string{"plain body", html}, bodies)
}

func TestSendEmail_SMTP(t *testing.T) {
	cfg := &config.Config{SMTP: map[string]config.SMTPServer{
		"default": {Host: "smtp.coursehub.test", Port: 2525, From: "noreply@coursehub.test"},
	}}
	svc, err := NewEmailService(cfg, ProviderSMTP, nil)
	require.NoError(t, err)

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
	)
	svc.smtpSend = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
		return nil
	}

	require.NoError(t, svc.SendEmail(EmailData{To: "dev@example.com", Subject: "Receipt", TemplateName: "purchase_receipt", TemplateData: receiptData()}))
	assert.Equal(t, "smtp.coursehub.test:2525", gotAddr)
	assert.Nil(t, gotAuth, "no auth without a username")
	assert.Equal(t, "noreply@coursehub.test", gotFrom)
	assert.Equal(t, []string{"dev@example.com"}, gotTo)

	svc.smtpSend = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("421 service not available")
	}
	err = svc.SendEmail(EmailData{To: "dev@example.com", Subject: "Receipt", TemplateName: "purchase_receipt", TemplateData: receiptData()})
	assert.ErrorContains(t, err, "smtp.coursehub.test:2525")
	assert.ErrorContains(t, err, "421")
}
