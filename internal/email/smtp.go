package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// smtpSendFunc matches smtp.SendMail.
type smtpSendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// mimeMessage renders a multipart/alternative message with base64 bodies.
// Subject and display names are Q-encoded so course titles may carry any
// UTF-8.
func mimeMessage(data EmailData, htmlContent, textContent string, now time.Time) []byte {
	boundary := "coursehub-" + uuid.NewString()
	from := mail.Address{Name: data.FromName, Address: data.From}
	domain := data.From[strings.LastIndex(data.From, "@")+1:]

	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", from.String())
	header("To", data.To)
	if data.ReplyTo != "" {
		header("Reply-To", data.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", data.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain))
	header("X-CourseHub-Template", data.TemplateName)
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", textContent},
		{"text/html; charset=utf-8", htmlContent},
	} {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		header("Content-Type", part.contentType)
		header("Content-Transfer-Encoding", "base64")
		buf.WriteString("\r\n")
		writeWrapped(&buf, base64.StdEncoding.EncodeToString([]byte(part.body)))
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}

// writeWrapped keeps encoded lines under the 998 byte SMTP limit.
func writeWrapped(buf *bytes.Buffer, s string) {
	const width = 76
	for len(s) > width {
		buf.WriteString(s[:width])
		buf.WriteString("\r\n")
		s = s[width:]
	}
	buf.WriteString(s)
	buf.WriteString("\r\n")
}

func (s *Service) sendWithSMTP(data EmailData, htmlContent, textContent string) error {
	server, ok := s.config.SMTP["default"]
	if !ok {
		return fmt.Errorf("smtp server not configured")
	}

	var auth smtp.Auth
	if server.Username != "" {
		auth = smtp.PlainAuth("", server.Username, server.Password, server.Host)
	}
	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)

	msg := mimeMessage(data, htmlContent, textContent, time.Now())
	if err := s.smtpSend(addr, auth, data.From, []string{data.To}, msg); err != nil {
		return fmt.Errorf("sending %s via smtp %s: %w", data.TemplateName, addr, err)
	}
	return nil
}
