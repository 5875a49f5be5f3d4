package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"BookSnippetCollector/internal/email"
)

const passwordResetSubject = "Your Password Set/Reset Link"

type EmailService struct {
	Mailer    email.Mailer
	FromEmail string
	FromName  string
}

func (s *EmailService) SendPasswordReset(ctx context.Context, toEmail, resetURL string) error {
	if s == nil || s.Mailer == nil {
		return errors.New("mail transport not configured")
	}

	text := strings.Join([]string{
		"You are receiving this email because you (or someone else) requested to set or reset the password for your account.",
		"",
		"Open this link to choose a new password:",
		resetURL,
		"",
		"The link is valid for 10 minutes.",
		"If you did not request this, you can ignore this email.",
	}, "\n")
	link := html.EscapeString(resetURL)
	htmlBody := fmt.Sprintf(`<p>You are receiving this email because you (or someone else) requested to set or reset the password for your account.</p>
<p><a href="%s">Set a new password</a></p>
<p>The link is valid for 10 minutes. If you did not request this, you can ignore this email.</p>`, link)

	return s.Mailer.Send(ctx, email.Message{
		FromName:  s.FromName,
		FromEmail: s.FromEmail,
		ToEmail:   toEmail,
		Subject:   passwordResetSubject,
		TextBody:  text,
		HTMLBody:  htmlBody,
	})
}
