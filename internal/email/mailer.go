package email

import (
	"context"
	"errors"
	"strings"
)

type Message struct {
	FromName  string
	FromEmail string
	ToEmail   string
	Subject   string
	TextBody  string
	HTMLBody  string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

func (m Message) validate() error {
	if strings.TrimSpace(m.FromEmail) == "" {
		return errors.New("email: missing sender")
	}
	if strings.TrimSpace(m.ToEmail) == "" {
		return errors.New("email: missing recipient")
	}
	if strings.ContainsAny(m.ToEmail+m.FromEmail+m.Subject, "\r\n") {
		return errors.New("email: header contains a line break")
	}
	return nil
}
