// Package email sends transactional billing mail through Postmark,
// with a log-only sender for development. Sending is best-effort at the
// call sites: a failed notice never fails the billing operation that
// triggered it.
package email

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidConfig     = errors.New("email: invalid configuration")
	ErrInvalidParams     = errors.New("email: invalid send parameters")
	ErrFailedToSendEmail = errors.New("email: failed to send")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// EmailSender sends a single transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams is one outgoing message.
type SendEmailParams struct {
	SendTo   string
	Subject  string
	BodyHTML string
	Tag      string // Postmark stream analytics tag
}

// Validate checks the parameters before hitting the provider.
func (p SendEmailParams) Validate() error {
	if !emailRegex.MatchString(p.SendTo) {
		return fmt.Errorf("%w: recipient %q", ErrInvalidParams, p.SendTo)
	}
	if p.Subject == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidParams)
	}
	if p.BodyHTML == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidParams)
	}
	return nil
}

// Config holds sender settings.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"EMAIL_SENDER" envDefault:"billing@orunk.example"`
	SupportEmail         string `env:"EMAIL_SUPPORT" envDefault:"support@orunk.example"`
}
