package email

import (
	"context"
	"log/slog"
)

// devSender logs messages instead of delivering them, the sender wired
// in development and tests.
type devSender struct {
	log *slog.Logger
}

// NewDevSender returns a sender that writes mail to the log.
func NewDevSender(log *slog.Logger) EmailSender {
	if log == nil {
		log = slog.Default()
	}
	return &devSender{log: log}
}

func (s *devSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "email (dev sender, not delivered)",
		"to", params.SendTo,
		"subject", params.Subject,
		"tag", params.Tag,
		"body_bytes", len(params.BodyHTML),
	)
	return nil
}
