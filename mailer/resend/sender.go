// Package resend delivers mail through the Resend API.
package resend

import (
	"context"
	"fmt"

	"github.com/Lipoic/Lipoic-Server/mailer"
	"github.com/resend/resend-go/v3"
)

var _ mailer.Sender = (*Sender)(nil)

// Config holds Resend credentials and the sender identity.
type Config struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

// Sender implements mailer.Sender using the Resend API.
type Sender struct {
	client *resend.Client
	from   string
}

func New(cfg Config) (*Sender, error) {
	if cfg.APIKey == "" || cfg.SenderEmail == "" {
		return nil, fmt.Errorf("resend: api key and sender email are required")
	}
	from := cfg.SenderEmail
	if cfg.SenderName != "" {
		from = mailerAddress(cfg.SenderName, cfg.SenderEmail)
	}
	return &Sender{client: resend.NewClient(cfg.APIKey), from: from}, nil
}

func (s *Sender) Send(ctx context.Context, email *mailer.Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}

func mailerAddress(name, email string) string {
	return fmt.Sprintf("%s <%s>", name, email)
}
