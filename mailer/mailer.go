// Package mailer delivers the verification e-mails sent after signup.
package mailer

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNoRecipient indicates no recipient was specified.
	ErrNoRecipient = errors.New("email must have at least one recipient")

	// ErrNoSubject indicates no subject was provided.
	ErrNoSubject = errors.New("email must have a subject")

	// ErrNoContent indicates no HTML content was provided.
	ErrNoContent = errors.New("email must have HTML content")
)

// Email is a fully prepared message.
type Email struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Validate checks the fields every provider requires.
func (e *Email) Validate() error {
	if len(e.To) == 0 {
		return ErrNoRecipient
	}
	if strings.TrimSpace(e.Subject) == "" {
		return ErrNoSubject
	}
	if strings.TrimSpace(e.HTML) == "" {
		return ErrNoContent
	}
	return nil
}

// Sender is implemented by e-mail providers.
type Sender interface {
	Send(ctx context.Context, email *Email) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, email *Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	log.Info().
		Strs("to", email.To).
		Str("subject", email.Subject).
		Str("body", email.Text).
		Msg("email not delivered (log sender)")
	return nil
}
