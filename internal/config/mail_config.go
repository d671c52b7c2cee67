package config

import "fmt"

const (
	MailSenderLog    = "log"
	MailSenderResend = "resend"
)

type MailConfig interface {
	GetMailSender() string
	GetResendAPIKey() string
	GetMailFrom() (email, name string)
}

type Mail struct {
	Sender       string `env:"MAIL_SENDER" envDefault:"log"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
	FromEmail    string `env:"MAIL_FROM_EMAIL" envDefault:"no-reply@lipoic.org"`
	FromName     string `env:"MAIL_FROM_NAME" envDefault:"Lipoic"`
}

var _ MailConfig = Mail{}

func (m Mail) GetMailSender() string {
	return m.Sender
}

func (m Mail) GetResendAPIKey() string {
	return m.ResendAPIKey
}

func (m Mail) GetMailFrom() (string, string) {
	return m.FromEmail, m.FromName
}

func (m Mail) validate() error {
	switch m.Sender {
	case MailSenderLog:
	case MailSenderResend:
		if m.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required for MAIL_SENDER=%s", MailSenderResend)
		}
	default:
		return fmt.Errorf("unknown MAIL_SENDER %q", m.Sender)
	}
	return nil
}
