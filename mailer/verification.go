package mailer

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
)

const verificationSubject = "Verify your Lipoic account"

// The body is markdown: sent as-is for the text part and rendered with goldmark for HTML.
var verificationBody = template.Must(template.New("verify").Parse(`# Welcome to Lipoic

Please confirm that **{{.Email}}** is your e-mail address.

[Verify e-mail]({{.Link}})

The link expires in {{.Expiry}}. If you did not sign up, ignore this message.
`))

// VerificationMailer composes and sends account verification e-mails.
type VerificationMailer struct {
	sender  Sender
	baseURL string
	expiry  string
	md      goldmark.Markdown
}

// NewVerificationMailer builds links as <baseURL>/verify-email?code=<code>.
func NewVerificationMailer(sender Sender, baseURL, expiry string) (*VerificationMailer, error) {
	if sender == nil {
		return nil, errors.New("[mailer.NewVerificationMailer] sender is required")
	}
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, errors.New("[mailer.NewVerificationMailer] valid base url is required")
	}
	return &VerificationMailer{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		expiry:  expiry,
		md:      goldmark.New(),
	}, nil
}

// Link returns the verification URL for code.
func (m *VerificationMailer) Link(code string) string {
	return m.baseURL + "/verify-email?code=" + url.QueryEscape(code)
}

func (m *VerificationMailer) SendVerification(ctx context.Context, to, code string) error {
	var text bytes.Buffer
	err := verificationBody.Execute(&text, map[string]string{
		"Email":  to,
		"Link":   m.Link(code),
		"Expiry": m.expiry,
	})
	if err != nil {
		return errors.Wrap(err, "[VerificationMailer.SendVerification] render text")
	}

	var html bytes.Buffer
	if err := m.md.Convert(text.Bytes(), &html); err != nil {
		return errors.Wrap(err, "[VerificationMailer.SendVerification] render html")
	}

	email := &Email{
		To:      []string{to},
		Subject: verificationSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}
	return errors.Wrap(m.sender.Send(ctx, email), "[VerificationMailer.SendVerification] send")
}
