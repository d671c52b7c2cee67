package mailer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Lipoic/Lipoic-Server/mailer"
	"github.com/Lipoic/Lipoic-Server/mailer/senderfake"
	"github.com/stretchr/testify/require"
)

func TestEmailValidate(t *testing.T) {
	require.ErrorIs(t, (&mailer.Email{Subject: "s", HTML: "h"}).Validate(), mailer.ErrNoRecipient)
	require.ErrorIs(t, (&mailer.Email{To: []string{"a@x.com"}, HTML: "h"}).Validate(), mailer.ErrNoSubject)
	require.ErrorIs(t, (&mailer.Email{To: []string{"a@x.com"}, Subject: "s"}).Validate(), mailer.ErrNoContent)
	require.NoError(t, (&mailer.Email{To: []string{"a@x.com"}, Subject: "s", HTML: "h"}).Validate())
}

func TestLogSender(t *testing.T) {
	err := mailer.LogSender{}.Send(context.Background(), &mailer.Email{To: []string{"a@x.com"}, Subject: "s", HTML: "h"})
	require.NoError(t, err)
	require.Error(t, mailer.LogSender{}.Send(context.Background(), &mailer.Email{}))
}

func TestVerificationMailer(t *testing.T) {
	t.Run("sends link", func(t *testing.T) {
		sender := &senderfake.Sender{}
		m, err := mailer.NewVerificationMailer(sender, "https://api.lipoic.org/", "10 minutes")
		require.NoError(t, err)

		require.NoError(t, m.SendVerification(context.Background(), "a@x.com", "abc.def"))

		sent := sender.Sent()
		require.Len(t, sent, 1)
		require.Equal(t, []string{"a@x.com"}, sent[0].To)
		require.NotEmpty(t, sent[0].Subject)
		require.Contains(t, sent[0].Text, "https://api.lipoic.org/verify-email?code=abc.def")
		require.Contains(t, sent[0].Text, "10 minutes")
		require.Contains(t, sent[0].HTML, `<a href="https://api.lipoic.org/verify-email?code=abc.def">`)
		require.Contains(t, sent[0].HTML, "<strong>a@x.com</strong>")
	})

	t.Run("delivery failure", func(t *testing.T) {
		boom := errors.New("boom")
		m, err := mailer.NewVerificationMailer(&senderfake.Sender{Err: boom}, "https://x", "1m")
		require.NoError(t, err)
		require.ErrorIs(t, m.SendVerification(context.Background(), "a@x.com", "c"), boom)
	})

	t.Run("constructor", func(t *testing.T) {
		_, err := mailer.NewVerificationMailer(nil, "https://x", "1m")
		require.Error(t, err)
		_, err = mailer.NewVerificationMailer(&senderfake.Sender{}, "", "1m")
		require.Error(t, err)
	})
}
