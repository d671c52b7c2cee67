package resend_test

import (
	"context"
	"testing"

	"github.com/Lipoic/Lipoic-Server/mailer"
	"github.com/Lipoic/Lipoic-Server/mailer/resend"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := resend.New(resend.Config{SenderEmail: "no-reply@lipoic.org"})
	require.Error(t, err)

	s, err := resend.New(resend.Config{APIKey: "re_test", SenderEmail: "no-reply@lipoic.org", SenderName: "Lipoic"})
	require.NoError(t, err)

	// Invalid mail is rejected before any API call.
	require.ErrorIs(t, s.Send(context.Background(), &mailer.Email{}), mailer.ErrNoRecipient)
}
