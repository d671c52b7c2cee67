// Package senderfake records mail instead of sending it.
package senderfake

import (
	"context"
	"sync"

	"github.com/Lipoic/Lipoic-Server/mailer"
)

var _ mailer.Sender = (*Sender)(nil)

type Sender struct {
	lock sync.Mutex
	sent []mailer.Email
	// Err, when set, is returned by Send and nothing is recorded.
	Err error
}

func (s *Sender) Send(_ context.Context, email *mailer.Email) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, *email)
	return nil
}

// Sent returns a copy of the recorded mail.
func (s *Sender) Sent() []mailer.Email {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]mailer.Email(nil), s.sent...)
}
