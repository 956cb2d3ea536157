// Package mailtest records sent mail for tests.
package mailtest

import (
	"context"
	"sync"

	"github.com/pioneerstudio/patternshop/mail"
)

// Outbox is a Mailer that keeps every message. A non nil Err fails every send.
type Outbox struct {
	mu   sync.Mutex
	Err  error
	sent []mail.Message
}

var _ mail.Mailer = (*Outbox)(nil)

func (o *Outbox) Send(_ context.Context, m mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.sent = append(o.sent, m)
	return nil
}

func (o *Outbox) Sent() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mail.Message(nil), o.sent...)
}
