package mail

import (
	"context"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v2"
)

// DefaultFrom is the sender of every shop email unless configured otherwise.
const DefaultFrom = "Pattern Pioneer <orders@patternpioneerstudio.com>"

// Resend delivers messages through the Resend API.
type Resend struct {
	client *resend.Client
	from   string
}

var _ Mailer = (*Resend)(nil)

// NewResend returns a Resend mailer. An empty baseURL keeps the client's default endpoint.
func NewResend(apiKey, from, baseURL string) (*Resend, error) {
	client := resend.NewClient(apiKey)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("resend base url: %w", err)
		}
		client.BaseURL = u
	}
	if from == "" {
		from = DefaultFrom
	}
	return &Resend{client: client, from: from}, nil
}

func (r *Resend) Send(ctx context.Context, m Message) error {
	_, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      m.To,
		Subject: m.Subject,
		Html:    m.HTML,
	})
	if err != nil {
		return fmt.Errorf("send %q: %w", m.Subject, err)
	}
	return nil
}
