// Package newsletter syncs opt-ins to the MailerLite mailing list.
package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://connect.mailerlite.com/api"

var ErrNotConfigured = errors.New("newsletter provider not configured")

// Subscriber adds an email to the mailing list, tagging where it came from.
type Subscriber interface {
	Subscribe(ctx context.Context, email, source string) error
}

type Config struct {
	APIKey  string
	GroupID string
	BaseURL string
}

// MailerLite is the Subscriber backed by the MailerLite connect API.
type MailerLite struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

var _ Subscriber = (*MailerLite)(nil)

func NewMailerLite(cfg Config, client *http.Client, logger *slog.Logger) *MailerLite {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MailerLite{cfg: cfg, http: client, log: logger}
}

// Subscribe creates an active subscriber. A subscriber that already exists counts as success and
// is put into the configured group.
func (m *MailerLite) Subscribe(ctx context.Context, email, source string) error {
	if m.cfg.APIKey == "" {
		return ErrNotConfigured
	}
	body := map[string]any{
		"email":  email,
		"status": "active",
		"fields": map[string]string{"source": source},
	}
	if m.cfg.GroupID != "" {
		body["groups"] = []string{m.cfg.GroupID}
	}
	status, data, err := m.do(ctx, http.MethodPost, "/subscribers", body)
	if err != nil {
		return err
	}
	if status < 300 {
		m.log.InfoContext(ctx, "newsletter subscriber added", "email", email, "source", source)
		return nil
	}
	message := gjson.GetBytes(data, "message").String()
	if status == http.StatusUnprocessableEntity || strings.Contains(message, "already exists") {
		m.log.InfoContext(ctx, "newsletter subscriber exists", "email", email)
		if m.cfg.GroupID != "" {
			m.addToGroup(ctx, email)
		}
		return nil
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("mailerlite: %d %s", status, message)
}

// addToGroup looks the subscriber up by email and adds it to the configured group. Failures are
// only logged.
func (m *MailerLite) addToGroup(ctx context.Context, email string) {
	_, data, err := m.do(ctx, http.MethodGet, "/subscribers?filter[email]="+url.QueryEscape(email), nil)
	if err != nil {
		m.log.WarnContext(ctx, "newsletter subscriber lookup failed", "email", email, "err", err)
		return
	}
	id := gjson.GetBytes(data, "data.0.id").String()
	if id == "" {
		return
	}
	status, _, err := m.do(ctx, http.MethodPost, fmt.Sprintf("/subscribers/%s/groups/%s", url.PathEscape(id), url.PathEscape(m.cfg.GroupID)), nil)
	if err != nil || status >= 300 {
		m.log.WarnContext(ctx, "newsletter group assignment failed", "email", email, "status", status, "err", err)
	}
}

func (m *MailerLite) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("mailerlite %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}
