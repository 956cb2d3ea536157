// Package mail renders and sends the shop's transactional emails.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Message is a rendered email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type OrderLine struct {
	PatternName string
	Price       string
	DownloadURL string
}

// OrderConfirmation is the data of the message sent after a completed checkout.
type OrderConfirmation struct {
	CustomerName string
	OrderNumber  string
	OrderDate    time.Time
	Items        []OrderLine
	Total        string
	AppURL       string
}

// FreeDownload is the data of the message carrying a free preview link.
type FreeDownload struct {
	PatternName string
	DownloadURL string
	FullPrice   string
	AppURL      string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// OrderConfirmationMessage renders the order confirmation for to.
func OrderConfirmationMessage(to string, o OrderConfirmation) (Message, error) {
	if o.CustomerName == "" {
		o.CustomerName = CustomerName(to)
	}
	html, err := render("order_confirmation.html", struct {
		OrderConfirmation
		OrderDate string
		Year      int
	}{o, o.OrderDate.Format("January 2, 2006"), o.OrderDate.Year()})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: "Order Confirmation - " + o.OrderNumber, HTML: html}, nil
}

// FreeDownloadMessage renders the free preview email for to.
func FreeDownloadMessage(to string, f FreeDownload) (Message, error) {
	html, err := render("free_download.html", struct {
		FreeDownload
		Year int
	}{f, time.Now().Year()})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: fmt.Sprintf("Your Free %s Pattern is Ready!", f.PatternName), HTML: html}, nil
}

// CustomerName derives a greeting name from the local part of an email.
func CustomerName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// FormatPrice renders minor units with the currency symbol, e.g. 699 EUR as €6.99.
func FormatPrice(cents int64, currency string) string {
	amount := fmt.Sprintf("%d.%02d", cents/100, abs(cents%100))
	switch strings.ToUpper(currency) {
	case "", "EUR":
		return "€" + amount
	case "USD":
		return "$" + amount
	case "GBP":
		return "£" + amount
	}
	return strings.ToUpper(currency) + " " + amount
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// Log is a Mailer that only logs, used when no email provider is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(ctx context.Context, m Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email not sent, no provider configured", "to", m.To, "subject", m.Subject)
	return nil
}
