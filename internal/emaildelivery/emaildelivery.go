// Package emaildelivery sends rendered email notifications over SMTP. It is
// the email channel worker's one external dependency (spec §4.4.1).
package emaildelivery

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/models"
)

// Message is the rendered content of one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Client wraps a gomail dialer configured from SMTPConfig.
type Client struct {
	dialer *gomail.Dialer
	from   string
}

// New builds a Client from the loaded SMTP configuration.
func New(cfg config.SMTPConfig) *Client {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.TLS && cfg.Port == 465
	return &Client{dialer: dialer, from: cfg.From}
}

// Send delivers one email. Errors returned are treated as transient by the
// caller (worker) unless they wrap a permanent SMTP rejection - notifyhub
// does not attempt to parse SMTP reply codes, since spec §7 classifies all
// email-provider failures as transient-external and relies on tier retry
// and eventual DLQ rather than per-code disposition.
func (c *Client) Send(msg Message) (messageID string, err error) {
	messageID = models.NewULID().String() + "@notifyhub"

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-Id", "<"+messageID+">")
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := c.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("sending email to %s: %w", msg.To, err)
	}

	return messageID, nil
}
