package emaildelivery

import (
	"testing"

	"github.com/amityvox/notifyhub/internal/config"
)

func TestNew_ConfiguresDialerFromConfig(t *testing.T) {
	c := New(config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		TLS:      true,
		Username: "user",
		Password: "pass",
		From:     "notifications@example.com",
	})
	if c.from != "notifications@example.com" {
		t.Errorf("from = %q, want notifications@example.com", c.from)
	}
	if c.dialer.Host != "smtp.example.com" {
		t.Errorf("host = %q, want smtp.example.com", c.dialer.Host)
	}
	if c.dialer.Port != 587 {
		t.Errorf("port = %d, want 587", c.dialer.Port)
	}
}

func TestNew_SSLOnlyFor465(t *testing.T) {
	c := New(config.SMTPConfig{Host: "h", Port: 587, TLS: true})
	if c.dialer.SSL {
		t.Error("SSL should be false for STARTTLS port 587")
	}

	c2 := New(config.SMTPConfig{Host: "h", Port: 465, TLS: true})
	if !c2.dialer.SSL {
		t.Error("SSL should be true for implicit-TLS port 465")
	}
}
