package email

import (
	"strings"
	"testing"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("no-reply@placedesk.local", "owner@example.com", "New message", "You have a new customer message.")
	for _, want := range []string{
		"From: no-reply@placedesk.local\r\n",
		"To: owner@example.com\r\n",
		"Subject: New message\r\n",
		"\r\n\r\nYou have a new customer message.\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNewSMTPSenderDefaultsFrom(t *testing.T) {
	s := NewSMTPSender("mailpit", "1025", "  ")
	if s.from != "no-reply@placedesk.local" {
		t.Fatalf("expected default from, got %q", s.from)
	}
	if s.addr != "mailpit:1025" {
		t.Fatalf("unexpected addr %q", s.addr)
	}
}
