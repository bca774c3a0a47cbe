package auth

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func TestBuildMagicLinkMessage(t *testing.T) {
	msg, err := buildMagicLinkMessage("club@example.com", "casey@example.com", "Casey", "https://club.example.com/auth/callback?token=abc", 15*time.Minute)
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}

	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "casey@example.com" {
		t.Fatalf("unexpected recipient %v", got)
	}
	var rendered bytes.Buffer
	if _, err := msg.WriteTo(&rendered); err != nil {
		t.Fatalf("failed to render message: %v", err)
	}
	if !strings.Contains(rendered.String(), "token=abc") {
		t.Fatalf("expected rendered message to carry the link")
	}
}

func TestMagicLinkBodiesEscapeDisplayName(t *testing.T) {
	displayName := `<a href="https://evil.example/login">Click here to verify</a>`
	textBody, htmlBody, err := magicLinkBodies(displayName, "https://club.example.com/auth/callback?token=abc", 15*time.Minute)
	if err != nil {
		t.Fatalf("failed to render bodies: %v", err)
	}
	if strings.Contains(htmlBody, "<a href=\"https://evil.example") {
		t.Fatalf("display name markup leaked into the html part: %s", htmlBody)
	}
	if !strings.Contains(htmlBody, "&lt;a href=") {
		t.Fatalf("expected the display name to be escaped, got %s", htmlBody)
	}
	if !strings.Contains(htmlBody, `<a href="https://club.example.com/auth/callback?token=abc">`) {
		t.Fatalf("expected the sign-in link to stay intact, got %s", htmlBody)
	}
	if !strings.Contains(textBody, "expires in 15 minutes") {
		t.Fatalf("expected the text part to state the lifetime, got %s", textBody)
	}
}

func TestMagicLinkBodiesStateConfiguredLifetime(t *testing.T) {
	testCases := []struct {
		ttl  time.Duration
		want string
	}{
		{ttl: 30 * time.Minute, want: "expires in 30 minutes"},
		{ttl: time.Minute, want: "expires in 1 minute"},
		{ttl: 90 * time.Second, want: "expires in 2 minutes"},
		{ttl: time.Hour, want: "expires in 1 hour"},
		{ttl: 2 * time.Hour, want: "expires in 2 hours"},
	}
	for _, testCase := range testCases {
		textBody, htmlBody, err := magicLinkBodies("Casey", "https://club.example.com/auth/callback?token=abc", testCase.ttl)
		if err != nil {
			t.Fatalf("%s: failed to render bodies: %v", testCase.ttl, err)
		}
		if !strings.Contains(textBody, testCase.want) || !strings.Contains(htmlBody, testCase.want) {
			t.Fatalf("%s: expected %q in both parts, got %q / %q", testCase.ttl, testCase.want, textBody, htmlBody)
		}
	}
}

func TestNewSMTPMailerRequiresHost(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{}, nil); err == nil {
		t.Fatalf("expected missing host error")
	}
}

func TestLogSendersRecordDelivery(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	if err := (LogSMSSender{Logger: logger}).SendCode(context.Background(), "+15551234567", "123456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (LogMailer{Logger: logger}).SendMagicLink(context.Background(), "a@example.com", "A", "https://x/auth/callback?token=t", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("expected two log entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["phone"] != "+15551234567" {
		t.Fatalf("expected phone field, got %v", entries[0].ContextMap())
	}
}
