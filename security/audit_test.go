package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestAuditorHashesUserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	auditor := NewAuditor(logger, true)

	auditor.LogTokenIssued("alice@example.com", "web", "authorization_code", "openid")

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Error("raw user ID leaked into audit log")
	}
	if !strings.Contains(out, "token_issued") {
		t.Errorf("event type missing from log: %s", out)
	}
	if !strings.Contains(out, "authorization_code") {
		t.Errorf("grant type missing from log: %s", out)
	}
}

func TestAuditorDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	auditor := NewAuditor(logger, false)

	auditor.LogGrantRejected("web", "password", "invalid_grant")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(empty) = %q", got)
	}
	a, b := hashForLogging("alice"), hashForLogging("alice")
	if a != b {
		t.Error("hash not deterministic")
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
	if a == hashForLogging("bob") {
		t.Error("distinct inputs collided")
	}
}

func TestSecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("s3cr3t")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if !VerifySecret(hash, "s3cr3t") {
		t.Error("VerifySecret() rejected correct secret")
	}
	if VerifySecret(hash, "wrong") {
		t.Error("VerifySecret() accepted wrong secret")
	}
}
