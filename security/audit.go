// Package security provides audit logging for token issuance with PII
// protection and helpers for client secret handling.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs a successful token issuance.
func (a *Auditor) LogTokenIssued(userID, clientID, grantType, scope string) {
	a.LogEvent(Event{
		Type:     "token_issued",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"grant_type": grantType,
			"scope":      scope,
		},
	})
}

// LogTokenRefreshed logs a refresh token exchange.
func (a *Auditor) LogTokenRefreshed(userID, clientID string, rotated bool) {
	a.LogEvent(Event{
		Type:     "token_refreshed",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogGrantRejected logs a rejected grant request.
func (a *Auditor) LogGrantRejected(clientID, grantType, errorCode string) {
	a.LogEvent(Event{
		Type:     "grant_rejected",
		ClientID: clientID,
		Details: map[string]any{
			"grant_type": grantType,
			"error":      errorCode,
		},
	})
}

// LogClientAuthFailure logs a failed client authentication.
func (a *Auditor) LogClientAuthFailure(clientID, reason string) {
	a.LogEvent(Event{
		Type:     "client_auth_failed",
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeReuse logs an attempted reuse of a spent authorization code.
// A reused code is a strong theft signal, the whole grant gets revoked.
func (a *Auditor) LogCodeReuse(clientID, grantID string) {
	a.LogEvent(Event{
		Type:     "code_reuse_detected",
		ClientID: clientID,
		Details: map[string]any{
			"grant_id": grantID,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
