package services

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// Session is an authenticated operator for the duration of one request.
type Session struct {
	OperatorID string    `json:"operator_id"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns nil when the context carries no session.
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

func RequireSession(s *Session) error {
	if s == nil || s.OperatorID == "" {
		return ErrUnauthenticated
	}
	return nil
}

// NormalizeEmail lowercases and trims; the result is what gets stored and
// compared everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail accepts a bare address, no display name.
func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
