package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DefaultSessionTTL is how long an issued session stays valid.
const DefaultSessionTTL = 12 * time.Hour

// Session is an authenticated admin session.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Sessions checks admin credentials and issues opaque session tokens.
type Sessions struct {
	email    string
	hash     []byte
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
	sessions map[string]Session
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithSessionTTL sets how long issued sessions stay valid.
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock sets the clock used for expiry.
func WithSessionClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) {
		s.now = now
	}
}

// NewSessions creates a session service for a single admin account.
// The password is kept only as a bcrypt hash.
func NewSessions(email, password string, opts ...SessionsOption) (*Sessions, error) {
	if email == "" || password == "" {
		return nil, errors.New("admin email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	s := &Sessions{
		email:    strings.ToLower(email),
		hash:     hash,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login verifies credentials and issues a new session.
func (s *Sessions) Login(_ context.Context, email, password string) (Session, error) {
	if !strings.EqualFold(email, s.email) {
		// Keep timing similar to a wrong password.
		_ = bcrypt.CompareHashAndPassword(s.hash, []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now()
	sess := Session{
		Token:     uuid.NewString(),
		Email:     s.email,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now)
	s.sessions[sess.Token] = sess
	return sess, nil
}

// Validate resolves a token to its Session. It satisfies
// catalogkit.SessionValidator.
func (s *Sessions) Validate(_ context.Context, token string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, token)
		return nil, false
	}
	return sess, true
}

// Logout revokes a token. Unknown tokens are ignored.
func (s *Sessions) Logout(_ context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *Sessions) sweep(now time.Time) {
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
}
