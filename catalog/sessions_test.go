package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewSessions_RequiresCredentials(t *testing.T) {
	_, err := NewSessions("", "pw")
	assert.Error(t, err)

	_, err = NewSessions("admin@example.com", "")
	assert.Error(t, err)
}

func TestSessions_Login(t *testing.T) {
	ctx := context.Background()
	s, err := NewSessions(testEmail, testPassword)
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "valid", email: testEmail, password: testPassword},
		{name: "email is case-insensitive", email: "Admin@Example.com", password: testPassword},
		{name: "wrong password", email: testEmail, password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown email", email: "other@example.com", password: testPassword, wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := s.Login(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, sess.Token)
			assert.Equal(t, testEmail, sess.Email)

			got, ok := s.Validate(ctx, sess.Token)
			require.True(t, ok)
			assert.Equal(t, sess, got)
		})
	}
}

func TestSessions_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := NewSessions(testEmail, testPassword,
		WithSessionTTL(time.Hour),
		WithSessionClock(clock.Now),
	)
	require.NoError(t, err)

	sess, err := s.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), sess.ExpiresAt)

	clock.Advance(59 * time.Minute)
	_, ok := s.Validate(ctx, sess.Token)
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = s.Validate(ctx, sess.Token)
	assert.False(t, ok, "session must expire exactly at ExpiresAt")
}

func TestSessions_Logout(t *testing.T) {
	ctx := context.Background()
	s, err := NewSessions(testEmail, testPassword)
	require.NoError(t, err)

	sess, err := s.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	s.Logout(ctx, sess.Token)
	_, ok := s.Validate(ctx, sess.Token)
	assert.False(t, ok)

	s.Logout(ctx, "unknown")
}
