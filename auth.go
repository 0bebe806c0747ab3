package catalogkit

import (
	"context"
	"net/http"
	"strings"
)

type authContextKey string

const sessionKey authContextKey = "session"

// SessionCookie is the cookie consulted when no Authorization header is sent.
const SessionCookie = "session"

// SessionValidator resolves a session token to the session it identifies.
// It returns false for unknown or expired tokens. Validators are called
// concurrently and must be safe for concurrent use.
type SessionValidator func(ctx context.Context, token string) (any, bool)

type sessionConfig struct {
	optional bool
}

// SessionOption configures RequireSession.
type SessionOption func(*sessionConfig)

// WithOptionalSession lets requests without a token through unauthenticated.
// A token that is present but invalid is still rejected.
func WithOptionalSession() SessionOption {
	return func(c *sessionConfig) {
		c.optional = true
	}
}

// RequireSession returns middleware that authenticates admin requests.
// The token is read from "Authorization: Bearer <token>" or, failing that,
// from the session cookie. Missing, malformed or invalid tokens get 401.
// The resolved session is available through SessionFromContext.
func RequireSession(validator SessionValidator, opts ...SessionOption) func(http.Handler) http.Handler {
	cfg := &sessionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, apiErr := sessionToken(r)
			if apiErr != nil {
				rejectSession(w, r, apiErr)
				return
			}
			if token == "" {
				if cfg.optional {
					next.ServeHTTP(w, r)
					return
				}
				rejectSession(w, r, ErrUnauthorized.With("Authentication required"))
				return
			}

			session, ok := validator(r.Context(), token)
			if !ok {
				rejectSession(w, r, ErrUnauthorized.With("Invalid or expired session"))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (any, bool) {
	session := ctx.Value(sessionKey)
	return session, session != nil
}

func sessionToken(r *http.Request) (string, *APIError) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		// RFC 7235: the scheme is case-insensitive.
		if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
			return "", ErrUnauthorized.With("Invalid authorization format")
		}
		token := strings.TrimSpace(auth[7:])
		if token == "" {
			return "", ErrUnauthorized.With("Empty bearer token")
		}
		return token, nil
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", nil
}

func rejectSession(w http.ResponseWriter, r *http.Request, apiErr *APIError) {
	if HasState(r.Context()) {
		SetError(r, apiErr)
		return
	}
	http.Error(w, apiErr.Message, apiErr.Status)
}
