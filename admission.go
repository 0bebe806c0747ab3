package catalogkit

// Admission control for mutating endpoints.
//
// Each request is keyed as "<action>:<client-ip>" (see ClientIP) and checked
// against a limiter before the handler runs:
//
//	r.With(catalogkit.Admit(limiter, "article-create", 10)).Post("/api/articles", createArticle)
//
// Handlers that need to check admission themselves, for example after parsing
// part of the request, use AdmitRequest:
//
//	if !catalogkit.AdmitRequest(r, limiter, "login", 5,
//		catalogkit.AdmitWithMessage("Too many login attempts. Please try again later.")) {
//		return
//	}
//
// Admitted and rejected responses carry RateLimit-Limit, RateLimit-Remaining
// and RateLimit-Reset headers; rejections also carry Retry-After and a 429.

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nhalm/catalogkit/ratelimit"
)

// Admitter decides whether an identifier may perform one more request.
// *ratelimit.Limiter implements it.
type Admitter interface {
	Allow(ctx context.Context, identifier string, maxRequests int) ratelimit.Result
}

// RateLimitHeaderMode controls when rate limit headers are included in responses.
type RateLimitHeaderMode int

const (
	// RateLimitHeadersAlways includes rate limit headers on every response (default).
	RateLimitHeadersAlways RateLimitHeaderMode = iota

	// RateLimitHeadersOnLimitExceeded includes rate limit headers only on 429 responses.
	RateLimitHeadersOnLimitExceeded

	// RateLimitHeadersNever hides limits from clients entirely.
	RateLimitHeadersNever
)

type admitConfig struct {
	message    string
	headerMode RateLimitHeaderMode
}

// AdmitOption configures Admit and AdmitRequest.
type AdmitOption func(*admitConfig)

// AdmitWithMessage sets the human-readable message of the 429 response.
func AdmitWithMessage(message string) AdmitOption {
	return func(c *admitConfig) {
		c.message = message
	}
}

// AdmitWithHeaderMode configures when rate limit headers are sent.
func AdmitWithHeaderMode(mode RateLimitHeaderMode) AdmitOption {
	return func(c *admitConfig) {
		c.headerMode = mode
	}
}

func newAdmitConfig(opts []AdmitOption) *admitConfig {
	cfg := &admitConfig{
		message:    ErrRateLimited.Message,
		headerMode: RateLimitHeadersAlways,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Admit returns middleware that rejects requests exceeding maxRequests per
// limiter window for the given action and client.
func Admit(l Admitter, action string, maxRequests int, opts ...AdmitOption) func(http.Handler) http.Handler {
	cfg := newAdmitConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !admit(w, r, l, action, maxRequests, cfg) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdmitRequest checks admission from inside a handler. It returns false after
// recording the 429 response; the handler should return immediately.
// Requires Handler in the chain to render the rejection.
func AdmitRequest(r *http.Request, l Admitter, action string, maxRequests int, opts ...AdmitOption) bool {
	return admit(nil, r, l, action, maxRequests, newAdmitConfig(opts))
}

func admit(w http.ResponseWriter, r *http.Request, l Admitter, action string, maxRequests int, cfg *admitConfig) bool {
	ctx := r.Context()
	useState := HasState(ctx) || w == nil

	res := l.Allow(ctx, ratelimit.Identifier(action, ClientIP(r)), maxRequests)

	setHeader := func(key, value string) {
		if useState {
			SetHeader(r, key, value)
		} else {
			w.Header().Set(key, value)
		}
	}

	shouldSetHeaders := cfg.headerMode == RateLimitHeadersAlways ||
		(cfg.headerMode == RateLimitHeadersOnLimitExceeded && !res.Success)

	if shouldSetHeaders {
		setHeader("RateLimit-Limit", strconv.Itoa(maxRequests))
		setHeader("RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.ResetTime.IsZero() {
			setHeader("RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
		}
	}

	if res.Success {
		return true
	}

	if shouldSetHeaders {
		if retry := res.RetryAfter(time.Now()); retry > 0 {
			setHeader("Retry-After", strconv.Itoa(int(retry.Seconds())))
		}
	}
	if useState {
		SetError(r, ErrRateLimited.With(cfg.message))
	} else {
		http.Error(w, cfg.message, http.StatusTooManyRequests)
	}
	return false
}
