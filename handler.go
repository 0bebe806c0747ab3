package catalogkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/canonlog"
)

// HandlerOption configures the Handler middleware.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	canonlog       bool
	canonlogFields func(*http.Request) map[string]any
}

// WithCanonlog emits one canonical log line per request with method, path,
// route, client_ip, status and duration_ms. Errors recorded with SetError and
// backend degradations noted by the rate limiter or cache are added to the
// same line.
func WithCanonlog() HandlerOption {
	return func(c *handlerConfig) {
		c.canonlog = true
	}
}

// WithCanonlogFields adds fields computed from the request at request start.
func WithCanonlogFields(fn func(*http.Request) map[string]any) HandlerOption {
	return func(c *handlerConfig) {
		c.canonlogFields = fn
	}
}

// Handler returns the outermost middleware. It attaches response state to the
// request, recovers panics as 500s and writes the recorded response once the
// chain returns.
func Handler(opts ...HandlerOption) func(http.Handler) http.Handler {
	cfg := &handlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := &State{}
			ctx := context.WithValue(r.Context(), stateKey, state)

			start := time.Now()
			if cfg.canonlog {
				ctx = canonlog.NewContext(ctx)
				canonlog.InfoAddMany(ctx, map[string]any{
					"method":    r.Method,
					"path":      r.URL.Path,
					"client_ip": ClientIP(r),
				})
				if cfg.canonlogFields != nil {
					canonlog.InfoAddMany(ctx, cfg.canonlogFields(r))
				}
			}

			r = r.WithContext(ctx)

			defer func() {
				if rec := recover(); rec != nil {
					state.mu.Lock()
					state.err = ErrInternal
					state.mu.Unlock()

					if cfg.canonlog {
						canonlog.ErrorAdd(ctx, fmt.Errorf("panic: %v", rec))
					}
				}

				if cfg.canonlog {
					logRequest(ctx, r, state, time.Since(start))
				}

				writeResponse(w, state)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func logRequest(ctx context.Context, r *http.Request, state *State, duration time.Duration) {
	state.mu.Lock()
	status := state.status
	if status == 0 {
		status = http.StatusOK
	}
	if state.err != nil {
		status = state.err.Status
		if status >= http.StatusInternalServerError {
			canonlog.ErrorAdd(ctx, state.err)
		} else {
			canonlog.InfoAdd(ctx, "error_code", state.err.Code)
		}
	}
	state.mu.Unlock()

	route := r.URL.Path
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}

	canonlog.InfoAddMany(ctx, map[string]any{
		"route":       route,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	canonlog.Flush(ctx)
}

func writeResponse(w http.ResponseWriter, state *State) {
	state.mu.Lock()
	defer state.mu.Unlock()

	for key, values := range state.headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	var payload any
	status := state.status
	switch {
	case state.err != nil:
		payload = errorResponse{Error: state.err}
		status = state.err.Status
	case state.body != nil:
		payload = state.body
	default:
		if status != 0 {
			w.WriteHeader(status)
		}
		return
	}

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal server error"))
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
