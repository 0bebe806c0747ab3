package catalogkit

import (
	"net/http"
)

// MaxBodySize returns middleware that limits request body size.
//
// Requests whose Content-Length exceeds maxBytes are rejected with 413 before
// the handler runs. Every body is also wrapped with http.MaxBytesReader so
// chunked or mislabelled uploads fail during JSON decoding, which JSON reports
// as 413 as well.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				if HasState(r.Context()) {
					SetError(r, ErrPayloadTooLarge.With("Request body too large"))
				} else {
					http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				}
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
