package catalogkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "first X-Forwarded-For entry",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"},
			remoteAddr: "10.0.0.9:443",
			want:       "203.0.113.5",
		},
		{
			name:       "single X-Forwarded-For with spaces",
			headers:    map[string]string{"X-Forwarded-For": "  198.51.100.7 "},
			remoteAddr: "10.0.0.9:443",
			want:       "198.51.100.7",
		},
		{
			name:       "X-Real-IP when no X-Forwarded-For",
			headers:    map[string]string{"X-Real-IP": "192.0.2.44"},
			remoteAddr: "10.0.0.9:443",
			want:       "192.0.2.44",
		},
		{
			name:       "X-Forwarded-For wins over X-Real-IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "192.0.2.44"},
			remoteAddr: "10.0.0.9:443",
			want:       "203.0.113.5",
		},
		{
			name:       "empty first X-Forwarded-For entry falls through",
			headers:    map[string]string{"X-Forwarded-For": " , 10.0.0.2"},
			remoteAddr: "10.0.0.9:443",
			want:       "10.0.0.9",
		},
		{
			name:       "remote address host",
			remoteAddr: "1.2.3.4:5678",
			want:       "1.2.3.4",
		},
		{
			name:       "IPv6 remote address",
			remoteAddr: "[2001:db8::1]:8080",
			want:       "2001:db8::1",
		},
		{
			name:       "remote address without port",
			remoteAddr: "1.2.3.4",
			want:       "1.2.3.4",
		},
		{
			name: "nothing available",
			want: UnknownClientIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
