package util

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.1/32"),
	}

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct peer", "203.0.113.5:4000", "", "", "203.0.113.5"},
		{"untrusted peer ignores headers", "203.0.113.5:4000", "1.1.1.1", "2.2.2.2", "203.0.113.5"},
		{"trusted proxy uses forwarded", "10.0.0.2:80", "198.51.100.7", "", "198.51.100.7"},
		{"skips trusted hops from the right", "10.0.0.2:80", "198.51.100.7, 10.0.0.9", "", "198.51.100.7"},
		{"spoofed leftmost entry is ignored", "10.0.0.2:80", "6.6.6.6, 198.51.100.7", "", "198.51.100.7"},
		{"all hops trusted returns leftmost", "127.0.0.1:80", "10.1.1.1, 10.0.0.9", "", "10.1.1.1"},
		{"real ip fallback", "127.0.0.1:80", "", "198.51.100.8", "198.51.100.8"},
		{"mapped ipv6 peer", "[::ffff:203.0.113.5]:4000", "", "", "203.0.113.5"},
		{"mapped ipv6 forwarded", "10.0.0.2:80", "::ffff:198.51.100.7", "", "198.51.100.7"},
		{"ipv6 peer", "[2001:db8::1]:4000", "", "", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/nic/update", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, ClientIP(r, trusted))
		})
	}
}

func TestClientIPUnparseableRemote(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(r, nil))
}
