package clientip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r, err := NewResolver([]string{"10.0.0.0/8", "192.168.1.10"})
	require.NoError(t, err)

	cases := []struct {
		name      string
		peer, xff string
		want      string
	}{
		{"direct client", "203.0.113.7:51000", "", "ip:203.0.113.7"},
		{"untrusted peer ignores header", "203.0.113.7", "198.51.100.1", "ip:203.0.113.7"},
		{"trusted proxy forwards client", "10.1.2.3", "198.51.100.1", "ip:198.51.100.1"},
		{"spoofed left entries ignored", "10.1.2.3", "1.1.1.1, 198.51.100.1", "ip:198.51.100.1"},
		{"chain of trusted proxies", "10.1.2.3", "198.51.100.1, 192.168.1.10, 10.9.9.9", "ip:198.51.100.1"},
		{"trusted peer without header", "192.168.1.10", "", "ip:192.168.1.10"},
		{"garbage hop stops walk", "10.1.2.3", "198.51.100.1, nonsense", "ip:10.1.2.3"},
		{"ipv6 peer", "[2001:db8::1]:443", "", "ip:2001:db8::1"},
		{"ipv4-mapped peer", "::ffff:10.0.0.5", "198.51.100.9", "ip:198.51.100.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Resolve(tc.peer, tc.xff, "ua", "de"))
		})
	}
}

func TestResolveFingerprintFallback(t *testing.T) {
	r, err := NewResolver(nil)
	require.NoError(t, err)

	a := r.Resolve("", "198.51.100.1", "Mozilla/5.0", "de-DE")
	b := r.Resolve("", "", "Mozilla/5.0", "de-DE")
	c := r.Resolve("", "", "curl/8.0", "de-DE")

	assert.True(t, strings.HasPrefix(a, "fp:"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, strings.HasPrefix(a, "ip:"))
}

func TestNewResolverRejectsInvalid(t *testing.T) {
	_, err := NewResolver([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewResolver([]string{"proxy.local"})
	assert.Error(t, err)
}
