package ipallow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAllowed(t *testing.T) {
	cases := []struct {
		name string
		ip   string
		list []string
		want bool
	}{
		{"v6 inside /32", "2001:db8:0:1::123", []string{"2001:db8::/32"}, true},
		{"v6 outside /32", "2001:db9::1", []string{"2001:db8::/32"}, false},
		{"v4 inside /24", "10.0.0.5", []string{"10.0.0.0/24"}, true},
		{"v4 outside /24", "10.0.1.5", []string{"10.0.0.0/24"}, false},
		{"v4 exact", "192.168.1.10", []string{"192.168.1.10"}, true},
		{"v6 exact different notation", "2001:0db8::0001", []string{"2001:db8::1"}, true},
		{"mapped v6 against v4 cidr", "::ffff:10.0.0.7", []string{"10.0.0.0/24"}, true},
		{"mapped v6 against v4 exact", "::ffff:192.168.1.10", []string{"192.168.1.10"}, true},
		{"v4 against mapped cidr", "10.0.0.7", []string{"::ffff:10.0.0.0/120"}, true},
		{"malformed entry skipped", "10.0.0.5", []string{"10.0.0.0/33", "nope", "10.0.0.5"}, true},
		{"malformed only never grants", "10.0.0.5", []string{"10.0.0.0/99", "garbage"}, false},
		{"bad ip", "not-an-ip", []string{"0.0.0.0/0"}, false},
		{"empty list", "10.0.0.5", nil, false},
		{"v4 does not match v6 cidr", "10.0.0.5", []string{"::/0"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsAllowed(tc.ip, tc.list))
		})
	}
}

func TestPermits(t *testing.T) {
	require.True(t, Permits(nil, "203.0.113.9"))
	require.True(t, Permits([]string{" "}, "203.0.113.9"))
	require.False(t, Permits([]string{"10.0.0.0/8"}, "203.0.113.9"))
	require.True(t, Permits([]string{"10.0.0.0/8"}, "10.1.2.3"))
}
