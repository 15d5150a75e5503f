// Package ipallow resuelve membresía de una IP en una allowlist de IPs exactas y CIDRs.
package ipallow

import (
	"net/netip"
	"strings"

	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// IsAllowed indica si ip matchea alguna entrada de list (IP exacta o CIDR, v4 o v6).
// Las IPv4-mapped (::ffff:a.b.c.d) se normalizan a IPv4 antes de comparar.
// Entradas mal formadas se loguean y se ignoran: nunca otorgan acceso.
func IsAllowed(ip string, list []string) bool {
	addr, ok := parseAddr(ip)
	if !ok {
		return false
	}
	for _, raw := range list {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			pfx, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.L().Warn("ip allowlist: malformed CIDR entry skipped",
					logger.Component("ipallow"), logger.Value(entry), logger.Err(err))
				continue
			}
			if normalizePrefix(pfx).Contains(addr) {
				return true
			}
			continue
		}
		other, ok := parseAddr(entry)
		if !ok {
			logger.L().Warn("ip allowlist: malformed IP entry skipped",
				logger.Component("ipallow"), logger.Value(entry))
			continue
		}
		if other == addr {
			return true
		}
	}
	return false
}

// Permits aplica la política de la allowlist de un principal: lista vacía = sin restricción.
func Permits(list []string, ip string) bool {
	for _, e := range list {
		if strings.TrimSpace(e) != "" {
			return IsAllowed(ip, list)
		}
	}
	return true
}

func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	// Zonas (fe80::1%eth0) no aplican a una allowlist.
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

// normalizePrefix convierte ::ffff:a.b.c.d/n (n >= 96) a su forma IPv4.
func normalizePrefix(p netip.Prefix) netip.Prefix {
	a := p.Addr()
	if a.Is4In6() && p.Bits() >= 96 {
		if np, err := a.Unmap().Prefix(p.Bits() - 96); err == nil {
			return np
		}
	}
	return p.Masked()
}
