// Package util junta helpers chicos sin dependencias de dominio.
package util

import "strings"

// MaskEmail deja el email apto para logs: primera letra del usuario y del
// primer label del dominio. "ops@example.com" → "o…@e….com".
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return maskToken(s)
	}
	user, dom := s[:at], s[at+1:]
	labels := strings.Split(dom, ".")
	labels[0] = maskToken(labels[0])
	return maskToken(user) + "@" + strings.Join(labels, ".")
}

func maskToken(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 1:
		return "*"
	default:
		return s[:1] + "…"
	}
}
