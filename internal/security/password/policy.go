package password

import (
	"strings"
	"unicode"
)

type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool

	// Denylist de passwords comunes (comparación case-insensitive).
	Denylist map[string]struct{}
}

// commonPasswords cumplen la composición mínima pero encabezan las listas de filtraciones.
var commonPasswords = []string{
	"Password1234", "Password12345", "Passw0rd1234", "Welcome12345",
	"Qwerty123456", "Admin1234567", "Letmein12345", "Changeme1234",
}

// DefaultPolicy es la política para cuentas de plataforma.
var DefaultPolicy = Policy{
	MinLength: 12, RequireUpper: true, RequireLower: true, RequireDigit: true,
	Denylist: NewDenylist(commonPasswords...),
}

// NewDenylist normaliza las entradas igual que Validate.
func NewDenylist(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

// WithDenylist devuelve una copia de p con words sumadas a su denylist.
func (p Policy) WithDenylist(words ...string) Policy {
	merged := NewDenylist(words...)
	for w := range p.Denylist {
		merged[w] = struct{}{}
	}
	p.Denylist = merged
	return p
}

func (p Policy) Validate(s string) (ok bool, reasons []string) {
	if len([]rune(s)) < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, "missing_upper")
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, "missing_lower")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, "missing_symbol")
	}
	if _, bad := p.Denylist[strings.ToLower(strings.TrimSpace(s))]; bad {
		reasons = append(reasons, "too_common")
	}
	return len(reasons) == 0, reasons
}
