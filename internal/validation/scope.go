// Package validation reglas de forma para valores que llegan por config.
package validation

import (
	"regexp"
	"strings"
)

// Scopes OAuth: minúsculas, arrancan y terminan en [a-z0-9], en el medio
// admiten [a-z0-9:_./-], hasta 128 chars. Cubre "openid", "groups" y scopes
// estilo URL de algunos IdPs ("https://idp.example/admin.read").
var scopeRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\./-]{0,126}[a-z0-9])?$`)

// ValidScope informa si el scope se puede mandar a un IdP tal cual.
func ValidScope(s string) bool {
	return scopeRe.MatchString(s)
}

// InvalidScopes devuelve los scopes rechazados, en orden. Vacío si todos pasan.
func InvalidScopes(scopes []string) []string {
	var bad []string
	for _, s := range scopes {
		if !ValidScope(s) {
			bad = append(bad, s)
		}
	}
	return bad
}

// HasOpenID: un provider OIDC sin "openid" no devuelve id_token.
func HasOpenID(scopes []string) bool {
	for _, s := range scopes {
		if strings.EqualFold(s, "openid") {
			return true
		}
	}
	return false
}
