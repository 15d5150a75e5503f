package oauth

import (
	"regexp"
	"strconv"
	"strings"
)

// idClaims son los claims del id_token que usa el flujo.
type idClaims struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified any      `json:"email_verified"` // algunos IdPs lo envían como string
	AMR           []string `json:"amr"`
	ACR           string   `json:"acr"`
}

func (c idClaims) emailVerified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

var (
	mfaMethods = map[string]bool{"mfa": true, "otp": true, "totp": true}
	aalLevel   = regexp.MustCompile(`aal[/:_-]?([0-9])`)
)

// mfaSatisfied reporta si el IdP declara un segundo factor (amr) o un nivel AAL2+ (acr).
func (c idClaims) mfaSatisfied() bool {
	for _, m := range c.AMR {
		if mfaMethods[strings.ToLower(strings.TrimSpace(m))] {
			return true
		}
	}
	acr := strings.ToLower(c.ACR)
	if acr == "" {
		return false
	}
	for _, tok := range strings.FieldsFunc(acr, func(r rune) bool {
		return r == ':' || r == '/' || r == ' ' || r == '#' || r == '.'
	}) {
		if mfaMethods[tok] {
			return true
		}
	}
	for _, m := range aalLevel.FindAllStringSubmatch(acr, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 2 {
			return true
		}
	}
	return false
}
