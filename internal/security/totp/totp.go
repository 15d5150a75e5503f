// Package totp envuelve pquerna/otp con los parámetros de la plataforma
// (SHA1, 6 dígitos, período 30s) y expone el time-step que matcheó para anti-replay.
package totp

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	Period     = 30
	secretSize = 20
)

var opts = totp.ValidateOpts{
	Period:    Period,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Key es un secreto recién generado.
type Key struct {
	Secret string // base32 sin padding
	URL    string // otpauth:// para QR
}

// Generate crea un secreto de 20 bytes para issuer/account.
func Generate(issuer, account string) (Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      Period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, err
	}
	return Key{Secret: k.Secret(), URL: k.URL()}, nil
}

// Code genera el código para t (útil en tests y herramientas).
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, opts)
}

// Match busca code en la ventana t ± skew pasos y devuelve el contador que matcheó.
// El caller usa el contador para rechazar reusos del mismo time-step.
func Match(secret, code string, t time.Time, skew int) (counter int64, ok bool) {
	code = strings.TrimSpace(code)
	if len(code) != int(otp.DigitsSix) {
		return 0, false
	}
	for i := -skew; i <= skew; i++ {
		at := t.Add(time.Duration(i*Period) * time.Second)
		want, err := totp.GenerateCodeCustom(secret, at, opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return at.Unix() / Period, true
		}
	}
	return 0, false
}
