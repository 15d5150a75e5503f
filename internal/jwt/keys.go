package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrKeyMissing: falta una seed de firma. En prod es fatal.
	ErrKeyMissing = errors.New("jwt: signing key not configured")

	// ErrKeysNotDistinct: access, refresh e impersonation deben usar claves distintas.
	ErrKeysNotDistinct = errors.New("jwt: token kinds must use distinct signing keys")
)

// SigningKey es una clave Ed25519 con su KID.
type SigningKey struct {
	KID  string
	Priv ed25519.PrivateKey
	Pub  ed25519.PublicKey
}

// KeyFromSeed deriva la clave desde una seed de 32 bytes. El KID es un hash corto de la pública.
func KeyFromSeed(seed []byte) (*SigningKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("jwt: seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &SigningKey{
		KID:  base64.RawURLEncoding.EncodeToString(sum[:12]),
		Priv: priv,
		Pub:  pub,
	}, nil
}

// GenerateSeed devuelve una seed nueva en base64.
func GenerateSeed() (string, error) {
	b := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Keys agrupa una clave por tipo de token.
type Keys struct {
	Access        *SigningKey
	Refresh       *SigningKey
	Impersonation *SigningKey
}

// KeysFromSeeds arma el set desde seeds base64. Sin seed: en prod ErrKeyMissing,
// fuera de prod se genera una efímera (ephemeral=true).
func KeysFromSeeds(access, refresh, impersonation string, prod bool) (keys Keys, ephemeral bool, err error) {
	load := func(name, s string) (*SigningKey, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			if prod {
				return nil, fmt.Errorf("%w: %s", ErrKeyMissing, name)
			}
			gen, err := GenerateSeed()
			if err != nil {
				return nil, err
			}
			s = gen
			ephemeral = true
		}
		seed, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("jwt: %s seed: %w", name, err)
		}
		return KeyFromSeed(seed)
	}
	if keys.Access, err = load("access", access); err != nil {
		return Keys{}, false, err
	}
	if keys.Refresh, err = load("refresh", refresh); err != nil {
		return Keys{}, false, err
	}
	if keys.Impersonation, err = load("impersonation", impersonation); err != nil {
		return Keys{}, false, err
	}
	return keys, ephemeral, keys.validate()
}

func (k Keys) validate() error {
	if k.Access == nil || k.Refresh == nil || k.Impersonation == nil {
		return ErrKeyMissing
	}
	if k.Access.KID == k.Refresh.KID || k.Access.KID == k.Impersonation.KID || k.Refresh.KID == k.Impersonation.KID {
		return ErrKeysNotDistinct
	}
	return nil
}

// ----- JWKS (solo la clave de access, para que otros servicios validen) -----

type jwk struct {
	Kty string `json:"kty"` // "OKP"
	Crv string `json:"crv"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg"` // "EdDSA"
	Use string `json:"use"` // "sig"
	X   string `json:"x"`   // base64url(pub)
}

func jwksJSON(keys ...*SigningKey) []byte {
	out := struct {
		Keys []jwk `json:"keys"`
	}{Keys: make([]jwk, 0, len(keys))}
	for _, k := range keys {
		out.Keys = append(out.Keys, jwk{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: k.KID,
			Alg: "EdDSA",
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.Pub),
		})
	}
	b, _ := json.Marshal(out)
	return b
}
