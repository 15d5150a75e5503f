package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Envelope es un valor cifrado bajo una DEK propia; la DEK va cifrada con la KEK.
type Envelope struct {
	Ciphertext string `json:"ct"`
	WrappedDEK string `json:"dek"`
}

// EncryptEnvelope genera una DEK aleatoria, cifra con ella y envuelve la DEK con la KEK actual.
func (b *Box) EncryptEnvelope(plaintext []byte) (Envelope, error) {
	dek := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return Envelope{}, fmt.Errorf("secretbox: dek random: %w", err)
	}
	defer zero(dek)

	raw, err := seal(dek, plaintext)
	if err != nil {
		return Envelope{}, err
	}
	wrapped, err := b.Encrypt(dek)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(raw),
		WrappedDEK: wrapped,
	}, nil
}

// DecryptEnvelope desenvuelve la DEK (con fallback a la secundaria) y descifra.
func (b *Box) DecryptEnvelope(env Envelope) ([]byte, error) {
	dek, err := b.Decrypt(env.WrappedDEK)
	if err != nil {
		return nil, err
	}
	defer zero(dek)
	if len(dek) != KeySize {
		return nil, ErrDecryptionFailed
	}
	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return open(dek, raw)
}

// RewrapDEK re-envuelve la DEK bajo newKey. El ciphertext de datos no cambia.
func (b *Box) RewrapDEK(wrapped string, newKey []byte) (string, error) {
	return b.RewrapCiphertext(wrapped, newKey)
}
