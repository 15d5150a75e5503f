// Package secretbox cifra secretos at-rest con AES-256-GCM.
//
// Formato de salida: base64(IV ‖ TAG ‖ CIPHERTEXT), IV de 96 bits, TAG de 128 bits.
// Soporta rotación: la clave actual cifra; en decrypt, si la actual falla, se intenta
// con la secundaria (clave previa) mientras dure la rotación.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	ivSize  = 12 // 96 bits
	tagSize = 16 // 128 bits
	KeySize = 32 // AES-256
)

var (
	// ErrDecryptionFailed cubre formato inválido, clave incorrecta y tag inválido.
	// No distingue la causa a propósito.
	ErrDecryptionFailed = errors.New("secretbox: decryption failed")

	ErrInvalidKey = errors.New("secretbox: key must be 32 bytes")
)

// Box mantiene la clave actual (KEK) y una secundaria opcional.
type Box struct {
	mu        sync.RWMutex
	current   []byte
	secondary []byte
}

// New arma un Box. secondary puede ser nil.
func New(current, secondary []byte) (*Box, error) {
	if len(current) != KeySize {
		return nil, ErrInvalidKey
	}
	if secondary != nil && len(secondary) != KeySize {
		return nil, ErrInvalidKey
	}
	return &Box{current: clone(current), secondary: clone(secondary)}, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (b *Box) keys() (cur, sec []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, b.secondary
}

// SetKey instala newKey como actual y deja la anterior como secundaria.
func (b *Box) SetKey(newKey []byte) error {
	if len(newKey) != KeySize {
		return ErrInvalidKey
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secondary = b.current
	b.current = clone(newKey)
	return nil
}

// DropSecondary termina la ventana de rotación.
func (b *Box) DropSecondary() {
	b.mu.Lock()
	b.secondary = nil
	b.mu.Unlock()
}

// Encrypt cifra con la clave actual.
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	cur, _ := b.keys()
	raw, err := seal(cur, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decrypt descifra con la actual y, si falla, con la secundaria.
func (b *Box) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	cur, sec := b.keys()
	if pt, err := open(cur, raw); err == nil {
		return pt, nil
	}
	if sec != nil {
		if pt, err := open(sec, raw); err == nil {
			return pt, nil
		}
	}
	return nil, ErrDecryptionFailed
}

// EncryptString / DecryptString para los secretos que viajan como string (TOTP seed).
func (b *Box) EncryptString(s string) (string, error) {
	return b.Encrypt([]byte(s))
}

func (b *Box) DecryptString(ct string) (string, error) {
	pt, err := b.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// RewrapCiphertext re-cifra un valor bajo newKey sin exponer el plaintext al caller.
func (b *Box) RewrapCiphertext(ciphertext string, newKey []byte) (string, error) {
	if len(newKey) != KeySize {
		return "", ErrInvalidKey
	}
	pt, err := b.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	defer zero(pt)
	raw, err := seal(newKey, pt)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// seal devuelve IV ‖ TAG ‖ CT. GCM de Go produce CT ‖ TAG, así que se reordena.
func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("secretbox: iv random: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ctLen := len(sealed) - tagSize

	out := make([]byte, 0, ivSize+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)
	return out, nil
}

func open(key, raw []byte) ([]byte, error) {
	if len(raw) < ivSize+tagSize {
		return nil, ErrDecryptionFailed
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := raw[:ivSize]
	tag := raw[ivSize : ivSize+tagSize]
	ct := raw[ivSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	pt, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
