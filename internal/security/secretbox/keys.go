package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrKeyMissing: no hay clave maestra configurada. En prod es fatal.
var ErrKeyMissing = errors.New("secretbox: master key not configured")

// ParseKey acepta la clave en base64 (std o raw) o hex. Debe decodificar a 32 bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrKeyMissing
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if len(s) == 2*KeySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: got an undecodable or short value", ErrInvalidKey)
}

// GenerateKey devuelve una clave nueva en base64 (para el CLI y dev).
func GenerateKey() (string, error) {
	k := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

// FromConfig arma el Box desde las claves configuradas.
// Sin clave actual: en prod devuelve ErrKeyMissing (fatal en el arranque); fuera de prod
// genera una clave efímera y avisa con ephemeral=true.
func FromConfig(currentKey, previousKey string, prod bool) (box *Box, ephemeral bool, err error) {
	cur, err := ParseKey(currentKey)
	if errors.Is(err, ErrKeyMissing) && !prod {
		gen, gerr := GenerateKey()
		if gerr != nil {
			return nil, false, gerr
		}
		cur, _ = ParseKey(gen)
		ephemeral = true
	} else if err != nil {
		return nil, false, err
	}

	var prev []byte
	if strings.TrimSpace(previousKey) != "" {
		if prev, err = ParseKey(previousKey); err != nil {
			return nil, false, fmt.Errorf("previous key: %w", err)
		}
	}
	box, err = New(cur, prev)
	return box, ephemeral, err
}
