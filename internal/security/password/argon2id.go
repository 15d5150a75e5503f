package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

var ErrEmpty = errors.New("password: empty")

// Hash devuelve un PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

type phc struct {
	params Params
	salt   []byte
	dk     []byte
}

func parse(s string) (phc, bool) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, dk
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return phc{}, false
	}
	var out phc
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return phc{}, false
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phc{}, false
		}
		switch k {
		case "m":
			out.params.Memory = uint32(n)
		case "t":
			out.params.Time = uint32(n)
		case "p":
			if n > 255 {
				return phc{}, false
			}
			out.params.Parallelism = uint8(n)
		default:
			return phc{}, false
		}
	}
	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phc{}, false
	}
	if out.dk, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.dk) == 0 {
		return phc{}, false
	}
	out.params.KeyLen = uint32(len(out.dk))
	return out, out.params.Memory > 0 && out.params.Time > 0 && out.params.Parallelism > 0
}

// Verify compara en tiempo constante. Un hash ilegible nunca verifica.
func Verify(plain, encoded string) bool {
	h, ok := parse(encoded)
	if !ok {
		return false
	}
	key := argon2.IDKey([]byte(plain), h.salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLen)
	return subtle.ConstantTimeCompare(key, h.dk) == 1
}

// NeedsRehash indica si el hash fue generado con parámetros distintos a p.
func NeedsRehash(p Params, encoded string) bool {
	h, ok := parse(encoded)
	return !ok || h.params != p
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// VerifyDummy gasta el mismo costo que Verify contra un hash descartable.
// Se usa cuando la identidad no existe o no tiene password, para no abrir un
// oráculo de timing entre "usuario desconocido" y "password incorrecta".
func VerifyDummy(plain string) {
	dummyOnce.Do(func() {
		dummyHash, _ = Hash(Default, "dummy-password-never-matches")
	})
	_ = Verify(plain, dummyHash)
}
