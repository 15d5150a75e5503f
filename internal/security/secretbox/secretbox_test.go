package secretbox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func key(seed byte) []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = seed + byte(i)
	}
	return k
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	box, err := New(key(1), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, msg := range [][]byte{nil, []byte("x"), []byte("hola mundo ✓ secreto"), bytes.Repeat([]byte{0xAB}, 4096)} {
		ct, err := box.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		pt, err := box.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(pt, msg) {
			t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
		}
	}
}

func TestEncrypt_Layout(t *testing.T) {
	box, _ := New(key(1), nil)
	ct, err := box.Encrypt([]byte("abc"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := len(raw), ivSize+tagSize+3; got != want {
		t.Fatalf("len = %d, want %d (IV‖TAG‖CT)", got, want)
	}

	// IV aleatorio por llamada
	ct2, _ := box.Encrypt([]byte("abc"))
	if ct == ct2 {
		t.Fatal("two encryptions produced the same ciphertext")
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	box, _ := New(key(1), nil)
	ct, _ := box.Encrypt([]byte("secreto"))
	raw, _ := base64.StdEncoding.DecodeString(ct)

	for _, idx := range []int{0, ivSize, len(raw) - 1} {
		bad := append([]byte(nil), raw...)
		bad[idx] ^= 0x01
		if _, err := box.Decrypt(base64.StdEncoding.EncodeToString(bad)); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("tamper at %d: expected ErrDecryptionFailed, got %v", idx, err)
		}
	}

	for _, junk := range []string{"", "%%%", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := box.Decrypt(junk); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("junk %q: expected ErrDecryptionFailed, got %v", junk, err)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	a, _ := New(key(1), nil)
	b, _ := New(key(2), nil)
	ct, _ := a.Encrypt([]byte("secreto"))
	if _, err := b.Decrypt(ct); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestSetKey_OldCiphertextStillDecrypts(t *testing.T) {
	box, _ := New(key(1), nil)
	old, _ := box.Encrypt([]byte("pre-rotation"))

	if err := box.SetKey(key(9)); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	pt, err := box.Decrypt(old)
	if err != nil || string(pt) != "pre-rotation" {
		t.Fatalf("old ciphertext after rotation: %q, %v", pt, err)
	}

	fresh, _ := box.Encrypt([]byte("post-rotation"))
	onlyNew, _ := New(key(9), nil)
	if pt, err := onlyNew.Decrypt(fresh); err != nil || string(pt) != "post-rotation" {
		t.Fatalf("new ciphertext must use the new key: %q, %v", pt, err)
	}

	box.DropSecondary()
	if _, err := box.Decrypt(old); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("after DropSecondary expected failure, got %v", err)
	}
}

func TestEnvelope_RoundTripAndRewrap(t *testing.T) {
	box, _ := New(key(1), nil)
	env, err := box.EncryptEnvelope([]byte("tenant smtp password"))
	if err != nil {
		t.Fatalf("EncryptEnvelope: %v", err)
	}
	pt, err := box.DecryptEnvelope(env)
	if err != nil || string(pt) != "tenant smtp password" {
		t.Fatalf("DecryptEnvelope: %q, %v", pt, err)
	}

	newKEK := key(50)
	rewrapped, err := box.RewrapDEK(env.WrappedDEK, newKEK)
	if err != nil {
		t.Fatalf("RewrapDEK: %v", err)
	}
	rotated, _ := New(newKEK, nil)
	pt, err = rotated.DecryptEnvelope(Envelope{Ciphertext: env.Ciphertext, WrappedDEK: rewrapped})
	if err != nil || string(pt) != "tenant smtp password" {
		t.Fatalf("after rewrap: %q, %v", pt, err)
	}
}

func TestEnvelope_SecondaryKeyFallback(t *testing.T) {
	box, _ := New(key(1), nil)
	env, _ := box.EncryptEnvelope([]byte("v"))
	_ = box.SetKey(key(7))
	if pt, err := box.DecryptEnvelope(env); err != nil || string(pt) != "v" {
		t.Fatalf("envelope with rotated KEK: %q, %v", pt, err)
	}
}

func TestRewrapCiphertext(t *testing.T) {
	box, _ := New(key(1), nil)
	ct, _ := box.Encrypt([]byte("seed"))
	out, err := box.RewrapCiphertext(ct, key(3))
	if err != nil {
		t.Fatalf("RewrapCiphertext: %v", err)
	}
	other, _ := New(key(3), nil)
	if pt, err := other.Decrypt(out); err != nil || string(pt) != "seed" {
		t.Fatalf("rewrapped decrypt: %q, %v", pt, err)
	}
	if _, err := box.RewrapCiphertext(ct, []byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	if _, _, err := FromConfig("", "", true); !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("prod without key: expected ErrKeyMissing, got %v", err)
	}

	box, eph, err := FromConfig("", "", false)
	if err != nil || box == nil || !eph {
		t.Fatalf("dev without key: box=%v eph=%v err=%v", box, eph, err)
	}

	k := base64.StdEncoding.EncodeToString(key(4))
	if _, eph, err := FromConfig(k, "", true); err != nil || eph {
		t.Fatalf("prod with key: eph=%v err=%v", eph, err)
	}
	if _, _, err := FromConfig("bm90LWEta2V5", "", true); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("short key: expected ErrInvalidKey, got %v", err)
	}
}
