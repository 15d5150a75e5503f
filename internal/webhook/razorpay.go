package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	razorpayEventIDHeader   = "X-Razorpay-Event-Id"
)

// RazorpayVerifier valida HMAC-SHA256 (hex) del body crudo con el secreto de webhook de plataforma.
type RazorpayVerifier struct {
	secret []byte
}

func NewRazorpayVerifier(secret string) (*RazorpayVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook: razorpay secret missing")
	}
	return &RazorpayVerifier{secret: []byte(secret)}, nil
}

func (v *RazorpayVerifier) Provider() string { return "razorpay" }

type razorpayBody struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   map[string]struct {
		Entity struct {
			Notes json.RawMessage `json:"notes"`
		} `json:"entity"`
	} `json:"payload"`
}

func (v *RazorpayVerifier) Verify(_ context.Context, header http.Header, body []byte) (*Event, error) {
	sig := strings.TrimSpace(header.Get(razorpaySignatureHeader))
	if sig == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrSignatureInvalid, razorpaySignatureHeader)
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding", ErrSignatureInvalid)
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return nil, ErrSignatureInvalid
	}

	var b razorpayBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	id := strings.TrimSpace(header.Get(razorpayEventIDHeader))
	if id == "" {
		id = b.ID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformed)
	}

	ev := &Event{Provider: v.Provider(), ID: id, Type: b.Event, Body: body, TenantRef: razorpayTenant(b)}
	// created_at es la creación del evento y se repite en cada reintento: no sirve
	// como hora de entrega, así que Timestamp queda en cero.
	if b.CreatedAt > 0 {
		ev.CreatedAt = time.Unix(b.CreatedAt, 0).UTC()
	}
	return ev, nil
}

// razorpayTenant busca notes.tenant_id en las entidades del payload. Referencias
// distintas entre entidades se devuelven vacías (ambiguo).
func razorpayTenant(b razorpayBody) string {
	ref := ""
	for _, p := range b.Payload {
		if len(p.Entity.Notes) == 0 {
			continue
		}
		// notes puede venir como [] cuando está vacío
		var notes map[string]any
		if err := json.Unmarshal(p.Entity.Notes, &notes); err != nil {
			continue
		}
		t, _ := notes["tenant_id"].(string)
		if t == "" {
			continue
		}
		if ref != "" && ref != t {
			return ""
		}
		ref = t
	}
	return ref
}
