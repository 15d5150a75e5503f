// Package webhook recibe notificaciones entrantes de pasarelas de pago.
//
// Cada entrega pasa por: firma del proveedor → tolerancia de timestamp (solo si el timestamp
// está cubierto por la firma) → resolución de tenant → registro atómico (provider, eventId) →
// payloadHash. Un replay idéntico devuelve el resultado original; mismo id con otro payload es
// un conflicto duro.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrUnknownProvider     = errors.New("webhook: unknown provider")
	ErrSignatureInvalid    = errors.New("webhook: signature invalid")
	ErrVerifierUnavailable = errors.New("webhook: remote verifier unavailable")
	ErrMalformed           = errors.New("webhook: malformed payload")
	ErrStale               = errors.New("webhook: stale timestamp")
	ErrTenantUnresolved    = errors.New("webhook: tenant unresolved")
	ErrReplayHashMismatch  = errors.New("webhook: event id replayed with different payload")
	ErrInFlight            = errors.New("webhook: delivery in flight")
	ErrStoreUnavailable    = errors.New("webhook: delivery store unavailable")
	ErrProcessing          = errors.New("webhook: processing failed")
)

// Event es lo que un verificador extrae de una entrega autenticada.
type Event struct {
	Provider string
	ID       string
	Type     string
	// Timestamp es la hora de entrega firmada; cero cuando el proveedor no la envía.
	Timestamp time.Time
	// CreatedAt informativo; no cambia entre reintentos y no pasa por la tolerancia.
	CreatedAt time.Time
	// TenantRef es la referencia que el router traduce a tenant (notes / custom_id).
	TenantRef string
	Body      []byte
}

// Verifier autentica entregas de un proveedor con credenciales de plataforma.
type Verifier interface {
	Provider() string
	Verify(ctx context.Context, header http.Header, body []byte) (*Event, error)
}
