package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// Processor aplica el efecto de negocio de un evento ya autenticado y deduplicado.
// El resultado se guarda y se devuelve tal cual en los replays idénticos.
type Processor interface {
	Process(ctx context.Context, tenantID string, ev *Event) (string, error)
}

// ProcessorFunc adapta una función a Processor.
type ProcessorFunc func(ctx context.Context, tenantID string, ev *Event) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, tenantID string, ev *Event) (string, error) {
	return f(ctx, tenantID, ev)
}

// AcceptProcessor registra el evento y responde "accepted"; el consumo real es externo.
type AcceptProcessor struct{}

func (AcceptProcessor) Process(ctx context.Context, tenantID string, ev *Event) (string, error) {
	logger.From(ctx).Info("webhook accepted",
		logger.Provider(ev.Provider), logger.EventID(ev.ID), logger.TenantID(tenantID), logger.String("type", ev.Type))
	return `{"status":"accepted"}`, nil
}

type Config struct {
	// Tolerance ventana de timestamp (default 300s).
	Tolerance time.Duration
	// RecordTTL retención del registro de entrega (default 7 días).
	RecordTTL time.Duration
	// ProcessingTTL vida del lock de procesamiento; si el proceso muere, el proveedor reintenta.
	ProcessingTTL time.Duration
	Now           func() time.Time
}

func (c *Config) defaults() {
	if c.Tolerance <= 0 {
		c.Tolerance = 300 * time.Second
	}
	if c.RecordTTL <= 0 {
		c.RecordTTL = 7 * 24 * time.Hour
	}
	if c.ProcessingTTL <= 0 {
		c.ProcessingTTL = time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

const (
	statusProcessing = "processing"
	statusDone       = "done"
)

type record struct {
	Hash     string `json:"hash"`
	Status   string `json:"status"`
	TenantID string `json:"tenant_id,omitempty"`
	Result   string `json:"result,omitempty"`
	At       int64  `json:"at"`
}

func deliveryKey(provider, eventID string) string {
	return "webhook:delivery:" + provider + ":" + eventID
}

// Result de una ingesta aceptada.
type Result struct {
	Provider string
	EventID  string
	TenantID string
	Body     string
	// Replayed indica que se devolvió el resultado original de una entrega idéntica.
	Replayed bool
}

type Ingestor struct {
	verifiers map[string]Verifier
	tenants   TenantResolver
	kv        cache.Client
	proc      Processor
	audit     audit.Sink
	cfg       Config
}

// NewIngestor usa el store primario: sin fallback a memoria, un registro local permitiría
// procesar dos veces la misma entrega en réplicas distintas.
func NewIngestor(kv cache.Client, tenants TenantResolver, proc Processor, sink audit.Sink, cfg Config, verifiers ...Verifier) *Ingestor {
	cfg.defaults()
	if proc == nil {
		proc = AcceptProcessor{}
	}
	m := make(map[string]Verifier, len(verifiers))
	for _, v := range verifiers {
		m[strings.ToLower(v.Provider())] = v
	}
	return &Ingestor{verifiers: m, tenants: tenants, kv: kv, proc: proc, audit: sink, cfg: cfg}
}

// Providers lista los proveedores configurados.
func (in *Ingestor) Providers() []string {
	out := make([]string, 0, len(in.verifiers))
	for p := range in.verifiers {
		out = append(out, p)
	}
	return out
}

func (in *Ingestor) Ingest(ctx context.Context, provider string, header http.Header, body []byte) (res *Result, err error) {
	provider = strings.ToLower(provider)
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("webhook"), logger.Provider(provider))

	v, ok := in.verifiers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	defer func() { metrics.WebhookDeliveries.WithLabelValues(provider, outcomeOf(res, err)).Inc() }()

	ev, err := v.Verify(ctx, header, body)
	if err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			log.Warn("webhook signature rejected", logger.Err(err))
			in.audit.Log(ctx, audit.Event{Type: audit.WebhookBadSignature, Reason: err.Error(), Metadata: map[string]any{"provider": provider}})
		}
		return nil, err
	}
	log = log.With(logger.EventID(ev.ID))

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	key := deliveryKey(provider, ev.ID)

	if skew, stale := in.stale(ev); stale {
		// un replay exacto de algo ya procesado sigue siendo un no-op, aunque llegue tarde
		res, err := in.existing(ctx, key, hash, ev, log)
		if err == nil || errors.Is(err, ErrReplayHashMismatch) {
			return res, err
		}
		log.Warn("stale webhook", logger.Duration(skew))
		return nil, ErrStale
	}

	tenantID, err := in.tenants.Resolve(ctx, provider, ev.TenantRef)
	if err != nil {
		log.Warn("webhook tenant unresolved", logger.String("ref", ev.TenantRef))
		return nil, err
	}

	rec := record{Hash: hash, Status: statusProcessing, TenantID: tenantID, At: in.cfg.Now().Unix()}
	raw, _ := json.Marshal(rec)
	won, err := in.kv.SetNX(ctx, key, string(raw), in.cfg.ProcessingTTL)
	if err != nil {
		log.Error("delivery store unavailable", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !won {
		return in.existing(ctx, key, hash, ev, log)
	}

	result, err := in.proc.Process(ctx, tenantID, ev)
	if err != nil {
		// se libera el registro para que el reintento del proveedor pueda procesar
		if _, derr := in.kv.Delete(ctx, key); derr != nil {
			log.Error("release delivery record failed", logger.Err(derr))
		}
		log.Error("webhook processing failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	done := rec
	done.Status = statusDone
	done.Result = result
	doneRaw, _ := json.Marshal(done)
	ok, err = in.kv.CompareAndSwap(ctx, key, string(raw), string(doneRaw), in.cfg.RecordTTL)
	if err != nil || !ok {
		// el efecto ya se aplicó; un replay posterior puede reprocesar si el lock expiró
		log.Error("finalize delivery record failed", logger.Bool("swapped", ok), logger.Err(err))
	}
	log.Info("webhook processed", logger.TenantID(tenantID))
	return &Result{Provider: provider, EventID: ev.ID, TenantID: tenantID, Body: result}, nil
}

// stale aplica la tolerancia solo a timestamps de entrega firmados.
func (in *Ingestor) stale(ev *Event) (time.Duration, bool) {
	if ev.Timestamp.IsZero() {
		return 0, false
	}
	skew := in.cfg.Now().Sub(ev.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	return skew, skew > in.cfg.Tolerance
}

func (in *Ingestor) existing(ctx context.Context, key, hash string, ev *Event, log *zap.Logger) (*Result, error) {
	cur, err := in.kv.Get(ctx, key)
	if cache.IsNotFound(err) {
		// el lock expiró entre SetNX y Get; el proveedor reintenta
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var rec record
	if err := json.Unmarshal([]byte(cur), &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt record", ErrStoreUnavailable)
	}
	if rec.Hash != hash {
		log.Warn("webhook replay with different payload")
		in.audit.Log(ctx, audit.Event{
			Type:     audit.WebhookHashMismatch,
			TenantID: rec.TenantID,
			Metadata: map[string]any{"provider": ev.Provider, "event_id": ev.ID},
		})
		return nil, ErrReplayHashMismatch
	}
	if rec.Status != statusDone {
		return nil, ErrInFlight
	}
	return &Result{Provider: ev.Provider, EventID: ev.ID, TenantID: rec.TenantID, Body: rec.Result, Replayed: true}, nil
}

func outcomeOf(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "processed"
	case errors.Is(err, ErrSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrTenantUnresolved):
		return "tenant_unresolved"
	case errors.Is(err, ErrReplayHashMismatch):
		return "hash_mismatch"
	case errors.Is(err, ErrInFlight):
		return "in_flight"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
