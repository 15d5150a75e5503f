package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	paypalTransmissionID   = "Paypal-Transmission-Id"
	paypalTransmissionTime = "Paypal-Transmission-Time"
	paypalCertURL          = "Paypal-Cert-Url"
	paypalAuthAlgo         = "Paypal-Auth-Algo"
	paypalTransmissionSig  = "Paypal-Transmission-Sig"
)

// PayPalConfig credenciales de plataforma para la API de verificación remota.
type PayPalConfig struct {
	BaseURL      string // https://api-m.paypal.com
	ClientID     string
	ClientSecret string
	WebhookID    string
	Timeout      time.Duration
}

// PayPalVerifier delega la verificación de la firma a la API del proveedor. El token de
// acceso se obtiene con client credentials y se cachea en el TokenSource.
type PayPalVerifier struct {
	cfg    PayPalConfig
	client *http.Client
}

func NewPayPalVerifier(cfg PayPalConfig) (*PayPalVerifier, error) {
	if cfg.BaseURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.WebhookID == "" {
		return nil, fmt.Errorf("webhook: paypal credentials missing")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/v1/oauth2/token",
	}
	// contexto de configuración para el TokenSource; cada request lleva su propio timeout
	client := cc.Client(context.Background())
	client.Timeout = cfg.Timeout
	return &PayPalVerifier{cfg: cfg, client: client}, nil
}

func (v *PayPalVerifier) Provider() string { return "paypal" }

type paypalBody struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		CustomID      string `json:"custom_id"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
		} `json:"purchase_units"`
	} `json:"resource"`
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

func (v *PayPalVerifier) Verify(ctx context.Context, header http.Header, body []byte) (*Event, error) {
	req := verifyRequest{
		AuthAlgo:         header.Get(paypalAuthAlgo),
		CertURL:          header.Get(paypalCertURL),
		TransmissionID:   header.Get(paypalTransmissionID),
		TransmissionSig:  header.Get(paypalTransmissionSig),
		TransmissionTime: header.Get(paypalTransmissionTime),
		WebhookID:        v.cfg.WebhookID,
	}
	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" || req.TransmissionSig == "" || req.TransmissionTime == "" {
		return nil, fmt.Errorf("%w: missing transmission headers", ErrSignatureInvalid)
	}
	ts, err := time.Parse(time.RFC3339, req.TransmissionTime)
	if err != nil {
		return nil, fmt.Errorf("%w: transmission time", ErrSignatureInvalid)
	}

	var b paypalBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if b.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformed)
	}
	req.WebhookEvent = json.RawMessage(body)

	if err := v.remoteVerify(ctx, req); err != nil {
		return nil, err
	}

	ev := &Event{
		Provider: v.Provider(),
		ID:       b.ID,
		Type:     b.EventType,
		Body:     body,
		// transmission_time forma parte del mensaje firmado que valida el proveedor
		Timestamp: ts.UTC(),
		TenantRef: b.Resource.CustomID,
	}
	if ev.TenantRef == "" && len(b.Resource.PurchaseUnits) == 1 {
		ev.TenantRef = b.Resource.PurchaseUnits[0].CustomID
	}
	return ev, nil
}

func (v *PayPalVerifier) remoteVerify(ctx context.Context, in verifyRequest) error {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+"/v1/notifications/verify-webhook-signature", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d", ErrVerifierUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// credenciales de plataforma inválidas: no es culpa del emisor
		return fmt.Errorf("%w: http %d", ErrVerifierUnavailable, resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("%w: http %d", ErrSignatureInvalid, resp.StatusCode)
	}

	var out struct {
		Status string `json:"verification_status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrVerifierUnavailable, err)
	}
	if !strings.EqualFold(out.Status, "SUCCESS") {
		return ErrSignatureInvalid
	}
	return nil
}
