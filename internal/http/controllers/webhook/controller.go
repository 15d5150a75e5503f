// Package webhook expone la ingesta de eventos de proveedores de pago.
package webhook

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	"github.com/dropDatabas3/cpauth/internal/webhook"
)

// maxBody: los eventos de los proveedores soportados no llegan a 256KB.
const maxBody = 1 << 20

type Controller struct {
	ingestor *webhook.Ingestor
}

func NewController(in *webhook.Ingestor) *Controller {
	return &Controller{ingestor: in}
}

// Receive handles POST /v1/webhooks/{provider}. La firma se verifica sobre los bytes
// exactos del body; un replay idéntico devuelve el resultado original con 200.
func (c *Controller) Receive(w http.ResponseWriter, r *http.Request) {
	body, ok := helpers.ReadRaw(w, r, maxBody)
	if !ok {
		return
	}
	res, err := c.ingestor.Ingest(r.Context(), chi.URLParam(r, "provider"), r.Header, body)
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set("X-Webhook-Replayed", "true")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Body))
}
