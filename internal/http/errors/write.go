package errors

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// errorResponse controla exactamente qué se envía al cliente.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe la respuesta JSON del error. La causa nunca se serializa.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	if appErr.RetryAfter > 0 {
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)

	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// Respond traduce, loguea y escribe. Los 5xx se loguean con la causa en ERROR;
// el resto en DEBUG porque el servicio ya dejó su propio rastro.
func Respond(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)
	log := logger.From(r.Context())
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		log.Error("request failed", logger.String("code", appErr.Code), logger.Err(appErr.Err))
	} else {
		log.Debug("request rejected", logger.String("code", appErr.Code), logger.Err(appErr.Err))
	}
	WriteError(w, appErr)
}
