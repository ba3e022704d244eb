package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

// maxBodySize ограничивает JSON-тело запроса.
const maxBodySize = 1 << 20

type ErrorResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func NewErrorResponse(code int, message string, context map[string]any) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// validationErrors перечислены от частного к общему: сообщение берётся у первой совпавшей ошибки.
var validationErrors = []error{
	e.ErrMissingProductID,
	e.ErrInvalidProductID,
	e.ErrFieldNotAllowed,
	e.ErrInvalidActionType,
	e.ErrMissingFieldValue,
	e.ErrInvalidJobMode,
	e.ErrMissingQuery,
	e.ErrInvalidPage,
	e.ErrInvalidSettings,
	e.ErrMalformedBody,
	e.ErrNotRejected,
	e.ErrInvalidStatusShift,
	e.ErrStatusBadRequest,
	e.ErrValidation,
}

// ToHTTPResponse отображает ошибку в HTTP-статус и безопасное сообщение без внутренних деталей.
func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrValidation):
		for _, target := range validationErrors {
			if errors.Is(err, target) {
				return http.StatusBadRequest, target.Error()
			}
		}
		return http.StatusBadRequest, e.ErrValidation.Error()
	case errors.Is(err, e.ErrProductNotFound):
		return http.StatusNotFound, e.ErrProductNotFound.Error()
	case errors.Is(err, e.ErrJobNotFound):
		return http.StatusNotFound, e.ErrJobNotFound.Error()
	case errors.Is(err, e.ErrRetryLimitReached):
		return http.StatusConflict, e.ErrRetryLimitReached.Error()
	case errors.Is(err, e.ErrProviderExhausted):
		return http.StatusServiceUnavailable, e.ErrProviderExhausted.Error()
	case errors.Is(err, e.ErrUpstreamUnavailable):
		return http.StatusBadGateway, e.ErrUpstreamUnavailable.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error, context map[string]any) {
	code, msg := ToHTTPResponse(err)
	WriteSuccess(w, code, NewErrorResponse(code, msg, context))
}

// respondError пишет ошибку клиенту. Серверные ошибки логируются с деталями, клиентские пишутся предупреждением.
func respondError(log logger.Logger, w http.ResponseWriter, r *http.Request, err error, context map[string]any) {
	code, _ := ToHTTPResponse(err)
	if code >= http.StatusInternalServerError {
		log.Errorf(err, "%s %s", r.Method, r.URL.Path)
	} else {
		log.Warnf("%d %s %s: %s", code, r.Method, r.URL.Path, err.Error())
	}
	WriteError(w, err, context)
}

func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// productID разбирает {id} из пути.
func productID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	if raw == "" {
		return 0, e.Wrap(whereami.WhereAmI(), e.ErrMissingProductID)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, e.Wrap(raw, e.ErrInvalidProductID)
	}

	return id, nil
}

// decodeJSON читает тело запроса. Пустое тело допустимо и оставляет dst без изменений.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return e.Wrap(err.Error(), e.ErrMalformedBody)
	}

	return nil
}

// queryInt читает целочисленный параметр запроса; def возвращается, если параметр не задан.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, e.Wrap(key, e.ErrStatusBadRequest)
	}

	return v, nil
}

func productContext(id int64) map[string]any {
	if id == 0 {
		return nil
	}
	return map[string]any{"product_id": id}
}
