package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/engine"
)

// Error types used in bridge error bodies besides the api.Kind values.
const (
	ErrorTypeInvalidRequest = "invalid_request"
	ErrorTypeNotFound       = "not_found"
	ErrorTypeUnavailable    = "unavailable"
	ErrorTypeServer         = "server_error"
)

// ErrorResponse is the JSON error body of the bridge.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a single error.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HTTPStatusFromError maps an engine error to an HTTP status code and an
// error type for the response body.
func HTTPStatusFromError(err error) (int, string) {
	if errors.Is(err, engine.ErrClosed) {
		return http.StatusServiceUnavailable, ErrorTypeUnavailable
	}
	if errors.Is(err, engine.ErrNoModelLister) {
		return http.StatusNotImplemented, ErrorTypeUnavailable
	}

	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, ErrorTypeServer
	}
	switch apiErr.Kind {
	case api.KindNotConfigured:
		return http.StatusPreconditionFailed, string(apiErr.Kind)
	case api.KindAlreadyProcessing:
		return http.StatusConflict, string(apiErr.Kind)
	case api.KindAPI:
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusTooManyRequests {
			return apiErr.Status, string(apiErr.Kind)
		}
		return http.StatusBadGateway, string(apiErr.Kind)
	case api.KindTransport:
		return http.StatusBadGateway, string(apiErr.Kind)
	default:
		return http.StatusInternalServerError, string(apiErr.Kind)
	}
}

// WriteErrorResponse writes a JSON error body with the given status.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{Type: errType, Message: message}})
}

// WriteError writes err, deriving status code and type from it.
func WriteError(w http.ResponseWriter, err error) {
	status, errType := HTTPStatusFromError(err)
	WriteErrorResponse(w, status, errType, err.Error())
}
