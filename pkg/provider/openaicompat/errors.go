package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/cadence/pkg/api"
)

// MapHTTPError converts a non-2xx response into an API error. The
// backend's error.message is used when the body carries one.
func MapHTTPError(resp *http.Response) *api.Error {
	message := ExtractErrorMessage(resp.Body)
	if message != "" {
		return api.NewAPIError(resp.StatusCode, message)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		message = "backend authentication failed, check the api key"
	case resp.StatusCode == http.StatusNotFound:
		message = "backend endpoint not found"
	case resp.StatusCode == http.StatusTooManyRequests:
		message = "backend rate limit exceeded"
	case resp.StatusCode >= http.StatusInternalServerError:
		message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
	}
	return api.NewAPIError(resp.StatusCode, message)
}

// MapNetworkError converts a connection-level failure (refused, DNS,
// TLS, reset) into a transport error.
func MapNetworkError(err error) *api.Error {
	return api.NewTransportError(err)
}

// ExtractErrorMessage reads at most 4 KiB of body and returns its
// error.message, or the empty string.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil {
		return errResp.Error.Message
	}
	return ""
}
