package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingMessages    = errors.New("messages must not be empty")
	ErrInvalidTemperature = errors.New("temperature must be within [0, 2]")
	ErrMalformedBody      = errors.New("malformed request body")
	ErrUpstreamTimeout    = errors.New("upstream read timed out")
	ErrUpstreamStatus     = errors.New("upstream returned non-2xx response")
	ErrStageIncomplete    = errors.New("stage did not complete")
)

// TransportError reports a failure talking to an upstream service: the
// connection could not be established, a read timed out, or the service
// answered with a non-success status. It is fatal for the stage in progress.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was the per-read idle timeout.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, ErrUpstreamTimeout)
}

// IsCallerInput reports whether err was caused by the caller's request body.
func IsCallerInput(err error) bool {
	return errors.Is(err, ErrMissingMessages) ||
		errors.Is(err, ErrInvalidTemperature) ||
		errors.Is(err, ErrMalformedBody)
}

// StatusCode maps err onto the HTTP status returned to a caller.
func StatusCode(err error) int {
	if IsCallerInput(err) {
		return http.StatusBadRequest
	}
	var te *TransportError
	if errors.As(err, &te) && te.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(body)
}
