package errx

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse is the wire shape of an error. It never carries the cause chain.
type HTTPErrorResponse struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"status_code"`
	Retryable  bool           `json:"retryable,omitempty"`
}

// ToHTTPResponse converts an Error to an HTTPErrorResponse
func (e *Error) ToHTTPResponse() HTTPErrorResponse {
	return HTTPErrorResponse{
		Code:       e.Code,
		Message:    e.Message,
		Type:       string(e.Type),
		Details:    e.Details,
		StatusCode: e.HTTPStatus,
		Retryable:  e.Retryable(),
	}
}

// WriteHTTP writes the error as an HTTP response
func (e *Error) WriteHTTP(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)
	json.NewEncoder(w).Encode(e.ToHTTPResponse())
}

// FromError classifies any error. Unclassified errors become a generic
// internal error so their text does not leak to the caller.
func FromError(err error) *Error {
	var customErr *Error
	if As(err, &customErr) {
		return customErr
	}
	return New("internal server error", TypeInternal)
}

// HandleError is a helper to write errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	FromError(err).WriteHTTP(w)
}
