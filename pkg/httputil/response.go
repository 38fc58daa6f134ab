package httputil

import (
	"encoding/json"
	"net/http"
)

// Codes written by this package. Handlers with a richer error model pass
// their own codes to WriteCodedError.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeRateLimited          = "RATE_LIMITED"
	CodeUnavailable          = "SERVICE_UNAVAILABLE"
	CodeInternal             = "INTERNAL"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// internalErrorBody is written when a response cannot be encoded
var internalErrorBody = []byte(`{"error":"internal server error","code":"INTERNAL"}` + "\n")

// WriteJSON encodes data and writes it with the given status. Encoding
// happens before the header is sent, so a value that cannot be marshalled
// turns into a 500 instead of a truncated body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		writeBody(w, http.StatusInternalServerError, internalErrorBody)
		return
	}
	writeBody(w, status, append(body, '\n'))
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteCodedError writes an error carrying a machine readable code and
// optional details
func WriteCodedError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// WriteBadRequest writes a 400 with code INVALID_REQUEST
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteCodedError(w, http.StatusBadRequest, CodeInvalidRequest, message, nil)
}

// WriteTooManyRequests writes a 429. Callers set Retry-After themselves.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteCodedError(w, http.StatusTooManyRequests, CodeRateLimited, message, nil)
}

// WriteServiceUnavailable writes a 503
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteCodedError(w, http.StatusServiceUnavailable, CodeUnavailable, message, nil)
}

// WriteInternalError writes a generic 500. The cause is never sent to the client.
func WriteInternalError(w http.ResponseWriter) {
	writeBody(w, http.StatusInternalServerError, internalErrorBody)
}

// WriteCreated writes data with 201 Created
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes data with 200 OK
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}
