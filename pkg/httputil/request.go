package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

var (
	// ErrEmptyBody is returned by ParseJSON when the request has no body
	ErrEmptyBody = errors.New("request body is required")
	// ErrTrailingData is returned by ParseJSON when the body holds more than one JSON value
	ErrTrailingData = errors.New("request body must contain a single JSON object")
)

// ParseJSON decodes exactly one JSON value from the request body into dest.
// Unknown fields are rejected.
func ParseJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes the error response on failure.
// Bodies cut off by MaxBytesMiddleware get a 413.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := ParseJSON(r, dest)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteCodedError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
		return false
	}
	WriteBadRequest(w, err.Error())
	return false
}

// ParsePathString returns a non-blank path variable
func ParsePathString(r *http.Request, key string) (string, error) {
	str := strings.TrimSpace(mux.Vars(r)[key])
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParsePathStringOrError is ParsePathString writing a 400 on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return val, true
}

// ParseQueryInt parses an integer query parameter within [min, max],
// returning def when it is absent
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	str := strings.TrimSpace(r.URL.Query().Get(key))
	if str == "" {
		return def, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an integer, got %q", key, str)
	}
	if val < min || val > max {
		return 0, fmt.Errorf("query parameter %s must be between %d and %d", key, min, max)
	}
	return val, nil
}

// ParseQueryString returns a query parameter or def when it is absent
func ParseQueryString(r *http.Request, key, def string) string {
	if val := r.URL.Query().Get(key); val != "" {
		return val
	}
	return def
}

// ParseQueryTime parses an RFC 3339 query parameter. Absent parameters
// yield nil.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return nil, fmt.Errorf("query parameter %s must be an RFC 3339 timestamp, got %q", key, str)
	}
	return &t, nil
}

// ParseQueryList splits a comma separated query parameter. Repeated
// parameters are merged and blank items dropped.
func ParseQueryList(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
