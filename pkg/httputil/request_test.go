package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type body struct {
		Role string `json:"role"`
	}

	tests := []struct {
		name        string
		body        string
		expectError string
	}{
		{name: "valid JSON", body: `{"role": "ADMIN"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: "invalid JSON"},
		{name: "unknown field", body: `{"role": "ADMIN", "status": "BANNED"}`, expectError: "unknown field"},
		{name: "empty body", body: ``, expectError: "request body is required"},
		{name: "trailing object", body: `{"role": "ADMIN"}{"role": "MEMBER"}`, expectError: "single JSON object"},
		{name: "trailing whitespace", body: "{\"role\": \"ADMIN\"}\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest body

			err := ParseJSON(req, &dest)

			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "ADMIN", dest.Role)
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`{invalid}`))
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
	assert.Contains(t, w.Body.String(), CodeInvalidRequest)
}

func TestParsePathString(t *testing.T) {
	tests := []struct {
		name        string
		vars        map[string]string
		expected    string
		expectError bool
	}{
		{name: "present", vars: map[string]string{"orgID": "o1"}, expected: "o1"},
		{name: "missing", vars: map[string]string{}, expectError: true},
		{name: "blank", vars: map[string]string{"orgID": "  "}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest("GET", "/test", nil), tt.vars)

			val, err := ParsePathString(req, "orgID")

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, val)
			}
		})
	}
}

func TestParsePathStringOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := mux.SetURLVars(httptest.NewRequest("GET", "/test", nil), map[string]string{})

	_, ok := ParsePathStringOrError(w, req, "boardID")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "boardID")
}

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		expected    int
		expectError bool
	}{
		{name: "default", query: "", expected: 50},
		{name: "value", query: "?limit=10", expected: 10},
		{name: "upper bound", query: "?limit=100", expected: 100},
		{name: "invalid", query: "?limit=ten", expectError: true},
		{name: "below range", query: "?limit=0", expectError: true},
		{name: "above range", query: "?limit=101", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test"+tt.query, nil)

			val, err := ParseQueryInt(req, "limit", 50, 1, 100)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, val)
			}
		})
	}
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?format=csv", nil)
	assert.Equal(t, "csv", ParseQueryString(req, "format", "json"))
	assert.Equal(t, "json", ParseQueryString(req, "missing", "json"))
}

func TestParseQueryTime(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?since=2026-03-01T12:00:00Z&until=yesterday", nil)

	since, err := ParseQueryTime(req, "since")
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.True(t, since.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	_, err = ParseQueryTime(req, "until")
	assert.Error(t, err)

	missing, err := ParseQueryTime(req, "before")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestParseQueryList(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?action=BAN_MEMBER,,%20UNBAN_MEMBER&action=CHANGE_ROLE", nil)
	assert.Equal(t, []string{"BAN_MEMBER", "UNBAN_MEMBER", "CHANGE_ROLE"}, ParseQueryList(req, "action"))
	assert.Nil(t, ParseQueryList(req, "missing"))
}
