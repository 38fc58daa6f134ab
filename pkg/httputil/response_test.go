package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "queued"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"queued"}`, w.Body.String())
}

func TestWriteJSON_EncodingFailure(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":"INTERNAL"}`, w.Body.String())
}

func TestWriteCodedError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteCodedError(w, http.StatusForbidden, "BANNED_CALLER", "you are banned from this resource",
		map[string]any{"banReason": "spam"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "BANNED_CALLER", resp.Code)
	assert.Equal(t, "you are banned from this resource", resp.Error)
	assert.Equal(t, "spam", resp.Details["banReason"])
}

func TestWriteCodedError_OmitsEmptyDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCodedError(w, http.StatusConflict, "ALREADY_MEMBER", "already a member", nil)
	assert.JSONEq(t, `{"error":"already a member","code":"ALREADY_MEMBER"}`, w.Body.String())
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad") }, http.StatusBadRequest, CodeInvalidRequest},
		{"too many requests", func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow down") }, http.StatusTooManyRequests, CodeRateLimited},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "later") }, http.StatusServiceUnavailable, CodeUnavailable},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w) }, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestWriteSuccessAndCreated(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCreated(w, map[string]string{"id": "inv-1"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"inv-1"}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteSuccess(w, []string{"alice"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["alice"]`, w.Body.String())
}
