package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectvision/vision/pkg/contextkeys"
)

func whoAmI(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", contextkeys.GetUserID(r.Context()))
		w.Header().Set("X-Username", contextkeys.GetUsername(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator_Handler(t *testing.T) {
	auth := NewAuthenticator("test-secret", "vision")
	handler := auth.Handler(whoAmI(t))

	valid, err := auth.IssueToken("u1", "alice", time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken("u1", "alice", -time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewAuthenticator("test-secret", "elsewhere").IssueToken("u1", "alice", time.Hour)
	require.NoError(t, err)
	otherSecret, err := NewAuthenticator("other-secret", "vision").IssueToken("u1", "alice", time.Hour)
	require.NoError(t, err)
	noSubject, err := auth.IssueToken("", "alice", time.Hour)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "vision",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + otherIssuer, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + otherSecret, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized},
		{"unexpected algorithm", "Bearer " + hs512, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orgs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u1", rec.Header().Get("X-User"))
				assert.Equal(t, "alice", rec.Header().Get("X-Username"))
			} else {
				assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAuthenticator_AnyIssuer(t *testing.T) {
	auth := NewAuthenticator("test-secret", "")
	token, err := NewAuthenticator("test-secret", "somewhere").IssueToken("u2", "", time.Minute)
	require.NoError(t, err)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u2", claims.Subject)
	assert.Empty(t, claims.Username)
}
