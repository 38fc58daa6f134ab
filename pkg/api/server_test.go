package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectvision/vision/pkg/audit"
	"github.com/projectvision/vision/pkg/httputil"
	"github.com/projectvision/vision/pkg/membership"
	"github.com/projectvision/vision/pkg/middleware"
	"github.com/projectvision/vision/pkg/observability"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	auth    *middleware.Authenticator
	store   *membership.MemoryStore
	audit   *audit.MemoryRecorder
}

func newTestServer(t *testing.T, limiter middleware.Limiter) *testServer {
	t.Helper()
	store := membership.NewMemoryStore()
	for _, name := range []string{"alice", "bob", "carol"} {
		store.PutUser(&membership.User{ID: name, Username: name})
	}
	rec := audit.NewMemoryRecorder()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	auth := middleware.NewAuthenticator("test-secret", "vision")

	server := NewServer(Dependencies{
		Service:       membership.NewService(store, membership.Options{Recorder: rec, Searcher: rec, Metrics: metrics}),
		Authenticator: auth,
		InviteLimiter: limiter,
		Health:        observability.NewHealthChecker(nil, nil, "test"),
		Metrics:       metrics,
		Registry:      registry,
		Logger:        observability.NewLogger(observability.ErrorLevel, io.Discard),
	})
	return &testServer{t: t, handler: server.Handler(), auth: auth, store: store, audit: rec}
}

// do sends a request as user; an empty user sends no token
func (s *testServer) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(s.t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, err := s.auth.IssueToken(user, user, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code membership.Code) httputil.ErrorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var body httputil.ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, string(code), body.Code)
	return body
}

func (s *testServer) createOrg(name string, owner string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/orgs", owner, map[string]interface{}{"name": name})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var result membership.Result
	decode(s.t, rec, &result)
	require.NotNil(s.t, result.Organization)
	return result.Organization.ID
}

func TestServer_HealthAndMetricsArePublic(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/readyz", "", nil).Code)

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vision_http_requests_total")
}

func TestServer_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/invites", "", nil)
	requireError(t, rec, http.StatusUnauthorized, membership.CodeUnauthenticated)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestServer_OrganizationLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	orgID := s.createOrg("Acme", "alice")
	orgPath := "/orgs/" + orgID

	rec := s.do(http.MethodPost, orgPath+"/join", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, orgPath+"/membership", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status membership.MemberStatus
	decode(t, rec, &status)
	assert.True(t, status.IsMember)
	require.NotNil(t, status.Role)
	assert.Equal(t, membership.RoleMember, *status.Role)

	rec = s.do(http.MethodPatch, orgPath+"/members/bob", "alice", map[string]interface{}{"role": "MODERATOR"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result membership.Result
	decode(t, rec, &result)
	require.NotNil(t, result.OrganizationMember)
	assert.Equal(t, membership.RoleModerator, result.OrganizationMember.Role)

	rec = s.do(http.MethodPatch, orgPath+"/members/alice", "alice", map[string]interface{}{"role": "MEMBER"})
	requireError(t, rec, http.StatusBadRequest, membership.CodeLastAdmin)

	rec = s.do(http.MethodPatch, orgPath+"/members/alice", "bob", map[string]interface{}{"status": "BANNED"})
	requireError(t, rec, http.StatusForbidden, membership.CodeNotAdmin)

	rec = s.do(http.MethodPatch, orgPath+"/members/bob", "alice", map[string]interface{}{"role": "OWNER"})
	body := requireError(t, rec, http.StatusBadRequest, membership.CodeInvalidRole)
	assert.Contains(t, body.Details, "allowed")

	rec = s.do(http.MethodGet, orgPath+"/members", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members struct {
		Members []*membership.OrganizationMember `json:"members"`
	}
	decode(t, rec, &members)
	assert.Len(t, members.Members, 2)

	rec = s.do(http.MethodDelete, orgPath+"/members/bob", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.Equal(t, "You have left the organization", result.Message)

	rec = s.do(http.MethodDelete, orgPath, "carol", nil)
	requireError(t, rec, http.StatusForbidden, membership.CodeNotAdmin)
	rec = s.do(http.MethodDelete, orgPath, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodDelete, orgPath, "alice", nil)
	requireError(t, rec, http.StatusNotFound, membership.CodeResourceNotFound)
}

func TestServer_InviteBanAndAudit(t *testing.T) {
	s := newTestServer(t, nil)
	orgID := s.createOrg("Acme", "alice")
	orgPath := "/orgs/" + orgID

	rec := s.do(http.MethodPost, "/invites", "alice", map[string]interface{}{"username": "carol", "organizationId": orgID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var invite membership.Invite
	decode(t, rec, &invite)
	assert.Equal(t, membership.InviteStatusPending, invite.Status)

	rec = s.do(http.MethodPost, "/invites", "alice", map[string]interface{}{"username": "carol", "organizationId": orgID})
	requireError(t, rec, http.StatusConflict, membership.CodeInvitePending)

	rec = s.do(http.MethodPost, "/invites", "alice", map[string]interface{}{"username": "nobody", "organizationId": orgID})
	requireError(t, rec, http.StatusNotFound, membership.CodeUserNotFound)

	rec = s.do(http.MethodGet, "/invites", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var invites struct {
		Invites []*membership.Invite `json:"invites"`
	}
	decode(t, rec, &invites)
	require.Len(t, invites.Invites, 1)

	rec = s.do(http.MethodPost, "/invites/"+invite.ID+"/respond", "bob", map[string]interface{}{"status": "ACCEPTED"})
	requireError(t, rec, http.StatusForbidden, membership.CodeInviteMismatch)

	rec = s.do(http.MethodPost, "/invites/"+invite.ID+"/respond", "carol", map[string]interface{}{"status": "ACCEPTED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPatch, orgPath+"/members/carol", "alice", map[string]interface{}{"status": "BANNED", "banReason": "spam"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, orgPath+"/bans", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bans struct {
		Bans []*membership.OrganizationBan `json:"bans"`
	}
	decode(t, rec, &bans)
	require.Len(t, bans.Bans, 1)
	assert.Equal(t, "carol", bans.Bans[0].UserID)

	rec = s.do(http.MethodPost, orgPath+"/join", "carol", nil)
	body := requireError(t, rec, http.StatusForbidden, membership.CodeBannedCaller)
	assert.Equal(t, "spam", body.Details["banReason"])

	rec = s.do(http.MethodDelete, orgPath+"/bans/carol", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodDelete, orgPath+"/bans/carol", "alice", nil)
	requireError(t, rec, http.StatusBadRequest, membership.CodeNotBanned)

	rec = s.do(http.MethodGet, orgPath+"/audit-logs?format=csv&action=BAN_MEMBER,UNBAN_MEMBER", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, rec.Body.String(), "BAN_MEMBER")

	rec = s.do(http.MethodGet, orgPath+"/audit-logs", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []*audit.Entry
	decode(t, rec, &entries)
	assert.NotEmpty(t, entries)

	rec = s.do(http.MethodGet, orgPath+"/audit-logs", "bob", nil)
	requireError(t, rec, http.StatusForbidden, membership.CodeNotAdmin)

	rec = s.do(http.MethodGet, orgPath+"/audit-logs?format=xml", "alice", nil)
	requireError(t, rec, http.StatusBadRequest, membership.CodeInvalidRequest)
	rec = s.do(http.MethodGet, orgPath+"/audit-logs?limit=0", "alice", nil)
	requireError(t, rec, http.StatusBadRequest, membership.CodeInvalidRequest)
}

func TestServer_BoardModeration(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/boards", "alice", map[string]interface{}{"name": "Ideas"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created membership.Result
	decode(t, rec, &created)
	require.NotNil(t, created.Board)
	boardPath := "/boards/" + created.Board.ID

	rec = s.do(http.MethodGet, boardPath+"/membership", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status membership.MemberStatus
	decode(t, rec, &status)
	assert.True(t, status.IsCreator)
	assert.True(t, status.IsAdmin)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, boardPath+"/join", "bob", nil).Code)
	requireError(t, s.do(http.MethodPost, boardPath+"/join", "bob", nil), http.StatusConflict, membership.CodeAlreadyMember)

	rec = s.do(http.MethodPatch, boardPath+"/members/alice", "bob", map[string]interface{}{"status": "BANNED"})
	requireError(t, rec, http.StatusForbidden, membership.CodeNotAdmin)

	rec = s.do(http.MethodPatch, boardPath+"/members/bob", "alice", map[string]interface{}{"status": "BANNED", "banReason": "off topic"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, boardPath+"/membership", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &status)
	assert.True(t, status.IsBanned)

	rec = s.do(http.MethodGet, boardPath+"/members", "bob", nil)
	requireError(t, rec, http.StatusForbidden, membership.CodeBannedCaller)

	rec = s.do(http.MethodPatch, boardPath+"/members/bob", "alice", map[string]interface{}{"status": "ACTIVE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPatch, boardPath+"/members/bob", "alice", map[string]interface{}{"status": "ACTIVE"})
	requireError(t, rec, http.StatusBadRequest, membership.CodeNotBanned)

	rec = s.do(http.MethodGet, boardPath+"/members", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RejectsMalformedBodies(t *testing.T) {
	s := newTestServer(t, nil)
	orgID := s.createOrg("Acme", "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"unknown field", http.MethodPost, "/orgs", `{"name":"x","owner":"bob"}`},
		{"empty body", http.MethodPost, "/orgs", ""},
		{"missing name", http.MethodPost, "/orgs", map[string]interface{}{"name": "  "}},
		{"both role and status", http.MethodPatch, "/orgs/" + orgID + "/members/bob", map[string]interface{}{"role": "ADMIN", "status": "BANNED"}},
		{"neither role nor status", http.MethodPatch, "/orgs/" + orgID + "/members/bob", map[string]interface{}{}},
		{"invite to both", http.MethodPost, "/invites", map[string]interface{}{"username": "bob", "organizationId": orgID, "boardId": "b1"}},
		{"invalid decision", http.MethodPost, "/invites/i1/respond", map[string]interface{}{"status": "MAYBE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, "alice", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/orgs", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	token, err := s.auth.IssueToken("alice", "alice", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestServer_InviteRateLimit(t *testing.T) {
	limiter := middleware.NewLocalLimiter(middleware.Quota{Limit: 1, Window: time.Hour})
	s := newTestServer(t, limiter)
	orgID := s.createOrg("Acme", "alice")

	rec := s.do(http.MethodPost, "/invites", "alice", map[string]interface{}{"username": "bob", "organizationId": orgID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/invites", "alice", map[string]interface{}{"username": "carol", "organizationId": orgID})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other routes are not limited
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/invites", "alice", nil).Code)
}
