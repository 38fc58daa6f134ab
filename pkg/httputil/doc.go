// Package httputil holds the JSON request and response helpers shared by the
// API handlers and middleware.
//
// Every error body has the shape
//
//	{"error": "cannot remove the last admin", "code": "LAST_ADMIN", "details": {...}}
//
// with code and details omitted when empty. Handlers write domain errors
// through WriteCodedError; the helpers here use the codes declared in
// response.go.
//
// Request parsing writes its own 400 (or 413) so handlers can bail out early:
//
//	var req membership.CreateOrganizationRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
//	limit, err := httputil.ParseQueryInt(r, "limit", 100, 1, 1000)
package httputil
