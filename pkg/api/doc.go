// Package api exposes the membership service over HTTP.
//
// Every route except the health probes and /metrics requires a bearer token.
// Domain errors are returned as
//
//	{"error": "cannot remove the last admin", "code": "LAST_ADMIN", "details": {...}}
//
// with the status chosen by the code's kind: validation and invariant
// failures are 400, authorization 403, not found 404, conflicts 409.
// Infrastructure failures are logged and reported as a bare 500.
package api
