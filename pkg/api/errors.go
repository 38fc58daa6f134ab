package api

import (
	"errors"
	"net/http"

	"github.com/projectvision/vision/pkg/httputil"
	"github.com/projectvision/vision/pkg/membership"
	"github.com/projectvision/vision/pkg/middleware"
	"github.com/projectvision/vision/pkg/observability"
)

// statusFor maps a domain code to its HTTP status
func statusFor(code membership.Code) int {
	switch code.Kind() {
	case membership.KindAuthentication:
		return http.StatusUnauthorized
	case membership.KindAuthorization:
		return http.StatusForbidden
	case membership.KindNotFound:
		return http.StatusNotFound
	case membership.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// writeServiceError reports domain errors verbatim and hides everything else
// behind a logged 500
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *membership.Error
	if errors.As(err, &de) {
		httputil.WriteCodedError(w, statusFor(de.Code), string(de.Code), de.Message, de.Details)
		return
	}
	if errors.Is(err, membership.ErrAuditSearchUnavailable) {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}

	observability.FromContext(r.Context()).WithError(err).Error("Request failed")
	httputil.WriteInternalError(w)
}

// callerID returns the authenticated user, writing a 401 when there is none
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserID(r)
	if userID == "" {
		writeServiceError(w, r, membership.ErrUnauthenticated)
		return "", false
	}
	return userID, true
}
