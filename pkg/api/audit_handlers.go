package api

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/projectvision/vision/pkg/audit"
	"github.com/projectvision/vision/pkg/httputil"
	"github.com/projectvision/vision/pkg/membership"
)

const maxAuditLimit = 1000

// AuditHandlers serves the organization audit log
type AuditHandlers struct {
	service *membership.Service
}

// NewAuditHandlers creates AuditHandlers
func NewAuditHandlers(service *membership.Service) *AuditHandlers {
	return &AuditHandlers{service: service}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{orgID}/audit-logs", h.ListAuditLogs).Methods(http.MethodGet)
}

// ListAuditLogs returns an organization's audit entries as JSON, NDJSON or
// CSV depending on ?format=
func (h *AuditHandlers) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
	if !ok {
		return
	}

	filter, format, err := parseAuditQuery(r)
	if err != nil {
		httputil.WriteCodedError(w, http.StatusBadRequest, string(membership.CodeInvalidRequest), err.Error(), nil)
		return
	}

	entries, err := h.service.AuditLogs(r.Context(), userID, orgID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	body, err := audit.Export(entries, format)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("failed to export audit logs: %w", err))
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func parseAuditQuery(r *http.Request) (audit.SearchFilter, audit.ExportFormat, error) {
	var filter audit.SearchFilter

	format := audit.ExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON)))
	switch format {
	case audit.ExportFormatJSON, audit.ExportFormatCSV, audit.ExportFormatNDJSON:
	default:
		return filter, "", fmt.Errorf("unsupported format %q", format)
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100, 1, maxAuditLimit)
	if err != nil {
		return filter, "", err
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0, 0, math.MaxInt32)
	if err != nil {
		return filter, "", err
	}

	start, err := httputil.ParseQueryTime(r, "start")
	if err != nil {
		return filter, "", err
	}
	end, err := httputil.ParseQueryTime(r, "end")
	if err != nil {
		return filter, "", err
	}

	for _, action := range httputil.ParseQueryList(r, "action") {
		filter.Actions = append(filter.Actions, audit.Action(action))
	}
	if boardID := httputil.ParseQueryString(r, "boardId", ""); boardID != "" {
		filter.BoardID = &boardID
	}
	filter.UserID = httputil.ParseQueryString(r, "userId", "")
	filter.StartTime = start
	filter.EndTime = end
	filter.Limit = limit
	filter.Offset = offset
	return filter, format, nil
}
