package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/projectvision/vision/pkg/httputil"
	"github.com/projectvision/vision/pkg/membership"
)

// InviteHandlers serves invite routes
type InviteHandlers struct {
	service *membership.Service
}

// NewInviteHandlers creates InviteHandlers
func NewInviteHandlers(service *membership.Service) *InviteHandlers {
	return &InviteHandlers{service: service}
}

// RegisterRoutes registers invite routes. limit, when set, wraps invite
// creation.
func (h *InviteHandlers) RegisterRoutes(router *mux.Router, limit func(http.Handler) http.Handler) {
	var create http.Handler = http.HandlerFunc(h.CreateInvite)
	if limit != nil {
		create = limit(create)
	}
	router.Handle("/invites", create).Methods(http.MethodPost)
	router.HandleFunc("/invites", h.ListInvites).Methods(http.MethodGet)
	router.HandleFunc("/invites/{inviteID}/respond", h.RespondToInvite).Methods(http.MethodPost)
}

// RespondRequest is the body of POST /invites/{inviteID}/respond
type RespondRequest struct {
	Status membership.InviteStatus `json:"status"`
}

// CreateInvite invites a user to an organization or board
func (h *InviteHandlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req membership.InviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	invite, err := h.service.Invite(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, invite)
}

// ListInvites lists the caller's pending invites
func (h *InviteHandlers) ListInvites(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	invites, err := h.service.PendingInvites(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invites": invites})
}

// RespondToInvite accepts or declines an invite
func (h *InviteHandlers) RespondToInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	inviteID, ok := httputil.ParsePathStringOrError(w, r, "inviteID")
	if !ok {
		return
	}
	var req RespondRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.service.RespondToInvite(r.Context(), userID, membership.RespondRequest{
		InviteID: inviteID,
		Decision: req.Status,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}
