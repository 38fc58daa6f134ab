package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/projectvision/vision/pkg/httputil"
	"github.com/projectvision/vision/pkg/membership"
)

// MembershipHandlers serves organization and board membership routes
type MembershipHandlers struct {
	service *membership.Service
}

// NewMembershipHandlers creates MembershipHandlers
func NewMembershipHandlers(service *membership.Service) *MembershipHandlers {
	return &MembershipHandlers{service: service}
}

// RegisterRoutes registers organization and board routes
func (h *MembershipHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrganization).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{orgID}", h.DeleteOrganization).Methods(http.MethodDelete)
	router.HandleFunc("/orgs/{orgID}/membership", h.status(membership.ScopeOrganization, "orgID")).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{orgID}/join", h.join(membership.ScopeOrganization, "orgID")).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{orgID}/members", h.ListOrganizationMembers).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{orgID}/members/{userID}", h.updateMember(membership.ScopeOrganization, "orgID")).Methods(http.MethodPatch)
	router.HandleFunc("/orgs/{orgID}/members/{userID}", h.RemoveOrganizationMember).Methods(http.MethodDelete)
	router.HandleFunc("/orgs/{orgID}/bans", h.ListOrganizationBans).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{orgID}/bans/{userID}", h.UnbanOrganizationMember).Methods(http.MethodDelete)

	router.HandleFunc("/boards", h.CreateBoard).Methods(http.MethodPost)
	router.HandleFunc("/boards/{boardID}", h.DeleteBoard).Methods(http.MethodDelete)
	router.HandleFunc("/boards/{boardID}/membership", h.status(membership.ScopeBoard, "boardID")).Methods(http.MethodGet)
	router.HandleFunc("/boards/{boardID}/join", h.join(membership.ScopeBoard, "boardID")).Methods(http.MethodPost)
	router.HandleFunc("/boards/{boardID}/members", h.ListBoardMembers).Methods(http.MethodGet)
	router.HandleFunc("/boards/{boardID}/members/{userID}", h.updateMember(membership.ScopeBoard, "boardID")).Methods(http.MethodPatch)
}

// UpdateMemberRequest is the body of PATCH .../members/{userID}. Exactly one
// of Role or Status is set; BanReason only applies to Status=BANNED.
type UpdateMemberRequest struct {
	Role      *membership.Role   `json:"role,omitempty"`
	Status    *membership.Status `json:"status,omitempty"`
	BanReason *string            `json:"banReason,omitempty"`
}

// CreateOrganization creates an organization owned by the caller
func (h *MembershipHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req membership.CreateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.service.CreateOrganization(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, result)
}

// DeleteOrganization deletes an organization
func (h *MembershipHandlers) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
	if !ok {
		return
	}

	result, err := h.service.DeleteOrganization(r.Context(), userID, orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// CreateBoard creates a personal or organization board
func (h *MembershipHandlers) CreateBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req membership.CreateBoardRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.service.CreateBoard(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, result)
}

// DeleteBoard deletes a board
func (h *MembershipHandlers) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	boardID, ok := httputil.ParsePathStringOrError(w, r, "boardID")
	if !ok {
		return
	}

	result, err := h.service.DeleteBoard(r.Context(), userID, boardID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// status returns the caller's resolved membership on a resource
func (h *MembershipHandlers) status(scope membership.Scope, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		id, ok := httputil.ParsePathStringOrError(w, r, key)
		if !ok {
			return
		}

		status, err := h.service.Status(r.Context(), userID, membership.ResourceRef{Scope: scope, ID: id})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, status)
	}
}

func (h *MembershipHandlers) join(scope membership.Scope, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		id, ok := httputil.ParsePathStringOrError(w, r, key)
		if !ok {
			return
		}

		result, err := h.service.Join(r.Context(), userID, membership.ResourceRef{Scope: scope, ID: id})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, result)
	}
}

// ListOrganizationMembers lists the members of a visible organization
func (h *MembershipHandlers) ListOrganizationMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
	if !ok {
		return
	}

	members, err := h.service.ListOrganizationMembers(r.Context(), userID, orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// ListOrganizationBans lists the bans of an organization
func (h *MembershipHandlers) ListOrganizationBans(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
	if !ok {
		return
	}

	bans, err := h.service.ListOrganizationBans(r.Context(), userID, orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"bans": bans})
}

// ListBoardMembers lists the explicit members of a visible board
func (h *MembershipHandlers) ListBoardMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	boardID, ok := httputil.ParsePathStringOrError(w, r, "boardID")
	if !ok {
		return
	}

	members, err := h.service.ListBoardMembers(r.Context(), userID, boardID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// updateMember changes a role, bans or unbans depending on the body
func (h *MembershipHandlers) updateMember(scope membership.Scope, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := callerID(w, r)
		if !ok {
			return
		}
		id, ok := httputil.ParsePathStringOrError(w, r, key)
		if !ok {
			return
		}
		targetID, ok := httputil.ParsePathStringOrError(w, r, "userID")
		if !ok {
			return
		}
		var req UpdateMemberRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		ref := membership.ResourceRef{Scope: scope, ID: id}

		var (
			result *membership.Result
			err    error
		)
		switch {
		case req.Role != nil && req.Status != nil:
			httputil.WriteCodedError(w, http.StatusBadRequest, string(membership.CodeInvalidRequest),
				"specify either role or status, not both", nil)
			return
		case req.Role != nil:
			result, err = h.service.ChangeRole(r.Context(), actorID, membership.ChangeRoleRequest{
				Resource: ref, TargetUserID: targetID, Role: *req.Role,
			})
		case req.Status != nil && *req.Status == membership.StatusBanned:
			result, err = h.service.Ban(r.Context(), actorID, membership.BanRequest{
				Resource: ref, TargetUserID: targetID, Reason: req.BanReason,
			})
		case req.Status != nil && *req.Status == membership.StatusActive:
			result, err = h.service.Unban(r.Context(), actorID, membership.UnbanRequest{
				Resource: ref, TargetUserID: targetID,
			})
		default:
			httputil.WriteCodedError(w, http.StatusBadRequest, string(membership.CodeInvalidRequest),
				"role or status (BANNED, ACTIVE) is required", nil)
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, result)
	}
}

// RemoveOrganizationMember removes a member, or lets the caller leave
func (h *MembershipHandlers) RemoveOrganizationMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	result, err := h.service.Remove(r.Context(), actorID, membership.RemoveRequest{
		OrganizationID: vars["orgID"],
		TargetUserID:   vars["userID"],
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// UnbanOrganizationMember lifts an organization ban
func (h *MembershipHandlers) UnbanOrganizationMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	result, err := h.service.Unban(r.Context(), actorID, membership.UnbanRequest{
		Resource:     membership.OrganizationRef(vars["orgID"]),
		TargetUserID: vars["userID"],
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}
