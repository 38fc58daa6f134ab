package membership

import "strings"

func (r ResourceRef) validate() error {
	switch r.Scope {
	case ScopeOrganization, ScopeBoard:
	default:
		return errInvalid("unknown resource scope %q", r.Scope)
	}
	if strings.TrimSpace(r.ID) == "" {
		return errInvalid("%s id is required", r.Scope)
	}
	return nil
}

func requireUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errInvalid("target user id is required")
	}
	return nil
}

// ChangeRoleRequest sets the role of a member
type ChangeRoleRequest struct {
	Resource     ResourceRef
	TargetUserID string
	Role         Role
}

func (r ChangeRoleRequest) Validate() error {
	if err := r.Resource.validate(); err != nil {
		return err
	}
	if err := requireUserID(r.TargetUserID); err != nil {
		return err
	}
	if !r.Role.Valid() {
		return newError(CodeInvalidRole, "invalid role %q", r.Role).
			WithDetail("allowed", []Role{RoleAdmin, RoleModerator, RoleMember})
	}
	return nil
}

// BanRequest bans a member. Reason is optional.
type BanRequest struct {
	Resource     ResourceRef
	TargetUserID string
	Reason       *string
}

func (r BanRequest) Validate() error {
	if err := r.Resource.validate(); err != nil {
		return err
	}
	if r.Reason != nil && len(*r.Reason) > 500 {
		return errInvalid("ban reason must be at most 500 characters")
	}
	return requireUserID(r.TargetUserID)
}

// UnbanRequest lifts a ban
type UnbanRequest struct {
	Resource     ResourceRef
	TargetUserID string
}

func (r UnbanRequest) Validate() error {
	if err := r.Resource.validate(); err != nil {
		return err
	}
	return requireUserID(r.TargetUserID)
}

// RemoveRequest removes a member from an organization, or lets the caller
// leave when TargetUserID is the caller
type RemoveRequest struct {
	OrganizationID string
	TargetUserID   string
}

func (r RemoveRequest) Validate() error {
	if err := OrganizationRef(r.OrganizationID).validate(); err != nil {
		return err
	}
	return requireUserID(r.TargetUserID)
}

// InviteRequest invites a user by username to exactly one of an
// organization or a board
type InviteRequest struct {
	Username       string  `json:"username"`
	OrganizationID *string `json:"organizationId,omitempty"`
	BoardID        *string `json:"boardId,omitempty"`
}

func (r InviteRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errInvalid("username is required")
	}
	hasOrg := r.OrganizationID != nil && *r.OrganizationID != ""
	hasBoard := r.BoardID != nil && *r.BoardID != ""
	if hasOrg == hasBoard {
		return errInvalid("exactly one of organizationId or boardId is required")
	}
	return nil
}

// Resource returns the invite target. Only meaningful after Validate.
func (r InviteRequest) Resource() ResourceRef {
	if r.OrganizationID != nil && *r.OrganizationID != "" {
		return OrganizationRef(*r.OrganizationID)
	}
	return BoardRef(*r.BoardID)
}

// RespondRequest accepts or declines an invite
type RespondRequest struct {
	InviteID string
	Decision InviteStatus
}

func (r RespondRequest) Validate() error {
	if strings.TrimSpace(r.InviteID) == "" {
		return errInvalid("invite id is required")
	}
	switch r.Decision {
	case InviteStatusAccepted, InviteStatusDeclined:
		return nil
	default:
		return errInvalid("status must be ACCEPTED or DECLINED")
	}
}

// CreateOrganizationRequest creates an organization owned by the caller
type CreateOrganizationRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
}

func (r CreateOrganizationRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errInvalid("name is required")
	}
	if len(name) > 100 {
		return errInvalid("name must be at most 100 characters")
	}
	return nil
}

// CreateBoardRequest creates a personal board, or an organization board
// when OrganizationID is set
type CreateBoardRequest struct {
	Name           string  `json:"name"`
	IsPrivate      bool    `json:"isPrivate"`
	OrganizationID *string `json:"organizationId,omitempty"`
}

func (r CreateBoardRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errInvalid("name is required")
	}
	if len(name) > 100 {
		return errInvalid("name must be at most 100 characters")
	}
	if r.OrganizationID != nil && strings.TrimSpace(*r.OrganizationID) == "" {
		return errInvalid("organizationId must not be empty")
	}
	return nil
}
