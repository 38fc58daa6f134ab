package membership

import (
	"time"
)

// Role is a membership role on an organization or board
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
	RoleMember    Role = "MEMBER"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// IsModeratorOrAbove reports whether r is ADMIN or MODERATOR
func (r Role) IsModeratorOrAbove() bool {
	switch r {
	case RoleAdmin, RoleModerator:
		return true
	case RoleMember:
		return false
	}
	return false
}

// Status is the state of a membership row
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusBanned Status = "BANNED"
)

// InviteStatus is the state of an invite
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "PENDING"
	InviteStatusAccepted InviteStatus = "ACCEPTED"
	InviteStatusDeclined InviteStatus = "DECLINED"
)

// Scope identifies which membership hierarchy a resource belongs to
type Scope string

const (
	ScopeOrganization Scope = "organization"
	ScopeBoard        Scope = "board"
)

// ResourceRef points at an organization or a board
type ResourceRef struct {
	Scope Scope  `json:"scope"`
	ID    string `json:"id"`
}

// OrganizationRef returns a reference to an organization
func OrganizationRef(id string) ResourceRef {
	return ResourceRef{Scope: ScopeOrganization, ID: id}
}

// BoardRef returns a reference to a board
func BoardRef(id string) ResourceRef {
	return ResourceRef{Scope: ScopeBoard, ID: id}
}

func (r ResourceRef) String() string {
	return string(r.Scope) + ":" + r.ID
}

// Action is a mutating operation subject to authorization
type Action string

const (
	ActionChangeRole Action = "CHANGE_ROLE"
	ActionBan        Action = "BAN"
	ActionUnban      Action = "UNBAN"
	ActionRemove     Action = "REMOVE"
	ActionInvite     Action = "INVITE"
)

// User is an identity owned by the auth system
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Organization is a tenant that owns boards
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
}

// Board is a feedback board, optionally owned by an organization
type Board struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	IsPrivate      bool      `json:"isPrivate"`
	OrganizationID *string   `json:"organizationId,omitempty"`
	CreatedByID    string    `json:"createdById"`
	CreatedAt      time.Time `json:"createdAt"`
}

// OrganizationMember links a user to an organization
type OrganizationMember struct {
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	JoinedAt       time.Time `json:"joinedAt"`
	User           *User     `json:"user,omitempty"`
}

// OrganizationBan excludes a user from an organization independently of membership
type OrganizationBan struct {
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	BanReason      *string   `json:"banReason,omitempty"`
	BannedBy       string    `json:"bannedBy"`
	BannedAt       time.Time `json:"bannedAt"`
	User           *User     `json:"user,omitempty"`
}

// BoardMember links a user to a board. Bans are stored in place.
type BoardMember struct {
	UserID         string     `json:"userId"`
	BoardID        string     `json:"boardId"`
	Role           Role       `json:"role"`
	Status         Status     `json:"status"`
	BannedAt       *time.Time `json:"bannedAt,omitempty"`
	BanReason      *string    `json:"banReason,omitempty"`
	BannedByUserID *string    `json:"bannedByUserId,omitempty"`
	JoinedAt       time.Time  `json:"joinedAt"`
	User           *User      `json:"user,omitempty"`
}

// Invite proposes that a user join an organization or a board
type Invite struct {
	ID              string       `json:"id"`
	InvitedUsername string       `json:"invitedUsername"`
	InvitedUserID   string       `json:"invitedUserId"`
	InvitedByID     string       `json:"invitedById"`
	OrganizationID  *string      `json:"organizationId,omitempty"`
	BoardID         *string      `json:"boardId,omitempty"`
	Status          InviteStatus `json:"status"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Resource returns the organization or board the invite targets
func (i *Invite) Resource() ResourceRef {
	if i.OrganizationID != nil {
		return OrganizationRef(*i.OrganizationID)
	}
	if i.BoardID != nil {
		return BoardRef(*i.BoardID)
	}
	return ResourceRef{}
}

// NotificationTypeInvite marks notifications created for invites
const NotificationTypeInvite = "INVITE"

// Notification is the in-app message that accompanies an invite
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	InviteID  *string   `json:"inviteId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// MemberStatus is the normalized membership of a user on a resource
type MemberStatus struct {
	Role      *Role   `json:"role"`
	Status    *Status `json:"status"`
	IsMember  bool    `json:"isMember"`
	IsBanned  bool    `json:"isBanned"`
	IsAdmin   bool    `json:"isAdmin"`
	IsCreator bool    `json:"isCreator"`
	// Inherited is set when a board status was derived from the organization row
	Inherited bool `json:"inherited"`
}

// EffectiveRole returns the role used for authorization, ADMIN for creators
func (s MemberStatus) EffectiveRole() (Role, bool) {
	if s.IsCreator || s.IsAdmin {
		return RoleAdmin, true
	}
	if s.Role == nil {
		return "", false
	}
	return *s.Role, true
}
