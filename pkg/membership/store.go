package membership

import (
	"context"
	"time"
)

// Reader is the read side of the membership store. Lookups of a single
// row return (nil, nil) when the row does not exist.
type Reader interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetBoard(ctx context.Context, id string) (*Board, error)

	GetOrganizationMember(ctx context.Context, orgID, userID string) (*OrganizationMember, error)
	GetOrganizationBan(ctx context.Context, orgID, userID string) (*OrganizationBan, error)
	GetBoardMember(ctx context.Context, boardID, userID string) (*BoardMember, error)

	FindPendingInvite(ctx context.Context, userID string, ref ResourceRef) (*Invite, error)

	ListOrganizationMembers(ctx context.Context, orgID string) ([]*OrganizationMember, error)
	ListOrganizationBans(ctx context.Context, orgID string) ([]*OrganizationBan, error)
	ListBoardMembers(ctx context.Context, boardID string) ([]*BoardMember, error)
	ListPendingInvitesForUser(ctx context.Context, userID string) ([]*Invite, error)
}

// Tx is a store handle bound to a single transaction. Lock* methods take
// row locks that are held until the transaction ends.
type Tx interface {
	Reader

	LockOrganizationMember(ctx context.Context, orgID, userID string) (*OrganizationMember, error)
	LockOrganizationBan(ctx context.Context, orgID, userID string) (*OrganizationBan, error)
	LockBoardMember(ctx context.Context, boardID, userID string) (*BoardMember, error)
	LockInvite(ctx context.Context, id string) (*Invite, error)
	// LockActiveOrganizationAdmins locks and returns the user ids of ACTIVE ADMIN rows
	LockActiveOrganizationAdmins(ctx context.Context, orgID string) ([]string, error)
	// LockActiveBoardAdmins locks and returns the user ids of ACTIVE ADMIN rows
	LockActiveBoardAdmins(ctx context.Context, boardID string) ([]string, error)

	InsertOrganization(ctx context.Context, org *Organization) error
	DeleteOrganization(ctx context.Context, id string) error
	InsertBoard(ctx context.Context, board *Board) error
	DeleteBoard(ctx context.Context, id string) error

	InsertOrganizationMember(ctx context.Context, m *OrganizationMember) error
	// UpsertOrganizationMemberActive creates a MEMBER row or reactivates an
	// existing non-active row as MEMBER; an existing ACTIVE row keeps its role
	UpsertOrganizationMemberActive(ctx context.Context, orgID, userID string, now time.Time) (*OrganizationMember, error)
	UpdateOrganizationMemberRole(ctx context.Context, orgID, userID string, role Role) error
	DeleteOrganizationMember(ctx context.Context, orgID, userID string) (bool, error)

	UpsertOrganizationBan(ctx context.Context, ban *OrganizationBan) error
	DeleteOrganizationBan(ctx context.Context, orgID, userID string) (bool, error)

	InsertBoardMember(ctx context.Context, m *BoardMember) error
	UpsertBoardMemberActive(ctx context.Context, boardID, userID string, now time.Time) (*BoardMember, error)
	UpdateBoardMemberRole(ctx context.Context, boardID, userID string, role Role) error
	SetBoardMemberBanned(ctx context.Context, boardID, userID, bannedBy string, reason *string, at time.Time) error
	SetBoardMemberActive(ctx context.Context, boardID, userID string) error

	InsertInvite(ctx context.Context, invite *Invite) error
	DeleteInvite(ctx context.Context, id string) error

	InsertNotification(ctx context.Context, n *Notification) error
	// ResolveInviteNotification marks the notification of an invite read with an outcome message
	ResolveInviteNotification(ctx context.Context, inviteID, message string) error
}

// Store is the durable membership store
type Store interface {
	Reader

	// InTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
