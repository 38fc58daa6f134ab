package audit

import (
	"time"
)

// Action names the membership mutation an entry records
type Action string

const (
	// Organization membership
	ActionUpdateMemberRole   Action = "UPDATE_MEMBER_ROLE"
	ActionBanMember          Action = "BAN_MEMBER"
	ActionUnbanMember        Action = "UNBAN_MEMBER"
	ActionRemoveMember       Action = "REMOVE_MEMBER"
	ActionLeaveOrganization  Action = "LEAVE_ORGANIZATION"
	ActionJoinOrganization   Action = "JOIN_ORGANIZATION"
	ActionCreateOrganization Action = "CREATE_ORGANIZATION"
	ActionDeleteOrganization Action = "DELETE_ORGANIZATION"

	// Board membership
	ActionUpdateBoardMemberRole Action = "UPDATE_BOARD_MEMBER_ROLE"
	ActionBanBoardMember        Action = "BAN_BOARD_MEMBER"
	ActionUnbanBoardMember      Action = "UNBAN_BOARD_MEMBER"
	ActionJoinBoard             Action = "JOIN_BOARD"
	ActionCreateBoard           Action = "CREATE_BOARD"
	ActionDeleteBoard           Action = "DELETE_BOARD"

	// Invites
	ActionCreateInvite  Action = "CREATE_INVITE"
	ActionAcceptInvite  Action = "ACCEPT_INVITE"
	ActionDeclineInvite Action = "DECLINE_INVITE"
)

// EntityType is the kind of row an entry points at
type EntityType string

const (
	EntityTypeOrganization       EntityType = "ORGANIZATION"
	EntityTypeOrganizationMember EntityType = "ORGANIZATION_MEMBER"
	EntityTypeOrganizationBan    EntityType = "ORGANIZATION_BAN"
	EntityTypeBoard              EntityType = "BOARD"
	EntityTypeBoardMember        EntityType = "BOARD_MEMBER"
	EntityTypeInvite             EntityType = "INVITE"
)

// Entry is an append-only record of a successful mutation
type Entry struct {
	ID             int64                  `json:"id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	OrganizationID *string                `json:"organizationId,omitempty"`
	BoardID        *string                `json:"boardId,omitempty"`
	UserID         string                 `json:"userId"`
	Action         Action                 `json:"action"`
	EntityType     EntityType             `json:"entityType"`
	EntityID       string                 `json:"entityId"`
	Details        map[string]interface{} `json:"details,omitempty"`
	RequestID      string                 `json:"requestId,omitempty"`
}

// SearchFilter defines filters for listing audit entries
type SearchFilter struct {
	OrganizationID *string
	BoardID        *string
	UserID         string
	Actions        []Action
	StartTime      *time.Time
	EndTime        *time.Time
	Limit          int
	Offset         int
}

// RetentionPolicy defines how long entries are kept
type RetentionPolicy struct {
	RetentionDays int
}

// DefaultRetentionPolicy keeps entries for 90 days
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}

// ExportFormat represents the format for exporting entries
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)
