package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/projectvision/vision/pkg/audit"
	"github.com/projectvision/vision/pkg/observability"
)

// Result is the outcome of a successful mutation. Exactly the fields that
// apply to the operation are set.
type Result struct {
	Resource           ResourceRef         `json:"resource"`
	Message            string              `json:"message"`
	OrganizationMember *OrganizationMember `json:"organizationMember,omitempty"`
	OrganizationBan    *OrganizationBan    `json:"organizationBan,omitempty"`
	BoardMember        *BoardMember        `json:"boardMember,omitempty"`
	Organization       *Organization       `json:"organization,omitempty"`
	Board              *Board              `json:"board,omitempty"`
}

// Mutator performs membership state transitions. Every decision is re-made
// inside the transaction against locked rows; audit entries are recorded
// after commit.
type Mutator struct {
	store    Store
	guard    Guard
	recorder audit.Recorder
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

// NewMutator creates a Mutator. recorder and metrics may be nil.
func NewMutator(store Store, recorder audit.Recorder, metrics *observability.Metrics) *Mutator {
	if recorder == nil {
		recorder = audit.NoOpRecorder{}
	}
	return &Mutator{
		store:    store,
		recorder: recorder,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// authorize runs the guard and converts a denial into its error
func (m *Mutator) authorize(c Check) error {
	return m.guard.Authorize(c).Err()
}

// record writes audit entries. Failures are logged and counted, never returned.
func (m *Mutator) record(ctx context.Context, entries ...*audit.Entry) {
	for _, entry := range entries {
		if err := m.recorder.Record(ctx, entry); err != nil {
			observability.FromContext(ctx).
				WithError(err).
				WithField("action", string(entry.Action)).
				WithField("entity_id", entry.EntityID).
				Error("Failed to record audit entry")
			m.metrics.RecordAuditFailure()
		}
	}
}

func orgEntry(orgID, actorID string, action audit.Action, entityType audit.EntityType, entityID string, details map[string]interface{}) *audit.Entry {
	id := orgID
	return &audit.Entry{
		OrganizationID: &id,
		UserID:         actorID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		Details:        details,
	}
}

func boardEntry(board *Board, actorID string, action audit.Action, entityType audit.EntityType, entityID string, details map[string]interface{}) *audit.Entry {
	id := board.ID
	return &audit.Entry{
		OrganizationID: board.OrganizationID,
		BoardID:        &id,
		UserID:         actorID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		Details:        details,
	}
}

// ChangeRole sets the role of an organization or board member
func (m *Mutator) ChangeRole(ctx context.Context, actorID string, req ChangeRoleRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Resource.Scope == ScopeBoard {
		return m.changeBoardRole(ctx, actorID, req)
	}
	return m.changeOrgRole(ctx, actorID, req)
}

func (m *Mutator) changeOrgRole(ctx context.Context, actorID string, req ChangeRoleRequest) (*Result, error) {
	ref, targetID := req.Resource, req.TargetUserID
	var (
		result  *Result
		oldRole Role
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		org, err := tx.GetOrganization(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return errResourceNotFound(ref)
		}

		actor, err := resolveLocked(ctx, tx, actorID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		check := Check{Action: ActionChangeRole, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID, NewRole: req.Role}
		if err := m.authorize(check); err != nil {
			return err
		}

		target, err := tx.LockOrganizationMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		if target == nil {
			return ErrNotAMember
		}
		status := orgStatus(target)
		check.Target = &status
		check.TargetRole = target.Role

		if target.Role == RoleAdmin && req.Role != RoleAdmin {
			admins, err := tx.LockActiveOrganizationAdmins(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to lock admins: %w", err)
			}
			n := orgAdminsAfter(admins, targetID)
			check.AdminsAfter = &n
		}
		if err := m.authorize(check); err != nil {
			return err
		}

		oldRole = target.Role
		if target.Role != req.Role {
			if err := tx.UpdateOrganizationMemberRole(ctx, ref.ID, targetID, req.Role); err != nil {
				return fmt.Errorf("failed to update role: %w", err)
			}
			target.Role = req.Role
		}
		if target.User, err = tx.GetUser(ctx, targetID); err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		result = &Result{Resource: ref, Message: "Member role updated", OrganizationMember: target}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldRole != req.Role {
		m.record(ctx, orgEntry(ref.ID, actorID, audit.ActionUpdateMemberRole, audit.EntityTypeOrganizationMember, targetID,
			map[string]interface{}{"oldRole": oldRole, "newRole": req.Role}))
	}
	return result, nil
}

func (m *Mutator) changeBoardRole(ctx context.Context, actorID string, req ChangeRoleRequest) (*Result, error) {
	ref, targetID := req.Resource, req.TargetUserID
	var (
		result  *Result
		board   *Board
		oldRole Role
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		board, err = tx.GetBoard(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get board: %w", err)
		}
		if board == nil {
			return errResourceNotFound(ref)
		}

		actor, err := resolveLocked(ctx, tx, actorID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		check := Check{Action: ActionChangeRole, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID, NewRole: req.Role}
		if err := m.authorize(check); err != nil {
			return err
		}

		target, err := tx.LockBoardMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		if target == nil {
			return ErrNotAMember
		}
		status := boardStatus(targetID, board, target, nil)
		check.Target = &status
		check.TargetRole = target.Role

		// The creator is left out of this tally, and demoting the creator's
		// own row is never blocked.
		if target.Role == RoleAdmin && req.Role != RoleAdmin {
			admins, err := tx.LockActiveBoardAdmins(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to lock admins: %w", err)
			}
			if n, ok := boardRoleAdminsAfter(admins, board.CreatedByID, targetID); ok {
				check.AdminsAfter = &n
			}
		}
		if err := m.authorize(check); err != nil {
			return err
		}

		oldRole = target.Role
		if target.Role != req.Role {
			if err := tx.UpdateBoardMemberRole(ctx, ref.ID, targetID, req.Role); err != nil {
				return fmt.Errorf("failed to update role: %w", err)
			}
			target.Role = req.Role
		}
		if target.User, err = tx.GetUser(ctx, targetID); err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		result = &Result{Resource: ref, Message: "Board member role updated", BoardMember: target}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldRole != req.Role {
		m.record(ctx, boardEntry(board, actorID, audit.ActionUpdateBoardMemberRole, audit.EntityTypeBoardMember, targetID,
			map[string]interface{}{"oldRole": oldRole, "newRole": req.Role}))
	}
	return result, nil
}

// Ban excludes a member from an organization or board
func (m *Mutator) Ban(ctx context.Context, actorID string, req BanRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Resource.Scope == ScopeBoard {
		return m.banBoardMember(ctx, actorID, req)
	}
	return m.banOrgMember(ctx, actorID, req)
}

// banOrgMember moves the member row into organization_bans
func (m *Mutator) banOrgMember(ctx context.Context, actorID string, req BanRequest) (*Result, error) {
	ref, targetID := req.Resource, req.TargetUserID
	var (
		result   *Result
		prevRole Role
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		org, err := tx.GetOrganization(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return errResourceNotFound(ref)
		}

		actor, err := resolveLocked(ctx, tx, actorID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		check := Check{Action: ActionBan, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID}
		if err := m.authorize(check); err != nil {
			return err
		}

		target, err := tx.LockOrganizationMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		existing, err := tx.LockOrganizationBan(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock ban: %w", err)
		}
		if target == nil {
			// A concurrent ban already moved the row.
			if existing != nil {
				return ErrAlreadyBanned
			}
			return ErrNotAMember
		}

		status := orgStatus(target)
		check.Target = &status
		check.TargetRole = target.Role
		if target.Role == RoleAdmin {
			admins, err := tx.LockActiveOrganizationAdmins(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to lock admins: %w", err)
			}
			n := orgAdminsAfter(admins, targetID)
			check.AdminsAfter = &n
		}
		if err := m.authorize(check); err != nil {
			return err
		}

		ban := &OrganizationBan{
			UserID:         targetID,
			OrganizationID: ref.ID,
			BanReason:      req.Reason,
			BannedBy:       actorID,
			BannedAt:       m.now(),
		}
		if err := tx.UpsertOrganizationBan(ctx, ban); err != nil {
			return fmt.Errorf("failed to create ban: %w", err)
		}
		if _, err := tx.DeleteOrganizationMember(ctx, ref.ID, targetID); err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		}
		if ban.User, err = tx.GetUser(ctx, targetID); err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		prevRole = target.Role
		result = &Result{Resource: ref, Message: "Member banned", OrganizationBan: ban}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, orgEntry(ref.ID, actorID, audit.ActionBanMember, audit.EntityTypeOrganizationBan, targetID,
		map[string]interface{}{"reason": req.Reason, "previousRole": prevRole}))
	return result, nil
}

// banBoardMember flips the board row to BANNED in place
func (m *Mutator) banBoardMember(ctx context.Context, actorID string, req BanRequest) (*Result, error) {
	ref, targetID := req.Resource, req.TargetUserID
	var (
		result *Result
		board  *Board
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		board, err = tx.GetBoard(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get board: %w", err)
		}
		if board == nil {
			return errResourceNotFound(ref)
		}

		actor, err := resolveLocked(ctx, tx, actorID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		check := Check{Action: ActionBan, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID}
		if err := m.authorize(check); err != nil {
			return err
		}

		target, err := tx.LockBoardMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		status := boardStatus(targetID, board, target, nil)
		check.Target = &status
		if target == nil && !status.IsCreator {
			return ErrNotAMember
		}

		// The creator always counts toward the remaining admins here.
		if target != nil && target.Role == RoleAdmin {
			check.TargetRole = target.Role
			admins, err := tx.LockActiveBoardAdmins(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to lock admins: %w", err)
			}
			n := boardBanAdminsAfter(admins, board.CreatedByID, targetID)
			check.AdminsAfter = &n
		}
		if err := m.authorize(check); err != nil {
			return err
		}

		if err := tx.SetBoardMemberBanned(ctx, ref.ID, targetID, actorID, req.Reason, m.now()); err != nil {
			return fmt.Errorf("failed to ban member: %w", err)
		}
		updated, err := tx.GetBoardMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to get member: %w", err)
		}
		if updated.User, err = tx.GetUser(ctx, targetID); err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		result = &Result{Resource: ref, Message: "Board member banned", BoardMember: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, boardEntry(board, actorID, audit.ActionBanBoardMember, audit.EntityTypeBoardMember, targetID,
		map[string]interface{}{"reason": req.Reason}))
	return result, nil
}

// Unban lifts a ban. Organization unbans delete the ban without restoring
// membership; board unbans reactivate the existing row.
func (m *Mutator) Unban(ctx context.Context, actorID string, req UnbanRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Resource.Scope == ScopeBoard {
		return m.unbanBoardMember(ctx, actorID, req)
	}
	return m.unbanOrgMember(ctx, actorID, req)
}

func (m *Mutator) unbanOrgMember(ctx context.Context, actorID string, req UnbanRequest) (*Result, error) {
	ref, targetID := req.Resource, req.TargetUserID

	err := m.store.InTx(ctx, func(tx Tx) error {
		org, err := tx.GetOrganization(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return errResourceNotFound(ref)
		}

		actor, err := resolveLocked(ctx, tx, actorID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		check := Check{Action: ActionUnban, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID}
		if err := m.authorize(check); err != nil {
			return err
		}

		ban, err := tx.LockOrganizationBan(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock ban: %w", err)
		}
		check.Target = &MemberStatus{IsBanned: ban != nil}
		if err := m.authorize(check); err != nil {
			return err
		}

		if _, err := tx.DeleteOrganizationBan(ctx, ref.ID, targetID); err != nil {
			return fmt.Errorf("failed to delete ban: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, orgEntry(ref.ID, actorID, audit.ActionUnbanMember, audit.EntityTypeOrganizationBan, targetID, nil))
	return &Result{Resource: ref, Message: "User unbanned"}, nil
}

func (m *Mutator) unbanBoardMember(ctx context.Context, actorID string, req UnbanRequest) (*Result, error) {
	ref, targetID := req.Resource, req.TargetUserID
	var (
		result *Result
		board  *Board
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		board, err = tx.GetBoard(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get board: %w", err)
		}
		if board == nil {
			return errResourceNotFound(ref)
		}

		actor, err := resolveLocked(ctx, tx, actorID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		check := Check{Action: ActionUnban, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID}
		if err := m.authorize(check); err != nil {
			return err
		}

		target, err := tx.LockBoardMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		if target == nil {
			return ErrNotAMember
		}
		status := boardStatus(targetID, board, target, nil)
		check.Target = &status
		if err := m.authorize(check); err != nil {
			return err
		}

		if err := tx.SetBoardMemberActive(ctx, ref.ID, targetID); err != nil {
			return fmt.Errorf("failed to unban member: %w", err)
		}
		updated, err := tx.GetBoardMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to get member: %w", err)
		}
		if updated.User, err = tx.GetUser(ctx, targetID); err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		result = &Result{Resource: ref, Message: "Board member unbanned", BoardMember: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, boardEntry(board, actorID, audit.ActionUnbanBoardMember, audit.EntityTypeBoardMember, targetID, nil))
	return result, nil
}

// Remove deletes an organization member row. Removing yourself is leaving.
func (m *Mutator) Remove(ctx context.Context, actorID string, req RemoveRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ref, targetID := OrganizationRef(req.OrganizationID), req.TargetUserID
	leaving := actorID == targetID
	var prevRole Role

	err := m.store.InTx(ctx, func(tx Tx) error {
		org, err := tx.GetOrganization(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return errResourceNotFound(ref)
		}

		actor, err := resolveLocked(ctx, tx, actorID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		check := Check{Action: ActionRemove, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID}
		if err := m.authorize(check); err != nil {
			return err
		}

		target, err := tx.LockOrganizationMember(ctx, ref.ID, targetID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		if target == nil {
			return ErrNotAMember
		}
		status := orgStatus(target)
		check.Target = &status
		check.TargetRole = target.Role
		if target.Role == RoleAdmin {
			admins, err := tx.LockActiveOrganizationAdmins(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to lock admins: %w", err)
			}
			n := orgAdminsAfter(admins, targetID)
			check.AdminsAfter = &n
		}
		if err := m.authorize(check); err != nil {
			return err
		}

		if _, err := tx.DeleteOrganizationMember(ctx, ref.ID, targetID); err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		}
		prevRole = target.Role
		return nil
	})
	if err != nil {
		return nil, err
	}

	action, message := audit.ActionRemoveMember, "Member removed"
	if leaving {
		action, message = audit.ActionLeaveOrganization, "You have left the organization"
	}
	m.record(ctx, orgEntry(ref.ID, actorID, action, audit.EntityTypeOrganizationMember, targetID,
		map[string]interface{}{"previousRole": prevRole}))
	return &Result{Resource: ref, Message: message}, nil
}

// RespondToInvite accepts or declines an invite addressed to userID. The
// invite is deleted either way.
func (m *Mutator) RespondToInvite(ctx context.Context, userID string, req RespondRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	accept := req.Decision == InviteStatusAccepted
	var (
		result *Result
		entry  *audit.Entry
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		inv, err := tx.LockInvite(ctx, req.InviteID)
		if err != nil {
			return fmt.Errorf("failed to lock invite: %w", err)
		}
		if inv == nil {
			return ErrInviteNotFound
		}
		if inv.InvitedUserID != userID {
			return ErrInviteMismatch
		}
		if inv.Status != InviteStatusPending {
			return ErrInviteNotPending
		}

		ref := inv.Resource()
		result = &Result{Resource: ref}
		var name string

		switch ref.Scope {
		case ScopeOrganization:
			org, err := tx.GetOrganization(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to get organization: %w", err)
			}
			if org == nil {
				return errResourceNotFound(ref)
			}
			name = org.Name
			entry = orgEntry(ref.ID, userID, audit.ActionDeclineInvite, audit.EntityTypeInvite, inv.ID, nil)

			if accept {
				ban, err := tx.LockOrganizationBan(ctx, ref.ID, userID)
				if err != nil {
					return fmt.Errorf("failed to lock ban: %w", err)
				}
				if ban != nil {
					return banDetails(ErrBannedCaller, ban.BanReason, ban.BannedAt)
				}
				member, err := tx.UpsertOrganizationMemberActive(ctx, ref.ID, userID, m.now())
				if err != nil {
					return fmt.Errorf("failed to add member: %w", err)
				}
				result.OrganizationMember = member
			}
		case ScopeBoard:
			board, err := tx.GetBoard(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to get board: %w", err)
			}
			if board == nil {
				return errResourceNotFound(ref)
			}
			name = board.Name
			entry = boardEntry(board, userID, audit.ActionDeclineInvite, audit.EntityTypeInvite, inv.ID, nil)

			if accept {
				existing, err := tx.LockBoardMember(ctx, ref.ID, userID)
				if err != nil {
					return fmt.Errorf("failed to lock member: %w", err)
				}
				if existing != nil && existing.Status == StatusBanned {
					return banDetails(ErrBannedCaller, existing.BanReason, derefTime(existing.BannedAt))
				}
				member, err := tx.UpsertBoardMemberActive(ctx, ref.ID, userID, m.now())
				if err != nil {
					return fmt.Errorf("failed to add member: %w", err)
				}
				result.BoardMember = member
			}
		default:
			return errInvalid("invite has no resource")
		}

		if err := tx.DeleteInvite(ctx, inv.ID); err != nil {
			return fmt.Errorf("failed to delete invite: %w", err)
		}

		if accept {
			result.Message = fmt.Sprintf("You have joined %s", name)
			entry.Action = audit.ActionAcceptInvite
		} else {
			result.Message = fmt.Sprintf("You declined the invite to %s", name)
		}
		if err := tx.ResolveInviteNotification(ctx, inv.ID, result.Message); err != nil {
			return fmt.Errorf("failed to update notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, entry)
	return result, nil
}

func banDetails(base *Error, reason *string, at time.Time) *Error {
	e := base.WithDetail("bannedAt", at)
	if reason != nil {
		e = e.WithDetail("banReason", *reason)
	}
	return e
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
