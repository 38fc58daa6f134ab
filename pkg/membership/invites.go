package membership

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectvision/vision/pkg/audit"
)

// InviteWorkflow creates invites and hands responses to the Mutator
type InviteWorkflow struct {
	mutator *Mutator
}

// NewInviteWorkflow creates an InviteWorkflow on top of a Mutator
func NewInviteWorkflow(mutator *Mutator) *InviteWorkflow {
	return &InviteWorkflow{mutator: mutator}
}

// Create invites a user to an organization or board. The invite and its
// notification are written in one transaction. Pending-invite uniqueness is
// a pre-check inside that transaction, not a constraint.
func (w *InviteWorkflow) Create(ctx context.Context, inviterID string, req InviteRequest) (*Invite, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m := w.mutator
	ref := req.Resource()
	username := strings.TrimSpace(req.Username)
	var (
		invite *Invite
		entry  *audit.Entry
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		var (
			name    string
			board   *Board
			invitee MemberStatus
		)

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
		default:
			var err error
			board, err = tx.GetBoard(ctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to get board: %w", err)
			}
			if board == nil {
				return errResourceNotFound(ref)
			}
			name = board.Name
		}

		actor, err := resolveLocked(ctx, tx, inviterID, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve caller: %w", err)
		}
		if err := m.authorize(Check{Action: ActionInvite, Scope: ref.Scope, ActorID: inviterID, Actor: actor}); err != nil {
			return err
		}

		user, err := tx.GetUserByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if user == nil {
			return ErrUserNotFound.WithDetail("username", username)
		}

		switch ref.Scope {
		case ScopeOrganization:
			member, err := tx.GetOrganizationMember(ctx, ref.ID, user.ID)
			if err != nil {
				return fmt.Errorf("failed to get member: %w", err)
			}
			ban, err := tx.GetOrganizationBan(ctx, ref.ID, user.ID)
			if err != nil {
				return fmt.Errorf("failed to get ban: %w", err)
			}
			invitee = orgStatus(member)
			invitee.IsBanned = invitee.IsBanned || ban != nil
		default:
			member, err := tx.GetBoardMember(ctx, ref.ID, user.ID)
			if err != nil {
				return fmt.Errorf("failed to get member: %w", err)
			}
			invitee = boardStatus(user.ID, board, member, nil)
		}

		pending, err := tx.FindPendingInvite(ctx, user.ID, ref)
		if err != nil {
			return fmt.Errorf("failed to check pending invites: %w", err)
		}
		decision := m.guard.AuthorizeInvitee(InviteeCheck{
			InviterID:  inviterID,
			InviteeID:  user.ID,
			Invitee:    invitee,
			HasPending: pending != nil,
		})
		if err := decision.Err(); err != nil {
			return err
		}

		now := m.now()
		invite = &Invite{
			ID:              m.newID(),
			InvitedUsername: user.Username,
			InvitedUserID:   user.ID,
			InvitedByID:     inviterID,
			Status:          InviteStatusPending,
			CreatedAt:       now,
		}
		resourceID := ref.ID
		if ref.Scope == ScopeOrganization {
			invite.OrganizationID = &resourceID
		} else {
			invite.BoardID = &resourceID
		}
		if err := tx.InsertInvite(ctx, invite); err != nil {
			return fmt.Errorf("failed to create invite: %w", err)
		}

		inviteID := invite.ID
		notification := &Notification{
			ID:        m.newID(),
			UserID:    user.ID,
			Type:      NotificationTypeInvite,
			Message:   fmt.Sprintf("You have been invited to join %s", name),
			InviteID:  &inviteID,
			CreatedAt: now,
		}
		if err := tx.InsertNotification(ctx, notification); err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}

		details := map[string]interface{}{"invitedUserId": user.ID, "invitedUsername": user.Username}
		if board != nil {
			entry = boardEntry(board, inviterID, audit.ActionCreateInvite, audit.EntityTypeInvite, invite.ID, details)
		} else {
			entry = orgEntry(ref.ID, inviterID, audit.ActionCreateInvite, audit.EntityTypeInvite, invite.ID, details)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, entry)
	return invite, nil
}

// Respond accepts or declines an invite addressed to userID
func (w *InviteWorkflow) Respond(ctx context.Context, userID string, req RespondRequest) (*Result, error) {
	return w.mutator.RespondToInvite(ctx, userID, req)
}
