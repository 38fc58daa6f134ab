package membership

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectvision/vision/pkg/audit"
)

// CreateOrganization creates an organization whose creator becomes its
// first ADMIN
func (m *Mutator) CreateOrganization(ctx context.Context, actorID string, req CreateOrganizationRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := m.now()
	org := &Organization{ID: m.newID(), Name: strings.TrimSpace(req.Name), IsPrivate: req.IsPrivate, CreatedAt: now}
	member := &OrganizationMember{UserID: actorID, OrganizationID: org.ID, Role: RoleAdmin, Status: StatusActive, JoinedAt: now}

	err := m.store.InTx(ctx, func(tx Tx) error {
		user, err := tx.GetUser(ctx, actorID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if user == nil {
			return ErrUserNotFound
		}
		if err := tx.InsertOrganization(ctx, org); err != nil {
			return fmt.Errorf("failed to create organization: %w", err)
		}
		if err := tx.InsertOrganizationMember(ctx, member); err != nil {
			return fmt.Errorf("failed to add creator: %w", err)
		}
		member.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, orgEntry(org.ID, actorID, audit.ActionCreateOrganization, audit.EntityTypeOrganization, org.ID,
		map[string]interface{}{"name": org.Name, "isPrivate": org.IsPrivate}))
	return &Result{Resource: OrganizationRef(org.ID), Message: "Organization created", Organization: org, OrganizationMember: member}, nil
}

// DeleteOrganization deletes an organization with its members, bans,
// boards and invites. Admin only.
func (m *Mutator) DeleteOrganization(ctx context.Context, actorID, orgID string) (*Result, error) {
	ref := OrganizationRef(orgID)
	if err := ref.validate(); err != nil {
		return nil, err
	}
	var name string

	err := m.store.InTx(ctx, func(tx Tx) error {
		org, err := tx.GetOrganization(ctx, orgID)
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
		if err := m.guard.RequireAdmin(actor).Err(); err != nil {
			return err
		}
		if err := tx.DeleteOrganization(ctx, orgID); err != nil {
			return fmt.Errorf("failed to delete organization: %w", err)
		}
		name = org.Name
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, orgEntry(orgID, actorID, audit.ActionDeleteOrganization, audit.EntityTypeOrganization, orgID,
		map[string]interface{}{"name": name}))
	return &Result{Resource: ref, Message: "Organization deleted"}, nil
}

// CreateBoard creates a board owned by the caller. Organization boards
// require an organization ADMIN or MODERATOR.
func (m *Mutator) CreateBoard(ctx context.Context, actorID string, req CreateBoardRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := m.now()
	board := &Board{
		ID:             m.newID(),
		Name:           strings.TrimSpace(req.Name),
		IsPrivate:      req.IsPrivate,
		OrganizationID: req.OrganizationID,
		CreatedByID:    actorID,
		CreatedAt:      now,
	}
	member := &BoardMember{UserID: actorID, BoardID: board.ID, Role: RoleAdmin, Status: StatusActive, JoinedAt: now}

	err := m.store.InTx(ctx, func(tx Tx) error {
		user, err := tx.GetUser(ctx, actorID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if user == nil {
			return ErrUserNotFound
		}

		if board.OrganizationID != nil {
			ref := OrganizationRef(*board.OrganizationID)
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
			if err := m.guard.RequireModerator(actor).Err(); err != nil {
				return err
			}
		}

		if err := tx.InsertBoard(ctx, board); err != nil {
			return fmt.Errorf("failed to create board: %w", err)
		}
		if err := tx.InsertBoardMember(ctx, member); err != nil {
			return fmt.Errorf("failed to add creator: %w", err)
		}
		member.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, boardEntry(board, actorID, audit.ActionCreateBoard, audit.EntityTypeBoard, board.ID,
		map[string]interface{}{"name": board.Name, "isPrivate": board.IsPrivate}))
	return &Result{Resource: BoardRef(board.ID), Message: "Board created", Board: board, BoardMember: member}, nil
}

// DeleteBoard deletes a board with its members and invites. Requires the
// creator or an effective ADMIN.
func (m *Mutator) DeleteBoard(ctx context.Context, actorID, boardID string) (*Result, error) {
	ref := BoardRef(boardID)
	if err := ref.validate(); err != nil {
		return nil, err
	}
	var board *Board

	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		board, err = tx.GetBoard(ctx, boardID)
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
		if err := m.guard.RequireAdmin(actor).Err(); err != nil {
			return err
		}
		if err := tx.DeleteBoard(ctx, boardID); err != nil {
			return fmt.Errorf("failed to delete board: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, boardEntry(board, actorID, audit.ActionDeleteBoard, audit.EntityTypeBoard, boardID,
		map[string]interface{}{"name": board.Name}))
	return &Result{Resource: ref, Message: "Board deleted"}, nil
}

// JoinOrganization adds the caller to a public organization as MEMBER
func (m *Mutator) JoinOrganization(ctx context.Context, userID, orgID string) (*Result, error) {
	ref := OrganizationRef(orgID)
	if err := ref.validate(); err != nil {
		return nil, err
	}
	var result *Result

	err := m.store.InTx(ctx, func(tx Tx) error {
		org, err := tx.GetOrganization(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return errResourceNotFound(ref)
		}

		ban, err := tx.LockOrganizationBan(ctx, orgID, userID)
		if err != nil {
			return fmt.Errorf("failed to lock ban: %w", err)
		}
		if ban != nil {
			return banDetails(ErrBannedCaller, ban.BanReason, ban.BannedAt)
		}

		existing, err := tx.LockOrganizationMember(ctx, orgID, userID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		if existing != nil {
			if existing.Status != StatusActive {
				return ErrBannedCaller
			}
			return ErrAlreadyMember
		}
		if org.IsPrivate {
			return errorFor(CodePrivateResource)
		}

		member, err := tx.UpsertOrganizationMemberActive(ctx, orgID, userID, m.now())
		if err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		result = &Result{Resource: ref, Message: fmt.Sprintf("You have joined %s", org.Name), OrganizationMember: member}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, orgEntry(orgID, userID, audit.ActionJoinOrganization, audit.EntityTypeOrganizationMember, userID, nil))
	return result, nil
}

// JoinBoard adds the caller to a public board as MEMBER
func (m *Mutator) JoinBoard(ctx context.Context, userID, boardID string) (*Result, error) {
	ref := BoardRef(boardID)
	if err := ref.validate(); err != nil {
		return nil, err
	}
	var (
		result *Result
		board  *Board
	)

	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		board, err = tx.GetBoard(ctx, boardID)
		if err != nil {
			return fmt.Errorf("failed to get board: %w", err)
		}
		if board == nil {
			return errResourceNotFound(ref)
		}

		existing, err := tx.LockBoardMember(ctx, boardID, userID)
		if err != nil {
			return fmt.Errorf("failed to lock member: %w", err)
		}
		if existing != nil {
			if existing.Status == StatusBanned {
				return banDetails(ErrBannedCaller, existing.BanReason, derefTime(existing.BannedAt))
			}
			return ErrAlreadyMember
		}
		if board.IsPrivate {
			return errorFor(CodePrivateResource)
		}

		member, err := tx.UpsertBoardMemberActive(ctx, boardID, userID, m.now())
		if err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		result = &Result{Resource: ref, Message: fmt.Sprintf("You have joined %s", board.Name), BoardMember: member}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, boardEntry(board, userID, audit.ActionJoinBoard, audit.EntityTypeBoardMember, userID, nil))
	return result, nil
}
