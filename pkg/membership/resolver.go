package membership

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Resolver computes the normalized membership status of a user on an
// organization or a board
type Resolver struct {
	store Reader
}

// NewResolver creates a new Resolver
func NewResolver(store Reader) *Resolver {
	return &Resolver{store: store}
}

// ResolveOrgStatus resolves a user's status on an organization
func (r *Resolver) ResolveOrgStatus(ctx context.Context, userID, orgID string) (MemberStatus, error) {
	var org *Organization
	var member *OrganizationMember

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		org, err = r.store.GetOrganization(gctx, orgID)
		return err
	})
	g.Go(func() error {
		var err error
		member, err = r.store.GetOrganizationMember(gctx, orgID, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return MemberStatus{}, fmt.Errorf("failed to resolve organization status: %w", err)
	}
	if org == nil {
		return MemberStatus{}, errResourceNotFound(OrganizationRef(orgID))
	}

	return orgStatus(member), nil
}

// ResolveBoardStatus resolves a user's status on a board, falling back to
// the organization row when the user has no board row
func (r *Resolver) ResolveBoardStatus(ctx context.Context, userID, boardID string) (MemberStatus, error) {
	var board *Board
	var member *BoardMember

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		board, err = r.store.GetBoard(gctx, boardID)
		return err
	})
	g.Go(func() error {
		var err error
		member, err = r.store.GetBoardMember(gctx, boardID, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return MemberStatus{}, fmt.Errorf("failed to resolve board status: %w", err)
	}
	if board == nil {
		return MemberStatus{}, errResourceNotFound(BoardRef(boardID))
	}

	var orgMember *OrganizationMember
	if member == nil && board.OrganizationID != nil {
		var err error
		orgMember, err = r.store.GetOrganizationMember(ctx, *board.OrganizationID, userID)
		if err != nil {
			return MemberStatus{}, fmt.Errorf("failed to resolve board status: %w", err)
		}
	}

	return boardStatus(userID, board, member, orgMember), nil
}

// Resolve dispatches on the resource scope
func (r *Resolver) Resolve(ctx context.Context, userID string, ref ResourceRef) (MemberStatus, error) {
	switch ref.Scope {
	case ScopeOrganization:
		return r.ResolveOrgStatus(ctx, userID, ref.ID)
	case ScopeBoard:
		return r.ResolveBoardStatus(ctx, userID, ref.ID)
	default:
		return MemberStatus{}, errInvalid("unknown resource scope %q", ref.Scope)
	}
}

// orgStatus normalizes an organization row. Any non-active status counts
// as banned.
func orgStatus(member *OrganizationMember) MemberStatus {
	if member == nil {
		return MemberStatus{}
	}
	role, status := member.Role, member.Status
	return MemberStatus{
		Role:     &role,
		Status:   &status,
		IsMember: status == StatusActive,
		IsBanned: status != StatusActive,
		IsAdmin:  role == RoleAdmin,
	}
}

// boardStatus normalizes a board row. The creator is always an admin. A
// user without a board row on an organization board takes the
// organization row instead, and stays a guest when that is missing too.
func boardStatus(userID string, board *Board, member *BoardMember, orgMember *OrganizationMember) MemberStatus {
	isCreator := board.CreatedByID == userID

	if member != nil {
		role, status := member.Role, member.Status
		return MemberStatus{
			Role:      &role,
			Status:    &status,
			IsMember:  status == StatusActive,
			IsBanned:  status == StatusBanned,
			IsAdmin:   role == RoleAdmin || isCreator,
			IsCreator: isCreator,
		}
	}

	if board.OrganizationID != nil && orgMember != nil {
		s := orgStatus(orgMember)
		s.IsAdmin = s.IsAdmin || isCreator
		s.IsCreator = isCreator
		s.Inherited = true
		return s
	}

	return MemberStatus{IsAdmin: isCreator, IsCreator: isCreator}
}

// resolveLocked resolves a status inside a transaction, locking the rows it reads
func resolveLocked(ctx context.Context, tx Tx, userID string, ref ResourceRef) (MemberStatus, error) {
	switch ref.Scope {
	case ScopeOrganization:
		member, err := tx.LockOrganizationMember(ctx, ref.ID, userID)
		if err != nil {
			return MemberStatus{}, err
		}
		return orgStatus(member), nil
	case ScopeBoard:
		board, err := tx.GetBoard(ctx, ref.ID)
		if err != nil {
			return MemberStatus{}, err
		}
		if board == nil {
			return MemberStatus{}, errResourceNotFound(ref)
		}
		member, err := tx.LockBoardMember(ctx, ref.ID, userID)
		if err != nil {
			return MemberStatus{}, err
		}
		var orgMember *OrganizationMember
		if member == nil && board.OrganizationID != nil {
			orgMember, err = tx.LockOrganizationMember(ctx, *board.OrganizationID, userID)
			if err != nil {
				return MemberStatus{}, err
			}
		}
		return boardStatus(userID, board, member, orgMember), nil
	default:
		return MemberStatus{}, errInvalid("unknown resource scope %q", ref.Scope)
	}
}
