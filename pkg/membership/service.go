package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/projectvision/vision/pkg/audit"
	"github.com/projectvision/vision/pkg/observability"
)

// ErrAuditSearchUnavailable is returned when no audit searcher is configured
var ErrAuditSearchUnavailable = errors.New("audit log search is not configured")

// Options configures a Service. Every field is optional.
type Options struct {
	Recorder audit.Recorder
	Searcher audit.Searcher
	Metrics  *observability.Metrics
}

// Service is the entry point used by route handlers. It resolves the caller,
// runs the guard as a fast pre-check, and hands the operation to the Mutator
// or InviteWorkflow, which decide again inside the transaction.
type Service struct {
	store    Store
	resolver *Resolver
	guard    Guard
	mutator  *Mutator
	invites  *InviteWorkflow
	searcher audit.Searcher
	metrics  *observability.Metrics
}

// NewService wires the membership components around a store
func NewService(store Store, opts Options) *Service {
	mutator := NewMutator(store, opts.Recorder, opts.Metrics)
	return &Service{
		store:    store,
		resolver: NewResolver(store),
		mutator:  mutator,
		invites:  NewInviteWorkflow(mutator),
		searcher: opts.Searcher,
		metrics:  opts.Metrics,
	}
}

// Resolver exposes the status resolver
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// observe wraps an operation in a span and records its outcome
func (s *Service) observe(ctx context.Context, ref ResourceRef, op string, fn func(ctx context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, "membership."+strings.ToLower(op),
		trace.WithAttributes(
			attribute.String("membership.scope", string(ref.Scope)),
			attribute.String("membership.resource_id", ref.ID),
		))
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	outcome := "success"
	if err != nil {
		logger := observability.FromContext(ctx).
			WithResource(string(ref.Scope), ref.ID).
			WithField("operation", op)
		if code, ok := CodeOf(err); ok {
			outcome = "denied"
			span.SetAttributes(attribute.String("membership.denial", string(code)))
			s.metrics.RecordDenial(string(ref.Scope), op, string(code))
			logger.WithField("code", string(code)).Debug("Membership operation denied")
		} else {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.WithError(err).Error("Membership operation failed")
		}
	}
	s.metrics.RecordMutation(string(ref.Scope), op, outcome, time.Since(start))
	return err
}

// precheck resolves the caller outside the transaction and applies the
// actor-level rules of the guard
func (s *Service) precheck(ctx context.Context, action Action, ref ResourceRef, actorID, targetID string) error {
	actor, err := s.resolver.Resolve(ctx, actorID, ref)
	if err != nil {
		return err
	}
	return s.guard.Authorize(Check{Action: action, Scope: ref.Scope, ActorID: actorID, Actor: actor, TargetID: targetID}).Err()
}

// Status returns the caller's resolved status on a resource
func (s *Service) Status(ctx context.Context, userID string, ref ResourceRef) (MemberStatus, error) {
	if err := ref.validate(); err != nil {
		return MemberStatus{}, err
	}
	return s.resolver.Resolve(ctx, userID, ref)
}

// ChangeRole changes a member's role
func (s *Service) ChangeRole(ctx context.Context, actorID string, req ChangeRoleRequest) (*Result, error) {
	var result *Result
	err := s.observe(ctx, req.Resource, string(ActionChangeRole), func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		if err := s.precheck(ctx, ActionChangeRole, req.Resource, actorID, req.TargetUserID); err != nil {
			return err
		}
		var err error
		result, err = s.mutator.ChangeRole(ctx, actorID, req)
		return err
	})
	return result, err
}

// Ban bans a member
func (s *Service) Ban(ctx context.Context, actorID string, req BanRequest) (*Result, error) {
	var result *Result
	err := s.observe(ctx, req.Resource, string(ActionBan), func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		if err := s.precheck(ctx, ActionBan, req.Resource, actorID, req.TargetUserID); err != nil {
			return err
		}
		var err error
		result, err = s.mutator.Ban(ctx, actorID, req)
		return err
	})
	return result, err
}

// Unban lifts a ban
func (s *Service) Unban(ctx context.Context, actorID string, req UnbanRequest) (*Result, error) {
	var result *Result
	err := s.observe(ctx, req.Resource, string(ActionUnban), func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		if err := s.precheck(ctx, ActionUnban, req.Resource, actorID, req.TargetUserID); err != nil {
			return err
		}
		var err error
		result, err = s.mutator.Unban(ctx, actorID, req)
		return err
	})
	return result, err
}

// Remove removes a member from an organization, or leaves it
func (s *Service) Remove(ctx context.Context, actorID string, req RemoveRequest) (*Result, error) {
	ref := OrganizationRef(req.OrganizationID)
	var result *Result
	err := s.observe(ctx, ref, string(ActionRemove), func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		if err := s.precheck(ctx, ActionRemove, ref, actorID, req.TargetUserID); err != nil {
			return err
		}
		var err error
		result, err = s.mutator.Remove(ctx, actorID, req)
		return err
	})
	return result, err
}

// Invite creates an invite
func (s *Service) Invite(ctx context.Context, inviterID string, req InviteRequest) (*Invite, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ref := req.Resource()
	var invite *Invite
	err := s.observe(ctx, ref, string(ActionInvite), func(ctx context.Context) error {
		if err := s.precheck(ctx, ActionInvite, ref, inviterID, ""); err != nil {
			return err
		}
		var err error
		invite, err = s.invites.Create(ctx, inviterID, req)
		return err
	})
	return invite, err
}

// RespondToInvite accepts or declines an invite addressed to the caller
func (s *Service) RespondToInvite(ctx context.Context, userID string, req RespondRequest) (*Result, error) {
	var result *Result
	err := s.observe(ctx, ResourceRef{}, "RESPOND_INVITE", func(ctx context.Context) error {
		var err error
		result, err = s.invites.Respond(ctx, userID, req)
		return err
	})
	return result, err
}

// CreateOrganization creates an organization owned by the caller
func (s *Service) CreateOrganization(ctx context.Context, actorID string, req CreateOrganizationRequest) (*Result, error) {
	var result *Result
	err := s.observe(ctx, ResourceRef{Scope: ScopeOrganization}, "CREATE", func(ctx context.Context) error {
		var err error
		result, err = s.mutator.CreateOrganization(ctx, actorID, req)
		return err
	})
	return result, err
}

// DeleteOrganization deletes an organization
func (s *Service) DeleteOrganization(ctx context.Context, actorID, orgID string) (*Result, error) {
	var result *Result
	err := s.observe(ctx, OrganizationRef(orgID), "DELETE", func(ctx context.Context) error {
		var err error
		result, err = s.mutator.DeleteOrganization(ctx, actorID, orgID)
		return err
	})
	return result, err
}

// CreateBoard creates a board
func (s *Service) CreateBoard(ctx context.Context, actorID string, req CreateBoardRequest) (*Result, error) {
	var result *Result
	err := s.observe(ctx, ResourceRef{Scope: ScopeBoard}, "CREATE", func(ctx context.Context) error {
		var err error
		result, err = s.mutator.CreateBoard(ctx, actorID, req)
		return err
	})
	return result, err
}

// DeleteBoard deletes a board
func (s *Service) DeleteBoard(ctx context.Context, actorID, boardID string) (*Result, error) {
	var result *Result
	err := s.observe(ctx, BoardRef(boardID), "DELETE", func(ctx context.Context) error {
		var err error
		result, err = s.mutator.DeleteBoard(ctx, actorID, boardID)
		return err
	})
	return result, err
}

// Join adds the caller to a public organization or board
func (s *Service) Join(ctx context.Context, userID string, ref ResourceRef) (*Result, error) {
	var result *Result
	err := s.observe(ctx, ref, "JOIN", func(ctx context.Context) error {
		var err error
		if ref.Scope == ScopeBoard {
			result, err = s.mutator.JoinBoard(ctx, userID, ref.ID)
		} else {
			result, err = s.mutator.JoinOrganization(ctx, userID, ref.ID)
		}
		return err
	})
	return result, err
}

// requireVisible allows any caller on a public resource and only active
// members (or the board creator) on a private one
func (s *Service) requireVisible(ctx context.Context, userID string, ref ResourceRef) (MemberStatus, error) {
	status, err := s.resolver.Resolve(ctx, userID, ref)
	if err != nil {
		return MemberStatus{}, err
	}
	if status.IsBanned {
		return status, ErrBannedCaller
	}

	var private bool
	switch ref.Scope {
	case ScopeOrganization:
		org, err := s.store.GetOrganization(ctx, ref.ID)
		if err != nil {
			return status, fmt.Errorf("failed to get organization: %w", err)
		}
		if org == nil {
			return status, errResourceNotFound(ref)
		}
		private = org.IsPrivate
	case ScopeBoard:
		board, err := s.store.GetBoard(ctx, ref.ID)
		if err != nil {
			return status, fmt.Errorf("failed to get board: %w", err)
		}
		if board == nil {
			return status, errResourceNotFound(ref)
		}
		private = board.IsPrivate
	}
	if private && !status.IsMember && !status.IsCreator {
		return status, errorFor(CodePrivateResource)
	}
	return status, nil
}

// ListOrganizationMembers lists members with their profiles
func (s *Service) ListOrganizationMembers(ctx context.Context, userID, orgID string) ([]*OrganizationMember, error) {
	if _, err := s.requireVisible(ctx, userID, OrganizationRef(orgID)); err != nil {
		return nil, err
	}
	members, err := s.store.ListOrganizationMembers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ListOrganizationBans lists bans. Admin only.
func (s *Service) ListOrganizationBans(ctx context.Context, userID, orgID string) ([]*OrganizationBan, error) {
	status, err := s.resolver.ResolveOrgStatus(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireAdmin(status).Err(); err != nil {
		return nil, err
	}
	bans, err := s.store.ListOrganizationBans(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	return bans, nil
}

// ListBoardMembers lists explicit board members
func (s *Service) ListBoardMembers(ctx context.Context, userID, boardID string) ([]*BoardMember, error) {
	if _, err := s.requireVisible(ctx, userID, BoardRef(boardID)); err != nil {
		return nil, err
	}
	members, err := s.store.ListBoardMembers(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// PendingInvites lists the caller's pending invites
func (s *Service) PendingInvites(ctx context.Context, userID string) ([]*Invite, error) {
	invites, err := s.store.ListPendingInvitesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return invites, nil
}

// AuditLogs returns the audit entries of an organization. Admin only.
func (s *Service) AuditLogs(ctx context.Context, userID, orgID string, filter audit.SearchFilter) ([]*audit.Entry, error) {
	status, err := s.resolver.ResolveOrgStatus(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireAdmin(status).Err(); err != nil {
		return nil, err
	}
	if s.searcher == nil {
		return nil, ErrAuditSearchUnavailable
	}
	filter.OrganizationID = &orgID
	entries, err := s.searcher.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	return entries, nil
}
