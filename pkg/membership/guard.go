package membership

// Check is the input to an authorization decision. With Target unset only
// the actor-level rules apply; AdminsAfter is only set when the target is an
// admin losing that role.
type Check struct {
	Action  Action
	Scope   Scope
	ActorID string
	Actor   MemberStatus

	TargetID string
	// Target is the resolved status of the member being acted on
	Target *MemberStatus
	// TargetRole is the role stored on the target row, ignoring creator override
	TargetRole Role
	// NewRole is the requested role for CHANGE_ROLE
	NewRole Role
	// AdminsAfter is the number of qualifying admins left if the action succeeds
	AdminsAfter *int
}

// Decision is the result of an authorization check
type Decision struct {
	Allowed bool
	Reason  Code
}

// Authorized returns an allowing decision
func Authorized() Decision {
	return Decision{Allowed: true}
}

// Denied returns a denying decision with a reason
func Denied(reason Code) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into its domain error, nil when allowed
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errorFor(d.Reason)
}

// Guard enforces who may mutate memberships. It is pure and holds no state.
type Guard struct{}

// Authorize decides whether the actor may perform the action
func (Guard) Authorize(c Check) Decision {
	if c.Actor.IsBanned {
		return Denied(CodeBannedCaller)
	}

	role, hasRole := c.Actor.EffectiveRole()
	isAdmin := hasRole && role == RoleAdmin
	self := c.TargetID != "" && c.ActorID == c.TargetID

	switch c.Action {
	case ActionInvite:
		if !hasRole || !role.IsModeratorOrAbove() {
			return Denied(CodeNotModerator)
		}
		return Authorized()
	case ActionRemove:
		if !self && !isAdmin {
			return Denied(CodeNotAdmin)
		}
	case ActionChangeRole, ActionBan, ActionUnban:
		if !isAdmin {
			return Denied(CodeNotAdmin)
		}
	default:
		return Denied(CodeInvalidRequest)
	}

	// Without the target only the actor-level rules apply.
	if c.Target == nil {
		return Authorized()
	}

	lastAdmin := removesAdmin(c) && c.AdminsAfter != nil && *c.AdminsAfter < 1
	if self && c.Action != ActionRemove {
		if lastAdmin {
			return Denied(CodeLastAdmin)
		}
		return Denied(CodeSelfAction)
	}

	t := c.Target
	switch c.Action {
	case ActionChangeRole:
		if t.IsBanned {
			return Denied(CodeBannedMember)
		}
	case ActionBan:
		if c.Scope == ScopeBoard && t.IsCreator {
			return Denied(CodeCreatorProtected)
		}
		if t.IsBanned {
			return Denied(CodeAlreadyBanned)
		}
	case ActionUnban:
		if !t.IsBanned {
			return Denied(CodeNotBanned)
		}
	}

	if lastAdmin {
		return Denied(CodeLastAdmin)
	}

	return Authorized()
}

// RequireAdmin allows an active admin (or board creator) of a resource
func (Guard) RequireAdmin(actor MemberStatus) Decision {
	if actor.IsBanned {
		return Denied(CodeBannedCaller)
	}
	if role, ok := actor.EffectiveRole(); !ok || role != RoleAdmin {
		return Denied(CodeNotAdmin)
	}
	return Authorized()
}

// RequireModerator allows an active admin or moderator of a resource
func (Guard) RequireModerator(actor MemberStatus) Decision {
	if actor.IsBanned {
		return Denied(CodeBannedCaller)
	}
	if role, ok := actor.EffectiveRole(); !ok || !role.IsModeratorOrAbove() {
		return Denied(CodeNotModerator)
	}
	return Authorized()
}

// InviteeCheck describes the invited user of an INVITE
type InviteeCheck struct {
	InviterID string
	InviteeID string
	// Invitee is the invitee's direct status on the resource, without
	// organization fallback for boards
	Invitee    MemberStatus
	HasPending bool
}

// AuthorizeInvitee decides whether the invitee may receive an invite
func (Guard) AuthorizeInvitee(c InviteeCheck) Decision {
	switch {
	case c.InviteeID == c.InviterID:
		return Denied(CodeSelfAction)
	case c.Invitee.IsBanned:
		return Denied(CodeAlreadyBanned)
	case c.Invitee.IsMember || c.Invitee.IsCreator:
		return Denied(CodeAlreadyMember)
	case c.HasPending:
		return Denied(CodeInvitePending)
	}
	return Authorized()
}

func removesAdmin(c Check) bool {
	if c.TargetRole != RoleAdmin {
		return false
	}
	switch c.Action {
	case ActionBan, ActionRemove:
		return true
	case ActionChangeRole:
		return c.NewRole != RoleAdmin
	}
	return false
}

// Admin tallies. Each returns the number of qualifying admins left once
// target loses admin rights, given the locked ACTIVE ADMIN rows.

// orgAdminsAfter counts explicit admins other than the target
func orgAdminsAfter(adminIDs []string, targetID string) int {
	n := 0
	for _, id := range adminIDs {
		if id != targetID {
			n++
		}
	}
	return n
}

// boardRoleAdminsAfter excludes the creator from the tally. ok is false when
// the target is the creator, whose authority does not depend on the row.
func boardRoleAdminsAfter(adminIDs []string, creatorID, targetID string) (n int, ok bool) {
	if targetID == creatorID {
		return 0, false
	}
	for _, id := range adminIDs {
		if id != creatorID && id != targetID {
			n++
		}
	}
	return n, true
}

// boardBanAdminsAfter counts the creator as an admin whether or not it has a row
func boardBanAdminsAfter(adminIDs []string, creatorID, targetID string) int {
	n := orgAdminsAfter(adminIDs, targetID)
	creatorCounted := false
	for _, id := range adminIDs {
		if id == creatorID {
			creatorCounted = true
			break
		}
	}
	if !creatorCounted && creatorID != targetID {
		n++
	}
	return n
}
