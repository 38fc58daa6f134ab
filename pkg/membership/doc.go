// Package membership implements organization and board membership: who holds
// which role, who is banned, and the rules for changing either.
//
// The pieces fit together as follows:
//
//	Store     durable rows (PostgresStore, MemoryStore)
//	Resolver  normalized MemberStatus for a (user, resource) pair
//	Guard     pure authorization decisions over resolved statuses
//	Mutator   transactional state transitions with last-admin protection
//	InviteWorkflow  invite creation; responses go through the Mutator
//	Service   entry point for handlers, adds tracing and metrics
//
// Every mutation re-resolves the caller and re-runs the Guard inside the
// transaction against locked rows. Audit entries are written after commit
// and never roll a mutation back.
//
// Organization bans delete the membership row and live in their own table;
// board bans flip the board row to BANNED in place.
//
// Example:
//
//	store := membership.NewPostgresStore(db)
//	svc := membership.NewService(store, membership.Options{Recorder: recorder})
//	_, err := svc.Ban(ctx, actorID, membership.BanRequest{
//		Resource:     membership.OrganizationRef(orgID),
//		TargetUserID: userID,
//	})
//	if code, ok := membership.CodeOf(err); ok && code == membership.CodeLastAdmin {
//		// at least one admin must remain
//	}
package membership
