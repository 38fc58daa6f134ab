package membership

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memberKey struct {
	resourceID string
	userID     string
}

// memData holds every table of the in-memory store. It is not safe for
// concurrent use; MemoryStore serializes access.
type memData struct {
	users         map[string]*User
	orgs          map[string]*Organization
	boards        map[string]*Board
	orgMembers    map[memberKey]*OrganizationMember
	orgBans       map[memberKey]*OrganizationBan
	boardMembers  map[memberKey]*BoardMember
	invites       map[string]*Invite
	notifications map[string]*Notification
}

func newMemData() *memData {
	return &memData{
		users:         make(map[string]*User),
		orgs:          make(map[string]*Organization),
		boards:        make(map[string]*Board),
		orgMembers:    make(map[memberKey]*OrganizationMember),
		orgBans:       make(map[memberKey]*OrganizationBan),
		boardMembers:  make(map[memberKey]*BoardMember),
		invites:       make(map[string]*Invite),
		notifications: make(map[string]*Notification),
	}
}

func cloneMap[K comparable, V any](in map[K]*V) map[K]*V {
	out := make(map[K]*V, len(in))
	for k, v := range in {
		c := *v
		out[k] = &c
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		users:         cloneMap(d.users),
		orgs:          cloneMap(d.orgs),
		boards:        cloneMap(d.boards),
		orgMembers:    cloneMap(d.orgMembers),
		orgBans:       cloneMap(d.orgBans),
		boardMembers:  cloneMap(d.boardMembers),
		invites:       cloneMap(d.invites),
		notifications: cloneMap(d.notifications),
	}
}

// MemoryStore is an in-process Store used in development mode and tests.
// Transactions are serialized by a single mutex and rolled back by
// restoring a snapshot.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memData
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

// PutUser creates or replaces a user. Users are owned by the auth system, so
// this exists for seeding.
func (s *MemoryStore) PutUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *user
	s.data.users[user.ID] = &c
}

// Notifications returns the notifications of a user
func (s *MemoryStore) Notifications(userID string) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Notification
	for _, n := range s.data.notifications {
		if n.UserID == userID {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// InTx runs fn with exclusive access to the store
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	if err := fn(s.data); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetUser(ctx, id)
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetUserByUsername(ctx, username)
}

func (s *MemoryStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetOrganization(ctx, id)
}

func (s *MemoryStore) GetBoard(ctx context.Context, id string) (*Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetBoard(ctx, id)
}

func (s *MemoryStore) GetOrganizationMember(ctx context.Context, orgID, userID string) (*OrganizationMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetOrganizationMember(ctx, orgID, userID)
}

func (s *MemoryStore) GetOrganizationBan(ctx context.Context, orgID, userID string) (*OrganizationBan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetOrganizationBan(ctx, orgID, userID)
}

func (s *MemoryStore) GetBoardMember(ctx context.Context, boardID, userID string) (*BoardMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetBoardMember(ctx, boardID, userID)
}

func (s *MemoryStore) FindPendingInvite(ctx context.Context, userID string, ref ResourceRef) (*Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.FindPendingInvite(ctx, userID, ref)
}

func (s *MemoryStore) ListOrganizationMembers(ctx context.Context, orgID string) ([]*OrganizationMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListOrganizationMembers(ctx, orgID)
}

func (s *MemoryStore) ListOrganizationBans(ctx context.Context, orgID string) ([]*OrganizationBan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListOrganizationBans(ctx, orgID)
}

func (s *MemoryStore) ListBoardMembers(ctx context.Context, boardID string) ([]*BoardMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListBoardMembers(ctx, boardID)
}

func (s *MemoryStore) ListPendingInvitesForUser(ctx context.Context, userID string) ([]*Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListPendingInvitesForUser(ctx, userID)
}

// Reader and Tx implementation over the raw maps. Returned rows are copies.

func (d *memData) GetUser(_ context.Context, id string) (*User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (d *memData) GetUserByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range d.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (d *memData) GetOrganization(_ context.Context, id string) (*Organization, error) {
	o, ok := d.orgs[id]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (d *memData) GetBoard(_ context.Context, id string) (*Board, error) {
	b, ok := d.boards[id]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (d *memData) GetOrganizationMember(_ context.Context, orgID, userID string) (*OrganizationMember, error) {
	m, ok := d.orgMembers[memberKey{orgID, userID}]
	if !ok {
		return nil, nil
	}
	c := *m
	return &c, nil
}

func (d *memData) GetOrganizationBan(_ context.Context, orgID, userID string) (*OrganizationBan, error) {
	b, ok := d.orgBans[memberKey{orgID, userID}]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (d *memData) GetBoardMember(_ context.Context, boardID, userID string) (*BoardMember, error) {
	m, ok := d.boardMembers[memberKey{boardID, userID}]
	if !ok {
		return nil, nil
	}
	c := *m
	return &c, nil
}

func (d *memData) FindPendingInvite(_ context.Context, userID string, ref ResourceRef) (*Invite, error) {
	var found *Invite
	for _, inv := range d.invites {
		if inv.InvitedUserID != userID || inv.Status != InviteStatusPending || inv.Resource() != ref {
			continue
		}
		if found == nil || inv.CreatedAt.Before(found.CreatedAt) {
			found = inv
		}
	}
	if found == nil {
		return nil, nil
	}
	c := *found
	return &c, nil
}

func (d *memData) ListOrganizationMembers(_ context.Context, orgID string) ([]*OrganizationMember, error) {
	members := make([]*OrganizationMember, 0)
	for k, m := range d.orgMembers {
		if k.resourceID != orgID {
			continue
		}
		c := *m
		if u, ok := d.users[m.UserID]; ok {
			uc := *u
			c.User = &uc
		}
		members = append(members, &c)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members, nil
}

func (d *memData) ListOrganizationBans(_ context.Context, orgID string) ([]*OrganizationBan, error) {
	bans := make([]*OrganizationBan, 0)
	for k, b := range d.orgBans {
		if k.resourceID != orgID {
			continue
		}
		c := *b
		if u, ok := d.users[b.UserID]; ok {
			c.User = &User{ID: u.ID, Username: u.Username}
		}
		bans = append(bans, &c)
	}
	sort.Slice(bans, func(i, j int) bool { return bans[i].BannedAt.After(bans[j].BannedAt) })
	return bans, nil
}

func (d *memData) ListBoardMembers(_ context.Context, boardID string) ([]*BoardMember, error) {
	members := make([]*BoardMember, 0)
	for k, m := range d.boardMembers {
		if k.resourceID != boardID {
			continue
		}
		c := *m
		if u, ok := d.users[m.UserID]; ok {
			c.User = &User{ID: u.ID, Username: u.Username}
		}
		members = append(members, &c)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members, nil
}

func (d *memData) ListPendingInvitesForUser(_ context.Context, userID string) ([]*Invite, error) {
	invites := make([]*Invite, 0)
	for _, inv := range d.invites {
		if inv.InvitedUserID == userID && inv.Status == InviteStatusPending {
			c := *inv
			invites = append(invites, &c)
		}
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].CreatedAt.After(invites[j].CreatedAt) })
	return invites, nil
}

func (d *memData) LockOrganizationMember(ctx context.Context, orgID, userID string) (*OrganizationMember, error) {
	return d.GetOrganizationMember(ctx, orgID, userID)
}

func (d *memData) LockOrganizationBan(ctx context.Context, orgID, userID string) (*OrganizationBan, error) {
	return d.GetOrganizationBan(ctx, orgID, userID)
}

func (d *memData) LockBoardMember(ctx context.Context, boardID, userID string) (*BoardMember, error) {
	return d.GetBoardMember(ctx, boardID, userID)
}

func (d *memData) LockInvite(_ context.Context, id string) (*Invite, error) {
	inv, ok := d.invites[id]
	if !ok {
		return nil, nil
	}
	c := *inv
	return &c, nil
}

func (d *memData) LockActiveOrganizationAdmins(_ context.Context, orgID string) ([]string, error) {
	var ids []string
	for k, m := range d.orgMembers {
		if k.resourceID == orgID && m.Role == RoleAdmin && m.Status == StatusActive {
			ids = append(ids, m.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *memData) LockActiveBoardAdmins(_ context.Context, boardID string) ([]string, error) {
	var ids []string
	for k, m := range d.boardMembers {
		if k.resourceID == boardID && m.Role == RoleAdmin && m.Status == StatusActive {
			ids = append(ids, m.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *memData) InsertOrganization(_ context.Context, org *Organization) error {
	c := *org
	d.orgs[org.ID] = &c
	return nil
}

func (d *memData) DeleteOrganization(ctx context.Context, id string) error {
	delete(d.orgs, id)
	for k := range d.orgMembers {
		if k.resourceID == id {
			delete(d.orgMembers, k)
		}
	}
	for k := range d.orgBans {
		if k.resourceID == id {
			delete(d.orgBans, k)
		}
	}
	for boardID, b := range d.boards {
		if b.OrganizationID != nil && *b.OrganizationID == id {
			if err := d.DeleteBoard(ctx, boardID); err != nil {
				return err
			}
		}
	}
	for invID, inv := range d.invites {
		if inv.OrganizationID != nil && *inv.OrganizationID == id {
			delete(d.invites, invID)
		}
	}
	return nil
}

func (d *memData) InsertBoard(_ context.Context, board *Board) error {
	c := *board
	d.boards[board.ID] = &c
	return nil
}

func (d *memData) DeleteBoard(_ context.Context, id string) error {
	delete(d.boards, id)
	for k := range d.boardMembers {
		if k.resourceID == id {
			delete(d.boardMembers, k)
		}
	}
	for invID, inv := range d.invites {
		if inv.BoardID != nil && *inv.BoardID == id {
			delete(d.invites, invID)
		}
	}
	return nil
}

func (d *memData) InsertOrganizationMember(_ context.Context, m *OrganizationMember) error {
	key := memberKey{m.OrganizationID, m.UserID}
	if _, exists := d.orgMembers[key]; exists {
		return ErrAlreadyMember
	}
	c := *m
	c.User = nil
	d.orgMembers[key] = &c
	return nil
}

func (d *memData) UpsertOrganizationMemberActive(_ context.Context, orgID, userID string, now time.Time) (*OrganizationMember, error) {
	key := memberKey{orgID, userID}
	m, ok := d.orgMembers[key]
	if !ok {
		m = &OrganizationMember{UserID: userID, OrganizationID: orgID, Role: RoleMember, Status: StatusActive, JoinedAt: now}
		d.orgMembers[key] = m
	} else if m.Status != StatusActive {
		m.Role = RoleMember
		m.Status = StatusActive
	}
	c := *m
	return &c, nil
}

func (d *memData) UpdateOrganizationMemberRole(_ context.Context, orgID, userID string, role Role) error {
	m, ok := d.orgMembers[memberKey{orgID, userID}]
	if !ok {
		return ErrNotAMember
	}
	m.Role = role
	return nil
}

func (d *memData) DeleteOrganizationMember(_ context.Context, orgID, userID string) (bool, error) {
	key := memberKey{orgID, userID}
	_, ok := d.orgMembers[key]
	delete(d.orgMembers, key)
	return ok, nil
}

func (d *memData) UpsertOrganizationBan(_ context.Context, ban *OrganizationBan) error {
	c := *ban
	c.User = nil
	d.orgBans[memberKey{ban.OrganizationID, ban.UserID}] = &c
	return nil
}

func (d *memData) DeleteOrganizationBan(_ context.Context, orgID, userID string) (bool, error) {
	key := memberKey{orgID, userID}
	_, ok := d.orgBans[key]
	delete(d.orgBans, key)
	return ok, nil
}

func (d *memData) InsertBoardMember(_ context.Context, m *BoardMember) error {
	key := memberKey{m.BoardID, m.UserID}
	if _, exists := d.boardMembers[key]; exists {
		return ErrAlreadyMember
	}
	c := *m
	c.User = nil
	d.boardMembers[key] = &c
	return nil
}

func (d *memData) UpsertBoardMemberActive(_ context.Context, boardID, userID string, now time.Time) (*BoardMember, error) {
	key := memberKey{boardID, userID}
	m, ok := d.boardMembers[key]
	if !ok {
		m = &BoardMember{UserID: userID, BoardID: boardID, Role: RoleMember, Status: StatusActive, JoinedAt: now}
		d.boardMembers[key] = m
	} else if m.Status != StatusActive {
		m.Role = RoleMember
		m.Status = StatusActive
		m.BannedAt, m.BanReason, m.BannedByUserID = nil, nil, nil
	}
	c := *m
	return &c, nil
}

func (d *memData) UpdateBoardMemberRole(_ context.Context, boardID, userID string, role Role) error {
	m, ok := d.boardMembers[memberKey{boardID, userID}]
	if !ok {
		return ErrNotAMember
	}
	m.Role = role
	return nil
}

func (d *memData) SetBoardMemberBanned(_ context.Context, boardID, userID, bannedBy string, reason *string, at time.Time) error {
	m, ok := d.boardMembers[memberKey{boardID, userID}]
	if !ok {
		return ErrNotAMember
	}
	m.Status = StatusBanned
	m.BannedAt = &at
	m.BanReason = reason
	m.BannedByUserID = &bannedBy
	return nil
}

func (d *memData) SetBoardMemberActive(_ context.Context, boardID, userID string) error {
	m, ok := d.boardMembers[memberKey{boardID, userID}]
	if !ok {
		return ErrNotAMember
	}
	m.Status = StatusActive
	m.BannedAt, m.BanReason, m.BannedByUserID = nil, nil, nil
	return nil
}

func (d *memData) InsertInvite(_ context.Context, inv *Invite) error {
	c := *inv
	d.invites[inv.ID] = &c
	return nil
}

func (d *memData) DeleteInvite(_ context.Context, id string) error {
	delete(d.invites, id)
	return nil
}

func (d *memData) InsertNotification(_ context.Context, n *Notification) error {
	c := *n
	d.notifications[n.ID] = &c
	return nil
}

func (d *memData) ResolveInviteNotification(_ context.Context, inviteID, message string) error {
	for _, n := range d.notifications {
		if n.InviteID != nil && *n.InviteID == inviteID {
			n.Read = true
			n.Message = message
		}
	}
	return nil
}
