package membership

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Organization(t *testing.T) {
	f := newFixture(t)
	f.org(t, "o1", false, map[string]Role{"alice": RoleAdmin, "bob": RoleMember})
	f.seed(t, func(tx Tx) error {
		return tx.InsertOrganizationMember(f.ctx, &OrganizationMember{UserID: "carol", OrganizationID: "o1", Role: RoleMember, Status: StatusBanned})
	})
	r := NewResolver(f.store)

	t.Run("admin", func(t *testing.T) {
		s, err := r.ResolveOrgStatus(f.ctx, "alice", "o1")
		require.NoError(t, err)
		assert.True(t, s.IsMember)
		assert.True(t, s.IsAdmin)
		assert.False(t, s.IsBanned)
		assert.Equal(t, RoleAdmin, *s.Role)
	})

	t.Run("non-active row counts as banned", func(t *testing.T) {
		s, err := r.ResolveOrgStatus(f.ctx, "carol", "o1")
		require.NoError(t, err)
		assert.False(t, s.IsMember)
		assert.True(t, s.IsBanned)
	})

	t.Run("no row", func(t *testing.T) {
		s, err := r.ResolveOrgStatus(f.ctx, "dave", "o1")
		require.NoError(t, err)
		assert.Nil(t, s.Role)
		assert.False(t, s.IsMember)
		assert.False(t, s.IsBanned)
	})

	t.Run("missing organization", func(t *testing.T) {
		_, err := r.ResolveOrgStatus(f.ctx, "alice", "nope")
		code, ok := CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, CodeResourceNotFound, code)
	})
}

func TestResolver_Board(t *testing.T) {
	f := newFixture(t)
	f.org(t, "o1", false, map[string]Role{"alice": RoleAdmin, "bob": RoleModerator, "carol": RoleMember})
	f.board(t, "ob", "carol", ptr("o1"), map[string]Role{"dave": RoleModerator})
	f.board(t, "pb", "erin", nil, map[string]Role{"bob": RoleMember})
	f.seed(t, func(tx Tx) error {
		return tx.SetBoardMemberBanned(f.ctx, "pb", "bob", "erin", nil, fixtureTime)
	})
	r := NewResolver(f.store)

	tests := []struct {
		name      string
		user      string
		board     string
		role      *Role
		isAdmin   bool
		isMember  bool
		isBanned  bool
		isCreator bool
		inherited bool
	}{
		{name: "direct row", user: "dave", board: "ob", role: ptr(RoleModerator), isMember: true},
		{name: "org admin falls back", user: "alice", board: "ob", role: ptr(RoleAdmin), isAdmin: true, isMember: true, inherited: true},
		{name: "org moderator falls back", user: "bob", board: "ob", role: ptr(RoleModerator), isMember: true, inherited: true},
		{name: "creator is admin over org member role", user: "carol", board: "ob", role: ptr(RoleMember), isAdmin: true, isMember: true, isCreator: true, inherited: true},
		{name: "no org row is a guest", user: "erin", board: "ob"},
		{name: "personal board creator without row", user: "erin", board: "pb", isAdmin: true, isCreator: true},
		{name: "personal board non member", user: "alice", board: "pb"},
		{name: "banned in place", user: "bob", board: "pb", role: ptr(RoleMember), isBanned: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.ResolveBoardStatus(f.ctx, tt.user, tt.board)
			require.NoError(t, err)
			assert.Equal(t, tt.role, s.Role)
			assert.Equal(t, tt.isAdmin, s.IsAdmin, "isAdmin")
			assert.Equal(t, tt.isMember, s.IsMember, "isMember")
			assert.Equal(t, tt.isBanned, s.IsBanned, "isBanned")
			assert.Equal(t, tt.isCreator, s.IsCreator, "isCreator")
			assert.Equal(t, tt.inherited, s.Inherited, "inherited")
		})
	}

	t.Run("effective role", func(t *testing.T) {
		s, err := r.Resolve(f.ctx, "erin", BoardRef("pb"))
		require.NoError(t, err)
		role, ok := s.EffectiveRole()
		assert.True(t, ok)
		assert.Equal(t, RoleAdmin, role)

		s, err = r.Resolve(f.ctx, "erin", BoardRef("ob"))
		require.NoError(t, err)
		_, ok = s.EffectiveRole()
		assert.False(t, ok)
	})

	t.Run("missing board", func(t *testing.T) {
		_, err := r.ResolveBoardStatus(f.ctx, "alice", "nope")
		var de *Error
		require.True(t, errors.As(err, &de))
		assert.Equal(t, CodeResourceNotFound, de.Code)
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := r.Resolve(f.ctx, "alice", ResourceRef{Scope: "team", ID: "x"})
		code, _ := CodeOf(err)
		assert.Equal(t, CodeInvalidRequest, code)
	})
}
