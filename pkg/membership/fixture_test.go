package membership

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/projectvision/vision/pkg/audit"
)

var fixtureTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	store   *MemoryStore
	audit   *audit.MemoryRecorder
	mutator *Mutator
	invites *InviteWorkflow
}

// newFixture seeds users alice, bob, carol, dave and erin; ids equal usernames
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	for _, name := range []string{"alice", "bob", "carol", "dave", "erin"} {
		store.PutUser(&User{ID: name, Username: name, Name: name, Email: name + "@example.com"})
	}

	rec := audit.NewMemoryRecorder()
	mutator := NewMutator(store, rec, nil)
	seq := 0
	mutator.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	tick := fixtureTime
	mutator.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	return &fixture{
		ctx:     context.Background(),
		store:   store,
		audit:   rec,
		mutator: mutator,
		invites: NewInviteWorkflow(mutator),
	}
}

func (f *fixture) seed(t *testing.T, fn func(tx Tx) error) {
	t.Helper()
	require.NoError(t, f.store.InTx(f.ctx, fn))
}

// org creates an organization with the given ACTIVE members
func (f *fixture) org(t *testing.T, id string, private bool, members map[string]Role) {
	t.Helper()
	f.seed(t, func(tx Tx) error {
		if err := tx.InsertOrganization(f.ctx, &Organization{ID: id, Name: "Org " + id, IsPrivate: private, CreatedAt: fixtureTime}); err != nil {
			return err
		}
		for userID, role := range members {
			m := &OrganizationMember{UserID: userID, OrganizationID: id, Role: role, Status: StatusActive, JoinedAt: fixtureTime}
			if err := tx.InsertOrganizationMember(f.ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// board creates a board with the given ACTIVE members. The creator gets no
// row unless listed.
func (f *fixture) board(t *testing.T, id, creatorID string, orgID *string, members map[string]Role) {
	t.Helper()
	f.seed(t, func(tx Tx) error {
		b := &Board{ID: id, Name: "Board " + id, OrganizationID: orgID, CreatedByID: creatorID, CreatedAt: fixtureTime}
		if err := tx.InsertBoard(f.ctx, b); err != nil {
			return err
		}
		for userID, role := range members {
			m := &BoardMember{UserID: userID, BoardID: id, Role: role, Status: StatusActive, JoinedAt: fixtureTime}
			if err := tx.InsertBoardMember(f.ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *fixture) orgMember(t *testing.T, orgID, userID string) *OrganizationMember {
	t.Helper()
	m, err := f.store.GetOrganizationMember(f.ctx, orgID, userID)
	require.NoError(t, err)
	return m
}

func (f *fixture) boardMember(t *testing.T, boardID, userID string) *BoardMember {
	t.Helper()
	m, err := f.store.GetBoardMember(f.ctx, boardID, userID)
	require.NoError(t, err)
	return m
}

func (f *fixture) actions() []audit.Action {
	var out []audit.Action
	for _, e := range f.audit.Entries() {
		out = append(out, e.Action)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
