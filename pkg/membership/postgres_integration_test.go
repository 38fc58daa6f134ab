//go:build integration

package membership

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/projectvision/vision/pkg/audit"
)

// setupPostgres starts a PostgreSQL container with the membership schema applied
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("vision_test"),
		postgres.WithUsername("vision"),
		postgres.WithPassword("vision"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, NewPostgresStore(db).Migrate(ctx))
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := db.ExecContext(ctx, `INSERT INTO users (id, username, name, email) VALUES ($1, $1, $1, $1 || '@example.com')`, name)
		require.NoError(t, err)
	}
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	recorder, err := audit.NewDBRecorder(db)
	require.NoError(t, err)
	service := NewService(NewPostgresStore(db), Options{Recorder: recorder, Searcher: recorder})

	created, err := service.CreateOrganization(ctx, "alice", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	orgID := created.Organization.ID
	ref := OrganizationRef(orgID)

	t.Run("last admin cannot demote themselves", func(t *testing.T) {
		_, err := service.ChangeRole(ctx, "alice", ChangeRoleRequest{Resource: ref, TargetUserID: "alice", Role: RoleMember})
		requireCode(t, err, CodeLastAdmin)
	})

	t.Run("invite and accept", func(t *testing.T) {
		inv, err := service.Invite(ctx, "alice", InviteRequest{Username: "bob", OrganizationID: &orgID})
		require.NoError(t, err)

		_, err = service.Invite(ctx, "alice", InviteRequest{Username: "bob", OrganizationID: &orgID})
		requireCode(t, err, CodeInvitePending)

		pending, err := service.PendingInvites(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, pending, 1)

		_, err = service.RespondToInvite(ctx, "bob", RespondRequest{InviteID: inv.ID, Decision: InviteStatusAccepted})
		require.NoError(t, err)

		status, err := service.Status(ctx, "bob", ref)
		require.NoError(t, err)
		assert.True(t, status.IsMember)
	})

	t.Run("concurrent bans", func(t *testing.T) {
		_, err := service.Join(ctx, "carol", ref)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.Ban(ctx, "alice", BanRequest{Resource: ref, TargetUserID: "carol"})
			}(i)
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
				requireCode(t, err, CodeAlreadyBanned)
			}
		}
		assert.Equal(t, 1, failed)

		bans, err := service.ListOrganizationBans(ctx, "alice", orgID)
		require.NoError(t, err)
		require.Len(t, bans, 1)
		assert.Equal(t, "carol", bans[0].UserID)

		_, err = service.Join(ctx, "carol", ref)
		requireCode(t, err, CodeBannedCaller)
	})

	t.Run("audit trail", func(t *testing.T) {
		entries, err := service.AuditLogs(ctx, "alice", orgID, audit.SearchFilter{Limit: 50})
		require.NoError(t, err)
		actions := make(map[audit.Action]bool)
		for _, e := range entries {
			actions[e.Action] = true
		}
		assert.True(t, actions[audit.ActionCreateOrganization])
		assert.True(t, actions[audit.ActionCreateInvite])
		assert.True(t, actions[audit.ActionAcceptInvite])
		assert.True(t, actions[audit.ActionBanMember])
	})
}

func TestPostgresStore_ConcurrentMutualDemotion(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	service := NewService(NewPostgresStore(db), Options{})

	created, err := service.CreateOrganization(ctx, "alice", CreateOrganizationRequest{Name: "Duel"})
	require.NoError(t, err)
	orgID := created.Organization.ID
	ref := OrganizationRef(orgID)

	inv, err := service.Invite(ctx, "alice", InviteRequest{Username: "bob", OrganizationID: &orgID})
	require.NoError(t, err)
	_, err = service.RespondToInvite(ctx, "bob", RespondRequest{InviteID: inv.ID, Decision: InviteStatusAccepted})
	require.NoError(t, err)

	promoter := "alice"
	for round := 0; round < 5; round++ {
		other := "bob"
		if promoter == "bob" {
			other = "alice"
		}
		_, err := service.ChangeRole(ctx, promoter, ChangeRoleRequest{Resource: ref, TargetUserID: other, Role: RoleAdmin})
		require.NoError(t, err)

		pairs := [][2]string{{"alice", "bob"}, {"bob", "alice"}}
		errs := make([]error, len(pairs))
		var wg sync.WaitGroup
		for i, p := range pairs {
			wg.Add(1)
			go func(i int, actor, target string) {
				defer wg.Done()
				_, errs[i] = service.ChangeRole(ctx, actor, ChangeRoleRequest{Resource: ref, TargetUserID: target, Role: RoleMember})
			}(i, p[0], p[1])
		}
		wg.Wait()

		succeeded := -1
		for i, err := range errs {
			if err == nil {
				require.Equal(t, -1, succeeded, "round %d: both demotions succeeded", round)
				succeeded = i
				continue
			}
			code, ok := CodeOf(err)
			require.True(t, ok, "round %d: infrastructure error %v", round, err)
			assert.Contains(t, []Code{CodeNotAdmin, CodeLastAdmin}, code)
		}
		require.NotEqual(t, -1, succeeded, "round %d: no demotion succeeded", round)

		members, err := service.ListOrganizationMembers(ctx, "alice", orgID)
		require.NoError(t, err)
		admins := 0
		for _, m := range members {
			if m.Role == RoleAdmin {
				admins++
			}
		}
		assert.Equal(t, 1, admins, "round %d", round)

		promoter = pairs[succeeded][0]
	}
}
