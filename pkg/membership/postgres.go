package membership

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// SQLSTATE codes the store reacts to
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

const (
	// maxTxAttempts bounds how often a transaction aborted by a deadlock or
	// serialization failure is run again
	maxTxAttempts       = 3
	defaultTxRetryDelay = 20 * time.Millisecond
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	queries
	db         *sql.DB
	retryDelay time.Duration
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{q: db}, db: db, retryDelay: defaultTxRetryDelay}
}

// Migrate creates the membership tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply membership schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a database transaction. Row locks are taken in
// request order, so two requests can deadlock; Postgres aborts one of them
// and the whole transaction, fn included, is run again from the start.
// Once the attempts are used up the caller gets ErrConcurrentUpdate.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if !isTxConflict(err) {
			return err
		}
		if attempt == maxTxAttempts {
			return ErrConcurrentUpdate.WithDetail("attempts", attempt)
		}

		timer := time.NewTimer(time.Duration(attempt) * s.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("transaction retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queries holds every statement; it runs against a pool or a transaction
type queries struct {
	q querier
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// isTxConflict reports whether Postgres aborted the transaction because it
// lost a lock or serialization race
func isTxConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqDeadlockDetected || pqErr.Code == pqSerializationFailure
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// GetUser retrieves a user by id
func (s queries) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, `SELECT id, username, name, email FROM users WHERE id = $1`, id)
}

// GetUserByUsername retrieves a user by username
func (s queries) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `SELECT id, username, name, email FROM users WHERE username = $1`, username)
}

func (s queries) getUser(ctx context.Context, query string, arg string) (*User, error) {
	user := &User{}
	var name, email sql.NullString
	err := s.q.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &name, &email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Name = name.String
	user.Email = email.String
	return user, nil
}

// GetOrganization retrieves an organization by id
func (s queries) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `SELECT id, name, is_private, created_at FROM organizations WHERE id = $1`
	org := &Organization{}
	err := s.q.QueryRowContext(ctx, query, id).Scan(&org.ID, &org.Name, &org.IsPrivate, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetBoard retrieves a board by id
func (s queries) GetBoard(ctx context.Context, id string) (*Board, error) {
	query := `SELECT id, name, is_private, organization_id, created_by_id, created_at FROM boards WHERE id = $1`
	board := &Board{}
	var orgID sql.NullString
	err := s.q.QueryRowContext(ctx, query, id).Scan(
		&board.ID, &board.Name, &board.IsPrivate, &orgID, &board.CreatedByID, &board.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	board.OrganizationID = stringPtr(orgID)
	return board, nil
}

const orgMemberColumns = `user_id, organization_id, role, status, joined_at`

func (s queries) getOrganizationMember(ctx context.Context, query string, orgID, userID string) (*OrganizationMember, error) {
	m := &OrganizationMember{}
	err := s.q.QueryRowContext(ctx, query, orgID, userID).Scan(
		&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.JoinedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization member: %w", err)
	}
	return m, nil
}

// GetOrganizationMember retrieves the membership row of a user in an organization
func (s queries) GetOrganizationMember(ctx context.Context, orgID, userID string) (*OrganizationMember, error) {
	query := `SELECT ` + orgMemberColumns + ` FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	return s.getOrganizationMember(ctx, query, orgID, userID)
}

// LockOrganizationMember retrieves and locks the membership row
func (s queries) LockOrganizationMember(ctx context.Context, orgID, userID string) (*OrganizationMember, error) {
	query := `SELECT ` + orgMemberColumns + ` FROM organization_members WHERE organization_id = $1 AND user_id = $2 FOR UPDATE`
	return s.getOrganizationMember(ctx, query, orgID, userID)
}

const orgBanColumns = `user_id, organization_id, ban_reason, banned_by, banned_at`

func (s queries) getOrganizationBan(ctx context.Context, query string, orgID, userID string) (*OrganizationBan, error) {
	ban := &OrganizationBan{}
	var reason sql.NullString
	err := s.q.QueryRowContext(ctx, query, orgID, userID).Scan(
		&ban.UserID, &ban.OrganizationID, &reason, &ban.BannedBy, &ban.BannedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization ban: %w", err)
	}
	ban.BanReason = stringPtr(reason)
	return ban, nil
}

// GetOrganizationBan retrieves the ban of a user in an organization
func (s queries) GetOrganizationBan(ctx context.Context, orgID, userID string) (*OrganizationBan, error) {
	query := `SELECT ` + orgBanColumns + ` FROM organization_bans WHERE organization_id = $1 AND user_id = $2`
	return s.getOrganizationBan(ctx, query, orgID, userID)
}

// LockOrganizationBan retrieves and locks the ban row
func (s queries) LockOrganizationBan(ctx context.Context, orgID, userID string) (*OrganizationBan, error) {
	query := `SELECT ` + orgBanColumns + ` FROM organization_bans WHERE organization_id = $1 AND user_id = $2 FOR UPDATE`
	return s.getOrganizationBan(ctx, query, orgID, userID)
}

const boardMemberColumns = `user_id, board_id, role, status, banned_at, ban_reason, banned_by_user_id, joined_at`

func scanBoardMember(scan func(dest ...any) error) (*BoardMember, error) {
	m := &BoardMember{}
	var bannedAt sql.NullTime
	var reason, bannedBy sql.NullString
	if err := scan(&m.UserID, &m.BoardID, &m.Role, &m.Status, &bannedAt, &reason, &bannedBy, &m.JoinedAt); err != nil {
		return nil, err
	}
	if bannedAt.Valid {
		t := bannedAt.Time
		m.BannedAt = &t
	}
	m.BanReason = stringPtr(reason)
	m.BannedByUserID = stringPtr(bannedBy)
	return m, nil
}

func (s queries) getBoardMember(ctx context.Context, query string, boardID, userID string) (*BoardMember, error) {
	m, err := scanBoardMember(s.q.QueryRowContext(ctx, query, boardID, userID).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board member: %w", err)
	}
	return m, nil
}

// GetBoardMember retrieves the membership row of a user on a board
func (s queries) GetBoardMember(ctx context.Context, boardID, userID string) (*BoardMember, error) {
	query := `SELECT ` + boardMemberColumns + ` FROM board_members WHERE board_id = $1 AND user_id = $2`
	return s.getBoardMember(ctx, query, boardID, userID)
}

// LockBoardMember retrieves and locks the board membership row
func (s queries) LockBoardMember(ctx context.Context, boardID, userID string) (*BoardMember, error) {
	query := `SELECT ` + boardMemberColumns + ` FROM board_members WHERE board_id = $1 AND user_id = $2 FOR UPDATE`
	return s.getBoardMember(ctx, query, boardID, userID)
}

func (s queries) lockUserIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock admins: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admins: %w", err)
	}
	return ids, nil
}

// LockActiveOrganizationAdmins locks the active admin rows of an organization
func (s queries) LockActiveOrganizationAdmins(ctx context.Context, orgID string) ([]string, error) {
	query := `SELECT user_id FROM organization_members WHERE organization_id = $1 AND role = $2 AND status = $3 ORDER BY user_id FOR UPDATE`
	return s.lockUserIDs(ctx, query, orgID, RoleAdmin, StatusActive)
}

// LockActiveBoardAdmins locks the active admin rows of a board
func (s queries) LockActiveBoardAdmins(ctx context.Context, boardID string) ([]string, error) {
	query := `SELECT user_id FROM board_members WHERE board_id = $1 AND role = $2 AND status = $3 ORDER BY user_id FOR UPDATE`
	return s.lockUserIDs(ctx, query, boardID, RoleAdmin, StatusActive)
}

const inviteColumns = `id, invited_username, invited_user_id, invited_by_id, organization_id, board_id, status, created_at`

func scanInvite(scan func(dest ...any) error) (*Invite, error) {
	inv := &Invite{}
	var orgID, boardID sql.NullString
	if err := scan(&inv.ID, &inv.InvitedUsername, &inv.InvitedUserID, &inv.InvitedByID,
		&orgID, &boardID, &inv.Status, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.OrganizationID = stringPtr(orgID)
	inv.BoardID = stringPtr(boardID)
	return inv, nil
}

// FindPendingInvite returns the pending invite for a user and resource, if any
func (s queries) FindPendingInvite(ctx context.Context, userID string, ref ResourceRef) (*Invite, error) {
	column := "organization_id"
	if ref.Scope == ScopeBoard {
		column = "board_id"
	}
	query := `SELECT ` + inviteColumns + ` FROM invites
		WHERE invited_user_id = $1 AND ` + column + ` = $2 AND status = $3
		ORDER BY created_at ASC LIMIT 1`
	inv, err := scanInvite(s.q.QueryRowContext(ctx, query, userID, ref.ID, InviteStatusPending).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending invite: %w", err)
	}
	return inv, nil
}

// LockInvite retrieves and locks an invite by id
func (s queries) LockInvite(ctx context.Context, id string) (*Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE id = $1 FOR UPDATE`
	inv, err := scanInvite(s.q.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

// ListOrganizationMembers lists members of an organization with their profiles
func (s queries) ListOrganizationMembers(ctx context.Context, orgID string) ([]*OrganizationMember, error) {
	query := `
		SELECT m.user_id, m.organization_id, m.role, m.status, m.joined_at,
		       u.username, u.name, u.email
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.joined_at ASC
	`
	rows, err := s.q.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	defer rows.Close()

	members := make([]*OrganizationMember, 0)
	for rows.Next() {
		m := &OrganizationMember{User: &User{}}
		var name, email sql.NullString
		if err := rows.Scan(
			&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.JoinedAt,
			&m.User.Username, &name, &email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization member: %w", err)
		}
		m.User.ID = m.UserID
		m.User.Name = name.String
		m.User.Email = email.String
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organization members: %w", err)
	}
	return members, nil
}

// ListOrganizationBans lists the bans of an organization
func (s queries) ListOrganizationBans(ctx context.Context, orgID string) ([]*OrganizationBan, error) {
	query := `
		SELECT b.user_id, b.organization_id, b.ban_reason, b.banned_by, b.banned_at, u.username
		FROM organization_bans b
		JOIN users u ON u.id = b.user_id
		WHERE b.organization_id = $1
		ORDER BY b.banned_at DESC
	`
	rows, err := s.q.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization bans: %w", err)
	}
	defer rows.Close()

	bans := make([]*OrganizationBan, 0)
	for rows.Next() {
		ban := &OrganizationBan{User: &User{}}
		var reason sql.NullString
		if err := rows.Scan(&ban.UserID, &ban.OrganizationID, &reason, &ban.BannedBy, &ban.BannedAt, &ban.User.Username); err != nil {
			return nil, fmt.Errorf("failed to scan organization ban: %w", err)
		}
		ban.User.ID = ban.UserID
		ban.BanReason = stringPtr(reason)
		bans = append(bans, ban)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organization bans: %w", err)
	}
	return bans, nil
}

// ListBoardMembers lists members of a board with their profiles
func (s queries) ListBoardMembers(ctx context.Context, boardID string) ([]*BoardMember, error) {
	query := `
		SELECT m.user_id, m.board_id, m.role, m.status, m.banned_at, m.ban_reason, m.banned_by_user_id, m.joined_at,
		       u.username
		FROM board_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.board_id = $1
		ORDER BY m.joined_at ASC
	`
	rows, err := s.q.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list board members: %w", err)
	}
	defer rows.Close()

	members := make([]*BoardMember, 0)
	for rows.Next() {
		var username string
		m, err := scanBoardMember(func(dest ...any) error {
			return rows.Scan(append(dest, &username)...)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan board member: %w", err)
		}
		m.User = &User{ID: m.UserID, Username: username}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate board members: %w", err)
	}
	return members, nil
}

// ListPendingInvitesForUser lists invites awaiting the user's response
func (s queries) ListPendingInvitesForUser(ctx context.Context, userID string) ([]*Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE invited_user_id = $1 AND status = $2 ORDER BY created_at DESC`
	rows, err := s.q.QueryContext(ctx, query, userID, InviteStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	invites := make([]*Invite, 0)
	for rows.Next() {
		inv, err := scanInvite(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}
	return invites, nil
}

// InsertOrganization creates an organization row
func (s queries) InsertOrganization(ctx context.Context, org *Organization) error {
	query := `INSERT INTO organizations (id, name, is_private, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.q.ExecContext(ctx, query, org.ID, org.Name, org.IsPrivate, org.CreatedAt); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// DeleteOrganization deletes an organization; dependent rows cascade
func (s queries) DeleteOrganization(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// InsertBoard creates a board row
func (s queries) InsertBoard(ctx context.Context, board *Board) error {
	query := `INSERT INTO boards (id, name, is_private, organization_id, created_by_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.q.ExecContext(ctx, query, board.ID, board.Name, board.IsPrivate,
		nullString(board.OrganizationID), board.CreatedByID, board.CreatedAt); err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}
	return nil
}

// DeleteBoard deletes a board; dependent rows cascade
func (s queries) DeleteBoard(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
	}
	return nil
}

// InsertOrganizationMember creates a membership row
func (s queries) InsertOrganizationMember(ctx context.Context, m *OrganizationMember) error {
	query := `INSERT INTO organization_members (user_id, organization_id, role, status, joined_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.q.ExecContext(ctx, query, m.UserID, m.OrganizationID, m.Role, m.Status, m.JoinedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("failed to add organization member: %w", err)
	}
	return nil
}

// UpsertOrganizationMemberActive creates or reactivates a membership row
func (s queries) UpsertOrganizationMemberActive(ctx context.Context, orgID, userID string, now time.Time) (*OrganizationMember, error) {
	query := `
		INSERT INTO organization_members (user_id, organization_id, role, status, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, organization_id) DO UPDATE
		SET role = CASE WHEN organization_members.status = $4 THEN organization_members.role ELSE $3 END,
		    status = $4
		RETURNING ` + orgMemberColumns
	m := &OrganizationMember{}
	err := s.q.QueryRowContext(ctx, query, userID, orgID, RoleMember, StatusActive, now).Scan(
		&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.JoinedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert organization member: %w", err)
	}
	return m, nil
}

func rowsAffected(result sql.Result, what string) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", what, err)
	}
	return n, nil
}

// UpdateOrganizationMemberRole updates a member's role
func (s queries) UpdateOrganizationMemberRole(ctx context.Context, orgID, userID string, role Role) error {
	query := `UPDATE organization_members SET role = $1 WHERE organization_id = $2 AND user_id = $3`
	result, err := s.q.ExecContext(ctx, query, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	n, err := rowsAffected(result, "member role update")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotAMember
	}
	return nil
}

// DeleteOrganizationMember deletes a membership row and reports whether it existed
func (s queries) DeleteOrganizationMember(ctx context.Context, orgID, userID string) (bool, error) {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	result, err := s.q.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	n, err := rowsAffected(result, "member removal")
	return n > 0, err
}

// UpsertOrganizationBan creates a ban, or refreshes it when one already exists
func (s queries) UpsertOrganizationBan(ctx context.Context, ban *OrganizationBan) error {
	query := `
		INSERT INTO organization_bans (user_id, organization_id, ban_reason, banned_by, banned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, organization_id) DO UPDATE
		SET ban_reason = EXCLUDED.ban_reason, banned_by = EXCLUDED.banned_by, banned_at = EXCLUDED.banned_at
	`
	if _, err := s.q.ExecContext(ctx, query, ban.UserID, ban.OrganizationID,
		nullString(ban.BanReason), ban.BannedBy, ban.BannedAt); err != nil {
		return fmt.Errorf("failed to ban member: %w", err)
	}
	return nil
}

// DeleteOrganizationBan deletes a ban and reports whether it existed
func (s queries) DeleteOrganizationBan(ctx context.Context, orgID, userID string) (bool, error) {
	query := `DELETE FROM organization_bans WHERE organization_id = $1 AND user_id = $2`
	result, err := s.q.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to unban member: %w", err)
	}
	n, err := rowsAffected(result, "unban")
	return n > 0, err
}

// InsertBoardMember creates a board membership row
func (s queries) InsertBoardMember(ctx context.Context, m *BoardMember) error {
	query := `INSERT INTO board_members (user_id, board_id, role, status, joined_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.q.ExecContext(ctx, query, m.UserID, m.BoardID, m.Role, m.Status, m.JoinedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("failed to add board member: %w", err)
	}
	return nil
}

// UpsertBoardMemberActive creates or reactivates a board membership row
func (s queries) UpsertBoardMemberActive(ctx context.Context, boardID, userID string, now time.Time) (*BoardMember, error) {
	query := `
		INSERT INTO board_members (user_id, board_id, role, status, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, board_id) DO UPDATE
		SET role = CASE WHEN board_members.status = $4 THEN board_members.role ELSE $3 END,
		    status = $4, banned_at = NULL, ban_reason = NULL, banned_by_user_id = NULL
		RETURNING ` + boardMemberColumns
	m, err := scanBoardMember(s.q.QueryRowContext(ctx, query, userID, boardID, RoleMember, StatusActive, now).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert board member: %w", err)
	}
	return m, nil
}

// UpdateBoardMemberRole updates a board member's role
func (s queries) UpdateBoardMemberRole(ctx context.Context, boardID, userID string, role Role) error {
	query := `UPDATE board_members SET role = $1 WHERE board_id = $2 AND user_id = $3`
	result, err := s.q.ExecContext(ctx, query, role, boardID, userID)
	if err != nil {
		return fmt.Errorf("failed to update board member role: %w", err)
	}
	n, err := rowsAffected(result, "board role update")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotAMember
	}
	return nil
}

// SetBoardMemberBanned flips a board membership row to BANNED in place
func (s queries) SetBoardMemberBanned(ctx context.Context, boardID, userID, bannedBy string, reason *string, at time.Time) error {
	query := `
		UPDATE board_members
		SET status = $1, banned_at = $2, ban_reason = $3, banned_by_user_id = $4
		WHERE board_id = $5 AND user_id = $6
	`
	result, err := s.q.ExecContext(ctx, query, StatusBanned, at, nullString(reason), bannedBy, boardID, userID)
	if err != nil {
		return fmt.Errorf("failed to ban board member: %w", err)
	}
	n, err := rowsAffected(result, "board ban")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotAMember
	}
	return nil
}

// SetBoardMemberActive flips a board membership row back to ACTIVE and clears ban fields
func (s queries) SetBoardMemberActive(ctx context.Context, boardID, userID string) error {
	query := `
		UPDATE board_members
		SET status = $1, banned_at = NULL, ban_reason = NULL, banned_by_user_id = NULL
		WHERE board_id = $2 AND user_id = $3
	`
	result, err := s.q.ExecContext(ctx, query, StatusActive, boardID, userID)
	if err != nil {
		return fmt.Errorf("failed to unban board member: %w", err)
	}
	n, err := rowsAffected(result, "board unban")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotAMember
	}
	return nil
}

// InsertInvite creates an invite row
func (s queries) InsertInvite(ctx context.Context, inv *Invite) error {
	query := `
		INSERT INTO invites (id, invited_username, invited_user_id, invited_by_id, organization_id, board_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.q.ExecContext(ctx, query, inv.ID, inv.InvitedUsername, inv.InvitedUserID, inv.InvitedByID,
		nullString(inv.OrganizationID), nullString(inv.BoardID), inv.Status, inv.CreatedAt); err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// DeleteInvite deletes an invite row
func (s queries) DeleteInvite(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM invites WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	return nil
}

// InsertNotification creates a notification row
func (s queries) InsertNotification(ctx context.Context, n *Notification) error {
	query := `INSERT INTO notifications (id, user_id, type, message, invite_id, read, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.q.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Message,
		nullString(n.InviteID), n.Read, n.CreatedAt); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ResolveInviteNotification marks an invite's notification read with the outcome
func (s queries) ResolveInviteNotification(ctx context.Context, inviteID, message string) error {
	query := `UPDATE notifications SET read = TRUE, message = $1 WHERE invite_id = $2`
	if _, err := s.q.ExecContext(ctx, query, message, inviteID); err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}
