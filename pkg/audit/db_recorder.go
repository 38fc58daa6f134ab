package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const entryColumns = `id, timestamp, organization_id, board_id, user_id, action, entity_type, entity_id, details, request_id`

// DBRecorder stores entries in the audit_logs table. It shares the
// membership database but owns its own table.
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates the audit_logs table if needed
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, errors.New("audit: database connection is required")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create audit_logs schema: %w", err)
	}
	return &DBRecorder{db: db}, nil
}

// Record inserts entry and sets its ID
func (r *DBRecorder) Record(ctx context.Context, entry *Entry) error {
	prepare(ctx, entry)

	var details []byte
	if entry.Details != nil {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (timestamp, organization_id, board_id, user_id, action, entity_type, entity_id, details, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		entry.Timestamp, entry.OrganizationID, entry.BoardID, entry.UserID,
		entry.Action, entry.EntityType, entry.EntityID, details, nullIfEmpty(entry.RequestID),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// predicates accumulates WHERE clauses with positional arguments
type predicates struct {
	clauses []string
	args    []any
}

func (p *predicates) add(format string, arg any) {
	p.args = append(p.args, arg)
	p.clauses = append(p.clauses, fmt.Sprintf(format, len(p.args)))
}

func (p *predicates) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// Search returns entries matching filter, newest first
func (r *DBRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	var p predicates
	if filter.OrganizationID != nil {
		p.add("organization_id = $%d", *filter.OrganizationID)
	}
	if filter.BoardID != nil {
		p.add("board_id = $%d", *filter.BoardID)
	}
	if filter.UserID != "" {
		p.add("user_id = $%d", filter.UserID)
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		p.add("action = ANY($%d)", pq.Array(actions))
	}
	if filter.StartTime != nil {
		p.add("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		p.add("timestamp <= $%d", *filter.EndTime)
	}

	query := "SELECT " + entryColumns + " FROM audit_logs" + p.where() + " ORDER BY timestamp DESC, id DESC"
	args := p.args
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e                         Entry
		orgID, boardID, requestID sql.NullString
		details                   []byte
	)
	if err := rows.Scan(&e.ID, &e.Timestamp, &orgID, &boardID, &e.UserID,
		&e.Action, &e.EntityType, &e.EntityID, &details, &requestID); err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}
	if orgID.Valid {
		e.OrganizationID = &orgID.String
	}
	if boardID.Valid {
		e.BoardID = &boardID.String
	}
	e.RequestID = requestID.String
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details of entry %d: %w", e.ID, err)
		}
	}
	return &e, nil
}

// Cleanup deletes entries older than the retention period
func (r *DBRecorder) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
	res, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit entries: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the database pool belongs to the caller
func (r *DBRecorder) Close() error {
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
