// Package audit records membership mutations in an append-only log.
//
// # Overview
//
// Every committed membership change (role change, ban, unban, removal,
// invite create/accept/decline, organization and board lifecycle) produces
// one Entry naming the actor, the resource and an opaque details map such
// as {"oldRole": "ADMIN", "newRole": "MEMBER"}.
//
// Recording is best effort. A failed Record never rolls back the mutation
// it describes; callers log and count the failure.
//
// # Recorders
//
//   - DBRecorder: PostgreSQL audit_logs table, searchable, with retention cleanup
//   - FileRecorder: newline-delimited JSON with size based rotation
//   - MultiRecorder: fan-out to several recorders
//   - NoOpRecorder: discards entries
//
// # Usage Example
//
//	recorder, err := audit.NewDBRecorder(db)
//	if err != nil {
//		return err
//	}
//	err = recorder.Record(ctx, &audit.Entry{
//		OrganizationID: &orgID,
//		UserID:         actorID,
//		Action:         audit.ActionBanMember,
//		EntityType:     audit.EntityTypeOrganizationBan,
//		EntityID:       targetID,
//		Details:        map[string]interface{}{"reason": "spam"},
//	})
//
// # Retention
//
// ScheduleRetention registers a robfig/cron job that deletes entries older
// than RetentionPolicy.RetentionDays (default 90).
package audit
