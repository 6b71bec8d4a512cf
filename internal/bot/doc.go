// Package bot is the Telegram command front end.
//
// Commands are owner-only except /start and /help. Job commands build a
// poster.JobSpec and submit it to the registry; job events come back
// through chatSink, which renders them into the originating chat via the
// notifier. Operator actions (stops, deletes, token changes) are written
// to the audit log when storage is enabled.
package bot
