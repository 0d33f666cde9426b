// Package shared holds small helpers needed by more than one agentdesk
// package.
package shared

import "strings"

// IsSQLiteConflictError reports whether err is a SQLite concurrency failure
// worth retrying. The modernc driver surfaces SQLITE_BUSY and "database is
// locked" as plain error strings, so concurrent turn writes against the
// single database file have to match on the message text.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
