package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Presence summarises what the journal knows about a user.
type Presence struct {
	UserID string
	// Online reports whether at least one session is still open.
	Online bool
	// Sessions is the number of open sessions.
	Sessions      int
	LastOnlineAt  time.Time
	LastOfflineAt *time.Time // nil if the user never went offline
}

// PresenceStore journals when identified users come and go.
type PresenceStore interface {
	// RecordOnline opens a session for userID on connection connID.
	RecordOnline(ctx context.Context, userID, connID string, at time.Time) error

	// RecordOffline closes the open session for userID on connID.
	// Closing a session that is not open is not an error.
	RecordOffline(ctx context.Context, userID, connID string, at time.Time) error

	// LastSeen returns the presence summary for userID or ErrNotFound.
	LastSeen(ctx context.Context, userID string) (*Presence, error)

	// CloseOpenSessions closes sessions left open by a previous process.
	CloseOpenSessions(ctx context.Context, at time.Time) (int64, error)

	// Close closes the underlying database connection.
	Close() error
}
