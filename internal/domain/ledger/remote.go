package ledger

import "context"

// Fetcher reads a user's fields from the remote profile store.
type Fetcher interface {
	Fetch(ctx context.Context, userID string) (map[string]string, error)
}

// Update is one batch of fields bound for the remote profile store.
type Update struct {
	UserID string
	Kind   string
	Fields map[string]string
	// Done is invoked once the remote call settles. It may run on another goroutine.
	Done func(error)
}

// Syncer delivers updates without blocking the caller. Push fails only when
// the update could not be accepted.
type Syncer interface {
	Push(ctx context.Context, u Update) error
}

// Update kinds.
const (
	SyncProfile = "profile"
	SyncInit    = "init"
	SyncAward   = "award"
	SyncPhoto   = "photo"
	SyncImpact  = "impact"
)

// SyncStatus is the outcome of the most recent settled remote call.
type SyncStatus struct {
	Kind    string `json:"kind"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	At      string `json:"at"`
}
