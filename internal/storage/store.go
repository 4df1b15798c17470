package storage

import (
	"context"

	"github.com/ludio/questplayer/internal/core"
)

// ProgressStore persists the quest progression snapshot under a single
// well-known key. Implementations MUST be safe for concurrency and durable
// across restarts. Durability is best-effort from the engine's point of
// view: a failed Save is logged by the caller and never blocks the state
// transition that triggered it.
type ProgressStore interface {
	// Save overwrites the stored snapshot. Saving progress with an empty
	// PlaylistID is a no-op: no quest, nothing worth keeping.
	Save(ctx context.Context, p *core.Progress) error
	// Load returns the last saved snapshot, or nil when none exists.
	Load(ctx context.Context) (*core.Progress, error)
	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error

	Close() error
}

// JournalCompactor folds the append-only journal into a fresh snapshot.
// Only the file-backed store journals; bbolt syncs instead.
type JournalCompactor interface {
	CompactJournal(ctx context.Context) error
}
