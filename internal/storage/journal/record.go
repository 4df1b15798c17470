package journal

import (
	"encoding/json"
	"time"

	"github.com/ludio/questplayer/internal/core"
)

type RecordType int

const (
	// RecordProgressSaved carries the full progress document. Replay is
	// last-record-wins.
	RecordProgressSaved RecordType = iota
	// RecordProgressCleared marks the persisted quest as wiped.
	RecordProgressCleared
)

type ProgressSavedPayload struct {
	Progress *core.Progress `json:"progress"`
}

type Record struct {
	Version int        `json:"version"`
	Type    RecordType `json:"type"`

	CreatedAt time.Time `json:"created_at"`

	Payload json.RawMessage `json:"payload,omitempty"`
}
