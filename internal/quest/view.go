package quest

import "github.com/ludio/questplayer/internal/core"

// View is the engine state projected for the presentation layer. Tracks
// are visibility-limited: the presentation is never shown more tracks
// than the reveal window allows, and never more than exist.
type View struct {
	PlaylistID string
	Loading    bool
	Points     int

	Tracks       []core.Track
	TotalFetched int
	// HasMore reports whether another page could still be unlocked.
	HasMore bool

	CurrentIndex   int
	PlaybackStatus core.PlaybackStatus

	PolicyName  string
	UnlockCost  int
	UnlockReady bool

	// SavedPlaylistID is non-empty when a resumable quest exists and no
	// quest is active yet.
	SavedPlaylistID string

	Acks []Ack

	// LastError is the blocking establish failure, if any.
	LastError *core.AppError
}

func (e *Engine) View() *View {
	e.mu.Lock()
	defer e.mu.Unlock()

	gate := Gate{
		Points:       e.points,
		TrackCount:   len(e.tracks),
		VisibleLimit: e.visibleLimit,
		MaxTracks:    e.maxTracks,
		HasNext:      e.nextToken != "",
	}
	_, unlockReady := e.policy.Evaluate(gate)

	visible := e.playableCountLocked()
	v := &View{
		PlaylistID:     e.playlistID,
		Loading:        e.loading,
		Points:         e.points,
		Tracks:         core.CloneTracks(e.tracks[:visible]),
		TotalFetched:   len(e.tracks),
		HasMore:        e.nextToken != "" && len(e.tracks) < e.maxTracks,
		CurrentIndex:   e.currentIndex,
		PlaybackStatus: e.transport.Status(),
		PolicyName:     e.policy.Name(),
		UnlockCost:     e.policy.NextCost(gate),
		UnlockReady:    unlockReady && !e.loading,
		Acks:           append([]Ack(nil), e.acks...),
		LastError:      e.lastErr.Clone(),
	}
	if e.playlistID == "" {
		v.SavedPlaylistID = e.savedPlaylistID
	}
	return v
}
