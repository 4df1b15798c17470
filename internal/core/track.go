package core

// PlaceholderThumbnailURL is shown when upstream carries no artwork.
const PlaceholderThumbnailURL = "https://placehold.co/48x48/1e293b/a8a29e?text=No+Art"

// Track is a single playlist entry. Immutable once fetched: the engine
// appends tracks in upstream order and never rewrites one in place.
type Track struct {
	// ID is the upstream playlist-item identifier, unique within a quest.
	ID string `json:"id"`
	// MediaID is the playable content identifier the widget loads.
	MediaID     string `json:"media_id"`
	Title       string `json:"title"`
	Attribution string `json:"attribution"`
	// ThumbnailURL falls back to PlaceholderThumbnailURL if upstream has none.
	ThumbnailURL string `json:"thumbnail_url"`
	// Duration is human readable (H:MM:SS or M:SS), or LiveDuration.
	Duration string `json:"duration"`
}

func (t *Track) CloneTrack() *Track {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func CloneTracks(tracks []Track) []Track {
	if len(tracks) == 0 {
		return nil
	}
	return append([]Track(nil), tracks...)
}

// PlaybackStatus is the transport state reported by the media widget.
type PlaybackStatus string

const (
	PlaybackUninitialized PlaybackStatus = "UNINITIALIZED"
	PlaybackReady         PlaybackStatus = "READY"
	PlaybackPlaying       PlaybackStatus = "PLAYING"
	PlaybackPaused        PlaybackStatus = "PAUSED"
	PlaybackEnded         PlaybackStatus = "ENDED"
)

// ParsePlaybackStatus maps a widget-reported status string onto the enum.
func ParsePlaybackStatus(s string) (PlaybackStatus, bool) {
	switch PlaybackStatus(s) {
	case PlaybackUninitialized, PlaybackReady, PlaybackPlaying,
		PlaybackPaused, PlaybackEnded:
		return PlaybackStatus(s), true
	}
	return "", false
}
