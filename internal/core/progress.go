package core

// Progress is the durable slice of quest state. Tracks themselves are not
// persisted: resume re-fetches page one using the saved playlist id.
type Progress struct {
	Points        int    `json:"points"`
	PlaylistID    string `json:"playlistId"`
	NextPageToken string `json:"nextPageToken"`
	// VisibleLimit is only meaningful under the per-track unlock policy.
	VisibleLimit int `json:"visibleSongsLimit,omitempty"`
}

func (p *Progress) CloneProgress() *Progress {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
