package core

import "regexp"

// Upstream playlist ids are URL-safe base64-ish, usually PL/UU/OL prefixed.
// The shape check is deliberately minimal: upstream stays authoritative.
var playlistIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,64}$`)

// ValidatePlaylistID rejects obviously malformed identifiers before any
// fetch is attempted. Engine state stays untouched on rejection.
func ValidatePlaylistID(id string) *AppError {
	const op = "core.ValidatePlaylistID"
	if id == "" {
		return NewValidationError("playlist id required", nil, op)
	}
	if !playlistIDPattern.MatchString(id) {
		return NewValidationError("playlist id malformed", nil, op).
			WithMeta("playlist_id", id)
	}
	return nil
}
