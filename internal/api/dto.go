package api

import (
	"time"

	"github.com/ludio/questplayer/internal/core"
	"github.com/ludio/questplayer/internal/playback"
	"github.com/ludio/questplayer/internal/quest"
)

type SubmitQuestRequest struct {
	PlaylistID string `json:"playlist_id"`
}

type ClickRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type PlayRequest struct {
	Index int `json:"index"`
}

type PlayerEventRequest struct {
	Status   string  `json:"status"`
	Position float64 `json:"position,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type TrackResponse struct {
	ID           string `json:"id"`
	MediaID      string `json:"media_id"`
	Title        string `json:"title"`
	Attribution  string `json:"attribution"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     string `json:"duration"`
}

type AckResponse struct {
	ID        string    `json:"id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type QuestResponse struct {
	PlaylistID string `json:"playlist_id,omitempty"`
	Loading    bool   `json:"loading"`
	Points     int    `json:"points"`

	Tracks       []*TrackResponse `json:"tracks"`
	TotalFetched int              `json:"total_fetched"`
	HasMore      bool             `json:"has_more"`

	CurrentIndex   int    `json:"current_index"`
	PlaybackStatus string `json:"playback_status"`

	PolicyName  string `json:"policy"`
	UnlockCost  int    `json:"unlock_cost"`
	UnlockReady bool   `json:"unlock_ready"`

	SavedPlaylistID string `json:"saved_playlist_id,omitempty"`

	Acks []*AckResponse `json:"acks,omitempty"`

	LastError *ErrorResponse `json:"last_error,omitempty"`
}

type CommandsResponse struct {
	Commands []playback.Command `json:"commands"`
}

func NewQuestResponse(v *quest.View) *QuestResponse {
	if v == nil {
		return nil
	}

	resp := &QuestResponse{
		PlaylistID:      v.PlaylistID,
		Loading:         v.Loading,
		Points:          v.Points,
		Tracks:          make([]*TrackResponse, 0, len(v.Tracks)),
		TotalFetched:    v.TotalFetched,
		HasMore:         v.HasMore,
		CurrentIndex:    v.CurrentIndex,
		PlaybackStatus:  string(v.PlaybackStatus),
		PolicyName:      v.PolicyName,
		UnlockCost:      v.UnlockCost,
		UnlockReady:     v.UnlockReady,
		SavedPlaylistID: v.SavedPlaylistID,
	}

	for _, t := range v.Tracks {
		resp.Tracks = append(resp.Tracks, NewTrackResponse(&t))
	}
	for _, a := range v.Acks {
		resp.Acks = append(resp.Acks, &AckResponse{
			ID:        a.ID,
			X:         a.X,
			Y:         a.Y,
			Points:    a.Points,
			CreatedAt: a.CreatedAt,
		})
	}
	if v.LastError != nil {
		resp.LastError = &ErrorResponse{
			Code:    int(v.LastError.Code),
			Message: v.LastError.PublicMessage(),
		}
	}

	return resp
}

func NewTrackResponse(t *core.Track) *TrackResponse {
	if t == nil {
		return nil
	}
	return &TrackResponse{
		ID:           t.ID,
		MediaID:      t.MediaID,
		Title:        t.Title,
		Attribution:  t.Attribution,
		ThumbnailURL: t.ThumbnailURL,
		Duration:     t.Duration,
	}
}

func NewAckResponse(a *quest.Ack) *AckResponse {
	if a == nil {
		return nil
	}
	return &AckResponse{
		ID:        a.ID,
		X:         a.X,
		Y:         a.Y,
		Points:    a.Points,
		CreatedAt: a.CreatedAt,
	}
}
