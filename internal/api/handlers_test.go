package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ludio/questplayer/internal/core"
	"github.com/ludio/questplayer/internal/playback"
	"github.com/ludio/questplayer/internal/quest"
	"github.com/stretchr/testify/require"
)

type mockEngine struct {
	LastSubmittedID string
	LastPlayIndex   int
	Toggles         int
	Nexts           int
	Prevs           int

	SubmitQuestF      func(ctx context.Context, playlistID string) error
	ResumeQuestF      func(ctx context.Context) error
	RequestUnlockF    func(ctx context.Context) error
	GrantManualPointF func(x, y int) (*quest.Ack, bool)
	PlayF             func(index int) error
	ViewF             func() *quest.View
}

func (me *mockEngine) SubmitQuest(ctx context.Context, playlistID string) error {
	me.LastSubmittedID = playlistID
	return me.SubmitQuestF(ctx, playlistID)
}
func (me *mockEngine) ResumeQuest(ctx context.Context) error   { return me.ResumeQuestF(ctx) }
func (me *mockEngine) RequestUnlock(ctx context.Context) error { return me.RequestUnlockF(ctx) }
func (me *mockEngine) GrantManualPoint(x, y int) (*quest.Ack, bool) {
	return me.GrantManualPointF(x, y)
}
func (me *mockEngine) Play(index int) error {
	me.LastPlayIndex = index
	return me.PlayF(index)
}
func (me *mockEngine) TogglePlayPause() { me.Toggles++ }
func (me *mockEngine) Next()            { me.Nexts++ }
func (me *mockEngine) Previous()        { me.Prevs++ }
func (me *mockEngine) View() *quest.View {
	return me.ViewF()
}

type mockBridge struct {
	Reported       []playback.Event
	ReportStatusF  func(ev playback.Event)
	DrainCommandsF func() []playback.Command
}

func (mb *mockBridge) ReportStatus(ev playback.Event) {
	mb.Reported = append(mb.Reported, ev)
	if mb.ReportStatusF != nil {
		mb.ReportStatusF(ev)
	}
}
func (mb *mockBridge) DrainCommands() []playback.Command {
	return mb.DrainCommandsF()
}

var testView = &quest.View{
	PlaylistID: "PLabc1234567",
	Points:     37,
	Tracks: []core.Track{
		{ID: "item-a", MediaID: "vid-a", Title: "Track A", Attribution: "Channel", Duration: "3:45"},
		{ID: "item-b", MediaID: "vid-b", Title: "Track B", Attribution: "Channel", Duration: "4:05"},
	},
	TotalFetched:   2,
	HasMore:        true,
	PlaybackStatus: core.PlaybackPlaying,
	PolicyName:     quest.PolicyNamePerTrack,
	UnlockCost:     20,
	UnlockReady:    true,
}

func newTestRouter(e questEngine, b playerBridge, a artworkCache) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(e, b, a, nil)
	r := gin.New()
	setupRouter(r, h)
	return r
}

func TestSubmitQuestAPI(t *testing.T) {
	t.Parallel()

	e := &mockEngine{
		SubmitQuestF: func(ctx context.Context, playlistID string) error {
			require.Equal(t, "PLabc1234567", playlistID)
			return nil
		},
		ViewF: func() *quest.View { return testView },
	}
	r := newTestRouter(e, &mockBridge{}, nil)

	body := `{"playlist_id":"PLabc1234567"}`
	req := httptest.NewRequest(http.MethodPost, "/quest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := QuestResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "PLabc1234567", resp.PlaylistID)
	require.Equal(t, 37, resp.Points)
	require.Len(t, resp.Tracks, 2)
	require.Equal(t, "vid-a", resp.Tracks[0].MediaID)
	require.True(t, resp.UnlockReady)
	require.Equal(t, "PLabc1234567", e.LastSubmittedID)
}

func TestSubmitQuestAPIValidationError(t *testing.T) {
	t.Parallel()

	e := &mockEngine{
		SubmitQuestF: func(ctx context.Context, playlistID string) error {
			return core.NewValidationError("bad playlist id", nil, "test")
		},
		ViewF: func() *quest.View { return testView },
	}
	r := newTestRouter(e, &mockBridge{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/quest", strings.NewReader(`{"playlist_id":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitQuestAPIUpstreamError(t *testing.T) {
	t.Parallel()

	e := &mockEngine{
		SubmitQuestF: func(ctx context.Context, playlistID string) error {
			return core.NewUpstreamError("playlistNotFound", "test")
		},
		ViewF: func() *quest.View { return testView },
	}
	r := newTestRouter(e, &mockBridge{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/quest", strings.NewReader(`{"playlist_id":"PLabc1234567"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRecordClickAPI(t *testing.T) {
	t.Parallel()

	granted := false
	e := &mockEngine{
		GrantManualPointF: func(x, y int) (*quest.Ack, bool) {
			if !granted {
				return nil, false
			}
			require.Equal(t, 12, x)
			require.Equal(t, 34, y)
			return &quest.Ack{ID: "ack-1", X: x, Y: y, Points: 1}, true
		},
		ViewF: func() *quest.View { return testView },
	}
	r := newTestRouter(e, &mockBridge{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/quest/clicks", strings.NewReader(`{"x":12,"y":34}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"granted":false`)

	granted = true
	req = httptest.NewRequest(http.MethodPost, "/quest/clicks", strings.NewReader(`{"x":12,"y":34}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"granted":true`)
	require.Contains(t, rec.Body.String(), `"ack-1"`)
}

func TestPlayerEventAPI(t *testing.T) {
	t.Parallel()

	b := &mockBridge{}
	e := &mockEngine{ViewF: func() *quest.View { return testView }}
	r := newTestRouter(e, b, nil)

	req := httptest.NewRequest(http.MethodPost, "/player/events",
		strings.NewReader(`{"status":"ENDED","position":221.4,"duration":225}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, b.Reported, 1)
	require.Equal(t, core.PlaybackEnded, b.Reported[0].Status)
	require.InDelta(t, 221.4, b.Reported[0].Position, 0.001)

	// Unknown status never reaches the bridge.
	req = httptest.NewRequest(http.MethodPost, "/player/events",
		strings.NewReader(`{"status":"EXPLODED"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, b.Reported, 1)
}

func TestDrainCommandsAPI(t *testing.T) {
	t.Parallel()

	b := &mockBridge{
		DrainCommandsF: func() []playback.Command {
			return []playback.Command{
				{Action: playback.ActionLoad, MediaID: "vid-a"},
				{Action: playback.ActionPlay},
			}
		},
	}
	e := &mockEngine{ViewF: func() *quest.View { return testView }}
	r := newTestRouter(e, b, nil)

	req := httptest.NewRequest(http.MethodGet, "/player/commands", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := CommandsResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 2)
	require.Equal(t, playback.ActionLoad, resp.Commands[0].Action)
	require.Equal(t, "vid-a", resp.Commands[0].MediaID)
}

func TestPlayTrackAPI(t *testing.T) {
	t.Parallel()

	e := &mockEngine{
		PlayF: func(index int) error {
			if index > 1 {
				return core.NewValidationError("track index out of range", nil, "test")
			}
			return nil
		},
		ViewF: func() *quest.View { return testView },
	}
	r := newTestRouter(e, &mockBridge{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/player/play", strings.NewReader(`{"index":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, e.LastPlayIndex)

	req = httptest.NewRequest(http.MethodPost, "/player/play", strings.NewReader(`{"index":9}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArtworkAPIWithoutCache(t *testing.T) {
	t.Parallel()

	e := &mockEngine{ViewF: func() *quest.View { return testView }}
	r := newTestRouter(e, &mockBridge{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/artwork/vid-a", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, core.PlaceholderThumbnailURL, rec.Header().Get("Location"))
}
