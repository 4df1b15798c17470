package quest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ludio/questplayer/internal/catalog"
	"github.com/ludio/questplayer/internal/core"
	"github.com/ludio/questplayer/internal/playback"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []fetchCall
	FetchF func(playlistID, token string) (*catalog.Page, error)
}

type fetchCall struct {
	PlaylistID string
	Token      string
}

func (f *fakeFetcher) FetchPage(_ context.Context, playlistID, token string) (*catalog.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{PlaylistID: playlistID, Token: token})
	f.mu.Unlock()
	return f.FetchF(playlistID, token)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memStore struct {
	mu     sync.Mutex
	saved  *core.Progress
	clears int
}

func (s *memStore) Save(_ context.Context, p *core.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PlaylistID == "" {
		return nil
	}
	s.saved = p.CloneProgress()
	return nil
}

func (s *memStore) Load(context.Context) (*core.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved.CloneProgress(), nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = nil
	s.clears++
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) snapshot() *core.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved.CloneProgress()
}

type fakeTransport struct {
	mu      sync.Mutex
	loads   []string
	toggles int
	status  core.PlaybackStatus
	events  chan playback.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status: core.PlaybackUninitialized,
		events: make(chan playback.Event, 16),
	}
}

func (tr *fakeTransport) Load(mediaID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.loads = append(tr.loads, mediaID)
}

func (tr *fakeTransport) Toggle() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.toggles++
}

func (tr *fakeTransport) Status() core.PlaybackStatus {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.status
}

func (tr *fakeTransport) Subscribe() <-chan playback.Event { return tr.events }

func (tr *fakeTransport) loaded() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.loads...)
}

func pageOf(next string, ids ...string) *catalog.Page {
	p := &catalog.Page{NextToken: next}
	for _, id := range ids {
		p.Tracks = append(p.Tracks, core.Track{
			ID:           "item-" + id,
			MediaID:      "vid-" + id,
			Title:        "Track " + id,
			Attribution:  "Channel",
			ThumbnailURL: core.PlaceholderThumbnailURL,
			Duration:     "3:45",
		})
	}
	return p
}

type engineDeps struct {
	fetcher   *fakeFetcher
	store     *memStore
	transport *fakeTransport
}

func newTestEngine(t *testing.T, mutate func(*Options)) (*Engine, engineDeps) {
	t.Helper()
	deps := engineDeps{
		fetcher:   &fakeFetcher{},
		store:     &memStore{},
		transport: newFakeTransport(),
	}
	policy, err := NewPolicy(PolicyNamePerTrack, 20, 3)
	require.NoError(t, err)
	opts := &Options{
		Fetcher:     deps.fetcher,
		Store:       deps.store,
		Transport:   deps.transport,
		Policy:      policy,
		PageSize:    3,
		MaxTracks:   40,
		EndedReward: 20,
		ClickReward: 1,
		AckTTL:      25 * time.Millisecond,
	}
	if mutate != nil {
		mutate(opts)
	}
	e, err := NewEngine(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, deps
}

func TestSubmitQuestLoadsFirstPageAndPlays(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)
	deps.fetcher.FetchF = func(playlistID, token string) (*catalog.Page, error) {
		return pageOf("T1", "a", "b", "c"), nil
	}

	require.NoError(t, e.SubmitQuest(context.Background(), "PLabc1234567"))

	v := e.View()
	require.Equal(t, "PLabc1234567", v.PlaylistID)
	require.False(t, v.Loading)
	require.Len(t, v.Tracks, 3)
	require.Equal(t, 0, v.Points)
	require.Equal(t, 0, v.CurrentIndex)
	require.True(t, v.HasMore)

	// First track starts playing.
	require.Equal(t, []string{"vid-a"}, deps.transport.loaded())

	// Snapshot was cleared for the new quest, then written with the cursor.
	require.Equal(t, 1, deps.store.clears)
	saved := deps.store.snapshot()
	require.NotNil(t, saved)
	require.Equal(t, "T1", saved.NextPageToken)
	require.Equal(t, "PLabc1234567", saved.PlaylistID)
	require.Equal(t, 0, saved.Points)
}

func TestSubmitQuestResetsBeforeFetchResolves(t *testing.T) {
	t.Parallel()
	var e *Engine
	eng, deps := newTestEngine(t, nil)
	e = eng
	deps.fetcher.FetchF = func(playlistID, token string) (*catalog.Page, error) {
		// Observed mid-fetch: state is already wiped.
		v := e.View()
		require.Empty(t, v.Tracks)
		require.Zero(t, v.Points)
		require.True(t, v.Loading)
		return pageOf("", "a"), nil
	}

	require.NoError(t, e.SubmitQuest(context.Background(), "PLabc1234567"))
}

func TestSubmitQuestRejectsMalformedID(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)
	deps.fetcher.FetchF = func(string, string) (*catalog.Page, error) {
		t.Fatal("no fetch should happen for a malformed id")
		return nil, nil
	}

	err := e.SubmitQuest(context.Background(), "nope")
	require.Error(t, err)
	appErr, ok := core.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, core.ErrorCodeValidation, appErr.Code)
	require.Zero(t, deps.fetcher.callCount())
}

func TestManualPointGatedOnActiveQuest(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)

	// No quest loaded: any number of grants leaves the balance at zero.
	for n := 0; n < 5; n++ {
		ack, ok := e.GrantManualPoint(10, 20)
		require.False(t, ok)
		require.Nil(t, ack)
	}
	require.Zero(t, e.View().Points)

	deps.fetcher.FetchF = func(string, string) (*catalog.Page, error) {
		return pageOf("", "a"), nil
	}
	require.NoError(t, e.SubmitQuest(context.Background(), "PLabc1234567"))

	ack, ok := e.GrantManualPoint(120, 240)
	require.True(t, ok)
	require.NotNil(t, ack)
	require.Equal(t, 120, ack.X)
	require.Equal(t, 240, ack.Y)
	require.NotEmpty(t, ack.ID)
	require.Equal(t, 1, e.View().Points)

	v := e.View()
	require.Len(t, v.Acks, 1)

	// The cosmetic token expires on its own.
	require.Eventually(t, func() bool {
		return len(e.View().Acks) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPerTrackUnlockEconomy(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)
	deps.fetcher.FetchF = func(playlistID, token string) (*catalog.Page, error) {
		if token == "" {
			return pageOf("T1", "a", "b", "c"), nil
		}
		require.Equal(t, "T1", token)
		return pageOf("", "d", "e", "f"), nil
	}
	require.NoError(t, e.SubmitQuest(context.Background(), "PLabc1234567"))

	for n := 0; n < 19; n++ {
		_, ok := e.GrantManualPoint(0, 0)
		require.True(t, ok)
	}
	require.Equal(t, 19, e.View().Points)

	// 19 < 20: silent no-op, nothing changes.
	require.NoError(t, e.RequestUnlock(context.Background()))
	v := e.View()
	require.Equal(t, 19, v.Points)
	require.Len(t, v.Tracks, 3)
	require.Equal(t, 1, deps.fetcher.callCount())

	_, ok := e.GrantManualPoint(0, 0)
	require.True(t, ok)

	// 20 points: spend exactly 20, reveal one more, fetch the next page.
	require.NoError(t, e.RequestUnlock(context.Background()))
	v = e.View()
	require.Equal(t, 0, v.Points)
	require.Len(t, v.Tracks, 4, "reveal window is 4 of the 6 fetched")
	require.Equal(t, 6, v.TotalFetched)
	require.Equal(t, 2, deps.fetcher.callCount())

	saved := deps.store.snapshot()
	require.NotNil(t, saved)
	require.Equal(t, 4, saved.VisibleLimit)
	require.Equal(t, 0, saved.Points)
}

func TestBatchUnlockEconomy(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, func(o *Options) {
		policy, err := NewPolicy(PolicyNameBatch, 3, 3)
		require.NoError(t, err)
		o.Policy = policy
		o.EndedReward = 1
	})
	deps.fetcher.FetchF = func(playlistID, token string) (*catalog.Page, error) {
		if token == "" {
			return pageOf("T1", "a", "b", "c"), nil
		}
		return pageOf("T2", "d", "e", "f"), nil
	}
	require.NoError(t, e.SubmitQuest(context.Background(), "PLabc1234567"))

	for n := 0; n < 5; n++ {
		_, ok := e.GrantManualPoint(0, 0)
		require.True(t, ok)
	}

	// 5 < 6: rejected.
	require.NoError(t, e.RequestUnlock(context.Background()))
	require.Equal(t, 1, deps.fetcher.callCount())
	require.Equal(t, 5, e.View().Points)

	_, ok := e.GrantManualPoint(0, 0)
	require.True(t, ok)

	// 6 >= 6: fetches the next batch, spends nothing, all tracks visible.
	require.NoError(t, e.RequestUnlock(context.Background()))
	v := e.View()
	require.Equal(t, 6, v.Points, "batch policy does not spend")
	require.Len(t, v.Tracks, 6)
	require.Equal(t, 2, deps.fetcher.callCount())

	// Next threshold doubled: 6 tracks fetched, need 9 now.
	require.Equal(t, 9, v.UnlockCost)
	require.NoError(t, e.RequestUnlock(context.Background()))
	require.Equal(t, 2, deps.fetcher.callCount(), "6 < 9 rejected")
}

func TestPlaybackEndedRewardsAndAdvances(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)
	deps.fetcher.FetchF = func(string, string) (*catalog.Page, error) {
		return pageOf("", "a", "b", "c"), nil
	}
	require.NoError(t, e.SubmitQuest(context.Background(), "PLabc1234567"))
	e.Start(context.Background())

	deps.transport.events <- playback.Event{Status: core.PlaybackEnded}
	require.Eventually(t, func() bool {
		v := e.View()
		return v.Points == 20 && v.CurrentIndex == 1
	}, time.Second, 5*time.Millisecond)
	require.Contains(t, deps.transport.loaded(), "vid-b")

	// Wrap around at the end of the playable window.
	deps.transport.events <- playback.Event{Status: core.PlaybackEnded}
	deps.transport.events <- playback.Event{Status: core.PlaybackEnded}
	require.Eventually(t, func() bool {
		v := e.View()
		return v.Points == 60 && v.CurrentIndex == 0
	}, time.Second, 5*time.Millisecond)
}

func TestUpstreamErrorInvalidatesQuest(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)
	deps.fetcher.FetchF = func(string, string) (*catalog.Page, error) {
		return nil, core.NewUpstreamError("playlistNotFound", "test")
	}

	err := e.SubmitQuest(context.Background(), "PLmissing0000")
	require.Error(t, err)

	v := e.View()
	require.Empty(t, v.PlaylistID)
	require.Empty(t, v.Tracks)
	require.False(t, v.Loading)
	require.NotNil(t, v.LastError)
	require.Equal(t, core.ErrorCodeUpstream, v.LastError.Code)
}

func TestResumeKeepsPoints(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, func(o *Options) {
		o.Store = &memStore{saved: &core.Progress{
			Points:        17,
			PlaylistID:    "PLabc1234567",
			NextPageToken: "T9",
			VisibleLimit:  5,
		}}
	})
	deps.fetcher.FetchF = func(playlistID, token string) (*catalog.Page, error) {
		require.Equal(t, "PLabc1234567", playlistID)
		require.Empty(t, token, "resume re-fetches page one")
		return pageOf("T1", "a", "b", "c"), nil
	}

	v := e.View()
	require.Equal(t, "PLabc1234567", v.SavedPlaylistID)
	require.Equal(t, 17, v.Points)

	require.NoError(t, e.ResumeQuest(context.Background()))
	v = e.View()
	require.Equal(t, 17, v.Points, "currency carries over on resume")
	require.Equal(t, "PLabc1234567", v.PlaylistID)
	require.Empty(t, v.SavedPlaylistID)
	require.Len(t, v.Tracks, 3, "reveal window restored to 5, 3 loaded")
	require.Equal(t, []string{"vid-a"}, deps.transport.loaded())
}

func TestResumeWithoutSavedQuest(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, nil)
	err := e.ResumeQuest(context.Background())
	require.Error(t, err)
	appErr, ok := core.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, core.ErrorCodeValidation, appErr.Code)
}

func TestStaleFetchDiscarded(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	deps.fetcher.FetchF = func(playlistID, token string) (*catalog.Page, error) {
		if playlistID == "PLslow9999999" {
			close(firstStarted)
			<-release
			return pageOf("TOLD", "stale1", "stale2"), nil
		}
		return pageOf("TNEW", "fresh"), nil
	}

	done := make(chan error, 1)
	go func() {
		done <- e.SubmitQuest(context.Background(), "PLslow9999999")
	}()
	<-firstStarted

	// A second submit supersedes the outstanding fetch.
	require.NoError(t, e.SubmitQuest(context.Background(), "PLfresh88888"))
	close(release)
	require.NoError(t, <-done)

	v := e.View()
	require.Equal(t, "PLfresh88888", v.PlaylistID, "stale result must not clobber the new quest")
	require.Len(t, v.Tracks, 1)
	require.Equal(t, "item-fresh", v.Tracks[0].ID)
}

func TestPlayAndTransportPassThroughs(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)
	deps.fetcher.FetchF = func(string, string) (*catalog.Page, error) {
		return pageOf("", "a", "b", "c"), nil
	}
	require.NoError(t, e.SubmitQuest(context.Background(), "PLabc1234567"))

	require.NoError(t, e.Play(2))
	require.Equal(t, 2, e.View().CurrentIndex)

	err := e.Play(7)
	require.Error(t, err, "index outside the visible window")

	e.Previous()
	require.Equal(t, 1, e.View().CurrentIndex)
	e.Next()
	require.Equal(t, 2, e.View().CurrentIndex)

	e.TogglePlayPause()
	require.Equal(t, 1, deps.transport.toggles)

	require.Equal(t, []string{"vid-a", "vid-c", "vid-b", "vid-c"}, deps.transport.loaded())
}

func TestUnlockIgnoredWhileLoading(t *testing.T) {
	t.Parallel()
	e, deps := newTestEngine(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	deps.fetcher.FetchF = func(string, string) (*catalog.Page, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return pageOf("T1", "a", "b", "c"), nil
	}

	done := make(chan error, 1)
	go func() {
		done <- e.SubmitQuest(context.Background(), "PLabc1234567")
	}()
	<-started

	// While the first page is in flight, unlock is a no-op.
	require.NoError(t, e.RequestUnlock(context.Background()))
	close(release)
	require.NoError(t, <-done)
	require.Equal(t, 1, deps.fetcher.callCount())
}

func TestEngineOptionsValidated(t *testing.T) {
	t.Parallel()
	_, err := NewEngine(context.Background(), &Options{})
	require.Error(t, err)
	var appErr *core.AppError
	require.True(t, errors.As(err, &appErr))
}
