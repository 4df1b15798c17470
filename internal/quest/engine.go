package quest

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ludio/questplayer/internal/catalog"
	"github.com/ludio/questplayer/internal/core"
	"github.com/ludio/questplayer/internal/playback"
	"github.com/ludio/questplayer/internal/storage"
	"go.uber.org/zap"
)

// CatalogFetcher retrieves one playlist page. A failed fetch invalidates
// the quest; the engine never retries.
type CatalogFetcher interface {
	FetchPage(ctx context.Context, playlistID, pageToken string) (*catalog.Page, error)
}

// Transport is the engine's view of the playback bridge.
type Transport interface {
	Load(mediaID string)
	Toggle()
	Status() core.PlaybackStatus
	Subscribe() <-chan playback.Event
}

// ArtworkPrefetcher warms the local thumbnail cache. Optional.
type ArtworkPrefetcher interface {
	Enqueue(ctx context.Context, tracks []core.Track)
}

// Ack is the transient cosmetic token emitted for a manual point gain.
// The presentation layer displays it at the given coordinates until it
// expires.
type Ack struct {
	ID        string    `json:"id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

type Options struct {
	Fetcher   CatalogFetcher        `validate:"required"`
	Store     storage.ProgressStore `validate:"required"`
	Transport Transport             `validate:"required"`
	// Artwork may be nil when prefetching is disabled.
	Artwork ArtworkPrefetcher
	Logger  *zap.Logger
	Policy  Policy `validate:"required"`

	PageSize    int           `validate:"min=1"`
	MaxTracks   int           `validate:"min=1"`
	EndedReward int           `validate:"min=0"`
	ClickReward int           `validate:"min=0"`
	AckTTL      time.Duration `validate:"min=1"`

	// PersistTimeout bounds fire-and-forget snapshot writes.
	PersistTimeout time.Duration

	Clock func() time.Time
}

// Engine owns the authoritative quest progression state. All mutations
// happen under one mutex; page fetches run in the calling goroutine with
// the lock released and re-apply under a generation check, so a stale
// fetch completing after a superseding submit can never clobber state.
type Engine struct {
	fetcher   CatalogFetcher
	store     storage.ProgressStore
	transport Transport
	artwork   ArtworkPrefetcher
	logger    *zap.Logger
	policy    Policy

	pageSize       int
	maxTracks      int
	endedReward    int
	clickReward    int
	ackTTL         time.Duration
	persistTimeout time.Duration
	clock          func() time.Time

	mu           sync.Mutex
	playlistID   string
	tracks       []core.Track
	nextToken    string
	points       int
	visibleLimit int
	currentIndex int
	loading      bool
	gen          uint64

	savedPlaylistID string
	savedVisible    int

	lastErr *core.AppError
	acks    []Ack

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

const defaultPersistTimeout = 5 * time.Second

func NewEngine(ctx context.Context, opts *Options) (*Engine, error) {
	const op = "quest.NewEngine"

	if opts == nil {
		return nil, core.NewInternalError("engine options required", nil, op)
	}
	if err := validator.New().Struct(opts); err != nil {
		return nil, core.NewInternalError("bad engine options", err, op)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	persistTimeout := opts.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}

	e := &Engine{
		fetcher:        opts.Fetcher,
		store:          opts.Store,
		transport:      opts.Transport,
		artwork:        opts.Artwork,
		logger:         logger,
		policy:         opts.Policy,
		pageSize:       opts.PageSize,
		maxTracks:      opts.MaxTracks,
		endedReward:    opts.EndedReward,
		clickReward:    opts.ClickReward,
		ackTTL:         opts.AckTTL,
		persistTimeout: persistTimeout,
		clock:          clock,
		visibleLimit:   opts.Policy.InitialVisible(opts.PageSize),
		stop:           make(chan struct{}),
	}

	// A previously saved quest carries its points balance into this
	// session; tracks are never persisted and are re-fetched on resume.
	saved, err := opts.Store.Load(ctx)
	if err != nil {
		logger.Warn("cant load saved progress", zap.Error(err))
	} else if saved != nil {
		e.points = saved.Points
		e.nextToken = saved.NextPageToken
		e.savedPlaylistID = saved.PlaylistID
		e.savedVisible = saved.VisibleLimit
	}

	return e, nil
}

// Start spawns the playback-event listener. The engine reacts to ENDED
// transitions with the reward-and-advance rule.
func (e *Engine) Start(ctx context.Context) {
	events := e.transport.Subscribe()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case ev := <-events:
				if ev.Status == core.PlaybackEnded {
					e.onPlaybackEnded()
				}
			}
		}
	}()
}

func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()
}

// SubmitQuest wipes all progression (points to zero, snapshot cleared)
// and fetches the first page of the given playlist. On success the first
// track starts playing.
func (e *Engine) SubmitQuest(ctx context.Context, playlistID string) error {
	const op = "quest.Engine.SubmitQuest"

	if appErr := core.ValidatePlaylistID(playlistID); appErr != nil {
		return appErr.WithOper(op)
	}

	e.mu.Lock()
	// A superseding submit bumps the generation: whatever fetch is still
	// in flight lands stale and gets discarded.
	e.playlistID = ""
	e.tracks = nil
	e.nextToken = ""
	e.points = 0
	e.visibleLimit = e.policy.InitialVisible(e.pageSize)
	e.currentIndex = 0
	e.savedPlaylistID = ""
	e.savedVisible = 0
	e.lastErr = nil
	e.acks = nil
	e.loading = true
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	clearCtx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	if err := e.store.Clear(clearCtx); err != nil {
		e.logger.Warn("cant clear saved progress", zap.Error(err))
	}
	cancel()

	return e.fetchPage(ctx, playlistID, "", gen, true)
}

// ResumeQuest re-fetches page one of the saved quest. Points carry over
// from the snapshot; the fetched page plays from index zero.
func (e *Engine) ResumeQuest(ctx context.Context) error {
	const op = "quest.Engine.ResumeQuest"

	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		e.logger.Warn("resume ignored, fetch already in flight")
		return nil
	}
	savedID := e.savedPlaylistID
	if savedID == "" {
		e.mu.Unlock()
		return core.NewValidationError("no saved quest to resume", nil, op)
	}
	e.tracks = nil
	e.nextToken = ""
	e.currentIndex = 0
	e.visibleLimit = e.policy.InitialVisible(e.pageSize)
	if e.savedVisible > e.visibleLimit {
		e.visibleLimit = e.savedVisible
	}
	e.lastErr = nil
	e.loading = true
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	return e.fetchPage(ctx, savedID, "", gen, true)
}

// RequestUnlock runs the configured economic gate. Rejections are silent
// no-ops; a passing unlock may spend points, widen the reveal window,
// and fetch the next page.
func (e *Engine) RequestUnlock(ctx context.Context) error {
	e.mu.Lock()
	if e.loading || e.playlistID == "" {
		e.mu.Unlock()
		return nil
	}

	out, ok := e.policy.Evaluate(Gate{
		Points:       e.points,
		TrackCount:   len(e.tracks),
		VisibleLimit: e.visibleLimit,
		MaxTracks:    e.maxTracks,
		HasNext:      e.nextToken != "",
	})
	if !ok {
		e.mu.Unlock()
		return nil
	}

	e.points -= out.Spend
	e.visibleLimit += out.RevealDelta
	e.persistLocked()

	fetch := out.FetchNext && e.nextToken != "" && len(e.tracks) < e.maxTracks
	if !fetch {
		e.mu.Unlock()
		return nil
	}

	playlistID := e.playlistID
	token := e.nextToken
	e.loading = true
	gen := e.gen
	e.mu.Unlock()

	return e.fetchPage(ctx, playlistID, token, gen, false)
}

// GrantManualPoint rewards ambient interaction, but only while a quest
// is active. Returns the cosmetic ack token for the presentation layer.
func (e *Engine) GrantManualPoint(x, y int) (*Ack, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tracks) == 0 {
		return nil, false
	}

	e.points += e.clickReward
	e.persistLocked()

	ack := Ack{
		ID:        uuid.NewString(),
		X:         x,
		Y:         y,
		Points:    e.clickReward,
		CreatedAt: e.clock().UTC(),
	}
	e.acks = append(e.acks, ack)
	time.AfterFunc(e.ackTTL, func() {
		e.expireAck(ack.ID)
	})
	return &ack, true
}

// Play selects a track by its position among the visible tracks.
func (e *Engine) Play(index int) error {
	const op = "quest.Engine.Play"

	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.playableCountLocked()
	if index < 0 || index >= n {
		return core.NewValidationError("track index out of range", nil, op)
	}
	e.currentIndex = index
	e.transport.Load(e.tracks[index].MediaID)
	return nil
}

// TogglePlayPause forwards the toggle; play-vs-pause is derived from the
// widget's reported status, not tracked separately.
func (e *Engine) TogglePlayPause() {
	e.transport.Toggle()
}

func (e *Engine) Next() {
	e.advance(1)
}

func (e *Engine) Previous() {
	e.advance(-1)
}

func (e *Engine) advance(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked(delta)
}

func (e *Engine) advanceLocked(delta int) {
	n := e.playableCountLocked()
	if n == 0 {
		return
	}
	e.currentIndex = ((e.currentIndex+delta)%n + n) % n
	e.transport.Load(e.tracks[e.currentIndex].MediaID)
}

// onPlaybackEnded is the passive earning path: a fixed reward, then
// auto-advance to the next track.
func (e *Engine) onPlaybackEnded() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tracks) == 0 {
		return
	}
	e.points += e.endedReward
	e.persistLocked()
	e.advanceLocked(1)
}

// fetchPage runs the fetch with the engine lock released and re-applies
// under a generation check. Call with loading already set.
func (e *Engine) fetchPage(ctx context.Context, playlistID, token string, gen uint64, first bool) error {
	page, err := e.fetcher.FetchPage(ctx, playlistID, token)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		// A newer submit superseded this fetch; its result is stale.
		e.logger.Info("discarding stale fetch result",
			zap.String("playlist_id", playlistID),
			zap.Uint64("gen", gen),
		)
		return nil
	}
	e.loading = false

	if err != nil {
		// Fail fast: no partial quest survives an establish error.
		e.playlistID = ""
		e.tracks = nil
		e.nextToken = ""
		appErr, ok := core.AsAppError(err)
		if !ok {
			appErr = core.NewInternalError("fetch failed", err, "quest.Engine.fetchPage")
		}
		e.lastErr = appErr
		e.logger.Error("page fetch failed, quest invalidated",
			zap.String("playlist_id", playlistID),
			zap.Error(err),
		)
		return appErr
	}

	if first {
		e.tracks = core.CloneTracks(page.Tracks)
	} else {
		e.tracks = append(e.tracks, page.Tracks...)
	}
	e.playlistID = playlistID
	e.nextToken = page.NextToken
	e.lastErr = nil
	e.persistLocked()

	if e.artwork != nil && len(page.Tracks) > 0 {
		e.artwork.Enqueue(ctx, page.Tracks)
	}

	if first && len(e.tracks) > 0 {
		e.currentIndex = 0
		e.transport.Load(e.tracks[0].MediaID)
	}
	return nil
}

// persistLocked snapshots progression after every points, cursor,
// identifier or visibility change. Best effort: failures are logged and
// swallowed, never surfaced, never blocking the transition.
func (e *Engine) persistLocked() {
	if e.playlistID == "" {
		return
	}
	p := &core.Progress{
		Points:        e.points,
		PlaylistID:    e.playlistID,
		NextPageToken: e.nextToken,
		VisibleLimit:  e.visibleLimit,
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	defer cancel()
	if err := e.store.Save(ctx, p); err != nil {
		e.logger.Warn("cant persist progress",
			zap.String("playlist_id", e.playlistID),
			zap.Error(err),
		)
	}
}

func (e *Engine) playableCountLocked() int {
	return e.policy.VisibleCount(len(e.tracks), e.visibleLimit)
}

func (e *Engine) expireAck(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, a := range e.acks {
		if a.ID == id {
			e.acks = append(e.acks[:i], e.acks[i+1:]...)
			return
		}
	}
}
