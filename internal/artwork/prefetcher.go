package artwork

import (
	"context"
	"errors"

	"github.com/ludio/questplayer/internal/core"
	"go.uber.org/zap"
)

// Prefetcher warms the thumbnail cache for every fetched page. The
// engine hands it tracks fire-and-forget; the player falls back to the
// remote URL for anything not cached yet.
type Prefetcher struct {
	pool    *Pool
	fetcher *Fetcher
	logger  *zap.Logger
}

func NewPrefetcher(pool *Pool, fetcher *Fetcher, logger *zap.Logger) (*Prefetcher, error) {
	if pool == nil {
		return nil, errors.New("artwork: required pool")
	}
	if fetcher == nil {
		return nil, errors.New("artwork: required fetcher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefetcher{pool: pool, fetcher: fetcher, logger: logger}, nil
}

func (p *Prefetcher) Start() error { return p.pool.Start() }
func (p *Prefetcher) Stop()        { p.pool.Stop() }

// Enqueue submits one job per track with a real remote thumbnail.
// Queue pressure drops jobs instead of blocking a page fetch.
func (p *Prefetcher) Enqueue(ctx context.Context, tracks []core.Track) {
	for _, t := range tracks {
		if t.ThumbnailURL == "" || t.ThumbnailURL == core.PlaceholderThumbnailURL {
			continue
		}
		if t.MediaID == "" {
			continue
		}
		err := p.pool.Submit(ctx, Job{TrackID: t.MediaID, URL: t.ThumbnailURL})
		if err != nil && !errors.Is(err, ErrPoolFull) {
			p.logger.Warn("cant enqueue thumbnail",
				zap.String("track_id", t.MediaID),
				zap.Error(err),
			)
		}
	}
}

// Path reports the cached image for a media id, if present.
func (p *Prefetcher) Path(mediaID string) (string, bool) {
	return p.fetcher.CachedPath(mediaID)
}
