package artwork

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Job asks for one track thumbnail to be cached locally.
type Job struct {
	TrackID string
	URL     string
}

var ErrPoolClosed = errors.New("artwork: pool closed")
var ErrPoolFull = errors.New("artwork: queue full")
var ErrPoolNotStarted = errors.New("artwork: pool not started")

// Handler caches one thumbnail.
type Handler interface {
	Handle(job Job) error
}

// Pool fetches thumbnails with BOUNDED! concurrency. Prefetching is
// best effort: a dropped or failed job only means a placeholder image.
type Pool struct {
	handler Handler
	workers int
	logger  *zap.Logger
	jobs    chan Job

	started atomic.Bool
	closed  atomic.Bool

	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}
}

func NewPool(workers int, handler Handler, queueSize int, logger *zap.Logger) (*Pool, error) {
	if workers <= 0 {
		return nil, errors.New("artwork: workers number cant be <= 0")
	}
	if handler == nil {
		return nil, errors.New("artwork:required handler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}

	return &Pool{
		handler: handler,
		workers: workers,
		logger:  logger,
		jobs:    make(chan Job, queueSize),

		done: make(chan struct{}),
	}, nil
}

func (p *Pool) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		// its started
		return nil
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return nil
}

func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		close(p.jobs)
		p.wg.Wait()
	})
}

func (p *Pool) Submit(ctx context.Context, job Job) (err error) {
	if !p.started.Load() {
		return ErrPoolNotStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if p.closed.Load() {
		return ErrPoolClosed
	}
	defer func() {
		r := recover()
		if r != nil {
			switch v := r.(type) {
			case string:
				if strings.Contains(v, "closed chan") {
					err = ErrPoolClosed
					return
				}
			case error:
				if strings.Contains(v.Error(), "closed chan") {
					err = ErrPoolClosed
					return
				}
			}
			panic(r)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolFull
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := p.handler.Handle(job); err != nil {
			p.logger.Warn("cant cache thumbnail",
				zap.String("track_id", job.TrackID),
				zap.Error(err),
			)
		}
	}
}
