package playback

import (
	"sync"

	"github.com/ludio/questplayer/internal/core"
	"go.uber.org/zap"
)

// Action is a transport command queued for the embedded media widget.
type Action string

const (
	ActionLoad  Action = "load"
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
)

type Command struct {
	Action Action `json:"action"`
	// MediaID is set for load commands only.
	MediaID string `json:"media_id,omitempty"`
}

// Event is a widget-reported transport transition.
type Event struct {
	Status   core.PlaybackStatus
	Position float64
	Duration float64
}

const maxPendingCommands = 32
const eventBufferSize = 16

// Bridge owns the media-widget handle. The widget lives in the
// presentation layer: it drains queued commands and reports status
// transitions back. The engine consumes transitions through Subscribe
// and never touches the widget directly.
type Bridge struct {
	mu sync.Mutex

	status   core.PlaybackStatus
	position float64
	duration float64

	pending []Command
	subs    []chan Event

	logger *zap.Logger
}

func NewBridge(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		status: core.PlaybackUninitialized,
		logger: logger,
	}
}

// Load queues the given media for playback from position zero.
func (b *Bridge) Load(mediaID string) {
	if mediaID == "" {
		return
	}
	b.enqueue(Command{Action: ActionLoad, MediaID: mediaID})
}

func (b *Bridge) Play() {
	b.enqueue(Command{Action: ActionPlay})
}

func (b *Bridge) Pause() {
	b.enqueue(Command{Action: ActionPause})
}

// Toggle derives play or pause from the current status, it is not a
// separate boolean.
func (b *Bridge) Toggle() {
	b.mu.Lock()
	playing := b.status == core.PlaybackPlaying
	b.mu.Unlock()
	if playing {
		b.Pause()
	} else {
		b.Play()
	}
}

func (b *Bridge) Status() core.PlaybackStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Position returns the last reported position and duration in seconds.
func (b *Bridge) Position() (position, duration float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position, b.duration
}

// ReportStatus ingests a widget status report and fans it out to
// subscribers. Slow subscribers drop events rather than block the widget.
func (b *Bridge) ReportStatus(ev Event) {
	b.mu.Lock()
	b.status = ev.Status
	b.position = ev.Position
	b.duration = ev.Duration
	subs := append([]chan Event(nil), b.subs...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping playback event, subscriber is slow",
				zap.String("status", string(ev.Status)),
			)
		}
	}
}

// Subscribe returns a channel of status transitions. The channel is
// buffered; it is never closed.
func (b *Bridge) Subscribe() <-chan Event {
	ch := make(chan Event, eventBufferSize)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// DrainCommands hands all pending commands to the widget, oldest first.
func (b *Bridge) DrainCommands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmds := b.pending
	b.pending = nil
	return cmds
}

func (b *Bridge) enqueue(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) >= maxPendingCommands {
		// The widget stopped draining. Keep the newest commands.
		b.pending = b.pending[1:]
		b.logger.Warn("pending command queue full, dropping oldest")
	}
	b.pending = append(b.pending, cmd)
}
