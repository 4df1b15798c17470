package playback

import (
	"testing"

	"github.com/ludio/questplayer/internal/core"
	"github.com/stretchr/testify/require"
)

func TestBridgeCommandQueue(t *testing.T) {
	t.Parallel()
	b := NewBridge(nil)

	b.Load("vid-1")
	b.Play()
	b.Pause()

	cmds := b.DrainCommands()
	require.Len(t, cmds, 3)
	require.Equal(t, Command{Action: ActionLoad, MediaID: "vid-1"}, cmds[0])
	require.Equal(t, ActionPlay, cmds[1].Action)
	require.Equal(t, ActionPause, cmds[2].Action)

	require.Empty(t, b.DrainCommands(), "drain should empty the queue")
}

func TestBridgeLoadIgnoresEmptyMediaID(t *testing.T) {
	t.Parallel()
	b := NewBridge(nil)
	b.Load("")
	require.Empty(t, b.DrainCommands())
}

func TestBridgeToggleFollowsStatus(t *testing.T) {
	t.Parallel()
	b := NewBridge(nil)

	// Not playing yet: toggle means play.
	b.Toggle()
	cmds := b.DrainCommands()
	require.Len(t, cmds, 1)
	require.Equal(t, ActionPlay, cmds[0].Action)

	b.ReportStatus(Event{Status: core.PlaybackPlaying, Position: 10, Duration: 225})
	b.Toggle()
	cmds = b.DrainCommands()
	require.Len(t, cmds, 1)
	require.Equal(t, ActionPause, cmds[0].Action)

	b.ReportStatus(Event{Status: core.PlaybackPaused})
	b.Toggle()
	cmds = b.DrainCommands()
	require.Len(t, cmds, 1)
	require.Equal(t, ActionPlay, cmds[0].Action)
}

func TestBridgeSubscribeReceivesTransitions(t *testing.T) {
	t.Parallel()
	b := NewBridge(nil)
	events := b.Subscribe()

	b.ReportStatus(Event{Status: core.PlaybackReady})
	b.ReportStatus(Event{Status: core.PlaybackEnded, Position: 225, Duration: 225})

	ev := <-events
	require.Equal(t, core.PlaybackReady, ev.Status)
	ev = <-events
	require.Equal(t, core.PlaybackEnded, ev.Status)
	require.Equal(t, float64(225), ev.Duration)

	require.Equal(t, core.PlaybackEnded, b.Status())
	pos, dur := b.Position()
	require.Equal(t, float64(225), pos)
	require.Equal(t, float64(225), dur)
}

func TestBridgeQueueBounded(t *testing.T) {
	t.Parallel()
	b := NewBridge(nil)
	for n := 0; n < maxPendingCommands+5; n++ {
		b.Play()
	}
	require.Len(t, b.DrainCommands(), maxPendingCommands)
}
