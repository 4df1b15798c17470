package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ludio/questplayer/internal/core"
	"github.com/ludio/questplayer/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestBoltProgressStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := storage.NewBoltProgressStore(
		filepath.Join(t.TempDir(), "progress.db"),
	)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got, "fresh store should have no snapshot")

	p := &core.Progress{
		Points:        42,
		PlaylistID:    "PLabc1234567",
		NextPageToken: "T1",
		VisibleLimit:  6,
	}
	require.NoError(t, store.Save(ctx, p))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, *p, *got)

	// Overwrite, single well-known key.
	p2 := p.CloneProgress()
	p2.Points = 43
	require.NoError(t, store.Save(ctx, p2))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 43, got.Points)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got, "clear then load should return none")
}

func TestBoltProgressStoreSkipsEmptyPlaylist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := storage.NewBoltProgressStore(
		filepath.Join(t.TempDir(), "progress.db"),
	)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, &core.Progress{Points: 9}))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got, "no quest loaded, nothing should be stored")
}
