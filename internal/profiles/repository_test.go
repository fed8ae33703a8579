package profiles_test

import (
	"context"
	"testing"

	"graphsync/internal/core"
	"graphsync/internal/memstore"
	"graphsync/internal/profiles"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := &profiles.Repository{Store: memstore.New()}

	_, err := repo.Get(ctx, "alice")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, core.Profile{UID: "alice", Username: "Alice"}))

	p, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", p.Username)

	// Upsert overwrites in full.
	require.NoError(t, repo.Upsert(ctx, core.Profile{UID: "alice", Username: "Alice2", Bio: "hi"}))
	p, err = repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice2", p.Username)
	require.Equal(t, "hi", p.Bio)
}

func TestUpsertRejectsIncomplete(t *testing.T) {
	t.Parallel()

	repo := &profiles.Repository{Store: memstore.New()}

	require.ErrorIs(t, repo.Upsert(context.Background(), core.Profile{UID: "alice"}), core.ErrMalformedDoc)
	require.ErrorIs(t, repo.Upsert(context.Background(), core.Profile{Username: "alice"}), core.ErrMalformedDoc)
}

func TestUpdateBio(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := &profiles.Repository{Store: memstore.New()}

	require.NoError(t, repo.Upsert(ctx, core.Profile{UID: "alice", Username: "Alice"}))
	require.NoError(t, repo.UpdateBio(ctx, "alice", "new bio", "http://img/a"))

	p, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", p.Username)
	require.Equal(t, "new bio", p.Bio)
	require.Equal(t, "http://img/a", p.PhotoURL)
}
