package metadata_test

import (
	"context"
	"testing"
	"time"

	"github.com/STRML/droid/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpsertAndGet(t *testing.T) {
	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	start := time.Now().Truncate(time.Second)

	err = store.Upsert(ctx, metadata.Record{
		ProjectName: "widgets",
		BranchName:  "feature-x",
		Action:      "run-make",
		Command:     "make update",
		StartTime:   start,
	})
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, "widgets", "feature-x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-make", got.Action)
	assert.Equal(t, "make update", got.Command)
	assert.False(t, got.Cancelled)
	assert.False(t, got.ExitCodeResolved, "a running command has no exit code yet")
	assert.True(t, got.StartTime.Equal(start))
}

func TestStore_Get_Unknown(t *testing.T) {
	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(context.Background(), "widgets", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_UpsertTransition(t *testing.T) {
	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, metadata.Record{
		ProjectName: "widgets", BranchName: "feature-x", Action: "run-make", Command: "make update",
	}))
	require.NoError(t, store.Upsert(ctx, metadata.Record{
		ProjectName: "widgets", BranchName: "feature-x", Action: "idle",
		Command: "make update", ExitCode: 0, ExitCodeResolved: true, Cancelled: true,
	}))

	got, ok, err := store.Get(ctx, "widgets", "feature-x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "idle", got.Action)
	assert.True(t, got.Cancelled)
	assert.True(t, got.ExitCodeResolved)
	assert.Equal(t, 0, got.ExitCode)
}

func TestStore_ListProject(t *testing.T) {
	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, metadata.Record{ProjectName: "widgets", BranchName: "a"}))
	require.NoError(t, store.Upsert(ctx, metadata.Record{ProjectName: "widgets", BranchName: "b"}))
	require.NoError(t, store.Upsert(ctx, metadata.Record{ProjectName: "other", BranchName: "c"}))

	records, err := store.ListProject(ctx, "widgets")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_Delete(t *testing.T) {
	store, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, metadata.Record{ProjectName: "widgets", BranchName: "feature-x"}))
	require.NoError(t, store.Delete(ctx, "widgets", "feature-x"))

	_, ok, err := store.Get(ctx, "widgets", "feature-x")
	require.NoError(t, err)
	assert.False(t, ok)
}
