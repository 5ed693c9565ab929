package reel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestReel(t *testing.T, repo *MemoryRepository) *Reel {
	t.Helper()
	saved, err := repo.Insert(context.Background(), &Reel{
		User:     primitive.NewObjectID(),
		UserID:   "u-1",
		Username: "alice",
		VideoURL: "https://cdn.example.com/videos/reel-1.mp4",
		Status:   StatusPublished,
	})
	require.NoError(t, err)
	return saved
}

func TestMemoryRepository_InsertAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)
	assert.False(t, saved.ID.IsZero())
	assert.False(t, saved.CreatedAt.IsZero())

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.VideoURL, found.VideoURL)
	assert.Equal(t, "alice", found.Username)

	_, err = repo.FindByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_FindReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	found.Caption = "mutated"
	found.Likes = append(found.Likes, primitive.NewObjectID())

	again, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Caption)
	assert.Empty(t, again.Likes)
}

func TestMemoryRepository_FindByMusic(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	musicID := primitive.NewObjectID()
	_, err := repo.Insert(ctx, &Reel{
		User: primitive.NewObjectID(), UserID: "u", Username: "a",
		VideoURL: "v1", Music: &musicID,
	})
	require.NoError(t, err)
	newTestReel(t, repo) // no music

	reels, err := repo.FindByMusic(ctx, musicID)
	require.NoError(t, err)
	require.Len(t, reels, 1)
	assert.Equal(t, "v1", reels[0].VideoURL)
}

func TestMemoryRepository_Sample(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := newTestReel(t, repo)
	second := newTestReel(t, repo)
	third := newTestReel(t, repo)

	t.Run("respects limit", func(t *testing.T) {
		reels, err := repo.Sample(ctx, 2, nil)
		require.NoError(t, err)
		assert.Len(t, reels, 2)
	})

	t.Run("excludes given ids", func(t *testing.T) {
		reels, err := repo.Sample(ctx, 10, []primitive.ObjectID{first.ID, second.ID})
		require.NoError(t, err)
		require.Len(t, reels, 1)
		assert.Equal(t, third.ID, reels[0].ID)
	})

	t.Run("limit beyond population", func(t *testing.T) {
		reels, err := repo.Sample(ctx, 100, nil)
		require.NoError(t, err)
		assert.Len(t, reels, 3)
	})
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)

	caption := "new caption"
	duration := 12.5
	updated, err := repo.Update(ctx, saved.ID, Update{Caption: &caption, Duration: &duration})
	require.NoError(t, err)
	assert.Equal(t, "new caption", updated.Caption)
	assert.Equal(t, 12.5, updated.Duration)
	// Untouched fields survive
	assert.Equal(t, saved.VideoURL, updated.VideoURL)

	_, err = repo.Update(ctx, primitive.NewObjectID(), Update{Caption: &caption})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)
	require.NoError(t, repo.Delete(ctx, saved.ID))

	_, err := repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, saved.ID), ErrNotFound)
}

func TestMemoryRepository_AddView(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)
	viewer := primitive.NewObjectID()

	t.Run("first view counts", func(t *testing.T) {
		views, counted, err := repo.AddView(ctx, saved.ID, viewer)
		require.NoError(t, err)
		assert.True(t, counted)
		assert.Equal(t, int64(1), views)
	})

	t.Run("second view from same user does not count", func(t *testing.T) {
		views, counted, err := repo.AddView(ctx, saved.ID, viewer)
		require.NoError(t, err)
		assert.False(t, counted)
		assert.Equal(t, int64(1), views)
	})

	t.Run("unknown reel", func(t *testing.T) {
		_, _, err := repo.AddView(ctx, primitive.NewObjectID(), viewer)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// Concurrent views of the same (reel, viewer) pair must increment the
// counter exactly once.
func TestMemoryRepository_AddView_ConcurrentSameViewer(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)
	viewer := primitive.NewObjectID()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = repo.AddView(ctx, saved.ID, viewer)
		}()
	}
	wg.Wait()

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.Views)
	assert.Len(t, found.Viewers, 1)
}

func TestMemoryRepository_ToggleLike(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)
	user := primitive.NewObjectID()

	liked, count, err := repo.ToggleLike(ctx, saved.ID, user)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, count)

	liked, count, err = repo.ToggleLike(ctx, saved.ID, user)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 0, count)

	_, _, err = repo.ToggleLike(ctx, primitive.NewObjectID(), user)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_AddShare(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	saved := newTestReel(t, repo)
	share := Share{SharedBy: primitive.NewObjectID(), SharedTo: primitive.NewObjectID()}

	require.NoError(t, repo.AddShare(ctx, saved.ID, share))

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.Len(t, found.Shares, 1)
	assert.Equal(t, share.SharedBy, found.Shares[0].SharedBy)
	assert.False(t, found.Shares[0].SharedAt.IsZero())

	assert.ErrorIs(t, repo.AddShare(ctx, primitive.NewObjectID(), share), ErrNotFound)
}

func TestMemoryMusicRepository(t *testing.T) {
	repo := NewMemoryMusicRepository()
	ctx := context.Background()

	track := repo.Add(&Music{Title: "Song", URL: "https://cdn.example.com/music/song.mp3"})
	require.False(t, track.ID.IsZero())

	found, err := repo.FindByID(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, "Song", found.Title)

	_, err = repo.FindByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}
