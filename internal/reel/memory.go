package reel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; production uses MongoRepository.
type MemoryRepository struct {
	mu    sync.RWMutex
	reels map[primitive.ObjectID]*Reel
}

// NewMemoryRepository creates a new in-memory reel repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		reels: make(map[primitive.ObjectID]*Reel),
	}
}

// Insert persists a reel, assigning a fresh ID when absent.
// Stores a clone to avoid external mutations.
func (r *MemoryRepository) Insert(_ context.Context, reel *Reel) (*Reel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reel.ID.IsZero() {
		reel.ID = primitive.NewObjectID()
	}
	now := time.Now()
	reel.CreatedAt = now
	reel.UpdatedAt = now

	r.reels[reel.ID] = cloneReel(reel)
	return cloneReel(reel), nil
}

// FindByID retrieves a reel by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id primitive.ObjectID) (*Reel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reel, ok := r.reels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReel(reel), nil
}

// FindAll returns all reels in the repository.
func (r *MemoryRepository) FindAll(_ context.Context) ([]*Reel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Reel, 0, len(r.reels))
	for _, reel := range r.reels {
		result = append(result, cloneReel(reel))
	}
	return result, nil
}

// FindByMusic returns all reels that use the given music asset.
func (r *MemoryRepository) FindByMusic(_ context.Context, musicID primitive.ObjectID) ([]*Reel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Reel, 0)
	for _, reel := range r.reels {
		if reel.Music != nil && *reel.Music == musicID {
			result = append(result, cloneReel(reel))
		}
	}
	return result, nil
}

// Sample returns up to limit random reels, excluding the given IDs.
func (r *MemoryRepository) Sample(_ context.Context, limit int, exclude []primitive.ObjectID) ([]*Reel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	excluded := make(map[primitive.ObjectID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	candidates := make([]*Reel, 0, len(r.reels))
	for _, reel := range r.reels {
		if !excluded[reel.ID] {
			candidates = append(candidates, reel)
		}
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	result := make([]*Reel, 0, limit)
	for _, reel := range candidates[:limit] {
		result = append(result, cloneReel(reel))
	}
	return result, nil
}

// Update applies a partial metadata update.
func (r *MemoryRepository) Update(_ context.Context, id primitive.ObjectID, upd Update) (*Reel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reel, ok := r.reels[id]
	if !ok {
		return nil, ErrNotFound
	}

	if upd.VideoURL != nil {
		reel.VideoURL = *upd.VideoURL
	}
	if upd.ThumbnailURL != nil {
		reel.ThumbnailURL = *upd.ThumbnailURL
	}
	if upd.Caption != nil {
		reel.Caption = *upd.Caption
	}
	if upd.Duration != nil {
		reel.Duration = *upd.Duration
	}
	if upd.Music != nil {
		music := *upd.Music
		reel.Music = &music
	}
	reel.UpdatedAt = time.Now()

	return cloneReel(reel), nil
}

// Delete removes a reel from the repository.
func (r *MemoryRepository) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reels[id]; !ok {
		return ErrNotFound
	}
	delete(r.reels, id)
	return nil
}

// AddView mirrors the conditional Mongo update: the check and increment
// happen under a single lock, so concurrent calls count at most once.
func (r *MemoryRepository) AddView(_ context.Context, reelID, userID primitive.ObjectID) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reel, ok := r.reels[reelID]
	if !ok {
		return 0, false, ErrNotFound
	}

	for _, viewer := range reel.Viewers {
		if viewer == userID {
			return reel.Views, false, nil
		}
	}

	reel.Viewers = append(reel.Viewers, userID)
	reel.Views++
	return reel.Views, true, nil
}

// ToggleLike adds or removes the user's like and returns the new state.
func (r *MemoryRepository) ToggleLike(_ context.Context, reelID, userID primitive.ObjectID) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reel, ok := r.reels[reelID]
	if !ok {
		return false, 0, ErrNotFound
	}

	for i, id := range reel.Likes {
		if id == userID {
			reel.Likes = append(reel.Likes[:i], reel.Likes[i+1:]...)
			return false, len(reel.Likes), nil
		}
	}

	reel.Likes = append(reel.Likes, userID)
	return true, len(reel.Likes), nil
}

// AddShare appends a share event to the reel.
func (r *MemoryRepository) AddShare(_ context.Context, reelID primitive.ObjectID, share Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reel, ok := r.reels[reelID]
	if !ok {
		return ErrNotFound
	}

	if share.SharedAt.IsZero() {
		share.SharedAt = time.Now()
	}
	reel.Shares = append(reel.Shares, share)
	return nil
}

// cloneReel creates a deep copy of a reel for safe reads.
func cloneReel(r *Reel) *Reel {
	c := *r

	c.Likes = append([]primitive.ObjectID(nil), r.Likes...)
	c.Viewers = append([]primitive.ObjectID(nil), r.Viewers...)
	c.Comments = append([]primitive.ObjectID(nil), r.Comments...)
	c.Shares = append([]Share(nil), r.Shares...)
	if r.Music != nil {
		music := *r.Music
		c.Music = &music
	}

	return &c
}

// Compile-time check that MemoryMusicRepository implements MusicRepository.
var _ MusicRepository = (*MemoryMusicRepository)(nil)

// MemoryMusicRepository is an in-memory MusicRepository implementation.
type MemoryMusicRepository struct {
	mu     sync.RWMutex
	tracks map[primitive.ObjectID]*Music
}

// NewMemoryMusicRepository creates a new in-memory music repository.
func NewMemoryMusicRepository() *MemoryMusicRepository {
	return &MemoryMusicRepository{
		tracks: make(map[primitive.ObjectID]*Music),
	}
}

// Add stores a music asset, assigning a fresh ID when absent.
func (r *MemoryMusicRepository) Add(m *Music) *Music {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	c := *m
	r.tracks[m.ID] = &c
	return m
}

// FindByID retrieves a music asset.
func (r *MemoryMusicRepository) FindByID(_ context.Context, id primitive.ObjectID) (*Music, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m
	return &c, nil
}
