package reel

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repository defines persistence for reels.
// It acts as a port in the hexagonal architecture pattern.
type Repository interface {
	// Insert persists a new reel and returns it with its assigned ID.
	Insert(ctx context.Context, r *Reel) (*Reel, error)

	// FindByID retrieves a reel by its identifier.
	// Returns ErrNotFound if the reel does not exist.
	FindByID(ctx context.Context, id primitive.ObjectID) (*Reel, error)

	// FindAll returns every reel.
	FindAll(ctx context.Context) ([]*Reel, error)

	// FindByMusic returns all reels that use the given music asset.
	FindByMusic(ctx context.Context, musicID primitive.ObjectID) ([]*Reel, error)

	// Sample returns up to limit random reels, excluding the given IDs.
	Sample(ctx context.Context, limit int, exclude []primitive.ObjectID) ([]*Reel, error)

	// Update applies a partial metadata update and returns the new document.
	// Returns ErrNotFound if the reel does not exist.
	Update(ctx context.Context, id primitive.ObjectID, upd Update) (*Reel, error)

	// Delete removes a reel. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id primitive.ObjectID) error

	// AddView counts a view for (reel, viewer) at most once. It must be a
	// single atomic conditional update so concurrent views of the same pair
	// never double-count. counted is false when the viewer was already
	// recorded; views is the counter after the call.
	AddView(ctx context.Context, reelID, userID primitive.ObjectID) (views int64, counted bool, err error)

	// ToggleLike adds the user's like if absent, removes it otherwise.
	// It returns whether the reel is now liked by the user and the total
	// like count.
	ToggleLike(ctx context.Context, reelID, userID primitive.ObjectID) (liked bool, likes int, err error)

	// AddShare appends a share event to the reel.
	AddShare(ctx context.Context, reelID primitive.ObjectID, share Share) error
}

// MusicRepository resolves music assets referenced by uploads.
type MusicRepository interface {
	// FindByID retrieves a music asset. Returns ErrNotFound if absent.
	FindByID(ctx context.Context, id primitive.ObjectID) (*Music, error)
}
