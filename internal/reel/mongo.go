package reel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	reelCollection  = "reels"
	musicCollection = "music"
)

// MongoRepository is the MongoDB-backed Repository implementation.
type MongoRepository struct {
	coll *mongo.Collection
}

// Compile-time check that MongoRepository implements Repository.
var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository creates a reel repository on the given database.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(reelCollection)}
}

// Insert persists a new reel and returns it with its assigned ID.
func (r *MongoRepository) Insert(ctx context.Context, reel *Reel) (*Reel, error) {
	now := time.Now()
	reel.CreatedAt = now
	reel.UpdatedAt = now
	if reel.Likes == nil {
		reel.Likes = []primitive.ObjectID{}
	}
	if reel.Viewers == nil {
		reel.Viewers = []primitive.ObjectID{}
	}
	if reel.Comments == nil {
		reel.Comments = []primitive.ObjectID{}
	}
	if reel.Shares == nil {
		reel.Shares = []Share{}
	}

	res, err := r.coll.InsertOne(ctx, reel)
	if err != nil {
		return nil, fmt.Errorf("insert reel: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		reel.ID = oid
	}
	return reel, nil
}

// FindByID retrieves a reel by its identifier.
func (r *MongoRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Reel, error) {
	var reel Reel
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&reel)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reel: %w", err)
	}
	return &reel, nil
}

// FindAll returns every reel.
func (r *MongoRepository) FindAll(ctx context.Context) ([]*Reel, error) {
	cur, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find reels: %w", err)
	}
	return decodeReels(ctx, cur)
}

// FindByMusic returns all reels that use the given music asset.
func (r *MongoRepository) FindByMusic(ctx context.Context, musicID primitive.ObjectID) ([]*Reel, error) {
	cur, err := r.coll.Find(ctx, bson.M{"music": musicID})
	if err != nil {
		return nil, fmt.Errorf("find reels by music: %w", err)
	}
	return decodeReels(ctx, cur)
}

// Sample returns up to limit random reels, excluding the given IDs.
// Random selection is delegated to the $sample aggregation stage.
func (r *MongoRepository) Sample(ctx context.Context, limit int, exclude []primitive.ObjectID) ([]*Reel, error) {
	pipeline := mongo.Pipeline{}
	if len(exclude) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"_id": bson.M{"$nin": exclude},
		}}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$sample", Value: bson.M{"size": limit}}})

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sample reels: %w", err)
	}
	return decodeReels(ctx, cur)
}

// Update applies a partial metadata update and returns the new document.
func (r *MongoRepository) Update(ctx context.Context, id primitive.ObjectID, upd Update) (*Reel, error) {
	set := bson.M{"updatedAt": time.Now()}
	if upd.VideoURL != nil {
		set["videoUrl"] = *upd.VideoURL
	}
	if upd.ThumbnailURL != nil {
		set["thumbnailUrl"] = *upd.ThumbnailURL
	}
	if upd.Caption != nil {
		set["caption"] = *upd.Caption
	}
	if upd.Duration != nil {
		set["duration"] = *upd.Duration
	}
	if upd.Music != nil {
		set["music"] = *upd.Music
	}

	var reel Reel
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&reel)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update reel: %w", err)
	}
	return &reel, nil
}

// Delete removes a reel.
func (r *MongoRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete reel: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddView adds the viewer to viewsdata and increments the counter in one
// conditional update. The filter excludes documents that already contain
// the viewer, so concurrent calls for the same pair count at most once.
func (r *MongoRepository) AddView(ctx context.Context, reelID, userID primitive.ObjectID) (int64, bool, error) {
	var updated Reel
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": reelID, "viewsdata": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"viewsdata": userID},
			"$inc":      bson.M{"views": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)

	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the reel does not exist or the viewer was already counted.
		existing, ferr := r.FindByID(ctx, reelID)
		if ferr != nil {
			return 0, false, ferr
		}
		return existing.Views, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("add view: %w", err)
	}

	return updated.Views, true, nil
}

// ToggleLike adds or removes the user's like and returns the new state.
func (r *MongoRepository) ToggleLike(ctx context.Context, reelID, userID primitive.ObjectID) (bool, int, error) {
	existing, err := r.FindByID(ctx, reelID)
	if err != nil {
		return false, 0, err
	}

	alreadyLiked := false
	for _, id := range existing.Likes {
		if id == userID {
			alreadyLiked = true
			break
		}
	}

	var op bson.M
	if alreadyLiked {
		op = bson.M{"$pull": bson.M{"likes": userID}}
	} else {
		op = bson.M{"$addToSet": bson.M{"likes": userID}}
	}

	var updated Reel
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": reelID},
		op,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, 0, ErrNotFound
	}
	if err != nil {
		return false, 0, fmt.Errorf("toggle like: %w", err)
	}

	return !alreadyLiked, len(updated.Likes), nil
}

// AddShare appends a share event to the reel.
func (r *MongoRepository) AddShare(ctx context.Context, reelID primitive.ObjectID, share Share) error {
	if share.SharedAt.IsZero() {
		share.SharedAt = time.Now()
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": reelID},
		bson.M{"$push": bson.M{"shares": share}},
	)
	if err != nil {
		return fmt.Errorf("add share: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeReels(ctx context.Context, cur *mongo.Cursor) ([]*Reel, error) {
	defer func() { _ = cur.Close(ctx) }()

	reels := make([]*Reel, 0)
	for cur.Next(ctx) {
		var reel Reel
		if err := cur.Decode(&reel); err != nil {
			return nil, fmt.Errorf("decode reel: %w", err)
		}
		reels = append(reels, &reel)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate reels: %w", err)
	}
	return reels, nil
}

// MongoMusicRepository is the MongoDB-backed MusicRepository implementation.
type MongoMusicRepository struct {
	coll *mongo.Collection
}

// Compile-time check that MongoMusicRepository implements MusicRepository.
var _ MusicRepository = (*MongoMusicRepository)(nil)

// NewMongoMusicRepository creates a music repository on the given database.
func NewMongoMusicRepository(db *mongo.Database) *MongoMusicRepository {
	return &MongoMusicRepository{coll: db.Collection(musicCollection)}
}

// FindByID retrieves a music asset.
func (r *MongoMusicRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Music, error) {
	var m Music
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find music: %w", err)
	}
	return &m, nil
}
