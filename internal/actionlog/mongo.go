package actionlog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

const logCollection = "userlogs"

// MongoSink persists action log entries to MongoDB.
type MongoSink struct {
	coll *mongo.Collection
}

// Compile-time check that MongoSink implements Sink.
var _ Sink = (*MongoSink)(nil)

// NewMongoSink creates a sink writing to the userlogs collection.
func NewMongoSink(db *mongo.Database) *MongoSink {
	return &MongoSink{coll: db.Collection(logCollection)}
}

// Write stores one entry.
func (s *MongoSink) Write(ctx context.Context, e Entry) error {
	if _, err := s.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("insert action log entry: %w", err)
	}
	return nil
}
