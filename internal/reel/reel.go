// Package reel provides the Reel aggregate for the short-video backend:
// the persisted video post, the attached music reference, and the
// repository ports used by the upload pipeline and the HTTP handlers.
package reel

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status represents the lifecycle state of a published reel.
type Status string

const (
	// StatusPublished indicates the reel is visible in feeds.
	StatusPublished Status = "Published"
	// StatusProcessing indicates transcoding has not completed yet.
	StatusProcessing Status = "Processing"
	// StatusBlocked indicates the reel was blocked by moderation.
	StatusBlocked Status = "Blocked"
	// StatusReported indicates the reel was reported and awaits review.
	StatusReported Status = "Reported"
)

// ErrNotFound is returned when a reel or music document cannot be found.
var ErrNotFound = errors.New("reel: not found")

// Share records a single share event of a reel between two users.
type Share struct {
	SharedBy primitive.ObjectID `bson:"sharedBy" json:"sharedBy"`
	SharedTo primitive.ObjectID `bson:"sharedTo" json:"sharedTo"`
	SharedAt time.Time          `bson:"sharedAt" json:"sharedAt"`
}

// Reel is a persisted video post. VideoURL is only ever non-empty after
// the transcode pipeline completed; the record is not created before the
// final artifact URL is known.
type Reel struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	User         primitive.ObjectID   `bson:"user" json:"user"`
	UserID       string               `bson:"userid" json:"userid"`
	Username     string               `bson:"username" json:"username"`
	VideoURL     string               `bson:"videoUrl" json:"videoUrl"`
	ThumbnailURL string               `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	Title        string               `bson:"title,omitempty" json:"title,omitempty"`
	Status       Status               `bson:"status,omitempty" json:"status,omitempty"`
	Caption      string               `bson:"caption,omitempty" json:"caption,omitempty"`
	Category     string               `bson:"category,omitempty" json:"category,omitempty"`
	Description  string               `bson:"description,omitempty" json:"description,omitempty"`
	Duration     float64              `bson:"duration,omitempty" json:"duration,omitempty"` // seconds
	Likes        []primitive.ObjectID `bson:"likes" json:"likes"`
	Views        int64                `bson:"views" json:"views"`
	Viewers      []primitive.ObjectID `bson:"viewsdata" json:"viewsdata"`
	Comments     []primitive.ObjectID `bson:"comments" json:"comments"`
	Music        *primitive.ObjectID  `bson:"music,omitempty" json:"music"`
	Shares       []Share              `bson:"shares" json:"shares"`
	CreatedAt    time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Music is an audio asset that can be attached to a reel.
type Music struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title      string             `bson:"title" json:"title"`
	Artist     string             `bson:"artist,omitempty" json:"artist,omitempty"`
	URL        string             `bson:"url" json:"url"`
	Thumbnail  string             `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	Duration   float64            `bson:"duration,omitempty" json:"duration,omitempty"` // seconds
	UploadedBy primitive.ObjectID `bson:"uploadedBy,omitempty" json:"uploadedBy,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// Update describes a partial metadata update. Nil fields are left untouched.
type Update struct {
	VideoURL     *string
	ThumbnailURL *string
	Caption      *string
	Duration     *float64
	Music        *primitive.ObjectID
}
