// Package actionlog records user actions as append-only log entries.
// Recording is best-effort: a failed write is logged and swallowed, and
// must never fail the operation that triggered it.
package actionlog

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Action is the closed set of user actions that can be logged.
type Action string

const (
	ActionViewReel     Action = "view_reel"
	ActionLikeReel     Action = "like_reel"
	ActionUnlikeReel   Action = "unlike_reel"
	ActionComment      Action = "comment"
	ActionShareReel    Action = "share_reel"
	ActionUpdateReel   Action = "update_reel"
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionFollowUser   Action = "follow_user"
	ActionUnfollowUser Action = "unfollow_user"
	ActionReportReel   Action = "report_reel"
	ActionUploadReel   Action = "upload_reel"
	ActionDeleteReel   Action = "delete_reel"
)

// IsValid returns true if the action belongs to the closed enumeration.
func (a Action) IsValid() bool {
	switch a {
	case ActionViewReel, ActionLikeReel, ActionUnlikeReel, ActionComment,
		ActionShareReel, ActionUpdateReel, ActionLogin, ActionLogout,
		ActionFollowUser, ActionUnfollowUser, ActionReportReel,
		ActionUploadReel, ActionDeleteReel:
		return true
	}
	return false
}

// Location is the coarse origin of a request.
type Location struct {
	IP      string `bson:"ip,omitempty" json:"ip,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	Pincode string `bson:"pincode,omitempty" json:"pincode,omitempty"`
}

// Entry is an immutable user-action record. Entries are created once and
// never updated or deleted.
type Entry struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User       primitive.ObjectID `bson:"user" json:"user"`
	Action     Action             `bson:"action" json:"action"`
	TargetType string             `bson:"targetType,omitempty" json:"targetType,omitempty"`
	TargetID   primitive.ObjectID `bson:"targetId,omitempty" json:"targetId,omitempty"`
	Device     string             `bson:"device,omitempty" json:"device,omitempty"`
	Location   Location           `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// Sink persists action log entries.
type Sink interface {
	// Write stores one entry. Implementations may fail; callers go through
	// Recorder which swallows the failure.
	Write(ctx context.Context, e Entry) error
}

// Recorder wraps a Sink with the best-effort policy.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a Recorder over the given sink.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger}
}

// Record writes the entry, swallowing every failure. It recovers panics
// from misbehaving sinks; the caller's outcome is never affected.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("action log sink panicked",
				slog.Any("panic", p),
				slog.String("action", string(e.Action)),
			)
		}
	}()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	if err := r.sink.Write(ctx, e); err != nil {
		r.logger.Warn("failed to record user action",
			slog.String("action", string(e.Action)),
			slog.String("user", e.User.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
