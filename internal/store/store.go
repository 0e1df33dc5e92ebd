// Package store holds the authoritative state of every watch party.
//
// A Store executes each mutation as one indivisible step per session: two
// mutations of the same session never interleave and a failed mutation leaves
// the prior state untouched. Business rules are not enforced here; callers
// pass a Precondition that runs under the session's lock, right before the
// mutation is applied.
package store

import (
	"context"
	"time"

	"github.com/psds-microservice/watchparty-service/internal/model"
)

// State is the view of a session handed to a Precondition.
type State struct {
	ID       string
	Host     string
	IsActive bool
	// Member reports whether the subject user of the mutation is on the roster.
	Member bool
}

// Precondition is evaluated atomically with the mutation. A non-nil error
// aborts the mutation and is returned unchanged to the caller.
type Precondition func(State) error

// Store is the session state primitive used by the coordinator. The only
// error a Store raises on its own is errs.ErrSessionNotFound (plus
// infrastructure failures of the SQL implementation).
type Store interface {
	Allocate(ctx context.Context, host, movieTitle string, startTime time.Time) (*model.Session, error)
	Read(ctx context.Context, id string) (*model.Session, error)
	// AppendParticipant adds user unless present; changed is false for a no-op.
	AppendParticipant(ctx context.Context, id, user string, at time.Time, pre Precondition) (sess *model.Session, changed bool, err error)
	// RemoveParticipant removes user if present; changed is false for a no-op.
	RemoveParticipant(ctx context.Context, id, user string, pre Precondition) (sess *model.Session, changed bool, err error)
	AppendChat(ctx context.Context, id string, msg model.ChatMessage, pre Precondition) (*model.Session, error)
	AppendReaction(ctx context.Context, id string, r model.Reaction, pre Precondition) (*model.Session, error)
	// Deactivate marks the session ended; changed is false if it already was.
	Deactivate(ctx context.Context, id string, at time.Time, pre Precondition) (sess *model.Session, changed bool, err error)
	List(ctx context.Context, filter model.ListFilter) ([]model.Summary, error)
	// PurgeEnded removes sessions that ended before cutoff and returns their ids.
	PurgeEnded(ctx context.Context, cutoff time.Time) ([]string, error)
}

func check(pre Precondition, st State) error {
	if pre == nil {
		return nil
	}
	return pre(st)
}
