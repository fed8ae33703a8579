package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"graphsync/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
)

var (
	togglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsync_membership_toggles_total",
		Help: "The total number of membership toggle operations",
	}, []string{"kind", "outcome"})
)

// Toggle is the pure core of the toggle protocol: given the last observed
// membership and an actor, it returns the next membership and whether the
// actor is now a member. No store, no side effects.
func Toggle(members []string, actor string) ([]string, bool) {
	if lo.Contains(members, actor) {
		return lo.Without(members, actor), false
	}
	return append(append([]string{}, members...), actor), true
}

// ToggleResult is what a toggle call reports back to its caller.
type ToggleResult struct {
	IsMember bool
	Count    int
}

// Maintainer is the thin side-effect shell around Toggle. Its contract is
// read-your-last-observed-value, then write: the toggle paths decide from
// the snapshot the caller already holds and never issue a fresh read.
// Two toggles computed from the same stale snapshot silently lose one
// update; a retry after failure must re-derive from a fresh snapshot, not
// replay the computed delta.
type Maintainer struct {
	Logger *slog.Logger
	Store  core.DocumentStore
}

func (m *Maintainer) Init(context.Context) error {
	m.Logger = m.Logger.With("component", "counter.Maintainer")
	return nil
}

// TogglePostLike flips actorID's membership in the like set of postID,
// deciding from snap - the caller's live snapshot of likes/{postID}. The
// membership set is the source of truth; readers derive the count as its
// cardinality, so nothing here can drift.
func (m *Maintainer) TogglePostLike(ctx context.Context, snap core.Snapshot, postID, actorID string) (ToggleResult, error) {
	members := lo.Keys(snap.Docs)
	next, isMember := Toggle(members, actorID)

	var err error
	if isMember {
		var doc []byte
		doc, err = core.Encode(core.LikeMarker{LikedAt: time.Now().UTC()})
		if err == nil {
			err = m.Store.Write(ctx, core.LikeMarkerPath(postID, actorID), doc)
		}
	} else {
		err = m.Store.Delete(ctx, core.LikeMarkerPath(postID, actorID))
	}
	if err != nil {
		togglesTotal.WithLabelValues("post_like", "failed").Inc()
		return ToggleResult{}, fmt.Errorf("toggle post like: %w", err)
	}

	togglesTotal.WithLabelValues("post_like", "ok").Inc()
	return ToggleResult{IsMember: isMember, Count: len(next)}, nil
}

// ToggleCommentLike flips actorID's membership in the comment's likedBy
// set, deciding from the comment document the caller last observed. The
// redundant likeCount scalar is recomputed as len(likedBy) and written in
// the same document write, which keeps the invariant for any serialized
// sequence of toggles; concurrent toggles from the same stale document can
// still land as one.
func (m *Maintainer) ToggleCommentLike(ctx context.Context, observed core.Comment, postID, commentID, actorID string) (ToggleResult, error) {
	next, isMember := Toggle(observed.LikedBy, actorID)

	updated := observed
	updated.LikedBy = next
	updated.LikeCount = len(next)

	doc, err := core.Encode(updated)
	if err != nil {
		return ToggleResult{}, err
	}

	if err := m.Store.Write(ctx, core.CommentPath(postID, commentID), doc); err != nil {
		togglesTotal.WithLabelValues("comment_like", "failed").Inc()
		return ToggleResult{}, fmt.Errorf("toggle comment like: %w", err)
	}

	togglesTotal.WithLabelValues("comment_like", "ok").Inc()
	return ToggleResult{IsMember: isMember, Count: len(next)}, nil
}

// IncrementUnread bumps ownerID's unread counter for the thread with
// viewerID. There is no client-local set to decide from, so this one reads
// the counter fresh, adds one, and writes it back - the classic increment
// race when two messages land back-to-back.
func (m *Maintainer) IncrementUnread(ctx context.Context, ownerID, viewerID string) (int, error) {
	path := core.ChatListPath(ownerID, viewerID)

	raw, err := m.Store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return 0, fmt.Errorf("increment unread: %w", err)
		}
		return 0, err
	}

	entry, err := core.Decode[core.ChatListEntry](raw)
	if err != nil {
		return 0, err
	}

	next := entry.UnreadCount + 1
	if err := m.Store.Patch(ctx, path, map[string]any{"unreadCount": next}); err != nil {
		togglesTotal.WithLabelValues("unread", "failed").Inc()
		return 0, fmt.Errorf("increment unread: %w", err)
	}

	togglesTotal.WithLabelValues("unread", "ok").Inc()
	return next, nil
}

// ClearUnread resets the owner's unread counter, typically on screen
// focus.
func (m *Maintainer) ClearUnread(ctx context.Context, ownerID, viewerID string) error {
	return m.Store.Patch(ctx, core.ChatListPath(ownerID, viewerID), map[string]any{"unreadCount": 0})
}
