package relation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"graphsync/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsync_symmetric_writes_total",
		Help: "The total number of symmetric write operations",
	}, []string{"op", "outcome"})

	partialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphsync_symmetric_partial_failures_total",
		Help: "Symmetric writes that landed on one path and failed on the other",
	})
)

var (
	ErrSelfRelation = errors.New("relation endpoints must differ")
)

// Writer performs the dual writes that keep a symmetric or denormalized
// relationship consistent across two store paths. The store offers no
// multi-path transaction, so the two writes are sequential and best-effort:
// a second-write failure is surfaced as *core.PartialWriteError and nothing
// is rolled back. Every operation here is a full overwrite (or delete), so
// replaying a call is always safe.
type Writer struct {
	Logger *slog.Logger
	Store  core.DocumentStore
}

func (w *Writer) Init(context.Context) error {
	w.Logger = w.Logger.With("component", "relation.Writer")
	return nil
}

// WriteOp is one half of a symmetric write.
type WriteOp struct {
	Path string
	Doc  json.RawMessage
}

func (w *Writer) WriteSymmetric(ctx context.Context, op string, a, b WriteOp) error {
	if err := w.Store.Write(ctx, a.Path, a.Doc); err != nil {
		writesTotal.WithLabelValues(op, "failed").Inc()
		return fmt.Errorf("symmetric write %s: %w", a.Path, err)
	}

	if err := w.Store.Write(ctx, b.Path, b.Doc); err != nil {
		writesTotal.WithLabelValues(op, "partial").Inc()
		partialFailures.Inc()
		w.Logger.Error("partial symmetric write", "op", op, "written", a.Path, "failed", b.Path, "error", err)
		return &core.PartialWriteError{Written: a.Path, Failed: b.Path, Cause: err}
	}

	writesTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

func (w *Writer) PatchSymmetric(ctx context.Context, op, pathA, pathB string, fieldsA, fieldsB map[string]any) error {
	if err := w.Store.Patch(ctx, pathA, fieldsA); err != nil {
		writesTotal.WithLabelValues(op, "failed").Inc()
		return fmt.Errorf("symmetric patch %s: %w", pathA, err)
	}

	if err := w.Store.Patch(ctx, pathB, fieldsB); err != nil {
		writesTotal.WithLabelValues(op, "partial").Inc()
		partialFailures.Inc()
		w.Logger.Error("partial symmetric patch", "op", op, "written", pathA, "failed", pathB, "error", err)
		return &core.PartialWriteError{Written: pathA, Failed: pathB, Cause: err}
	}

	writesTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

func (w *Writer) DeleteSymmetric(ctx context.Context, op, pathA, pathB string) error {
	if err := w.Store.Delete(ctx, pathA); err != nil {
		writesTotal.WithLabelValues(op, "failed").Inc()
		return fmt.Errorf("symmetric delete %s: %w", pathA, err)
	}

	if err := w.Store.Delete(ctx, pathB); err != nil {
		writesTotal.WithLabelValues(op, "partial").Inc()
		partialFailures.Inc()
		w.Logger.Error("partial symmetric delete", "op", op, "written", pathA, "failed", pathB, "error", err)
		return &core.PartialWriteError{Written: pathA, Failed: pathB, Cause: err}
	}

	writesTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

// Follow records the directed edge follower->target under both
// participants. Re-following is a no-op overwrite.
func (w *Writer) Follow(ctx context.Context, follower, target string) error {
	if follower == "" || target == "" || follower == target {
		return ErrSelfRelation
	}

	marker, err := core.Encode(core.FollowMarker{Active: true, Since: time.Now().UTC()})
	if err != nil {
		return err
	}

	return w.WriteSymmetric(ctx, "follow",
		WriteOp{Path: core.FollowingPath(follower, target), Doc: marker},
		WriteOp{Path: core.FollowersPath(target, follower), Doc: marker},
	)
}

func (w *Writer) Unfollow(ctx context.Context, follower, target string) error {
	if follower == "" || target == "" || follower == target {
		return ErrSelfRelation
	}

	return w.DeleteSymmetric(ctx, "unfollow",
		core.FollowingPath(follower, target),
		core.FollowersPath(target, follower),
	)
}

// EnsureThread makes sure both sides of the (a, b) pair hold a chat-list
// entry agreeing on one roomId, creating whichever copies are missing. An
// existing roomId on either side wins over generating a new one, so a
// half-created pair converges instead of forking.
func (w *Writer) EnsureThread(ctx context.Context, a, b string) (string, error) {
	if a == "" || b == "" || a == b {
		return "", ErrSelfRelation
	}

	pathA := core.ChatListPath(a, b)
	pathB := core.ChatListPath(b, a)

	entryA, okA, err := w.readEntry(ctx, pathA)
	if err != nil {
		return "", err
	}
	entryB, okB, err := w.readEntry(ctx, pathB)
	if err != nil {
		return "", err
	}

	roomID := ""
	switch {
	case okA:
		roomID = entryA.RoomID
	case okB:
		roomID = entryB.RoomID
	default:
		roomID = core.NewPushID()
	}

	if okA && okB && entryA.RoomID == entryB.RoomID {
		return roomID, nil
	}

	fresh, err := core.Encode(core.ChatListEntry{RoomID: roomID})
	if err != nil {
		return "", err
	}

	switch {
	case !okA && !okB:
		err = w.WriteSymmetric(ctx, "chat_create",
			WriteOp{Path: pathA, Doc: fresh},
			WriteOp{Path: pathB, Doc: fresh},
		)
	case !okA:
		err = w.Store.Write(ctx, pathA, fresh)
	case !okB:
		err = w.Store.Write(ctx, pathB, fresh)
	default:
		// Both copies exist but disagree on roomId; realign the other
		// side with a's room. Last writer wins, as everywhere else.
		err = w.Store.Patch(ctx, pathB, map[string]any{"roomId": roomID})
	}
	if err != nil {
		return "", err
	}
	return roomID, nil
}

// TouchThread pushes the latest-message summary to both copies after a
// send.
func (w *Writer) TouchThread(ctx context.Context, a, b, lastMsg string, at time.Time) error {
	fields := map[string]any{
		"lastMsg":     lastMsg,
		"lastMsgTime": at,
	}
	return w.PatchSymmetric(ctx, "chat_touch",
		core.ChatListPath(a, b),
		core.ChatListPath(b, a),
		fields, fields,
	)
}

// SetActive flips the owner's own userActive flag on their copy of the
// thread. This is per-copy state, not symmetric.
func (w *Writer) SetActive(ctx context.Context, owner, other string, active bool) error {
	return w.Store.Patch(ctx, core.ChatListPath(owner, other), map[string]any{"userActive": active})
}

func (w *Writer) readEntry(ctx context.Context, path string) (core.ChatListEntry, bool, error) {
	raw, err := w.Store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ChatListEntry{}, false, nil
		}
		return core.ChatListEntry{}, false, err
	}

	entry, err := core.Decode[core.ChatListEntry](raw)
	if err != nil {
		return core.ChatListEntry{}, false, err
	}
	return entry, true, nil
}
