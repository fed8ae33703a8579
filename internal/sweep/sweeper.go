package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"graphsync/internal/config"
	"graphsync/internal/core"
	"graphsync/internal/notify"
	"graphsync/internal/persistence"
	"graphsync/internal/relation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zhulik/pips"
	"github.com/zhulik/pips/apply"
)

var (
	divergencesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsync_sweep_divergences_total",
		Help: "Cross-copy divergences detected by the consistency sweep",
	}, []string{"kind"})

	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphsync_sweep_runs_total",
		Help: "Completed consistency sweep passes",
	})
)

const (
	KindFollowAsymmetry = "follow_asymmetry"
	KindChatOneSided    = "chat_one_sided"
	KindChatRoomMism    = "chat_room_mismatch"
)

// Recorder persists sweep findings. The Postgres-backed repository is the
// production implementation; LogRecorder stands in when no database is
// configured.
type Recorder interface {
	Insert(ctx context.Context, divs ...persistence.DivergenceModel) error
}

type LogRecorder struct {
	Logger *slog.Logger
}

func (r *LogRecorder) Insert(_ context.Context, divs ...persistence.DivergenceModel) error {
	for _, d := range divs {
		r.Logger.Warn("divergence detected", "kind", d.Kind, "path_a", d.PathA, "path_b", d.PathB, "detail", d.Detail)
	}
	return nil
}

// Sweeper periodically scans the denormalized path families for copies
// that should agree but do not: half-written follow edges and diverged
// chat-list pairs. Detection only by default; repair re-issues the missing
// symmetric write and is safe because those writes are idempotent
// overwrites.
type Sweeper struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    core.DocumentStore
	Relation *relation.Writer
	Recorder Recorder
	Webhook  *notify.Webhook
}

type finding struct {
	kind   string
	pathA  string
	pathB  string
	detail string

	repair func(ctx context.Context) error
}

func (s *Sweeper) Init(context.Context) error {
	s.Logger = s.Logger.With("component", "sweep.Sweeper")
	return nil
}

// Run performs one pass immediately, then keeps sweeping on the configured
// interval. With no interval configured it is one-shot.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.Sweep(ctx); err != nil {
		return err
	}
	if s.Config.SweepInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.Logger.Error("sweep pass failed", "error", err)
			}
		}
	}
}

// Sweep runs a single detection pass over both path families.
func (s *Sweeper) Sweep(ctx context.Context) error {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	findings := make(chan pips.D[finding])

	done := make(chan error, 1)
	go func() {
		err := s.process(ctx, findings)
		if err != nil {
			// A failed pipeline stops consuming; release any scan send
			// still blocked on the findings channel.
			cancel()
		}
		done <- err
	}()

	scanErr := s.scan(scanCtx, findings)
	close(findings)

	if err := <-done; err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}

	sweepRuns.Inc()
	return nil
}

func (s *Sweeper) scan(ctx context.Context, out chan<- pips.D[finding]) error {
	if err := s.scanFollows(ctx, out); err != nil {
		return fmt.Errorf("scan follows: %w", err)
	}
	if err := s.scanChatLists(ctx, out); err != nil {
		return fmt.Errorf("scan chat lists: %w", err)
	}
	return nil
}

func emit(ctx context.Context, out chan<- pips.D[finding], f finding) error {
	select {
	case out <- pips.NewD(f):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process drains findings through a batch pipeline: count, record, notify,
// optionally repair.
func (s *Sweeper) process(ctx context.Context, findings <-chan pips.D[finding]) error {
	return pips.New[finding, any]().
		Then(apply.Each(func(_ context.Context, f finding) error {
			divergencesFound.WithLabelValues(f.kind).Inc()
			return nil
		})).
		Then(apply.Batch[finding](50)).
		Then(apply.Map(func(ctx context.Context, batch []finding) (any, error) {
			divs := make([]persistence.DivergenceModel, 0, len(batch))
			for _, f := range batch {
				repaired := false
				if s.Config.SweepRepair && f.repair != nil {
					if err := f.repair(ctx); err != nil {
						s.Logger.Error("repair failed", "kind", f.kind, "path_a", f.pathA, "error", err)
					} else {
						repaired = true
					}
				}
				divs = append(divs, persistence.DivergenceModel{
					Kind:     f.kind,
					PathA:    f.pathA,
					PathB:    f.pathB,
					Detail:   f.detail,
					Repaired: repaired,
				})
			}

			if err := s.Recorder.Insert(ctx, divs...); err != nil {
				return nil, err
			}
			return nil, s.Webhook.Report(ctx, divs)
		})).
		Run(ctx, findings).
		Wait(ctx)
}

// scanFollows detects follow edges recorded under only one participant. A
// marker at follows/A/following/B must be mirrored at
// follows/B/followers/A and vice versa.
func (s *Sweeper) scanFollows(ctx context.Context, out chan<- pips.D[finding]) error {
	snap, err := core.ReadTree(ctx, s.Store, "follows")
	if err != nil {
		return err
	}

	type edge struct{ follower, target string }
	following := map[edge]bool{}
	followers := map[edge]bool{}

	for rel := range snap.Docs {
		segments := strings.Split(rel, "/")
		if len(segments) != 3 {
			continue
		}
		switch segments[1] {
		case "following":
			following[edge{follower: segments[0], target: segments[2]}] = true
		case "followers":
			followers[edge{follower: segments[2], target: segments[0]}] = true
		}
	}

	asymmetric := func(e edge, detail string) error {
		follower, target := e.follower, e.target
		return emit(ctx, out, finding{
			kind:   KindFollowAsymmetry,
			pathA:  core.FollowingPath(follower, target),
			pathB:  core.FollowersPath(target, follower),
			detail: detail,
			repair: func(ctx context.Context) error {
				return s.Relation.Follow(ctx, follower, target)
			},
		})
	}

	for e := range following {
		if !followers[e] {
			if err := asymmetric(e, "following marker without followers mirror"); err != nil {
				return err
			}
		}
	}
	for e := range followers {
		if !following[e] {
			if err := asymmetric(e, "followers marker without following mirror"); err != nil {
				return err
			}
		}
	}
	return nil
}

// scanChatLists detects one-sided chat threads and pairs whose copies
// disagree on roomId.
func (s *Sweeper) scanChatLists(ctx context.Context, out chan<- pips.D[finding]) error {
	snap, err := core.ReadTree(ctx, s.Store, "chatlist")
	if err != nil {
		return err
	}

	entries := map[[2]string]core.ChatListEntry{}
	for rel, raw := range snap.Docs {
		segments := strings.Split(rel, "/")
		if len(segments) != 2 {
			continue
		}
		entry, err := core.Decode[core.ChatListEntry](raw)
		if err != nil {
			s.Logger.Warn("skipping malformed chat list entry", "path", core.ChatListPath(segments[0], segments[1]), "error", err)
			continue
		}
		entries[[2]string{segments[0], segments[1]}] = entry
	}

	seen := map[[2]string]bool{}
	for key, entry := range entries {
		a, b := key[0], key[1]
		pair := [2]string{a, b}
		if a > b {
			pair = [2]string{b, a}
		}
		if seen[pair] {
			continue
		}
		seen[pair] = true

		mirror, ok := entries[[2]string{b, a}]
		repair := func(ctx context.Context) error {
			_, err := s.Relation.EnsureThread(ctx, a, b)
			return err
		}

		switch {
		case !ok:
			err = emit(ctx, out, finding{
				kind:   KindChatOneSided,
				pathA:  core.ChatListPath(a, b),
				pathB:  core.ChatListPath(b, a),
				detail: "chat list entry without mirror copy",
				repair: repair,
			})
		case entry.RoomID != mirror.RoomID:
			err = emit(ctx, out, finding{
				kind:   KindChatRoomMism,
				pathA:  core.ChatListPath(a, b),
				pathB:  core.ChatListPath(b, a),
				detail: fmt.Sprintf("roomId %s != %s", entry.RoomID, mirror.RoomID),
				repair: repair,
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}
