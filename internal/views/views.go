package views

import (
	"sort"

	"graphsync/internal/core"

	"github.com/samber/lo"
)

// Pure, stateless transforms from raw snapshots to typed view state. Each
// is recomputed in full from the latest snapshot, so a missed intermediate
// update self-heals on the next delivery. Malformed documents are skipped,
// never propagated; Skipped reports how many a transform dropped.

// Keyed pairs a decoded document with its id (the path segment that keyed
// it in the snapshot).
type Keyed[T any] struct {
	ID  string
	Doc T
}

// Project decodes every document in a snapshot into a Keyed slice. The
// result is id-sorted purely so output is deterministic; store order
// carries no meaning and no consumer may rely on it.
func Project[T core.Validator](snap core.Snapshot) (items []Keyed[T], skipped int) {
	for id, raw := range snap.Docs {
		if id == "" {
			continue
		}
		doc, err := core.Decode[T](raw)
		if err != nil {
			skipped++
			continue
		}
		items = append(items, Keyed[T]{ID: id, Doc: doc})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, skipped
}

// Likers lists the user ids currently in a post's like set. The count of a
// post's likes is len of this slice - derived, never stored.
func Likers(snap core.Snapshot) []string {
	likers := lo.Filter(lo.Keys(snap.Docs), func(id string, _ int) bool {
		return id != ""
	})
	sort.Strings(likers)
	return likers
}

// CommentsOf projects a comments/{postId} snapshot into typed comments.
func CommentsOf(snap core.Snapshot) ([]Keyed[core.Comment], int) {
	return Project[core.Comment](snap)
}

// PostsPerSection folds a posts snapshot into per-user, per-section
// published post counts, the shape behind progress and level displays.
func PostsPerSection(snap core.Snapshot, uid string) map[string]int {
	posts, _ := Project[core.Post](snap)

	counts := map[string]int{}
	for _, p := range posts {
		if p.Doc.UID != uid || p.Doc.Status != core.PostStatusPublished {
			continue
		}
		counts[p.Doc.SectionID]++
	}
	return counts
}

// CommentAuthor is a comment joined against the live profile of its
// author.
type CommentAuthor struct {
	ID       string
	Comment  core.Comment
	Username string
	PhotoURL string
}

// CommentsWithAuthors joins a comments snapshot against a userInfo
// snapshot, resolving each comment's userId into a live username/photo
// pair. Comments whose author profile is absent keep empty author fields;
// the profile subscription will re-deliver and the join recomputes.
func CommentsWithAuthors(comments core.Snapshot, profiles core.Snapshot) []CommentAuthor {
	decoded, _ := Project[core.Profile](profiles)
	byUID := lo.SliceToMap(decoded, func(p Keyed[core.Profile]) (string, core.Profile) {
		return p.Doc.UID, p.Doc
	})

	typed, _ := CommentsOf(comments)
	return lo.Map(typed, func(c Keyed[core.Comment], _ int) CommentAuthor {
		profile := byUID[c.Doc.UserID]
		return CommentAuthor{
			ID:       c.ID,
			Comment:  c.Doc,
			Username: profile.Username,
			PhotoURL: profile.PhotoURL,
		}
	})
}
