package views_test

import (
	"encoding/json"
	"testing"

	"graphsync/internal/core"
	"graphsync/internal/views"

	"github.com/stretchr/testify/require"
)

func snapshot(path string, docs map[string]string) core.Snapshot {
	snap := core.EmptySnapshot(path)
	for id, doc := range docs {
		snap.Docs[id] = json.RawMessage(doc)
	}
	return snap
}

func TestProject(t *testing.T) {
	t.Parallel()

	t.Run("sorted by id", func(t *testing.T) {
		t.Parallel()

		snap := snapshot("userInfo", map[string]string{
			"b": `{"uid":"b","username":"bob"}`,
			"a": `{"uid":"a","username":"alice"}`,
		})

		items, skipped := views.Project[core.Profile](snap)
		require.Zero(t, skipped)
		require.Len(t, items, 2)
		require.Equal(t, "a", items[0].ID)
		require.Equal(t, "b", items[1].ID)
	})

	t.Run("skips malformed", func(t *testing.T) {
		t.Parallel()

		snap := snapshot("userInfo", map[string]string{
			"a": `{"uid":"a","username":"alice"}`,
			"b": `{"uid":"b"}`,
			"c": `not json`,
		})

		items, skipped := views.Project[core.Profile](snap)
		require.Equal(t, 2, skipped)
		require.Len(t, items, 1)
		require.Equal(t, "alice", items[0].Doc.Username)
	})

	t.Run("ignores the root document", func(t *testing.T) {
		t.Parallel()

		snap := snapshot("userInfo", map[string]string{
			"":  `{"anything":true}`,
			"a": `{"uid":"a","username":"alice"}`,
		})

		items, skipped := views.Project[core.Profile](snap)
		require.Zero(t, skipped)
		require.Len(t, items, 1)
	})
}

func TestLikers(t *testing.T) {
	t.Parallel()

	snap := snapshot("likes/p1", map[string]string{
		"carol": `{}`,
		"alice": `{}`,
	})

	require.Equal(t, []string{"alice", "carol"}, views.Likers(snap))
	require.Empty(t, views.Likers(core.EmptySnapshot("likes/p2")))
}

func TestPostsPerSection(t *testing.T) {
	t.Parallel()

	snap := snapshot("posts", map[string]string{
		"p1": `{"uid":"alice","sectionId":"s1","status":"published"}`,
		"p2": `{"uid":"alice","sectionId":"s1","status":"published"}`,
		"p3": `{"uid":"alice","sectionId":"s2","status":"published"}`,
		"p4": `{"uid":"alice","sectionId":"s1","status":"draft"}`,
		"p5": `{"uid":"bob","sectionId":"s1","status":"published"}`,
	})

	counts := views.PostsPerSection(snap, "alice")
	require.Equal(t, map[string]int{"s1": 2, "s2": 1}, counts)
}

func TestCommentsWithAuthors(t *testing.T) {
	t.Parallel()

	comments := snapshot("comments/p1", map[string]string{
		"c1": `{"postId":"p1","userId":"alice","content":"first","likeCount":0,"likedBy":[]}`,
		"c2": `{"postId":"p1","userId":"ghost","content":"second","likeCount":0,"likedBy":[]}`,
	})
	profiles := snapshot("userInfo", map[string]string{
		"alice": `{"uid":"alice","username":"Alice","photoUrl":"http://img/a"}`,
	})

	joined := views.CommentsWithAuthors(comments, profiles)
	require.Len(t, joined, 2)

	require.Equal(t, "c1", joined[0].ID)
	require.Equal(t, "Alice", joined[0].Username)
	require.Equal(t, "http://img/a", joined[0].PhotoURL)

	// Absent author resolves to empty fields, not an error.
	require.Equal(t, "c2", joined[1].ID)
	require.Empty(t, joined[1].Username)
}
