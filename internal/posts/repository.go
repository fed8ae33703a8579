package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"graphsync/internal/core"
)

var (
	ErrNotOwner = errors.New("operation restricted to the owning user")
)

// Repository owns posts/{postId} and comments/{postId}/{commentId}. Posts
// are mutated or deleted by their owner only; comments are created and
// then touched exclusively through the counter maintainer.
type Repository struct {
	Store core.DocumentStore
}

func (r *Repository) Create(ctx context.Context, p core.Post) (string, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = core.PostStatusDraft
	}

	doc, err := core.Encode(p)
	if err != nil {
		return "", err
	}

	postID := core.NewPushID()
	if err := r.Store.Write(ctx, core.PostPath(postID), doc); err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return postID, nil
}

func (r *Repository) Get(ctx context.Context, postID string) (core.Post, error) {
	raw, err := r.Store.Read(ctx, core.PostPath(postID))
	if err != nil {
		return core.Post{}, err
	}
	return core.Decode[core.Post](raw)
}

// SetPublic toggles the owner's privacy flag on the post.
func (r *Repository) SetPublic(ctx context.Context, postID, actorID string, public bool) error {
	post, err := r.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.UID != actorID {
		return ErrNotOwner
	}
	return r.Store.Patch(ctx, core.PostPath(postID), map[string]any{"publicStatus": public})
}

// Publish promotes a draft.
func (r *Repository) Publish(ctx context.Context, postID, actorID string) error {
	post, err := r.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.UID != actorID {
		return ErrNotOwner
	}
	return r.Store.Patch(ctx, core.PostPath(postID), map[string]any{"status": core.PostStatusPublished})
}

// Delete removes the post document. Its like set and comments are left in
// place; readers resolve them lazily and a missing post simply stops being
// displayed.
func (r *Repository) Delete(ctx context.Context, postID, actorID string) error {
	post, err := r.Get(ctx, postID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return err
	}
	if post.UID != actorID {
		return ErrNotOwner
	}
	return r.Store.Delete(ctx, core.PostPath(postID))
}

// AddComment creates an immutable comment with zeroed like state.
func (r *Repository) AddComment(ctx context.Context, postID, userID, content string) (string, error) {
	doc, err := core.Encode(core.Comment{
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		LikedBy:   []string{},
	})
	if err != nil {
		return "", err
	}

	commentID := core.NewPushID()
	if err := r.Store.Write(ctx, core.CommentPath(postID, commentID), doc); err != nil {
		return "", fmt.Errorf("add comment: %w", err)
	}
	return commentID, nil
}
