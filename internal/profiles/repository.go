package profiles

import (
	"context"

	"graphsync/internal/core"
)

// Repository owns the userInfo/{uid} path family. Profiles are created
// once at signup completion and mutated only by their owner.
type Repository struct {
	Store core.DocumentStore
}

func (r *Repository) Upsert(ctx context.Context, p core.Profile) error {
	doc, err := core.Encode(p)
	if err != nil {
		return err
	}
	return r.Store.Write(ctx, core.ProfilePath(p.UID), doc)
}

func (r *Repository) Get(ctx context.Context, uid string) (core.Profile, error) {
	raw, err := r.Store.Read(ctx, core.ProfilePath(uid))
	if err != nil {
		return core.Profile{}, err
	}
	return core.Decode[core.Profile](raw)
}

// UpdateBio patches the mutable presentation fields without touching
// identity.
func (r *Repository) UpdateBio(ctx context.Context, uid, bio, photoURL string) error {
	return r.Store.Patch(ctx, core.ProfilePath(uid), map[string]any{
		"bio":      bio,
		"photoUrl": photoURL,
	})
}
