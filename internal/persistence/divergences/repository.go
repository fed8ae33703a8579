package divergences

import (
	"context"
	"time"

	"graphsync/internal/persistence"
)

type Repository struct {
	DB *persistence.DB
}

func (r *Repository) Insert(ctx context.Context, divs ...persistence.DivergenceModel) error {
	if len(divs) == 0 {
		return nil
	}
	return r.DB.Model(&persistence.DivergenceModel{}).WithContext(ctx).Create(&divs).Error
}

// Recent returns divergences recorded since the cutoff, newest first.
func (r *Repository) Recent(ctx context.Context, since time.Time) ([]persistence.DivergenceModel, error) {
	var out []persistence.DivergenceModel
	err := r.DB.Model(&persistence.DivergenceModel{}).
		WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}
