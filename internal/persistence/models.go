package persistence

import (
	"time"

	"gorm.io/gorm"
)

// DivergenceModel is one detected inconsistency between two store copies
// that should agree: an asymmetric follow edge, a one-sided chat thread,
// or a roomId mismatch.
type DivergenceModel struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt

	Kind     string
	PathA    string
	PathB    string
	Detail   string
	Repaired bool
}

func (DivergenceModel) TableName() string {
	return "divergences"
}
