package repository

import (
	"context"

	"github.com/sifan077/LinkShield/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActionEventRepository stores proceed actions reported by protected visits.
type ActionEventRepository interface {
	// Create inserts event and reports whether it was new. A second event for
	// the same session is ignored.
	Create(ctx context.Context, event *model.ActionEvent) (bool, error)
}

type actionEventRepository struct {
	db *gorm.DB
}

// NewActionEventRepository returns a GORM-backed ActionEventRepository.
func NewActionEventRepository(db *gorm.DB) ActionEventRepository {
	return &actionEventRepository{db: db}
}

func (r *actionEventRepository) Create(ctx context.Context, event *model.ActionEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
