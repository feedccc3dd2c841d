package repository

import (
	"context"
	"errors"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"gorm.io/gorm"
)

// DirectionRepository persists municipal directions.
type DirectionRepository struct {
	db *gorm.DB
}

func NewDirectionRepository(db *gorm.DB) *DirectionRepository {
	return &DirectionRepository{db: db}
}

func (r *DirectionRepository) Create(ctx context.Context, d *entity.Direction) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DirectionRepository) FindByID(ctx context.Context, id string) (*entity.Direction, error) {
	var d entity.Direction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListActive returns active directions ordered by code, the population the
// annual generation walks.
func (r *DirectionRepository) ListActive(ctx context.Context) ([]entity.Direction, error) {
	var directions []entity.Direction
	err := r.db.WithContext(ctx).
		Where("status = ?", "active").
		Order("code ASC").
		Find(&directions).Error
	if err != nil {
		return nil, err
	}
	return directions, nil
}

func (r *DirectionRepository) List(ctx context.Context) ([]entity.Direction, error) {
	var directions []entity.Direction
	err := r.db.WithContext(ctx).Order("code ASC").Find(&directions).Error
	if err != nil {
		return nil, err
	}
	return directions, nil
}
