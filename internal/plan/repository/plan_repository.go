package repository

import (
	"context"
	"errors"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"gorm.io/gorm"
)

// PlanRepository persists purchase plans.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindByID loads a plan with its direction and document bindings.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*entity.PurchasePlan, error) {
	var plan entity.PurchasePlan
	err := r.db.WithContext(ctx).
		Preload("Direction").
		Preload("Decree").
		Preload("F1Form").
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// FindByDirectionYear returns the plan for a (direction, year) pair.
func (r *PlanRepository) FindByDirectionYear(ctx context.Context, directionID string, year int) (*entity.PurchasePlan, error) {
	var plan entity.PurchasePlan
	err := r.db.WithContext(ctx).
		Where("direction_id = ? AND year = ?", directionID, year).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) Create(ctx context.Context, plan *entity.PurchasePlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *PlanRepository) Update(ctx context.Context, plan *entity.PurchasePlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

// List returns plans filtered by year/direction/keyword, newest first.
func (r *PlanRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.PurchasePlan, int64, error) {
	var plans []entity.PurchasePlan
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.PurchasePlan{})

	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		query = query.Where("name LIKE ?", "%"+keyword+"%")
	}
	if year, ok := filters["year"].(int); ok && year > 0 {
		query = query.Where("year = ?", year)
	}
	if directionID, ok := filters["direction_id"].(string); ok && directionID != "" {
		query = query.Where("direction_id = ?", directionID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Direction").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&plans).Error
	if err != nil {
		return nil, 0, err
	}

	return plans, total, nil
}

// ListWithDecree returns all plans holding a decree binding, for the
// reconciliation pass.
func (r *PlanRepository) ListWithDecree(ctx context.Context) ([]entity.PurchasePlan, error) {
	var plans []entity.PurchasePlan
	err := r.db.WithContext(ctx).
		Where("decree_id IS NOT NULL").
		Order("created_at ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
