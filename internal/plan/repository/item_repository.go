package repository

import (
	"context"
	"errors"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"gorm.io/gorm"
)

// ItemRepository persists projects and their line items.
type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) CreateProject(ctx context.Context, p *entity.Project) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ItemRepository) FindProjectByID(ctx context.Context, id string) (*entity.Project, error) {
	var p entity.Project
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ItemRepository) ListProjectsByPlan(ctx context.Context, planID string) ([]entity.Project, error) {
	var projects []entity.Project
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Preload("Items").
		Order("created_at ASC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *ItemRepository) CreateItem(ctx context.Context, item *entity.ItemPurchase) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// FindItemByID loads an item with its project, which carries the plan id
// the guard needs.
func (r *ItemRepository) FindItemByID(ctx context.Context, id string) (*entity.ItemPurchase, error) {
	var item entity.ItemPurchase
	err := r.db.WithContext(ctx).
		Preload("Project").
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// UpdateItemStatusWithAudit changes the item's status and records the audit
// entry in one transaction; an audit failure rolls the status back.
func (r *ItemRepository) UpdateItemStatusWithAudit(ctx context.Context, id, status string, audit *entity.AuditEntry) error {
	fillAuditID(audit)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ItemPurchase{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		return tx.Create(audit).Error
	})
}
