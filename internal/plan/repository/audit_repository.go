package repository

import (
	"context"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"gorm.io/gorm"
)

// AuditRepository reads the append-only audit trail. Entries are written
// transactionally next to the action that produced them (ledger appends,
// document bindings, item updates) and are never read back for control
// flow.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// ListByPlan returns a plan's audit trail oldest to newest.
func (r *AuditRepository) ListByPlan(ctx context.Context, planID string) ([]entity.AuditEntry, error) {
	var entries []entity.AuditEntry
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
