package repository

import (
	"context"
	"errors"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"gorm.io/gorm"
)

// LedgerRepository owns the append-only status ledger. Rows are only ever
// inserted; current status is derived from the maximal Seq per plan.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Current returns the plan's current status assignment (greatest Seq).
func (r *LedgerRepository) Current(ctx context.Context, planID string) (*entity.StatusAssignment, error) {
	var a entity.StatusAssignment
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("seq DESC").
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// History returns all status assignments oldest to newest.
func (r *LedgerRepository) History(ctx context.Context, planID string) ([]entity.StatusAssignment, error) {
	var rows []entity.StatusAssignment
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Append inserts one status assignment and one audit entry atomically.
// assignment.Seq must be the successor of the Seq the caller observed when
// it read the current status; the unique (plan_id, seq) index makes the
// slower of two racing writers fail, reported as ErrStaleLedger so the
// caller can map it to a concurrent-modification failure. Nothing is
// written when either insert fails.
func (r *LedgerRepository) Append(ctx context.Context, assignment *entity.StatusAssignment, audit *entity.AuditEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(assignment).Error; err != nil {
			return err
		}
		if audit != nil {
			if err := tx.Create(audit).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrStaleLedger
		}
		return err
	}
	return nil
}

// AppendFirst writes the initial Draft assignment for a newly created plan.
func (r *LedgerRepository) AppendFirst(ctx context.Context, assignment *entity.StatusAssignment, audit *entity.AuditEntry) error {
	assignment.Seq = 1
	return r.Append(ctx, assignment, audit)
}
