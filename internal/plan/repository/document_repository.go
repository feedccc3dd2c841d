package repository

import (
	"context"
	"errors"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentRepository persists decree and F1 documents together with their
// plan bindings. Binding changes, the document row and the accompanying
// ledger/audit rows commit in one transaction, so a failed write never
// leaves a half-bound plan. Document rows are kept after detachment for
// audit purposes.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// AttachDecree creates the decree row, binds it to the plan and appends the
// status assignment with its audit entry atomically. A racing ledger append
// trips the unique (plan_id, seq) index, the whole write rolls back and
// ErrStaleLedger is returned.
func (r *DocumentRepository) AttachDecree(ctx context.Context, planID string, d *entity.Decree, assignment *entity.StatusAssignment, audit *entity.AuditEntry) error {
	fillAuditID(audit)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		if err := tx.Model(&entity.PurchasePlan{}).Where("id = ?", planID).Update("decree_id", d.ID).Error; err != nil {
			return err
		}
		if err := tx.Create(assignment).Error; err != nil {
			return err
		}
		return tx.Create(audit).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrStaleLedger
	}
	return err
}

// DetachDecree clears the plan's decree binding and records the audit
// entry; a non-nil assignment appends the reverting status row in the same
// transaction. On ErrStaleLedger the binding survives untouched.
func (r *DocumentRepository) DetachDecree(ctx context.Context, planID string, assignment *entity.StatusAssignment, audit *entity.AuditEntry) error {
	fillAuditID(audit)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.PurchasePlan{}).Where("id = ?", planID).Update("decree_id", nil).Error; err != nil {
			return err
		}
		if assignment != nil {
			if err := tx.Create(assignment).Error; err != nil {
				return err
			}
		}
		return tx.Create(audit).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrStaleLedger
	}
	return err
}

// AttachF1 creates the F1 form row, binds it and records the audit entry in
// one transaction. F1 bindings never touch the status ledger.
func (r *DocumentRepository) AttachF1(ctx context.Context, planID string, f *entity.F1Form, audit *entity.AuditEntry) error {
	fillAuditID(audit)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(f).Error; err != nil {
			return err
		}
		if err := tx.Model(&entity.PurchasePlan{}).Where("id = ?", planID).Update("f1_form_id", f.ID).Error; err != nil {
			return err
		}
		return tx.Create(audit).Error
	})
}

// DetachF1 clears the F1 binding and records the audit entry atomically.
func (r *DocumentRepository) DetachF1(ctx context.Context, planID string, audit *entity.AuditEntry) error {
	fillAuditID(audit)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.PurchasePlan{}).Where("id = ?", planID).Update("f1_form_id", nil).Error; err != nil {
			return err
		}
		return tx.Create(audit).Error
	})
}

func fillAuditID(audit *entity.AuditEntry) {
	if audit != nil && audit.ID == "" {
		audit.ID = uuid.New().String()[:32]
	}
}
