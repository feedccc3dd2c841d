package entity

import "time"

// Audit actions
const (
	AuditActionStatusChange     = "status_change"
	AuditActionDecreeAttached   = "decree_attached"
	AuditActionDecreeRemoved    = "decree_removed"
	AuditActionF1Attached       = "f1_attached"
	AuditActionF1Removed        = "f1_removed"
	AuditActionItemStatusChange = "item_status_change"
	AuditActionCorrection       = "correction"
	AuditActionPlanCreated      = "plan_created"
	AuditActionDeleteDuplicate  = "delete_duplicate"
)

// AuditEntry is one row of the append-only audit trail. It exists for
// compliance reporting only: plan behavior must never be derived from the
// audit trail, only from the status ledger.
type AuditEntry struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	PlanID      string    `json:"plan_id" gorm:"size:32;not null;index"`
	Action      string    `json:"action" gorm:"size:50;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Detail      JSONB     `json:"detail" gorm:"type:jsonb"`
	ActorID     string    `json:"actor_id" gorm:"size:32"`
	ActorName   string    `json:"actor_name" gorm:"size:200"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
