package entity

import "time"

// Project groups purchasable line items under a plan.
type Project struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	PlanID     string    `json:"plan_id" gorm:"size:32;not null;index"`
	Name       string    `json:"name" gorm:"size:256;not null"`
	BudgetCode string    `json:"budget_code" gorm:"size:64"`
	CreatedBy  string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Plan  *PurchasePlan  `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
	Items []ItemPurchase `json:"items,omitempty" gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string {
	return "projects"
}

// Line item execution statuses. Execution tracking only starts once the
// parent plan is a decreed or published legal instrument.
const (
	ItemStatusPending     = "pending"
	ItemStatusInExecution = "in_execution"
	ItemStatusPaid        = "paid"
	ItemStatusAccounted   = "accounted" // rendición de cuentas
)

var itemStatuses = map[string]bool{
	ItemStatusPending:     true,
	ItemStatusInExecution: true,
	ItemStatusPaid:        true,
	ItemStatusAccounted:   true,
}

// ValidItemStatus reports whether raw names a known line-item status.
func ValidItemStatus(raw string) bool {
	return itemStatuses[raw]
}

// ItemPurchase is a purchasable line item belonging to a project under a
// plan. Its status may only change while the parent plan is Decreed or
// Published.
type ItemPurchase struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID   string    `json:"project_id" gorm:"size:32;not null;index"`
	Description string    `json:"description" gorm:"size:512;not null"`
	Quantity    int       `json:"quantity" gorm:"not null;default:1"`
	UnitPrice   float64   `json:"unit_price"`
	Status      string    `json:"status" gorm:"size:20;not null;default:pending"`
	CreatedBy   string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Project *Project `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
}

func (ItemPurchase) TableName() string {
	return "item_purchases"
}
