package entity

import "time"

// Direction is a municipal department (dirección) that owns purchase plans.
type Direction struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Status    string    `json:"status" gorm:"size:16;not null;default:active"` // active/inactive
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Direction) TableName() string {
	return "directions"
}

// PurchasePlan is the annual purchase plan of a direction. At most one plan
// exists per (direction, year). Status lives in the status ledger, never on
// the plan row itself; DecreeID/F1FormID are nullable document bindings.
type PurchasePlan struct {
	ID          string  `json:"id" gorm:"primaryKey;size:32"`
	Name        string  `json:"name" gorm:"size:256;not null"`
	Year        int     `json:"year" gorm:"not null;uniqueIndex:idx_plans_direction_year,priority:2"`
	DirectionID string  `json:"direction_id" gorm:"size:32;not null;uniqueIndex:idx_plans_direction_year,priority:1"`
	DecreeID    *string `json:"decree_id" gorm:"size:32"`
	F1FormID    *string `json:"f1_form_id" gorm:"size:32"`
	CreatedBy   string  `json:"created_by" gorm:"size:32;not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Direction *Direction `json:"direction,omitempty" gorm:"foreignKey:DirectionID"`
	Decree    *Decree    `json:"decree,omitempty" gorm:"foreignKey:DecreeID"`
	F1Form    *F1Form    `json:"f1_form,omitempty" gorm:"foreignKey:F1FormID"`
	Projects  []Project  `json:"projects,omitempty" gorm:"foreignKey:PlanID"`
}

func (PurchasePlan) TableName() string {
	return "purchase_plans"
}
