package entity

import "time"

// Decree is the formal municipal decree document attached to a plan. The
// row outlives detachment (the plan's foreign key is cleared, the document
// stays for audit), so StorageKey must never be reused.
type Decree struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	Number     string    `json:"number" gorm:"size:64"` // decree number as issued
	StorageKey string    `json:"storage_key" gorm:"size:512;not null"`
	FileName   string    `json:"file_name" gorm:"size:256;not null"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type" gorm:"size:128"`
	UploadedBy string    `json:"uploaded_by" gorm:"size:32;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Decree) TableName() string {
	return "decrees"
}

// F1Form is the budget-amount form attached to a plan, independent of the
// decree. Attaching or detaching it never moves the lifecycle.
type F1Form struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	Amount     float64   `json:"amount" gorm:"not null"` // declared budget amount
	StorageKey string    `json:"storage_key" gorm:"size:512;not null"`
	FileName   string    `json:"file_name" gorm:"size:256;not null"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type" gorm:"size:128"`
	UploadedBy string    `json:"uploaded_by" gorm:"size:32;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (F1Form) TableName() string {
	return "f1_forms"
}
