package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrStaleLedger is returned by LedgerRepository.Append when another writer
// appended a status row for the same plan after the caller's read. The
// caller should re-read the current status and retry.
var ErrStaleLedger = errors.New("status ledger changed since read")

// Repositories bundles all repositories.
type Repositories struct {
	Plan      *PlanRepository
	Ledger    *LedgerRepository
	Audit     *AuditRepository
	Document  *DocumentRepository
	Item      *ItemRepository
	User      *UserRepository
	Direction *DirectionRepository
}

// NewRepositories creates all repositories on a shared gorm DB.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Plan:      NewPlanRepository(db),
		Ledger:    NewLedgerRepository(db),
		Audit:     NewAuditRepository(db),
		Document:  NewDocumentRepository(db),
		Item:      NewItemRepository(db),
		User:      NewUserRepository(db),
		Direction: NewDirectionRepository(db),
	}
}
