package entity

import (
	"fmt"
	"time"
)

// StatusCode identifies a lifecycle state of a purchase plan. Codes are
// compared by name everywhere; the numeric ids of the legacy system survive
// only for reporting (see LegacyID).
type StatusCode string

const (
	StatusDraft             StatusCode = "draft"
	StatusSent              StatusCode = "sent"
	StatusEndorsed          StatusCode = "endorsed" // visado
	StatusApproved          StatusCode = "approved"
	StatusApprovedForDecree StatusCode = "approved_for_decree"
	StatusDecreed           StatusCode = "decreed"
	StatusPublished         StatusCode = "published"
	StatusRejected          StatusCode = "rejected"
)

// AllStatusCodes lists every lifecycle state in progression order,
// exception state last.
var AllStatusCodes = []StatusCode{
	StatusDraft,
	StatusSent,
	StatusEndorsed,
	StatusApproved,
	StatusApprovedForDecree,
	StatusDecreed,
	StatusPublished,
	StatusRejected,
}

var legacyStatusIDs = map[StatusCode]int{
	StatusDraft:             1,
	StatusSent:              2,
	StatusEndorsed:          3,
	StatusApproved:          4,
	StatusApprovedForDecree: 5,
	StatusDecreed:           6,
	StatusPublished:         7,
	StatusRejected:          8,
}

var statusLabels = map[StatusCode]string{
	StatusDraft:             "Borrador",
	StatusSent:              "Enviado",
	StatusEndorsed:          "Visado",
	StatusApproved:          "Aprobado",
	StatusApprovedForDecree: "Aprobado para Decreto",
	StatusDecreed:           "Decretado",
	StatusPublished:         "Publicado",
	StatusRejected:          "Rechazado",
}

// LegacyID returns the numeric status id used by the municipality's
// historical exports. Never use it for control flow.
func (s StatusCode) LegacyID() int {
	return legacyStatusIDs[s]
}

// Label returns the human-readable (Spanish) status name.
func (s StatusCode) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s StatusCode) Valid() bool {
	_, ok := legacyStatusIDs[s]
	return ok
}

// ParseStatusCode validates a caller-supplied status string.
func ParseStatusCode(raw string) (StatusCode, error) {
	s := StatusCode(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status code %q", raw)
	}
	return s, nil
}

// StatusAssignment is one row of the append-only status ledger. Rows are
// never updated or deleted; the plan's current status is the row with the
// greatest Seq. Seq is a per-plan sequence enforced unique, so two
// assignments can never be simultaneously current.
type StatusAssignment struct {
	ID        string     `json:"id" gorm:"primaryKey;size:32"`
	PlanID    string     `json:"plan_id" gorm:"size:32;not null;uniqueIndex:idx_status_plan_seq,priority:1"`
	Seq       int64      `json:"seq" gorm:"not null;uniqueIndex:idx_status_plan_seq,priority:2"`
	Status    StatusCode `json:"status" gorm:"size:32;not null"`
	Comment   string     `json:"comment" gorm:"type:text"`
	ActorID   string     `json:"actor_id" gorm:"size:32;not null"`
	CreatedAt time.Time  `json:"created_at"`
}

func (StatusAssignment) TableName() string {
	return "status_assignments"
}
