package service

import (
	"errors"
	"fmt"

	"github.com/civicteam/plancompras/internal/plan/entity"
)

// Error kinds surfaced by the lifecycle engine and guards. All of them are
// rejected before any write: a failed operation leaves no ledger row, no
// audit entry and no notification.
var (
	ErrUnauthorized           = errors.New("actor lacks the required capability")
	ErrInvalidTransition      = errors.New("no such transition from current status")
	ErrInvalidState           = errors.New("operation not allowed in current status")
	ErrItemStatusLocked       = errors.New("parent plan status forbids item status changes")
	ErrConcurrentModification = errors.New("plan status changed concurrently, retry with a fresh read")
	ErrPlanNotFound           = errors.New("purchase plan not found")
	ErrDuplicatePlan          = errors.New("a plan already exists for this direction and year")
	ErrStorageUnavailable     = errors.New("document storage is not configured")
)

// TransitionError wraps an error kind with the set of statuses actually
// reachable from the plan's current status, so callers can present
// actionable guidance instead of a generic failure.
type TransitionError struct {
	Kind      error
	Current   entity.StatusCode
	ValidNext []entity.StatusCode
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v (current=%s, valid_next=%v)", e.Kind, e.Current, e.ValidNext)
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}
