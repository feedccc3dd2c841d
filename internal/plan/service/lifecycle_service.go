package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/civicteam/plancompras/internal/shared/notify"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Capabilities gating lifecycle edges. These are permission codes in the
// role-permission store; the mapping from edge to capability lives here,
// never in the store.
const (
	CapabilitySend    = "plan:send"
	CapabilityVisar   = "plan:visar"
	CapabilityReject  = "plan:reject"
	CapabilityApprove = "plan:approve"
	CapabilityPublish = "plan:publish"
)

// Actor is the acting principal, as extracted from the request's claims.
type Actor struct {
	ID   string
	Name string
}

// Authorizer evaluates whether an actor holds a capability over a plan.
// The engine treats it as opaque and fails closed when it errors.
type Authorizer interface {
	HasCapability(ctx context.Context, actor Actor, capability string, plan *entity.PurchasePlan) (bool, error)
}

type edge struct {
	from entity.StatusCode
	to   entity.StatusCode
}

// transitions is the full set of caller-requestable edges. The two decree
// edges (ApprovedForDecree→Decreed and back) are deliberately absent: they
// fire only as document-binding side effects in DocumentService. Rejected
// is terminal.
var transitions = map[edge]string{
	{entity.StatusDraft, entity.StatusSent}:                 CapabilitySend,
	{entity.StatusSent, entity.StatusEndorsed}:              CapabilityVisar,
	{entity.StatusSent, entity.StatusRejected}:              CapabilityReject,
	{entity.StatusEndorsed, entity.StatusApproved}:          CapabilityApprove,
	{entity.StatusEndorsed, entity.StatusRejected}:          CapabilityReject,
	{entity.StatusApproved, entity.StatusApprovedForDecree}: CapabilityApprove,
	{entity.StatusApproved, entity.StatusRejected}:          CapabilityReject,
	{entity.StatusDecreed, entity.StatusPublished}:          CapabilityPublish,
}

// notifyTemplates maps a reached status to its notification template.
// Draft and Sent have no template: nobody is notified on save/submit.
var notifyTemplates = map[entity.StatusCode]string{
	entity.StatusEndorsed:          notify.TemplateEndorsed,
	entity.StatusApproved:          notify.TemplateApproved,
	entity.StatusApprovedForDecree: notify.TemplateApprovedForDecree,
	entity.StatusDecreed:           notify.TemplateDecreed,
	entity.StatusPublished:         notify.TemplatePublished,
	entity.StatusRejected:          notify.TemplateRejected,
}

// ValidNextStates returns the statuses reachable from a given status
// through caller-requestable edges.
func ValidNextStates(from entity.StatusCode) []entity.StatusCode {
	var next []entity.StatusCode
	for _, to := range entity.AllStatusCodes {
		if _, ok := transitions[edge{from, to}]; ok {
			next = append(next, to)
		}
	}
	return next
}

// LifecycleService is the purchase-plan state machine. Every accepted
// transition appends exactly one status assignment and one audit entry,
// atomically, and dispatches a notification after commit.
type LifecycleService struct {
	planRepo   *repository.PlanRepository
	ledgerRepo *repository.LedgerRepository
	auditRepo  *repository.AuditRepository
	authorizer Authorizer
	dispatcher *notify.Dispatcher
	rdb        *redis.Client
	logger     *zap.Logger
}

func NewLifecycleService(
	planRepo *repository.PlanRepository,
	ledgerRepo *repository.LedgerRepository,
	auditRepo *repository.AuditRepository,
	authorizer Authorizer,
	dispatcher *notify.Dispatcher,
	rdb *redis.Client,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		planRepo:   planRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		authorizer: authorizer,
		dispatcher: dispatcher,
		rdb:        rdb,
		logger:     logger,
	}
}

// RequestTransition validates and applies a caller-requested transition.
// Preconditions are checked against the ledger's current row, never a
// cached field. Unknown edges fail as InvalidTransition before the
// capability is even consulted; capability failures (including Authorizer
// errors, which fail closed) leave no trace in the ledger or audit trail.
func (s *LifecycleService) RequestTransition(ctx context.Context, planID string, target entity.StatusCode, actor Actor, comment string) (*entity.StatusAssignment, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}

	unlock, err := s.lockPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.ledgerRepo.Current(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("read current status: %w", err)
	}

	capability, ok := transitions[edge{current.Status, target}]
	if !ok {
		return nil, &TransitionError{
			Kind:      ErrInvalidTransition,
			Current:   current.Status,
			ValidNext: ValidNextStates(current.Status),
		}
	}

	allowed, err := s.authorizer.HasCapability(ctx, actor, capability, plan)
	if err != nil {
		s.logger.Warn("Authorizer error, denying transition",
			zap.String("plan_id", planID),
			zap.String("capability", capability),
			zap.Error(err),
		)
		allowed = false
	}
	if !allowed {
		return nil, &TransitionError{
			Kind:      ErrUnauthorized,
			Current:   current.Status,
			ValidNext: ValidNextStates(current.Status),
		}
	}

	assignment, err := s.apply(ctx, plan, current, target, actor, comment, entity.AuditActionStatusChange,
		fmt.Sprintf("Status changed from %s to %s", current.Status.Label(), target.Label()))
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// newTransition builds the paired status assignment and audit entry for a
// move from current to target. Callers must persist both atomically.
func (s *LifecycleService) newTransition(plan *entity.PurchasePlan, current *entity.StatusAssignment, target entity.StatusCode, actor Actor, comment, auditAction, auditDescription string) (*entity.StatusAssignment, *entity.AuditEntry) {
	now := time.Now()
	assignment := &entity.StatusAssignment{
		ID:        uuid.New().String()[:32],
		PlanID:    plan.ID,
		Seq:       current.Seq + 1,
		Status:    target,
		Comment:   comment,
		ActorID:   actor.ID,
		CreatedAt: now,
	}
	auditEntry := &entity.AuditEntry{
		ID:          uuid.New().String()[:32],
		PlanID:      plan.ID,
		Action:      auditAction,
		Description: auditDescription,
		Detail: entity.JSONB{
			"from_status":    string(current.Status),
			"from_status_id": current.Status.LegacyID(),
			"to_status":      string(target),
			"to_status_id":   target.LegacyID(),
			"comment":        comment,
		},
		ActorID:   actor.ID,
		ActorName: actor.Name,
		CreatedAt: now,
	}
	return assignment, auditEntry
}

// apply appends the status assignment + audit entry pair and dispatches
// the notification for the reached state. Shared by requested transitions
// and the reconciliation repair; document side effects go through the same
// pair builder but persist it together with the binding change.
func (s *LifecycleService) apply(ctx context.Context, plan *entity.PurchasePlan, current *entity.StatusAssignment, target entity.StatusCode, actor Actor, comment, auditAction, auditDescription string) (*entity.StatusAssignment, error) {
	assignment, auditEntry := s.newTransition(plan, current, target, actor, comment, auditAction, auditDescription)

	if err := s.ledgerRepo.Append(ctx, assignment, auditEntry); err != nil {
		if errors.Is(err, repository.ErrStaleLedger) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("append status assignment: %w", err)
	}

	s.notifyStatus(plan, target, actor, comment, assignment.CreatedAt)
	return assignment, nil
}

func (s *LifecycleService) notifyStatus(plan *entity.PurchasePlan, status entity.StatusCode, actor Actor, comment string, at time.Time) {
	template, ok := notifyTemplates[status]
	if !ok {
		return
	}
	directionName := ""
	if plan.Direction != nil {
		directionName = plan.Direction.Name
	}
	s.dispatcher.Dispatch(notify.Event{
		TemplateKey:   template,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		Year:          plan.Year,
		DirectionName: directionName,
		ActorName:     actor.Name,
		Comment:       comment,
		OccurredAt:    at,
	})
}

// lockPlan takes a best-effort per-plan advisory lock in redis to cut
// retry churn between processes. The ledger's append guard remains the
// authoritative serialization; without redis this is a no-op.
func (s *LifecycleService) lockPlan(ctx context.Context, planID string) (func(), error) {
	if s.rdb == nil {
		return func() {}, nil
	}
	key := "plancompras:plan-lock:" + planID
	token := uuid.New().String()

	ok, err := s.rdb.SetNX(ctx, key, token, 10*time.Second).Result()
	if err != nil {
		// Redis being down must not block transitions.
		s.logger.Warn("Plan lock unavailable", zap.String("plan_id", planID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrConcurrentModification
	}
	return func() {
		// Only release our own lock.
		s.rdb.Eval(context.Background(),
			`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`,
			[]string{key}, token)
	}, nil
}

// CurrentStatus returns the plan's current status assignment.
func (s *LifecycleService) CurrentStatus(ctx context.Context, planID string) (*entity.StatusAssignment, error) {
	current, err := s.ledgerRepo.Current(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("read current status: %w", err)
	}
	return current, nil
}

// StatusHistory returns the full ledger oldest to newest.
func (s *LifecycleService) StatusHistory(ctx context.Context, planID string) ([]entity.StatusAssignment, error) {
	return s.ledgerRepo.History(ctx, planID)
}

// AuditHistory returns the plan's audit trail oldest to newest.
func (s *LifecycleService) AuditHistory(ctx context.Context, planID string) ([]entity.AuditEntry, error) {
	return s.auditRepo.ListByPlan(ctx, planID)
}
