package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Checked  int      `json:"checked"`
	Repaired int      `json:"repaired"`
	PlanIDs  []string `json:"plan_ids,omitempty"`
}

// GenerateReport summarizes one annual generation run.
type GenerateReport struct {
	Year    int      `json:"year"`
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	PlanIDs []string `json:"plan_ids,omitempty"`
}

// ReconcileService runs the administrative repair and generation jobs. Both
// are idempotent and safe to re-run; repairs go through the same append-only
// path as regular transitions but skip capability checks, since the job acts
// with system authority.
type ReconcileService struct {
	lifecycle     *LifecycleService
	planRepo      *repository.PlanRepository
	ledgerRepo    *repository.LedgerRepository
	directionRepo *repository.DirectionRepository
	logger        *zap.Logger
}

func NewReconcileService(
	lifecycle *LifecycleService,
	planRepo *repository.PlanRepository,
	ledgerRepo *repository.LedgerRepository,
	directionRepo *repository.DirectionRepository,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		lifecycle:     lifecycle,
		planRepo:      planRepo,
		ledgerRepo:    ledgerRepo,
		directionRepo: directionRepo,
		logger:        logger,
	}
}

// ReconcileDecreeStatus repairs plans that carry a decree binding but whose
// ledger never recorded the Decreed status (partial failures, legacy
// imports). Plans already Decreed or Published are left alone: publication
// supersedes the decree status and must never be rolled back by a repair.
func (s *ReconcileService) ReconcileDecreeStatus(ctx context.Context, actor Actor) (*ReconcileReport, error) {
	plans, err := s.planRepo.ListWithDecree(ctx)
	if err != nil {
		return nil, fmt.Errorf("list decreed plans: %w", err)
	}

	report := &ReconcileReport{}
	for i := range plans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		plan := &plans[i]
		report.Checked++

		current, err := s.ledgerRepo.Current(ctx, plan.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.logger.Warn("Plan has no ledger rows, skipping", zap.String("plan_id", plan.ID))
				continue
			}
			return report, fmt.Errorf("read status of plan %s: %w", plan.ID, err)
		}
		if current.Status == entity.StatusDecreed || current.Status == entity.StatusPublished {
			continue
		}

		_, err = s.lifecycle.apply(ctx, plan, current, entity.StatusDecreed, actor, "",
			entity.AuditActionCorrection,
			fmt.Sprintf("Correction: decree attached but status was %s, set to Decreed", current.Status.Label()))
		if err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				// Someone moved the plan mid-sweep; the next run picks it up.
				s.logger.Warn("Plan changed during reconciliation, skipping", zap.String("plan_id", plan.ID))
				continue
			}
			return report, fmt.Errorf("repair plan %s: %w", plan.ID, err)
		}

		report.Repaired++
		report.PlanIDs = append(report.PlanIDs, plan.ID)
		s.logger.Info("Repaired plan status",
			zap.String("plan_id", plan.ID),
			zap.String("was", string(current.Status)),
		)
	}
	return report, nil
}

// GenerateAnnual creates the year's Draft plan for every active direction
// that does not have one yet. Directions with an existing plan are counted
// as skipped, which makes the run repeatable.
func (s *ReconcileService) GenerateAnnual(ctx context.Context, year int, actor Actor) (*GenerateReport, error) {
	directions, err := s.directionRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list directions: %w", err)
	}

	report := &GenerateReport{Year: year}
	for i := range directions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		direction := &directions[i]

		if _, err := s.planRepo.FindByDirectionYear(ctx, direction.ID, year); err == nil {
			report.Skipped++
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return report, fmt.Errorf("check plan for direction %s: %w", direction.Code, err)
		}

		now := time.Now()
		plan := &entity.PurchasePlan{
			ID:          uuid.New().String()[:32],
			Name:        fmt.Sprintf("Plan de Compras %d - %s", year, direction.Name),
			Year:        year,
			DirectionID: direction.ID,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.planRepo.Create(ctx, plan); err != nil {
			// Lost the race against a concurrent run: not an error.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				report.Skipped++
				continue
			}
			return report, fmt.Errorf("create plan for direction %s: %w", direction.Code, err)
		}

		assignment := &entity.StatusAssignment{
			ID:        uuid.New().String()[:32],
			PlanID:    plan.ID,
			Status:    entity.StatusDraft,
			ActorID:   actor.ID,
			CreatedAt: now,
		}
		auditEntry := &entity.AuditEntry{
			ID:          uuid.New().String()[:32],
			PlanID:      plan.ID,
			Action:      entity.AuditActionPlanCreated,
			Description: fmt.Sprintf("Annual generation created plan for %s, year %d", direction.Name, year),
			ActorID:     actor.ID,
			ActorName:   actor.Name,
			CreatedAt:   now,
		}
		if err := s.lifecycle.ledgerRepo.AppendFirst(ctx, assignment, auditEntry); err != nil {
			return report, fmt.Errorf("write initial status for direction %s: %w", direction.Code, err)
		}

		report.Created++
		report.PlanIDs = append(report.PlanIDs, plan.ID)
	}

	s.logger.Info("Annual generation finished",
		zap.Int("year", year),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}
