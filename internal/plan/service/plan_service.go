package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlanService handles plan creation and reads. Everything status-related
// goes through the LifecycleService.
type PlanService struct {
	planRepo      *repository.PlanRepository
	ledgerRepo    *repository.LedgerRepository
	directionRepo *repository.DirectionRepository
}

func NewPlanService(planRepo *repository.PlanRepository, ledgerRepo *repository.LedgerRepository, directionRepo *repository.DirectionRepository) *PlanService {
	return &PlanService{
		planRepo:      planRepo,
		ledgerRepo:    ledgerRepo,
		directionRepo: directionRepo,
	}
}

// CreatePlanRequest creates a plan manually (outside annual generation).
type CreatePlanRequest struct {
	Name        string `json:"name" binding:"required"`
	Year        int    `json:"year" binding:"required"`
	DirectionID string `json:"direction_id" binding:"required"`
}

// PlanListResult is a paginated plan listing.
type PlanListResult struct {
	Items      []entity.PurchasePlan `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// Create creates a Draft plan with its initial ledger row. At most one plan
// may exist per (direction, year); the unique index backs the check.
func (s *PlanService) Create(ctx context.Context, actor Actor, req *CreatePlanRequest) (*entity.PurchasePlan, error) {
	direction, err := s.directionRepo.FindByID(ctx, req.DirectionID)
	if err != nil {
		return nil, fmt.Errorf("direction not found: %w", err)
	}

	if _, err := s.planRepo.FindByDirectionYear(ctx, req.DirectionID, req.Year); err == nil {
		return nil, ErrDuplicatePlan
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing plan: %w", err)
	}

	now := time.Now()
	plan := &entity.PurchasePlan{
		ID:          uuid.New().String()[:32],
		Name:        req.Name,
		Year:        req.Year,
		DirectionID: direction.ID,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.planRepo.Create(ctx, plan); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicatePlan
		}
		return nil, fmt.Errorf("create plan: %w", err)
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
		Description: fmt.Sprintf("Plan %q created for %s, year %d", plan.Name, direction.Name, plan.Year),
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		CreatedAt:   now,
	}
	if err := s.ledgerRepo.AppendFirst(ctx, assignment, auditEntry); err != nil {
		return nil, fmt.Errorf("write initial status: %w", err)
	}

	return s.planRepo.FindByID(ctx, plan.ID)
}

// Get returns a plan with direction and document bindings preloaded.
func (s *PlanService) Get(ctx context.Context, id string) (*entity.PurchasePlan, error) {
	plan, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	return plan, nil
}

// List returns plans filtered and paginated.
func (s *PlanService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) (*PlanListResult, error) {
	plans, total, err := s.planRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &PlanListResult{
		Items:      plans,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Rename updates the plan name. Names are the only plan field editable
// outside the lifecycle.
func (s *PlanService) Rename(ctx context.Context, id, name string) (*entity.PurchasePlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.Name = name
	plan.UpdatedAt = time.Now()
	if err := s.planRepo.Update(ctx, plan); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return plan, nil
}
