package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/google/uuid"
)

// ItemService manages projects and their purchase line items. Item status
// changes are guarded by the parent plan's lifecycle: execution only runs
// against a decreed or published plan.
type ItemService struct {
	itemRepo   *repository.ItemRepository
	planRepo   *repository.PlanRepository
	ledgerRepo *repository.LedgerRepository
}

func NewItemService(
	itemRepo *repository.ItemRepository,
	planRepo *repository.PlanRepository,
	ledgerRepo *repository.LedgerRepository,
) *ItemService {
	return &ItemService{
		itemRepo:   itemRepo,
		planRepo:   planRepo,
		ledgerRepo: ledgerRepo,
	}
}

// CreateProjectRequest creates a project under a plan.
type CreateProjectRequest struct {
	PlanID     string `json:"plan_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	BudgetCode string `json:"budget_code"`
}

// CreateItemRequest creates a line item under a project.
type CreateItemRequest struct {
	ProjectID   string  `json:"project_id" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

func (s *ItemService) CreateProject(ctx context.Context, actor Actor, req *CreateProjectRequest) (*entity.Project, error) {
	if _, err := s.planRepo.FindByID(ctx, req.PlanID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}

	now := time.Now()
	project := &entity.Project{
		ID:         uuid.New().String()[:32],
		PlanID:     req.PlanID,
		Name:       req.Name,
		BudgetCode: req.BudgetCode,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.itemRepo.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

func (s *ItemService) ListProjects(ctx context.Context, planID string) ([]entity.Project, error) {
	return s.itemRepo.ListProjectsByPlan(ctx, planID)
}

func (s *ItemService) CreateItem(ctx context.Context, actor Actor, req *CreateItemRequest) (*entity.ItemPurchase, error) {
	if _, err := s.itemRepo.FindProjectByID(ctx, req.ProjectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("project not found: %w", err)
		}
		return nil, fmt.Errorf("find project: %w", err)
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	now := time.Now()
	item := &entity.ItemPurchase{
		ID:          uuid.New().String()[:32],
		ProjectID:   req.ProjectID,
		Description: req.Description,
		Quantity:    quantity,
		UnitPrice:   req.UnitPrice,
		Status:      entity.ItemStatusPending,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.itemRepo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return item, nil
}

// RequestItemStatusChange moves a line item through its execution states.
// The parent plan's current ledger status must be Decreed or Published;
// anything else locks the item and the request leaves no trace.
func (s *ItemService) RequestItemStatusChange(ctx context.Context, itemID, newStatus string, actor Actor) (*entity.ItemPurchase, error) {
	if !entity.ValidItemStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown item status %q", ErrInvalidState, newStatus)
	}

	item, err := s.itemRepo.FindItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("item not found: %w", err)
		}
		return nil, fmt.Errorf("find item: %w", err)
	}
	if item.Project == nil {
		return nil, fmt.Errorf("item %s has no project loaded", itemID)
	}

	current, err := s.ledgerRepo.Current(ctx, item.Project.PlanID)
	if err != nil {
		return nil, fmt.Errorf("read plan status: %w", err)
	}
	if current.Status != entity.StatusDecreed && current.Status != entity.StatusPublished {
		return nil, fmt.Errorf("%w: plan is %s", ErrItemStatusLocked, current.Status.Label())
	}

	previous := item.Status
	err = s.itemRepo.UpdateItemStatusWithAudit(ctx, itemID, newStatus, &entity.AuditEntry{
		PlanID:      item.Project.PlanID,
		Action:      entity.AuditActionItemStatusChange,
		Description: fmt.Sprintf("Item %q moved from %s to %s", item.Description, previous, newStatus),
		Detail: entity.JSONB{
			"item_id":     item.ID,
			"project_id":  item.ProjectID,
			"from_status": previous,
			"to_status":   newStatus,
		},
		ActorID:   actor.ID,
		ActorName: actor.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("update item status: %w", err)
	}

	item.Status = newStatus
	return item, nil
}
