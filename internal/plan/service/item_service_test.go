package service

import (
	"context"
	"errors"
	"testing"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/civicteam/plancompras/internal/plan/testutil"
	"gorm.io/gorm"
)

func newTestItemService(t *testing.T, db *gorm.DB) *ItemService {
	t.Helper()
	repos := repository.NewRepositories(db)
	return NewItemService(repos.Item, repos.Plan, repos.Ledger)
}

func TestItemStatusChangeLockedBeforeDecree(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestItemService(t, db)

	direction := testutil.SeedDirection(t, db, "DIMAO", "Dirección de Medio Ambiente")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	_, item := testutil.SeedProjectWithItem(t, db, plan.ID)

	locked := []entity.StatusCode{
		entity.StatusDraft,
		entity.StatusSent,
		entity.StatusEndorsed,
		entity.StatusApproved,
		entity.StatusApprovedForDecree,
		entity.StatusRejected,
	}
	for _, status := range locked {
		if status != entity.StatusDraft {
			testutil.SetPlanStatus(t, db, plan.ID, status)
		}
		_, err := svc.RequestItemStatusChange(context.Background(), item.ID, entity.ItemStatusInExecution, Actor{ID: "u1"})
		if !errors.Is(err, ErrItemStatusLocked) {
			t.Fatalf("plan %s: err = %v, want ErrItemStatusLocked", status, err)
		}
	}

	var reloaded entity.ItemPurchase
	db.First(&reloaded, "id = ?", item.ID)
	if reloaded.Status != entity.ItemStatusPending {
		t.Fatalf("item status = %s, want untouched pending", reloaded.Status)
	}
	if n := countAuditRows(t, db, plan.ID); n != 0 {
		t.Fatalf("audit rows = %d, want 0", n)
	}
}

func TestItemStatusChangeAllowedWhenDecreed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestItemService(t, db)

	direction := testutil.SeedDirection(t, db, "DAF", "Dirección de Administración y Finanzas")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusDecreed)
	_, item := testutil.SeedProjectWithItem(t, db, plan.ID)

	updated, err := svc.RequestItemStatusChange(context.Background(), item.ID, entity.ItemStatusInExecution, Actor{ID: "u1", Name: "Ana"})
	if err != nil {
		t.Fatalf("item status change: %v", err)
	}
	if updated.Status != entity.ItemStatusInExecution {
		t.Fatalf("status = %s, want in_execution", updated.Status)
	}

	var auditEntry entity.AuditEntry
	if err := db.Where("plan_id = ? AND action = ?", plan.ID, entity.AuditActionItemStatusChange).First(&auditEntry).Error; err != nil {
		t.Fatalf("item_status_change audit entry missing: %v", err)
	}
}

func TestItemStatusChangeAllowedWhenPublished(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestItemService(t, db)

	direction := testutil.SeedDirection(t, db, "SECPLA", "Secretaría de Planificación")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusPublished)
	_, item := testutil.SeedProjectWithItem(t, db, plan.ID)

	updated, err := svc.RequestItemStatusChange(context.Background(), item.ID, entity.ItemStatusPaid, Actor{ID: "u1"})
	if err != nil {
		t.Fatalf("item status change: %v", err)
	}
	if updated.Status != entity.ItemStatusPaid {
		t.Fatalf("status = %s, want paid", updated.Status)
	}
}

func TestItemStatusChangeUnknownStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestItemService(t, db)

	direction := testutil.SeedDirection(t, db, "DOM", "Dirección de Obras")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusDecreed)
	_, item := testutil.SeedProjectWithItem(t, db, plan.ID)

	_, err := svc.RequestItemStatusChange(context.Background(), item.ID, "vanished", Actor{ID: "u1"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}
