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

func newTestPlanService(t *testing.T, db *gorm.DB) *PlanService {
	t.Helper()
	repos := repository.NewRepositories(db)
	return NewPlanService(repos.Plan, repos.Ledger, repos.Direction)
}

func TestCreatePlanStartsInDraft(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestPlanService(t, db)

	direction := testutil.SeedDirection(t, db, "DIMAO", "Dirección de Medio Ambiente")

	plan, err := svc.Create(context.Background(), Actor{ID: "u1", Name: "Ana"}, &CreatePlanRequest{
		Name:        "Plan de Compras 2026",
		Year:        2026,
		DirectionID: direction.ID,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	if got := currentStatus(t, db, plan.ID); got != entity.StatusDraft {
		t.Fatalf("status = %s, want Draft", got)
	}
	if n := countLedgerRows(t, db, plan.ID); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}
	var auditEntry entity.AuditEntry
	if err := db.Where("plan_id = ? AND action = ?", plan.ID, entity.AuditActionPlanCreated).First(&auditEntry).Error; err != nil {
		t.Fatalf("plan_created audit entry missing: %v", err)
	}
	if plan.Direction == nil || plan.Direction.ID != direction.ID {
		t.Fatalf("direction not preloaded")
	}
}

func TestCreatePlanRejectsDuplicateDirectionYear(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestPlanService(t, db)

	direction := testutil.SeedDirection(t, db, "DAF", "Dirección de Administración y Finanzas")
	testutil.SeedPlan(t, db, direction.ID, 2026)

	_, err := svc.Create(context.Background(), Actor{ID: "u1"}, &CreatePlanRequest{
		Name:        "Duplicado",
		Year:        2026,
		DirectionID: direction.ID,
	})
	if !errors.Is(err, ErrDuplicatePlan) {
		t.Fatalf("err = %v, want ErrDuplicatePlan", err)
	}

	// Same direction, another year is fine.
	if _, err := svc.Create(context.Background(), Actor{ID: "u1"}, &CreatePlanRequest{
		Name:        "Plan 2027",
		Year:        2027,
		DirectionID: direction.ID,
	}); err != nil {
		t.Fatalf("create for another year: %v", err)
	}
}

func TestGetPlanNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestPlanService(t, db)

	_, err := svc.Get(context.Background(), "missing")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}
}
