package service

import (
	"context"
	"testing"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestReconcileService(t *testing.T, db *gorm.DB) *ReconcileService {
	t.Helper()
	lifecycle, repos := newTestLifecycle(t, db, staticAuthorizer{allow: false})
	// allow:false on purpose: reconciliation acts with system authority and
	// must not consult the authorizer at all.
	return NewReconcileService(lifecycle, repos.Plan, repos.Ledger, repos.Direction, zap.NewNop())
}

func TestReconcileRepairsPlanWithDecreeButStaleStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestReconcileService(t, db)

	direction := testutil.SeedDirection(t, db, "DIMAO", "Dirección de Medio Ambiente")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusApproved)
	testutil.SeedDecree(t, db, plan.ID, "321/2026")

	report, err := svc.ReconcileDecreeStatus(context.Background(), Actor{ID: "system", Name: "Sistema"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Checked != 1 || report.Repaired != 1 {
		t.Fatalf("report = %+v, want checked 1 repaired 1", report)
	}

	if got := currentStatus(t, db, plan.ID); got != entity.StatusDecreed {
		t.Fatalf("status = %s, want Decreed", got)
	}
	var auditEntry entity.AuditEntry
	if err := db.Where("plan_id = ? AND action = ?", plan.ID, entity.AuditActionCorrection).First(&auditEntry).Error; err != nil {
		t.Fatalf("correction audit entry missing: %v", err)
	}

	// Second run is a no-op.
	ledgerBefore := countLedgerRows(t, db, plan.ID)
	report, err = svc.ReconcileDecreeStatus(context.Background(), Actor{ID: "system"})
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if report.Repaired != 0 {
		t.Fatalf("second run repaired = %d, want 0", report.Repaired)
	}
	if n := countLedgerRows(t, db, plan.ID); n != ledgerBefore {
		t.Fatalf("ledger rows = %d, want unchanged %d", n, ledgerBefore)
	}
}

func TestReconcileLeavesPublishedPlansAlone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestReconcileService(t, db)

	direction := testutil.SeedDirection(t, db, "DAF", "Dirección de Administración y Finanzas")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusDecreed)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusPublished)
	testutil.SeedDecree(t, db, plan.ID, "400/2026")

	report, err := svc.ReconcileDecreeStatus(context.Background(), Actor{ID: "system"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Repaired != 0 {
		t.Fatalf("repaired = %d, want 0: publication must never be rolled back", report.Repaired)
	}
	if got := currentStatus(t, db, plan.ID); got != entity.StatusPublished {
		t.Fatalf("status = %s, want Published", got)
	}
}

func TestGenerateAnnualIsIdempotentPerDirection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestReconcileService(t, db)

	d1 := testutil.SeedDirection(t, db, "SECPLA", "Secretaría de Planificación")
	d2 := testutil.SeedDirection(t, db, "DOM", "Dirección de Obras")
	testutil.SeedPlan(t, db, d1.ID, 2027)

	report, err := svc.GenerateAnnual(context.Background(), 2027, Actor{ID: "system", Name: "Sistema"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 1 || report.Skipped != 1 {
		t.Fatalf("report = %+v, want created 1 skipped 1", report)
	}

	var plan entity.PurchasePlan
	if err := db.Where("direction_id = ? AND year = ?", d2.ID, 2027).First(&plan).Error; err != nil {
		t.Fatalf("generated plan missing: %v", err)
	}
	if got := currentStatus(t, db, plan.ID); got != entity.StatusDraft {
		t.Fatalf("generated plan status = %s, want Draft", got)
	}

	report, err = svc.GenerateAnnual(context.Background(), 2027, Actor{ID: "system"})
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if report.Created != 0 || report.Skipped != 2 {
		t.Fatalf("second report = %+v, want created 0 skipped 2", report)
	}
}

func TestGenerateAnnualHonorsCancellation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestReconcileService(t, db)

	testutil.SeedDirection(t, db, "DIDECO", "Dirección de Desarrollo Comunitario")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GenerateAnnual(ctx, 2027, Actor{ID: "system"})
	if err == nil {
		t.Fatalf("expected context error")
	}
}
