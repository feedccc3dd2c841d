package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/testutil"
	"github.com/google/uuid"
)

func decreeRow(planID string) *entity.Decree {
	return &entity.Decree{
		ID:         uuid.New().String()[:32],
		Number:     "100/2026",
		StorageKey: "decrees/" + planID + "/x_decreto.pdf",
		FileName:   "decreto.pdf",
		FileSize:   16,
		MimeType:   "application/pdf",
		UploadedBy: "u1",
		CreatedAt:  time.Now(),
	}
}

func auditRow(planID, action string) *entity.AuditEntry {
	return &entity.AuditEntry{
		ID:        uuid.New().String()[:32],
		PlanID:    planID,
		Action:    action,
		ActorID:   "u1",
		CreatedAt: time.Now(),
	}
}

func TestAttachDecreeRollsBackOnLedgerConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewDocumentRepository(db)

	direction := testutil.SeedDirection(t, db, "DIMAO", "Dirección de Medio Ambiente")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusApprovedForDecree) // seq 2

	// A racing transition already took seq 3.
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusRejected)

	err := repo.AttachDecree(context.Background(), plan.ID, decreeRow(plan.ID),
		assignment(plan.ID, 3, entity.StatusDecreed),
		auditRow(plan.ID, entity.AuditActionDecreeAttached))
	if !errors.Is(err, ErrStaleLedger) {
		t.Fatalf("err = %v, want ErrStaleLedger", err)
	}

	var reloaded entity.PurchasePlan
	if err := db.First(&reloaded, "id = ?", plan.ID).Error; err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	if reloaded.DecreeID != nil {
		t.Fatalf("decree binding must roll back with the ledger conflict")
	}
	var decreeCount, auditCount int64
	db.Model(&entity.Decree{}).Count(&decreeCount)
	db.Model(&entity.AuditEntry{}).Where("plan_id = ?", plan.ID).Count(&auditCount)
	if decreeCount != 0 || auditCount != 0 {
		t.Fatalf("decree rows = %d, audit rows = %d, want 0/0", decreeCount, auditCount)
	}
}

func TestDetachDecreeRollsBackOnLedgerConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewDocumentRepository(db)

	direction := testutil.SeedDirection(t, db, "DAF", "Dirección de Administración y Finanzas")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusApprovedForDecree)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusDecreed) // seq 3
	decree := testutil.SeedDecree(t, db, plan.ID, "321/2026")

	// A concurrent publish commits seq 4 between the detacher's read of
	// seq 3 and its write.
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusPublished)

	err := repo.DetachDecree(context.Background(), plan.ID,
		assignment(plan.ID, 4, entity.StatusApprovedForDecree),
		auditRow(plan.ID, entity.AuditActionDecreeRemoved))
	if !errors.Is(err, ErrStaleLedger) {
		t.Fatalf("err = %v, want ErrStaleLedger", err)
	}

	var reloaded entity.PurchasePlan
	if err := db.First(&reloaded, "id = ?", plan.ID).Error; err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	if reloaded.DecreeID == nil || *reloaded.DecreeID != decree.ID {
		t.Fatalf("decree binding must survive the failed detach")
	}
	var auditCount int64
	db.Model(&entity.AuditEntry{}).Where("plan_id = ?", plan.ID).Count(&auditCount)
	if auditCount != 0 {
		t.Fatalf("audit rows = %d, want 0 after rollback", auditCount)
	}
}

func TestDetachDecreeWithoutAssignmentClearsBinding(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewDocumentRepository(db)

	direction := testutil.SeedDirection(t, db, "SECPLA", "Secretaría de Planificación")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SeedDecree(t, db, plan.ID, "55/2026")

	if err := repo.DetachDecree(context.Background(), plan.ID, nil,
		auditRow(plan.ID, entity.AuditActionDecreeRemoved)); err != nil {
		t.Fatalf("detach: %v", err)
	}

	var reloaded entity.PurchasePlan
	db.First(&reloaded, "id = ?", plan.ID)
	if reloaded.DecreeID != nil {
		t.Fatalf("decree binding not cleared")
	}
	var ledgerCount int64
	db.Model(&entity.StatusAssignment{}).Where("plan_id = ?", plan.ID).Count(&ledgerCount)
	if ledgerCount != 1 {
		t.Fatalf("ledger rows = %d, want untouched 1", ledgerCount)
	}
}
