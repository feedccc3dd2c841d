package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/civicteam/plancompras/internal/plan/testutil"
	"github.com/civicteam/plancompras/internal/shared/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// staticAuthorizer answers every capability check the same way.
type staticAuthorizer struct {
	allow bool
	err   error
}

func (a staticAuthorizer) HasCapability(ctx context.Context, actor Actor, capability string, plan *entity.PurchasePlan) (bool, error) {
	return a.allow, a.err
}

func newTestLifecycle(t *testing.T, db *gorm.DB, authorizer Authorizer) (*LifecycleService, *repository.Repositories) {
	t.Helper()
	repos := repository.NewRepositories(db)
	dispatcher := notify.NewDispatcher(notify.NopNotifier{}, nil, zap.NewNop())
	svc := NewLifecycleService(repos.Plan, repos.Ledger, repos.Audit, authorizer, dispatcher, nil, zap.NewNop())
	return svc, repos
}

func countLedgerRows(t *testing.T, db *gorm.DB, planID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&entity.StatusAssignment{}).Where("plan_id = ?", planID).Count(&n).Error; err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	return n
}

func countAuditRows(t *testing.T, db *gorm.DB, planID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&entity.AuditEntry{}).Where("plan_id = ?", planID).Count(&n).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	return n
}

func TestRequestTransitionFullChain(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newTestLifecycle(t, db, staticAuthorizer{allow: true})

	direction := testutil.SeedDirection(t, db, "DIMAO", "Dirección de Medio Ambiente")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	actor := Actor{ID: "u1", Name: "Ana"}

	chain := []entity.StatusCode{
		entity.StatusSent,
		entity.StatusEndorsed,
		entity.StatusApproved,
		entity.StatusApprovedForDecree,
	}
	for _, target := range chain {
		assignment, err := svc.RequestTransition(context.Background(), plan.ID, target, actor, "ok")
		if err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
		if assignment.Status != target {
			t.Fatalf("assignment status = %s, want %s", assignment.Status, target)
		}
	}

	history, err := svc.StatusHistory(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("ledger rows = %d, want 5", len(history))
	}
	for i, assignment := range history {
		if assignment.Seq != int64(i+1) {
			t.Fatalf("history[%d].Seq = %d, want %d", i, assignment.Seq, i+1)
		}
	}
	if history[4].Status != entity.StatusApprovedForDecree {
		t.Fatalf("final status = %s, want %s", history[4].Status, entity.StatusApprovedForDecree)
	}

	// One audit entry per transition.
	if n := countAuditRows(t, db, plan.ID); n != 4 {
		t.Fatalf("audit rows = %d, want 4", n)
	}
}

func TestRequestTransitionSkipStageFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newTestLifecycle(t, db, staticAuthorizer{allow: true})

	direction := testutil.SeedDirection(t, db, "DAF", "Dirección de Administración y Finanzas")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusEndorsed)

	// Decreed is only reachable through a decree attachment, never by
	// request, regardless of capability.
	_, err := svc.RequestTransition(context.Background(), plan.ID, entity.StatusDecreed, Actor{ID: "u1"}, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err is not a TransitionError: %v", err)
	}
	if te.Current != entity.StatusEndorsed {
		t.Fatalf("Current = %s, want %s", te.Current, entity.StatusEndorsed)
	}
	want := map[entity.StatusCode]bool{entity.StatusApproved: true, entity.StatusRejected: true}
	if len(te.ValidNext) != len(want) {
		t.Fatalf("ValidNext = %v, want Approved and Rejected", te.ValidNext)
	}
	for _, s := range te.ValidNext {
		if !want[s] {
			t.Fatalf("unexpected valid next state %s", s)
		}
	}

	if n := countLedgerRows(t, db, plan.ID); n != 2 {
		t.Fatalf("ledger rows = %d, want 2 (rejected request must not write)", n)
	}
}

func TestRequestTransitionUnauthorized(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newTestLifecycle(t, db, staticAuthorizer{allow: false})

	direction := testutil.SeedDirection(t, db, "SECPLA", "Secretaría de Planificación")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)

	_, err := svc.RequestTransition(context.Background(), plan.ID, entity.StatusSent, Actor{ID: "u1"}, "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	if n := countLedgerRows(t, db, plan.ID); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}
	if n := countAuditRows(t, db, plan.ID); n != 0 {
		t.Fatalf("audit rows = %d, want 0", n)
	}
}

func TestRequestTransitionAuthorizerErrorFailsClosed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newTestLifecycle(t, db, staticAuthorizer{allow: true, err: errors.New("role store down")})

	direction := testutil.SeedDirection(t, db, "DOM", "Dirección de Obras")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)

	_, err := svc.RequestTransition(context.Background(), plan.ID, entity.StatusSent, Actor{ID: "u1"}, "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized when authorizer errors", err)
	}
}

func TestRejectedIsTerminal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newTestLifecycle(t, db, staticAuthorizer{allow: true})

	direction := testutil.SeedDirection(t, db, "DIDECO", "Dirección de Desarrollo Comunitario")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusSent)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusRejected)

	for _, target := range entity.AllStatusCodes {
		_, err := svc.RequestTransition(context.Background(), plan.ID, target, Actor{ID: "u1"}, "")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("transition to %s from Rejected: err = %v, want ErrInvalidTransition", target, err)
		}
	}
}

func TestTransitionPlanNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newTestLifecycle(t, db, staticAuthorizer{allow: true})

	_, err := svc.RequestTransition(context.Background(), "nope", entity.StatusSent, Actor{ID: "u1"}, "")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newTestLifecycle(t, db, staticAuthorizer{allow: true})

	direction := testutil.SeedDirection(t, db, "DTRAN", "Dirección de Tránsito")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RequestTransition(context.Background(), plan.ID, entity.StatusSent, Actor{ID: "u1"}, "")
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		// The loser either hit the ledger guard or re-read the already
		// advanced status.
		if !errors.Is(err, ErrConcurrentModification) && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("loser err = %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}

	if n := countLedgerRows(t, db, plan.ID); n != 2 {
		t.Fatalf("ledger rows = %d, want 2", n)
	}
}

// failingNotifier reports every delivery attempt and always fails.
type failingNotifier struct {
	calls chan notify.Event
}

func (n *failingNotifier) Send(ctx context.Context, event notify.Event) error {
	n.calls <- event
	return errors.New("gateway unreachable")
}

func TestTransitionCommitsWhenNotificationFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	notifier := &failingNotifier{calls: make(chan notify.Event, 1)}
	dispatcher := notify.NewDispatcher(notifier, nil, zap.NewNop())
	svc := NewLifecycleService(repos.Plan, repos.Ledger, repos.Audit, staticAuthorizer{allow: true}, dispatcher, nil, zap.NewNop())

	direction := testutil.SeedDirection(t, db, "DSAL", "Dirección de Salud")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusSent)

	assignment, err := svc.RequestTransition(context.Background(), plan.ID, entity.StatusEndorsed, Actor{ID: "u1", Name: "Ana"}, "")
	if err != nil {
		t.Fatalf("transition must not fail on notification errors: %v", err)
	}
	if assignment.Status != entity.StatusEndorsed {
		t.Fatalf("status = %s, want Endorsed", assignment.Status)
	}
	if n := countLedgerRows(t, db, plan.ID); n != 3 {
		t.Fatalf("ledger rows = %d, want 3", n)
	}

	select {
	case event := <-notifier.calls:
		if event.TemplateKey != notify.TemplateEndorsed {
			t.Fatalf("template = %s, want %s", event.TemplateKey, notify.TemplateEndorsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notifier was never invoked")
	}
}
