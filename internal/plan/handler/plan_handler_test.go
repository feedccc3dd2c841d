package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/civicteam/plancompras/internal/config"
	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/civicteam/plancompras/internal/plan/testutil"
	"github.com/civicteam/plancompras/internal/shared/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:             testutil.JWTSecret,
			AccessTokenExpire:  time.Hour,
			RefreshTokenExpire: 24 * time.Hour,
			Issuer:             "plancompras",
		},
	}
}

func setupEnv(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	cfg := testConfig()
	repos := repository.NewRepositories(db)
	dispatcher := notify.NewDispatcher(notify.NopNotifier{}, nil, zap.NewNop())
	services := service.NewServices(repos, nil, cfg, dispatcher, zap.NewNop())
	handlers := NewHandlers(services, cfg)

	r := testutil.SetupRouter()
	r.POST("/api/v1/auth/login", handlers.Auth.Login)

	api := testutil.AuthGroup(r, "/api/v1")
	api.POST("/plans", handlers.Plan.Create)
	api.GET("/plans/:id", handlers.Plan.Get)
	api.POST("/plans/:id/transition", handlers.Plan.Transition)
	api.GET("/plans/:id/status", handlers.Plan.CurrentStatus)
	api.GET("/plans/:id/history", handlers.Plan.StatusHistory)
	api.GET("/plans/:id/audit", handlers.Plan.AuditTrail)

	return r, db
}

func TestTransitionEndpoint(t *testing.T) {
	r, db := setupEnv(t)

	direction := testutil.SeedDirection(t, db, "DIMAO", "Dirección de Medio Ambiente")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	user := testutil.SeedUser(t, db, "ana", "Ana Rojas", nil)
	testutil.GrantCapabilities(t, db, user.ID, "plan:send")
	token := testutil.GenerateTestToken(user.ID, user.Name, nil)

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/plans/"+plan.ID+"/transition",
		map[string]string{"target": "sent", "comment": "listo para revisión"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["status"] != "sent" {
		t.Fatalf("status = %v, want sent", data["status"])
	}
	if data["seq"].(float64) != 2 {
		t.Fatalf("seq = %v, want 2", data["seq"])
	}
}

func TestTransitionEndpointInvalidReturnsGuidance(t *testing.T) {
	r, db := setupEnv(t)

	direction := testutil.SeedDirection(t, db, "DAF", "Dirección de Administración y Finanzas")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	user := testutil.SeedUser(t, db, "ana", "Ana Rojas", nil)
	testutil.GrantCapabilities(t, db, user.ID, "plan:publish")
	token := testutil.GenerateTestToken(user.ID, user.Name, nil)

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/plans/"+plan.ID+"/transition",
		map[string]string{"target": "published"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["current_status"] != "draft" {
		t.Fatalf("current_status = %v, want draft", data["current_status"])
	}
	validNext := data["valid_next"].([]interface{})
	if len(validNext) != 1 || validNext[0] != "sent" {
		t.Fatalf("valid_next = %v, want [sent]", validNext)
	}
}

func TestTransitionEndpointForbiddenWithoutCapability(t *testing.T) {
	r, db := setupEnv(t)

	direction := testutil.SeedDirection(t, db, "SECPLA", "Secretaría de Planificación")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	user := testutil.SeedUser(t, db, "ana", "Ana Rojas", nil)
	token := testutil.GenerateTestToken(user.ID, user.Name, nil)

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/plans/"+plan.ID+"/transition",
		map[string]string{"target": "sent"}, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body = %s", w.Code, w.Body.String())
	}
}

func TestTransitionEndpointDirectionScope(t *testing.T) {
	r, db := setupEnv(t)

	d1 := testutil.SeedDirection(t, db, "DOM", "Dirección de Obras")
	d2 := testutil.SeedDirection(t, db, "DTRAN", "Dirección de Tránsito")
	plan := testutil.SeedPlan(t, db, d1.ID, 2026)

	// A director bound to another direction may not send this plan.
	outsider := testutil.SeedUser(t, db, "pedro", "Pedro Soto", &d2.ID)
	testutil.GrantCapabilities(t, db, outsider.ID, "plan:send")
	token := testutil.GenerateTestToken(outsider.ID, outsider.Name, nil)

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/plans/"+plan.ID+"/transition",
		map[string]string{"target": "sent"}, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body = %s", w.Code, w.Body.String())
	}
}

func TestCurrentStatusExposesLegacyID(t *testing.T) {
	r, db := setupEnv(t)

	direction := testutil.SeedDirection(t, db, "DIDECO", "Dirección de Desarrollo Comunitario")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusDecreed)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusPublished)

	w := testutil.DoRequest(r, http.MethodGet, "/api/v1/plans/"+plan.ID+"/status", nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["legacy_id"].(float64) != 7 {
		t.Fatalf("legacy_id = %v, want 7", data["legacy_id"])
	}
	if data["label"] != "Publicado" {
		t.Fatalf("label = %v, want Publicado", data["label"])
	}
}

func TestTransitionRequiresAuth(t *testing.T) {
	r, db := setupEnv(t)

	direction := testutil.SeedDirection(t, db, "DSAL", "Dirección de Salud")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/plans/"+plan.ID+"/transition",
		map[string]string{"target": "sent"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	r, db := setupEnv(t)

	testutil.SeedUser(t, db, "ana", "Ana Rojas", nil)

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "ana", "password": "secret123"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	tokenData := data["token"].(map[string]interface{})
	if tokenData["access_token"] == "" {
		t.Fatalf("empty access token")
	}

	w = testutil.DoRequest(r, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "ana", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestStatusHistoryEndpoint(t *testing.T) {
	r, db := setupEnv(t)

	direction := testutil.SeedDirection(t, db, "DAF2", "Dirección de Finanzas")
	plan := testutil.SeedPlan(t, db, direction.ID, 2026)
	testutil.SetPlanStatus(t, db, plan.ID, entity.StatusSent)

	w := testutil.DoRequest(r, http.MethodGet, fmt.Sprintf("/api/v1/plans/%s/history", plan.ID), nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	rows := resp["data"].([]interface{})
	if len(rows) != 2 {
		t.Fatalf("history rows = %d, want 2", len(rows))
	}
}
