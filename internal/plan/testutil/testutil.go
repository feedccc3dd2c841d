package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/civicteam/plancompras/internal/middleware"
	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "plancompras-test-jwt-secret"

// SetupTestDB opens an isolated in-memory database with all tables
// migrated. MaxOpenConns(1) keeps the in-memory database alive and
// serializes access; TranslateError makes duplicate-key violations surface
// as gorm.ErrDuplicatedKey, same as production.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&entity.Direction{},
		&entity.User{},
		&entity.Role{},
		&entity.Permission{},
		&entity.PurchasePlan{},
		&entity.StatusAssignment{},
		&entity.AuditEntry{},
		&entity.Decree{},
		&entity.F1Form{},
		&entity.Project{},
		&entity.ItemPurchase{},
	); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

// SetupRouter creates a gin test router.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT for tests.
func GenerateTestToken(userID, name string, permissions []string) string {
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"perms": permissions,
		"iss":   "plancompras",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for an admin test user.
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "Test Admin", []string{"*"})
}

// DoRequest executes an HTTP request against the test router.
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedDirection creates a direction.
func SeedDirection(t *testing.T, db *gorm.DB, code, name string) *entity.Direction {
	t.Helper()
	direction := &entity.Direction{
		ID:        uuid.New().String()[:32],
		Code:      code,
		Name:      name,
		Status:    "active",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(direction).Error; err != nil {
		t.Fatalf("Failed to seed direction: %v", err)
	}
	return direction
}

// SeedUser creates an active user whose password is "secret123".
func SeedUser(t *testing.T, db *gorm.DB, username, name string, directionID *string) *entity.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	user := &entity.User{
		ID:           uuid.New().String()[:32],
		Username:     username,
		Name:         name,
		PasswordHash: string(hash),
		DirectionID:  directionID,
		Status:       "active",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return user
}

// GrantCapabilities gives the user a dedicated role holding the given
// permission codes, creating the permissions as needed.
func GrantCapabilities(t *testing.T, db *gorm.DB, userID string, codes ...string) {
	t.Helper()
	role := &entity.Role{
		ID:        uuid.New().String()[:32],
		Code:      "role_" + uuid.New().String()[:8],
		Name:      "Test Role",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(role).Error; err != nil {
		t.Fatalf("Failed to seed role: %v", err)
	}
	if err := db.Exec("INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)", userID, role.ID).Error; err != nil {
		t.Fatalf("Failed to assign role: %v", err)
	}

	for _, code := range codes {
		var perm entity.Permission
		err := db.Where("code = ?", code).First(&perm).Error
		if err != nil {
			perm = entity.Permission{
				ID:        uuid.New().String()[:32],
				Code:      code,
				Name:      code,
				CreatedAt: time.Now(),
			}
			if err := db.Create(&perm).Error; err != nil {
				t.Fatalf("Failed to seed permission: %v", err)
			}
		}
		if err := db.Exec("INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)", role.ID, perm.ID).Error; err != nil {
			t.Fatalf("Failed to grant permission: %v", err)
		}
	}
}

// SeedPlan creates a plan in Draft with its initial ledger row.
func SeedPlan(t *testing.T, db *gorm.DB, directionID string, year int) *entity.PurchasePlan {
	t.Helper()
	now := time.Now()
	plan := &entity.PurchasePlan{
		ID:          uuid.New().String()[:32],
		Name:        fmt.Sprintf("Plan de Compras %d", year),
		Year:        year,
		DirectionID: directionID,
		CreatedBy:   "seed",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("Failed to seed plan: %v", err)
	}
	if err := db.Create(&entity.StatusAssignment{
		ID:        uuid.New().String()[:32],
		PlanID:    plan.ID,
		Seq:       1,
		Status:    entity.StatusDraft,
		ActorID:   "seed",
		CreatedAt: now,
	}).Error; err != nil {
		t.Fatalf("Failed to seed initial status: %v", err)
	}
	return plan
}

// SetPlanStatus appends a ledger row moving the plan to the given status.
func SetPlanStatus(t *testing.T, db *gorm.DB, planID string, status entity.StatusCode) {
	t.Helper()
	var current entity.StatusAssignment
	if err := db.Where("plan_id = ?", planID).Order("seq DESC").First(&current).Error; err != nil {
		t.Fatalf("Failed to read current status: %v", err)
	}
	if err := db.Create(&entity.StatusAssignment{
		ID:        uuid.New().String()[:32],
		PlanID:    planID,
		Seq:       current.Seq + 1,
		Status:    status,
		ActorID:   "seed",
		CreatedAt: time.Now(),
	}).Error; err != nil {
		t.Fatalf("Failed to set plan status: %v", err)
	}
}

// SeedDecree creates a decree row and binds it to the plan.
func SeedDecree(t *testing.T, db *gorm.DB, planID, number string) *entity.Decree {
	t.Helper()
	decree := &entity.Decree{
		ID:         uuid.New().String()[:32],
		Number:     number,
		StorageKey: "decrees/" + planID + "/" + uuid.New().String()[:8] + "_decreto.pdf",
		FileName:   "decreto.pdf",
		FileSize:   1024,
		MimeType:   "application/pdf",
		UploadedBy: "seed",
		CreatedAt:  time.Now(),
	}
	if err := db.Create(decree).Error; err != nil {
		t.Fatalf("Failed to seed decree: %v", err)
	}
	if err := db.Model(&entity.PurchasePlan{}).Where("id = ?", planID).Update("decree_id", decree.ID).Error; err != nil {
		t.Fatalf("Failed to bind decree: %v", err)
	}
	return decree
}

// SeedProjectWithItem creates a project and one pending line item under it.
func SeedProjectWithItem(t *testing.T, db *gorm.DB, planID string) (*entity.Project, *entity.ItemPurchase) {
	t.Helper()
	now := time.Now()
	project := &entity.Project{
		ID:        uuid.New().String()[:32],
		PlanID:    planID,
		Name:      "Proyecto Test",
		CreatedBy: "seed",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	item := &entity.ItemPurchase{
		ID:          uuid.New().String()[:32],
		ProjectID:   project.ID,
		Description: "Insumos de oficina",
		Quantity:    10,
		UnitPrice:   1500,
		Status:      entity.ItemStatusPending,
		CreatedBy:   "seed",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to seed item: %v", err)
	}
	return project, item
}
