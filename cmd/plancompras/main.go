package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicteam/plancompras/internal/config"
	"github.com/civicteam/plancompras/internal/middleware"
	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/handler"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/civicteam/plancompras/internal/shared/notify"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting plancompras service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

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
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	migrationSQL := []string{
		// The ledger's uniqueness guard must exist even on databases
		// migrated before GORM managed the index.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_status_plan_seq ON status_assignments(plan_id, seq)",
		"CREATE INDEX IF NOT EXISTS idx_audit_entries_plan ON audit_entries(plan_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_plans_direction_year ON purchase_plans(direction_id, year)",
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			zapLogger.Warn("Migration SQL warning (may already exist)", zap.String("sql", sql), zap.Error(err))
		}
	}
	zapLogger.Info("Database migration completed")

	// Seed: lifecycle permissions
	permissionSeeds := []struct{ Code, Name string }{
		{service.CapabilitySend, "Enviar plan"},
		{service.CapabilityVisar, "Visar plan"},
		{service.CapabilityReject, "Rechazar plan"},
		{service.CapabilityApprove, "Aprobar plan"},
		{service.CapabilityPublish, "Publicar plan"},
		{"plan:admin", "Administrar planes"},
	}
	for _, ps := range permissionSeeds {
		db.Exec(`INSERT INTO permissions (id, code, name, created_at)
			VALUES (gen_random_uuid(), ?, ?, NOW())
			ON CONFLICT (code) DO NOTHING`, ps.Code, ps.Name)
	}

	// Seed: default roles
	roleSeeds := []struct{ Code, Name string }{
		{"director", "Director de Dirección"},
		{"secpla", "Analista SECPLA"},
		{"alcalde", "Alcalde"},
		{"admin_municipal", "Administrador Municipal"},
	}
	for _, rs := range roleSeeds {
		db.Exec(`INSERT INTO roles (id, code, name, is_system, created_at, updated_at)
			VALUES (gen_random_uuid(), ?, ?, true, NOW(), NOW())
			ON CONFLICT (code) DO NOTHING`, rs.Code, rs.Name)
	}

	rdb := initRedis(cfg.Redis)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.Endpoint != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.Endpoint, cfg.Notify.AuthToken)
	}
	dispatcher := notify.NewDispatcher(notifier, rdb, zapLogger)

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, cfg, dispatcher, zapLogger)
	handlers := handler.NewHandlers(services, cfg)

	// Retry loop for failed notifications.
	retryCtx, retryCancel := context.WithCancel(context.Background())
	defer retryCancel()
	go dispatcher.Run(retryCtx)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	retryCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// Needed so duplicate-key violations surface as gorm.ErrDuplicatedKey,
		// which the ledger append relies on.
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
		}

		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			authorized.GET("/auth/me", h.Auth.Me)

			plans := authorized.Group("/plans")
			{
				plans.POST("", h.Plan.Create)
				plans.GET("", h.Plan.List)
				plans.GET("/:id", h.Plan.Get)
				plans.PUT("/:id", h.Plan.Rename)
				plans.POST("/:id/transition", h.Plan.Transition)
				plans.GET("/:id/status", h.Plan.CurrentStatus)
				plans.GET("/:id/history", h.Plan.StatusHistory)
				plans.GET("/:id/audit", h.Plan.AuditTrail)
				plans.GET("/:id/export", h.Report.Export)

				plans.POST("/:id/decree", h.Document.AttachDecree)
				plans.DELETE("/:id/decree", h.Document.DetachDecree)
				plans.GET("/:id/decree/download", h.Document.DownloadDecree)
				plans.POST("/:id/f1", h.Document.AttachF1)
				plans.DELETE("/:id/f1", h.Document.DetachF1)
				plans.GET("/:id/f1/download", h.Document.DownloadF1)

				plans.GET("/:id/projects", h.Item.ListProjects)
			}

			authorized.POST("/projects", h.Item.CreateProject)
			authorized.POST("/items", h.Item.CreateItem)
			authorized.PUT("/items/:id/status", h.Item.ChangeItemStatus)

			admin := authorized.Group("/admin")
			admin.Use(middleware.RequirePermission("plan:admin"))
			{
				admin.POST("/reconcile-decrees", h.Admin.Reconcile)
				admin.POST("/generate-annual", h.Admin.GenerateAnnual)
			}
		}
	}
}
