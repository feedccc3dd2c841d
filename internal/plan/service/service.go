package service

import (
	"github.com/civicteam/plancompras/internal/config"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/civicteam/plancompras/internal/shared/blob"
	"github.com/civicteam/plancompras/internal/shared/notify"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services is the service collection wired over the repositories.
type Services struct {
	Auth      *AuthService
	Plan      *PlanService
	Lifecycle *LifecycleService
	Document  *DocumentService
	Item      *ItemService
	Reconcile *ReconcileService
}

// NewServices wires the full service graph. The MinIO client is optional;
// without it document uploads fail but the lifecycle keeps working.
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, dispatcher *notify.Dispatcher, logger *zap.Logger) *Services {
	var store blob.Store
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("MinIO unavailable, document uploads disabled", zap.Error(err))
		} else {
			store = blob.NewMinioStore(minioClient, cfg.MinIO.Bucket)
		}
	}

	authorizer := NewRBACAuthorizer(repos.User)
	lifecycle := NewLifecycleService(repos.Plan, repos.Ledger, repos.Audit, authorizer, dispatcher, rdb, logger)

	return &Services{
		Auth:      NewAuthService(repos.User, rdb, cfg),
		Plan:      NewPlanService(repos.Plan, repos.Ledger, repos.Direction),
		Lifecycle: lifecycle,
		Document:  NewDocumentService(lifecycle, repos.Plan, repos.Document, store, logger),
		Item:      NewItemService(repos.Item, repos.Plan, repos.Ledger),
		Reconcile: NewReconcileService(lifecycle, repos.Plan, repos.Ledger, repos.Direction, logger),
	}
}
