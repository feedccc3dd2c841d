package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/civicteam/plancompras/internal/shared/blob"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentUpload carries an incoming file plus its document metadata.
type DocumentUpload struct {
	FileName string
	Size     int64
	MimeType string
	Reader   io.Reader

	Number string  // decree number, decrees only
	Amount float64 // declared amount, F1 forms only
}

// DocumentService manages decree and F1 bindings. Attaching a decree is the
// only way a plan becomes Decreed; detaching it while Decreed reverts the
// plan, while a Published plan keeps its status even after detachment.
// With no blob store configured every upload fails with
// ErrStorageUnavailable; the lifecycle itself keeps working.
type DocumentService struct {
	lifecycle *LifecycleService
	planRepo  *repository.PlanRepository
	docRepo   *repository.DocumentRepository
	store     blob.Store
	logger    *zap.Logger
}

func NewDocumentService(
	lifecycle *LifecycleService,
	planRepo *repository.PlanRepository,
	docRepo *repository.DocumentRepository,
	store blob.Store,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		lifecycle: lifecycle,
		planRepo:  planRepo,
		docRepo:   docRepo,
		store:     store,
		logger:    logger,
	}
}

// AttachDecree binds a decree document to a plan awaiting its decree and
// moves it to Decreed. Any other current status rejects the attachment
// before the file or any row is written. The binding, the decree row and
// the status/audit pair commit in one transaction; only the blob upload
// happens outside it and is removed again if the transaction fails.
func (s *DocumentService) AttachDecree(ctx context.Context, planID string, actor Actor, upload *DocumentUpload) (*entity.Decree, error) {
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	plan, err := s.findPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lifecycle.lockPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.lifecycle.ledgerRepo.Current(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("read current status: %w", err)
	}
	if current.Status != entity.StatusApprovedForDecree {
		return nil, &TransitionError{
			Kind:      ErrInvalidState,
			Current:   current.Status,
			ValidNext: ValidNextStates(current.Status),
		}
	}

	decree := &entity.Decree{
		ID:         uuid.New().String()[:32],
		Number:     upload.Number,
		StorageKey: storageKey("decrees", planID, upload.FileName),
		FileName:   upload.FileName,
		FileSize:   upload.Size,
		MimeType:   upload.MimeType,
		UploadedBy: actor.ID,
		CreatedAt:  time.Now(),
	}
	if err := s.store.Put(ctx, decree.StorageKey, upload.Reader, upload.Size, upload.MimeType); err != nil {
		return nil, fmt.Errorf("store decree file: %w", err)
	}

	assignment, auditEntry := s.lifecycle.newTransition(plan, current, entity.StatusDecreed, actor, "",
		entity.AuditActionDecreeAttached,
		fmt.Sprintf("Decree %s attached, plan decreed", decree.Number))
	if err := s.docRepo.AttachDecree(ctx, planID, decree, assignment, auditEntry); err != nil {
		s.removeOrphan(ctx, decree.StorageKey)
		if errors.Is(err, repository.ErrStaleLedger) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("bind decree: %w", err)
	}

	s.lifecycle.notifyStatus(plan, entity.StatusDecreed, actor, "", assignment.CreatedAt)
	return decree, nil
}

// DetachDecree removes the plan's decree binding. A Decreed plan reverts to
// awaiting its decree; a Published plan keeps its status, publication having
// already taken legal effect. The decree row and its file are kept for
// audit. The unbind and the status/audit rows commit atomically: a
// concurrent ledger append fails the whole detach and the binding stays.
func (s *DocumentService) DetachDecree(ctx context.Context, planID string, actor Actor, reason string) error {
	plan, err := s.findPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.DecreeID == nil {
		return fmt.Errorf("%w: plan has no decree attached", ErrInvalidState)
	}

	unlock, err := s.lifecycle.lockPlan(ctx, planID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.lifecycle.ledgerRepo.Current(ctx, planID)
	if err != nil {
		return fmt.Errorf("read current status: %w", err)
	}

	decreeNumber := ""
	if plan.Decree != nil {
		decreeNumber = plan.Decree.Number
	}

	if current.Status == entity.StatusDecreed {
		assignment, auditEntry := s.lifecycle.newTransition(plan, current, entity.StatusApprovedForDecree, actor, reason,
			entity.AuditActionDecreeRemoved,
			fmt.Sprintf("Decree %s detached, plan reverted to awaiting decree", decreeNumber))
		if err := s.docRepo.DetachDecree(ctx, planID, assignment, auditEntry); err != nil {
			if errors.Is(err, repository.ErrStaleLedger) {
				return ErrConcurrentModification
			}
			return fmt.Errorf("unbind decree: %w", err)
		}
		s.lifecycle.notifyStatus(plan, entity.StatusApprovedForDecree, actor, reason, assignment.CreatedAt)
		return nil
	}

	// Outside Decreed (Published included) only the binding changes.
	err = s.docRepo.DetachDecree(ctx, planID, nil, &entity.AuditEntry{
		PlanID:      planID,
		Action:      entity.AuditActionDecreeRemoved,
		Description: fmt.Sprintf("Decree %s detached, status %s unchanged", decreeNumber, current.Status.Label()),
		Detail: entity.JSONB{
			"status": string(current.Status),
			"reason": reason,
		},
		ActorID:   actor.ID,
		ActorName: actor.Name,
	})
	if err != nil {
		return fmt.Errorf("unbind decree: %w", err)
	}
	return nil
}

// AttachF1 binds an F1 budget form. F1 bindings never move the lifecycle.
func (s *DocumentService) AttachF1(ctx context.Context, planID string, actor Actor, upload *DocumentUpload) (*entity.F1Form, error) {
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	plan, err := s.findPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.F1FormID != nil {
		return nil, fmt.Errorf("%w: plan already has an F1 form attached", ErrInvalidState)
	}

	form := &entity.F1Form{
		ID:         uuid.New().String()[:32],
		Amount:     upload.Amount,
		StorageKey: storageKey("f1-forms", planID, upload.FileName),
		FileName:   upload.FileName,
		FileSize:   upload.Size,
		MimeType:   upload.MimeType,
		UploadedBy: actor.ID,
		CreatedAt:  time.Now(),
	}
	if err := s.store.Put(ctx, form.StorageKey, upload.Reader, upload.Size, upload.MimeType); err != nil {
		return nil, fmt.Errorf("store F1 file: %w", err)
	}

	err = s.docRepo.AttachF1(ctx, planID, form, &entity.AuditEntry{
		PlanID:      planID,
		Action:      entity.AuditActionF1Attached,
		Description: fmt.Sprintf("F1 form attached, declared amount %.2f", form.Amount),
		Detail:      entity.JSONB{"amount": form.Amount, "file_name": form.FileName},
		ActorID:     actor.ID,
		ActorName:   actor.Name,
	})
	if err != nil {
		s.removeOrphan(ctx, form.StorageKey)
		return nil, fmt.Errorf("bind F1 form: %w", err)
	}
	return form, nil
}

// DetachF1 removes the F1 binding. The form row and file are kept.
func (s *DocumentService) DetachF1(ctx context.Context, planID string, actor Actor) error {
	plan, err := s.findPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.F1FormID == nil {
		return fmt.Errorf("%w: plan has no F1 form attached", ErrInvalidState)
	}

	err = s.docRepo.DetachF1(ctx, planID, &entity.AuditEntry{
		PlanID:      planID,
		Action:      entity.AuditActionF1Removed,
		Description: "F1 form detached",
		ActorID:     actor.ID,
		ActorName:   actor.Name,
	})
	if err != nil {
		return fmt.Errorf("unbind F1 form: %w", err)
	}
	return nil
}

// DecreeDownloadURL returns a short-lived presigned URL for the plan's
// decree file.
func (s *DocumentService) DecreeDownloadURL(ctx context.Context, planID string) (string, error) {
	if s.store == nil {
		return "", ErrStorageUnavailable
	}
	plan, err := s.findPlan(ctx, planID)
	if err != nil {
		return "", err
	}
	if plan.Decree == nil {
		return "", fmt.Errorf("%w: plan has no decree attached", ErrInvalidState)
	}
	return s.store.PresignedGet(ctx, plan.Decree.StorageKey, 15*time.Minute)
}

// F1DownloadURL returns a short-lived presigned URL for the plan's F1 file.
func (s *DocumentService) F1DownloadURL(ctx context.Context, planID string) (string, error) {
	if s.store == nil {
		return "", ErrStorageUnavailable
	}
	plan, err := s.findPlan(ctx, planID)
	if err != nil {
		return "", err
	}
	if plan.F1Form == nil {
		return "", fmt.Errorf("%w: plan has no F1 form attached", ErrInvalidState)
	}
	return s.store.PresignedGet(ctx, plan.F1Form.StorageKey, 15*time.Minute)
}

func (s *DocumentService) findPlan(ctx context.Context, planID string) (*entity.PurchasePlan, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	return plan, nil
}

// removeOrphan drops an uploaded blob whose database write failed.
func (s *DocumentService) removeOrphan(ctx context.Context, key string) {
	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.Warn("Orphan document left in storage", zap.String("key", key), zap.Error(err))
	}
}

// storageKey builds an object key that never collides even when the same
// file name is uploaded twice for one plan.
func storageKey(prefix, planID, fileName string) string {
	return path.Join(prefix, planID, uuid.New().String()[:8]+"_"+fileName)
}
