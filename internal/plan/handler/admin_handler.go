package handler

import (
	"strconv"
	"time"

	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the administrative repair and generation jobs. Routes
// are gated by the plan:admin permission.
type AdminHandler struct {
	reconcileSvc *service.ReconcileService
}

func NewAdminHandler(reconcileSvc *service.ReconcileService) *AdminHandler {
	return &AdminHandler{reconcileSvc: reconcileSvc}
}

// Reconcile POST /api/v1/admin/reconcile-decrees
func (h *AdminHandler) Reconcile(c *gin.Context) {
	report, err := h.reconcileSvc.ReconcileDecreeStatus(c.Request.Context(), GetActor(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, report)
}

// GenerateAnnual POST /api/v1/admin/generate-annual
func (h *AdminHandler) GenerateAnnual(c *gin.Context) {
	year, err := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(time.Now().Year())))
	if err != nil || year < 2000 || year > 2100 {
		BadRequest(c, "year must be a valid year")
		return
	}

	report, err := h.reconcileSvc.GenerateAnnual(c.Request.Context(), year, GetActor(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, report)
}
