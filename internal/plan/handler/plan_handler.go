package handler

import (
	"strconv"

	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/gin-gonic/gin"
)

// PlanHandler serves plan CRUD and the lifecycle endpoints.
type PlanHandler struct {
	planSvc      *service.PlanService
	lifecycleSvc *service.LifecycleService
}

func NewPlanHandler(planSvc *service.PlanService, lifecycleSvc *service.LifecycleService) *PlanHandler {
	return &PlanHandler{planSvc: planSvc, lifecycleSvc: lifecycleSvc}
}

// Create POST /api/v1/plans
func (h *PlanHandler) Create(c *gin.Context) {
	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	plan, err := h.planSvc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, plan)
}

// List GET /api/v1/plans
func (h *PlanHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := make(map[string]interface{})
	if keyword := c.Query("keyword"); keyword != "" {
		filters["keyword"] = keyword
	}
	if year := c.Query("year"); year != "" {
		if y, err := strconv.Atoi(year); err == nil {
			filters["year"] = y
		}
	}
	if directionID := c.Query("direction_id"); directionID != "" {
		filters["direction_id"] = directionID
	}

	result, err := h.planSvc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, result)
}

// Get GET /api/v1/plans/:id
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.planSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, plan)
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename PUT /api/v1/plans/:id
func (h *PlanHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	plan, err := h.planSvc.Rename(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, plan)
}

type transitionRequest struct {
	Target  string `json:"target" binding:"required"`
	Comment string `json:"comment"`
}

// Transition POST /api/v1/plans/:id/transition
func (h *PlanHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	target, err := entity.ParseStatusCode(req.Target)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	assignment, err := h.lifecycleSvc.RequestTransition(c.Request.Context(), c.Param("id"), target, GetActor(c), req.Comment)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, assignment)
}

// CurrentStatus GET /api/v1/plans/:id/status
func (h *PlanHandler) CurrentStatus(c *gin.Context) {
	current, err := h.lifecycleSvc.CurrentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{
		"status":     current,
		"label":      current.Status.Label(),
		"legacy_id":  current.Status.LegacyID(),
		"valid_next": service.ValidNextStates(current.Status),
	})
}

// StatusHistory GET /api/v1/plans/:id/history
func (h *PlanHandler) StatusHistory(c *gin.Context) {
	history, err := h.lifecycleSvc.StatusHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, history)
}

// AuditTrail GET /api/v1/plans/:id/audit
func (h *PlanHandler) AuditTrail(c *gin.Context) {
	trail, err := h.lifecycleSvc.AuditHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, trail)
}
