package handler

import (
	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/gin-gonic/gin"
)

// ItemHandler serves projects and purchase line items.
type ItemHandler struct {
	itemSvc *service.ItemService
}

func NewItemHandler(itemSvc *service.ItemService) *ItemHandler {
	return &ItemHandler{itemSvc: itemSvc}
}

// CreateProject POST /api/v1/projects
func (h *ItemHandler) CreateProject(c *gin.Context) {
	var req service.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	project, err := h.itemSvc.CreateProject(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, project)
}

// ListProjects GET /api/v1/plans/:id/projects
func (h *ItemHandler) ListProjects(c *gin.Context) {
	projects, err := h.itemSvc.ListProjects(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, projects)
}

// CreateItem POST /api/v1/items
func (h *ItemHandler) CreateItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	item, err := h.itemSvc.CreateItem(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

type itemStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangeItemStatus PUT /api/v1/items/:id/status
func (h *ItemHandler) ChangeItemStatus(c *gin.Context) {
	var req itemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	item, err := h.itemSvc.RequestItemStatusChange(c.Request.Context(), c.Param("id"), req.Status, GetActor(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, item)
}
