package handler

import (
	"errors"
	"strconv"

	"github.com/civicteam/plancompras/internal/config"
	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/gin-gonic/gin"
)

// Handlers is the handler collection.
type Handlers struct {
	Auth     *AuthHandler
	Plan     *PlanHandler
	Document *DocumentHandler
	Item     *ItemHandler
	Admin    *AdminHandler
	Report   *ReportHandler
}

func NewHandlers(svc *service.Services, cfg *config.Config) *Handlers {
	return &Handlers{
		Auth:     NewAuthHandler(svc.Auth),
		Plan:     NewPlanHandler(svc.Plan, svc.Lifecycle),
		Document: NewDocumentHandler(svc.Document),
		Item:     NewItemHandler(svc.Item),
		Admin:    NewAdminHandler(svc.Reconcile),
		Report:   NewReportHandler(svc.Plan, svc.Lifecycle),
	}
}

// Response is the envelope of every JSON response.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success responds 200.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created responds 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error responds with a business code whose first three digits are the HTTP
// status.
func Error(c *gin.Context, code int, message string) {
	ErrorData(c, code, message, nil)
}

// ErrorData is Error with a payload, used to carry transition guidance.
func ErrorData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ServiceError maps service sentinels to HTTP responses. Transition errors
// carry the plan's current status and the statuses actually reachable from
// it, so clients can render what the user may do next.
func ServiceError(c *gin.Context, err error) {
	var te *service.TransitionError
	if errors.As(err, &te) {
		data := gin.H{
			"current_status": te.Current,
			"valid_next":     te.ValidNext,
		}
		switch {
		case errors.Is(te.Kind, service.ErrUnauthorized):
			ErrorData(c, 40310, te.Kind.Error(), data)
		case errors.Is(te.Kind, service.ErrInvalidTransition):
			ErrorData(c, 40910, te.Kind.Error(), data)
		case errors.Is(te.Kind, service.ErrInvalidState):
			ErrorData(c, 40920, te.Kind.Error(), data)
		default:
			ErrorData(c, 40900, te.Kind.Error(), data)
		}
		return
	}

	switch {
	case errors.Is(err, service.ErrPlanNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		Error(c, 40310, err.Error())
	case errors.Is(err, service.ErrDuplicatePlan):
		Error(c, 40901, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		Error(c, 40920, err.Error())
	case errors.Is(err, service.ErrItemStatusLocked):
		Error(c, 42310, err.Error())
	case errors.Is(err, service.ErrConcurrentModification):
		Error(c, 40930, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		Error(c, 50300, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID reads the actor ID set by the auth middleware.
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetUserName reads the actor display name set by the auth middleware.
func GetUserName(c *gin.Context) string {
	name, _ := c.Get("user_name")
	if n, ok := name.(string); ok {
		return n
	}
	return ""
}

// GetActor builds the acting principal from the request context.
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		ID:   GetUserID(c),
		Name: GetUserName(c),
	}
}

// GetPagination reads page/page_size with sane bounds.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
