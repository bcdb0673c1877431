package task

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abduss/tasktrack/internal/auth"
	"github.com/abduss/tasktrack/internal/logger"
	"github.com/abduss/tasktrack/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterRoutes mounts task endpoints onto a group already behind the auth gate.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/tasks", handler.listTasks)
	group.POST("/tasks", handler.createTask)
	group.GET("/tasks/stats", handler.stats)
	group.PATCH("/tasks/bulk-status", handler.bulkStatus)
	group.GET("/tasks/:taskID", handler.getTask)
	group.PATCH("/tasks/:taskID", handler.updateTask)
	group.DELETE("/tasks/:taskID", handler.deleteTask)
	group.POST("/tasks/:taskID/toggle", handler.toggleTask)
}

type httpHandler struct {
	service *Service
}

type createTaskRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	Status      *Status `json:"status"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *Status `json:"status"`
}

type bulkStatusRequest struct {
	TaskIDs []uuid.UUID `json:"taskIds" binding:"required"`
	Status  Status      `json:"status" binding:"required"`
}

func (h *httpHandler) listTasks(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	filter := Filter{Search: c.Query("search")}
	if raw := c.Query("status"); raw != "" {
		status := Status(raw)
		filter.Status = &status
	}

	result, err := h.service.ListTasks(c.Request.Context(), userID, filter, Page{Page: page, Limit: limit})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) createTask(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.Respond(c, validation.FromBinding(err))
		return
	}

	task, err := h.service.CreateTask(c.Request.Context(), userID, CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *httpHandler) stats(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) bulkStatus(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req bulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.Respond(c, validation.FromBinding(err))
		return
	}

	updated, err := h.service.BulkUpdateStatus(c.Request.Context(), userID, req.TaskIDs, req.Status)
	if errors.Is(err, ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Some tasks were not found or do not belong to you"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *httpHandler) getTask(c *gin.Context) {
	userID, taskID, ok := h.identify(c)
	if !ok {
		return
	}

	task, err := h.service.GetTask(c.Request.Context(), userID, taskID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *httpHandler) updateTask(c *gin.Context) {
	userID, taskID, ok := h.identify(c)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.Respond(c, validation.FromBinding(err))
		return
	}

	task, err := h.service.UpdateTask(c.Request.Context(), userID, taskID, UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *httpHandler) deleteTask(c *gin.Context) {
	userID, taskID, ok := h.identify(c)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(c.Request.Context(), userID, taskID); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

func (h *httpHandler) toggleTask(c *gin.Context) {
	userID, taskID, ok := h.identify(c)
	if !ok {
		return
	}

	task, err := h.service.ToggleTask(c.Request.Context(), userID, taskID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *httpHandler) identify(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return uuid.Nil, uuid.Nil, false
	}

	taskID, err := uuid.Parse(c.Param("taskID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, taskID, true
}

func (h *httpHandler) fail(c *gin.Context, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		validation.Respond(c, verr)
	case errors.Is(err, ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	default:
		logger.FromContext(c).Error("task operation failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
