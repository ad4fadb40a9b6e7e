// Package server exposes the operational HTTP surface: health, metrics, and
// a small status/task API for the dashboard collaborator.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"chat-task-scanner-go/internal/connection"
	"chat-task-scanner-go/internal/models"
	"chat-task-scanner-go/internal/scheduler"
	"chat-task-scanner-go/internal/store"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	tasks     *store.TaskStore
	chats     *store.ChatStore
	manager   *connection.Manager
	scheduler *scheduler.Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, tasks *store.TaskStore, chats *store.ChatStore, manager *connection.Manager, sched *scheduler.Scheduler) *Handlers {
	return &Handlers{
		db:        db,
		tasks:     tasks,
		chats:     chats,
		manager:   manager,
		scheduler: sched,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		api.GET("/status", h.GetStatus)

		api.GET("/tasks", h.GetTasks)
		api.GET("/tasks/:id", h.GetTask)
		api.POST("/tasks/:id/complete", h.CompleteTask)

		api.GET("/chats", h.GetChats)

		api.POST("/maintenance/run-once", h.RunMaintenance)
	}
}

// HealthCheck reports process health
func (h *Handlers) HealthCheck(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "unreachable"
	}

	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    dbStatus,
		"timestamp": time.Now(),
		"state":     h.manager.Status().State,
	})
}

// GetStatus returns connection and scheduler state
func (h *Handlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connection":        h.manager.Status(),
		"scheduler_running": h.scheduler.IsRunning(),
		"next_maintenance":  h.scheduler.GetNextRun(),
	})
}

// GetTasks lists tasks, optionally filtered by status
func (h *Handlers) GetTasks(c *gin.Context) {
	status := models.TaskStatus(c.Query("status"))
	if status != "" && status != models.TaskStatusPending && status != models.TaskStatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	tasks, err := h.tasks.ListTasks(c.Request.Context(), status, limit)
	if err != nil {
		logrus.Errorf("Failed to list tasks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetTask returns a single task
func (h *Handlers) GetTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		logrus.Errorf("Failed to get task %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get task"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// CompleteTask marks a pending task as completed
func (h *Handlers) CompleteTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	err = h.tasks.CompleteTask(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		logrus.Errorf("Failed to complete task %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// GetChats lists known chats
func (h *Handlers) GetChats(c *gin.Context) {
	chats, err := h.chats.All(c.Request.Context())
	if err != nil {
		logrus.Errorf("Failed to list chats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, chats)
}

// RunMaintenance triggers a maintenance tick
func (h *Handlers) RunMaintenance(c *gin.Context) {
	if err := h.scheduler.RunOnce(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
