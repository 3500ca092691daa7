package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
)

// TaskHandler はタスク関連のハンドラーを管理します。
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler は新しいTaskHandlerを作成します。
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// GetTasksHandler は自分のタスクを作成日時の降順で返します。
// 管理者は scope=all で全件、user_id で他ユーザーのタスクを取得できます。
func (h *TaskHandler) GetTasksHandler(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var (
		tasks []*models.Task
		err   error
	)
	if c.Query("scope") == "all" {
		tasks, err = h.taskService.ListAllTasks(c.Request.Context(), actor)
	} else {
		owner := c.DefaultQuery("user_id", actor.UserID)
		tasks, err = h.taskService.ListTasks(c.Request.Context(), owner, actor)
	}
	if err != nil {
		writeTaskError(c, err, "Failed to fetch tasks")
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetTaskByIDHandler は指定IDのタスクを取得します。
func (h *TaskHandler) GetTaskByIDHandler(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeTaskError(c, err, "Failed to fetch task")
		return
	}
	c.JSON(http.StatusOK, task)
}

// CreateTaskHandler は新しいタスクを作成します。所有者は認証済みユーザーです。
func (h *TaskHandler) CreateTaskHandler(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var in models.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	in.UserID = actor.UserID

	created, err := h.taskService.CreateTask(c.Request.Context(), in, actor)
	if err != nil {
		log.WithError(err).WithField("user_id", actor.UserID).Error("Failed to create task")
		writeTaskError(c, err, "Failed to save task")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateTaskHandler は送られたフィールドだけを更新します (PATCH)。
func (h *TaskHandler) UpdateTaskHandler(c *gin.Context) {
	h.update(c, false)
}

// ReplaceTaskHandler は PUT 用です。title を必須とします。
func (h *TaskHandler) ReplaceTaskHandler(c *gin.Context) {
	h.update(c, true)
}

func (h *TaskHandler) update(c *gin.Context, requireTitle bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	if requireTitle && patch.Title == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrTitleRequired.Error()})
		return
	}

	updated, err := h.taskService.UpdateTask(c.Request.Context(), c.Param("id"), patch, actor)
	if err != nil {
		writeTaskError(c, err, "Failed to update task")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteTaskHandler はタスクを削除します。
func (h *TaskHandler) DeleteTaskHandler(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), c.Param("id"), actor); err != nil {
		writeTaskError(c, err, "Failed to delete task")
		return
	}
	c.Status(http.StatusNoContent)
}
