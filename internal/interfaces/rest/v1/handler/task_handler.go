package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-device-stream/internal/application/task"
	"go-device-stream/internal/infrastructure/logger"
)

// TaskHandler drives the task event producer.
type TaskHandler struct {
	producer *task.Producer
	logger   logger.Logger
}

func NewTaskHandler(producer *task.Producer, log logger.Logger) *TaskHandler {
	return &TaskHandler{
		producer: producer,
		logger:   log.WithField("handler", "tasks"),
	}
}

type createTaskRequest struct {
	TaskID  string `json:"task_id"`
	Payload any    `json:"payload"`
}

// Create begins tracking a task in the pending state.
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task request"})
		return
	}

	taskID, err := h.producer.Begin(c.Request.Context(), req.TaskID, req.Payload)
	if err != nil {
		if errors.Is(err, task.ErrTaskExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("task create failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task_id": taskID, "state": task.StatePending})
}

type transitionRequest struct {
	State   string `json:"state" binding:"required"`
	Payload any    `json:"payload"`
}

// Transition moves a task through its state machine. A state of "progress"
// emits a progress event without changing state.
func (h *TaskHandler) Transition(c *gin.Context) {
	taskID := c.Param("taskId")

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transition request"})
		return
	}

	var err error
	if req.State == task.EventProgress {
		err = h.producer.Progress(c.Request.Context(), taskID, req.Payload)
	} else {
		err = h.producer.Transition(c.Request.Context(), taskID, task.State(req.State), req.Payload)
	}
	if err != nil {
		switch {
		case errors.Is(err, task.ErrUnknownTask):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, task.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Errorf("task %s transition failed: %v", taskID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to transition task"})
		}
		return
	}

	state, _ := h.producer.StateOf(taskID)
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "state": state})
}
