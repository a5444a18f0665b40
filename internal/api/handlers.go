// Package api exposes the pipeline over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipforge/clipforge/internal/asr"
	"github.com/clipforge/clipforge/internal/coordinator"
	"github.com/clipforge/clipforge/internal/pipeline"
)

// SubmitRequest is the body of POST /api/v1/tasks.
type SubmitRequest struct {
	Inputs    []string `json:"inputs"`
	LLMModel  string   `json:"llm_model"`
	Prompt    string   `json:"prompt"`
	ModelSize string   `json:"model_size"`
}

// HandleSubmitTask accepts a new task and returns its ID. Processing is
// asynchronous; clients poll the task endpoint for progress.
func HandleSubmitTask(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": pipeline.ErrCodeInputInvalid, "message": "invalid request body: " + err.Error()},
			})
			return
		}

		id, err := coord.Submit(req.Inputs, req.LLMModel, req.Prompt, req.ModelSize)
		if err != nil {
			writePipeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": pipeline.StatusQueued})
	}
}

// HandleGetTask returns the current task snapshot, including results once
// the task completes.
func HandleGetTask(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, ok := coord.GetTask(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{"code": "NOT_FOUND", "message": "task not found or expired"},
			})
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// HandleWorkers reports accelerator pool state.
func HandleWorkers(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"workers": coord.Workers()})
	}
}

// HandleQueue reports how many tasks wait to start.
func HandleQueue(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"size": coord.QueueSize()})
	}
}

// HandleHealth reports process liveness and recognition backend reachability.
func HandleHealth(transcriber asr.Transcriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"asr_available": transcriber.IsAvailable(c.Request.Context()),
		})
	}
}

func writePipeError(c *gin.Context, err error) {
	var pe *pipeline.PipeError
	if !errors.As(err, &pe) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL", "message": err.Error()},
		})
		return
	}

	status := http.StatusInternalServerError
	switch pe.Code {
	case pipeline.ErrCodeInputInvalid:
		status = http.StatusBadRequest
	case pipeline.ErrCodeNoCapacity:
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{"error": pe})
}

// NewRouter wires the middleware and routes.
func NewRouter(coord *coordinator.Coordinator, transcriber asr.Transcriber) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	router.GET("/health", HandleHealth(transcriber))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tasks", HandleSubmitTask(coord))
		v1.GET("/tasks/:id", HandleGetTask(coord))
		v1.GET("/workers", HandleWorkers(coord))
		v1.GET("/queue", HandleQueue(coord))
	}
	return router
}
