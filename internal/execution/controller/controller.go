// Package controller is the thin HTTP surface over the execution service.
package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suchitj2702/algo-irl/internal/execution/judge0"
	"github.com/suchitj2702/algo-irl/internal/execution/reconciler"
	"github.com/suchitj2702/algo-irl/internal/execution/service"
	"github.com/suchitj2702/algo-irl/pkg/errors"
	"github.com/suchitj2702/algo-irl/pkg/utils/logger"
	"github.com/suchitj2702/algo-irl/pkg/utils/response"
)

// Controller routes the execution API.
type Controller struct {
	service    *service.ExecutionService
	pollPolicy reconciler.Policy
	upgrader   websocket.Upgrader
}

// NewController creates the controller. pollPolicy bounds the websocket
// stream and any server-side waits.
func NewController(svc *service.ExecutionService, pollPolicy reconciler.Policy) *Controller {
	return &Controller{
		service:    svc,
		pollPolicy: pollPolicy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts the execution endpoints.
func (ctl *Controller) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/executions")
	{
		api.POST("", ctl.Execute)
		api.GET("/:id", ctl.Status)
		api.PUT("/:id/callback", ctl.Callback)
		api.GET("/:id/stream", ctl.Stream)
	}
}

// Execute accepts one execution request. Local runs reply with results
// directly; delegated runs reply with the submission id and processing
// status.
func (ctl *Controller) Execute(c *gin.Context) {
	var req service.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := ctl.service.Execute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Status is the polling entry point.
func (ctl *Controller) Status(c *gin.Context) {
	submissionID := c.Param("id")
	submission, err := ctl.service.Status(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"submission_id": submission.ID,
		"status":        submission.Status,
		"results":       submission.Results,
	})
}

// Callback receives the judge's push notification for one finished job. The
// verdict in the body is advisory; completion always goes through the same
// batched reconciliation as polling.
func (ctl *Controller) Callback(c *gin.Context) {
	submissionID := c.Param("id")
	token := c.Query("token")

	var payload judge0.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.BadRequest(c, "invalid callback body: "+err.Error())
		return
	}
	logger.Debug(c.Request.Context(), "judge callback received",
		zap.String("submission_id", submissionID),
		zap.String("job_handle", payload.Token),
		zap.Int("status_id", payload.Status.ID))

	submission, err := ctl.service.HandleCallback(c.Request.Context(), submissionID, token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"submission_id": submission.ID,
		"status":        submission.Status,
	})
}

// Stream pushes status updates over a websocket until the submission is
// terminal or the poll window closes.
func (ctl *Controller) Stream(c *gin.Context) {
	submissionID := c.Param("id")

	conn, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		response.BadRequest(c, "websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	interval := ctl.pollPolicy.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := time.Now().Add(ctl.pollPolicy.MaxWait)

	for {
		submission, err := ctl.service.Status(ctx, submissionID)
		if err != nil {
			if errors.Is(err, errors.ExternalServiceError) {
				// Transient; tell the client we are still waiting.
				_ = conn.WriteJSON(gin.H{"submission_id": submissionID, "status": "processing", "transient_error": true})
				select {
				case <-ctx.Done():
					return
				case <-time.After(interval):
				}
				continue
			}
			_ = conn.WriteJSON(gin.H{"submission_id": submissionID, "error": err.Error()})
			return
		}

		if writeErr := conn.WriteJSON(gin.H{
			"submission_id": submission.ID,
			"status":        submission.Status,
			"results":       submission.Results,
		}); writeErr != nil {
			return
		}
		if submission.Status.IsTerminal() {
			return
		}
		if ctl.pollPolicy.MaxWait > 0 && time.Now().After(deadline) {
			_ = conn.WriteJSON(gin.H{"submission_id": submissionID, "error": "poll deadline exceeded"})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
