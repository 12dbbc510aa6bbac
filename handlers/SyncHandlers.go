package handlers

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"modtrack/models"
	"modtrack/services"
	"modtrack/storage"
)

type enqueuePhoto struct {
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type,omitempty"`
	Data        string `json:"data" binding:"required"` // base64
}

type enqueueActionRequest struct {
	ActionID   string            `json:"action_id,omitempty"`
	DeviceID   string            `json:"device_id" binding:"required"`
	ActionType models.ActionType `json:"action_type" binding:"required"`
	Payload    json.RawMessage   `json:"payload" binding:"required"`
	Photos     []enqueuePhoto    `json:"photos,omitempty"`
}

// EnqueueAction godoc
// @Summary      Enqueue an offline action
// @Description  Persists a device-captured action (with optional photo blobs) for the next sync pass; the action id is the idempotency key, so re-submitting it is harmless
// @Tags         sync
// @Accept       json
// @Param        request  body  enqueueActionRequest  true  "Deferred action"
// @Success      202  {object}  models.EnqueueResponse
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/sync/actions [post]
func EnqueueAction(db *sql.DB, queue *storage.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		if _, _, err := GetSessionDetails(db, sessionID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req enqueueActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		switch req.ActionType {
		case models.ActionQCSubmit, models.ActionStationMove, models.ActionInventoryReceive,
			models.ActionClockIn, models.ActionClockOut:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action type", "details": string(req.ActionType)})
			return
		}

		if req.ActionID == "" {
			req.ActionID = uuid.NewString()
		}

		photos := make([]models.QueuedPhoto, 0, len(req.Photos))
		for _, p := range req.Photos {
			data, err := base64.StdEncoding.DecodeString(p.Data)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo data", "details": err.Error()})
				return
			}
			photos = append(photos, models.QueuedPhoto{
				FileName:    p.FileName,
				ContentType: p.ContentType,
				Data:        data,
			})
		}

		action := &models.PendingAction{
			ID:         req.ActionID,
			DeviceID:   req.DeviceID,
			ActionType: req.ActionType,
			Payload:    string(req.Payload),
		}
		if err := queue.Enqueue(action, photos); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue action", "details": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, models.EnqueueResponse{
			ActionID:     action.ID,
			PhotosQueued: len(photos),
		})
	}
}

// RunSync godoc
// @Summary      Trigger a sync pass
// @Description  Drains the offline action queue; returns a no-op reason when offline or when a pass is already in flight
// @Tags         sync
// @Success      200  {object}  models.SyncSummary
// @Failure      401  {object}  models.ErrorResponse
// @Router       /api/sync/run [post]
func RunSync(db *sql.DB, sync *services.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		if _, _, err := GetSessionDetails(db, sessionID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		summary, err := sync.SyncAll(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync pass failed", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

// RetryFailedActions godoc
// @Summary      Retry failed actions
// @Description  Resets failed actions to pending with a fresh retry window, then runs a sync pass
// @Tags         sync
// @Success      200  {object}  object
// @Failure      401  {object}  models.ErrorResponse
// @Router       /api/sync/retry [post]
func RetryFailedActions(db *sql.DB, sync *services.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		if _, _, err := GetSessionDetails(db, sessionID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		reset, summary, err := sync.RetryFailed(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Retry failed", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"reset": reset, "summary": summary})
	}
}

// GetSyncStatus godoc
// @Summary      Get sync status
// @Description  Returns queue counts, the in-flight flag and the last sync time
// @Tags         sync
// @Success      200  {object}  models.SyncStatusResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /api/sync/status [get]
func GetSyncStatus(db *sql.DB, sync *services.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		if _, _, err := GetSessionDetails(db, sessionID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		status, err := sync.Status()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read sync status", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, status)
	}
}

// EmailFailureDigest godoc
// @Summary      Email a digest of failed actions
// @Description  Mails supervisors the queued actions that exhausted their retries, one line per action with its last error
// @Tags         sync
// @Success      200  {object}  models.MessageResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /api/sync/digest [post]
func EmailFailureDigest(db *sql.DB, queue *storage.Queue, email *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		if _, _, err := GetSessionDetails(db, sessionID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		failed, err := queue.FailedActions()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue", "details": err.Error()})
			return
		}
		if len(failed) == 0 {
			c.JSON(http.StatusOK, gin.H{"message": "No failed actions", "count": 0})
			return
		}

		errors := make([]models.ActionError, 0, len(failed))
		for _, a := range failed {
			errors = append(errors, models.ActionError{ActionID: a.ID, Message: a.LastError})
		}

		if err := email.SendSyncFailureDigest(errors); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send digest", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Digest sent", "count": len(errors)})
	}
}

// DiscardAction godoc
// @Summary      Discard a queued action
// @Description  Permanently removes a queued action and its photos; for actions an operator has decided not to replay
// @Tags         sync
// @Param        action_id  path  string  true  "Action ID"
// @Success      200  {object}  models.MessageResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /api/sync/actions/{action_id} [delete]
func DiscardAction(db *sql.DB, queue *storage.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		if _, _, err := GetSessionDetails(db, sessionID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		actionID := c.Param("action_id")
		if actionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing action ID"})
			return
		}

		if err := queue.DeleteAction(actionID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to discard action", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Action discarded"})
	}
}
