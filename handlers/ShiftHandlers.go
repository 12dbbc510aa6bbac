package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"modtrack/models"
	"modtrack/storage"
)

type clockInRequest struct {
	WorkerID       int    `json:"worker_id" binding:"required"`
	StationID      *int   `json:"station_id,omitempty"`
	ClientActionID string `json:"client_action_id,omitempty"`
}

// ClockIn godoc
// @Summary      Clock a worker in
// @Description  Opens a shift entry for a worker, idempotent on the client action id
// @Tags         shifts
// @Accept       json
// @Param        request  body  clockInRequest  true  "Worker and station"
// @Success      201  {object}  object
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/shifts/clock-in [post]
func ClockIn(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		var req clockInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if req.ClientActionID == "" {
			req.ClientActionID = uuid.NewString()
		}

		id, err := store.ClockIn(&models.ShiftEntry{
			WorkerID:       req.WorkerID,
			StationID:      req.StationID,
			ClockIn:        time.Now(),
			ClientActionID: req.ClientActionID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clock in", "details": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "Clocked in", "shift_id": id})
	}
}

type clockOutRequest struct {
	WorkerID int `json:"worker_id" binding:"required"`
}

// ClockOut godoc
// @Summary      Clock a worker out
// @Description  Closes the worker's open shift entry; a replay against an already-closed shift is a no-op
// @Tags         shifts
// @Accept       json
// @Param        request  body  clockOutRequest  true  "Worker"
// @Success      200  {object}  models.MessageResponse
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/shifts/clock-out [post]
func ClockOut(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		var req clockOutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		if err := store.ClockOut(req.WorkerID, time.Now()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clock out", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Clocked out"})
	}
}
