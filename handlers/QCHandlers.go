package handlers

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"modtrack/models"
	"modtrack/services"
	"modtrack/storage"
)

type submitQCRequest struct {
	StationID        int      `json:"station_id" binding:"required"`
	InspectorID      int      `json:"inspector_id" binding:"required"`
	Passed           bool     `json:"passed"`
	ChecklistResults string   `json:"checklist_results,omitempty"`
	DefectsFound     string   `json:"defects_found,omitempty"`
	ReworkRequired   bool     `json:"rework_required"`
	PhotoURLs        []string `json:"photo_urls,omitempty"`
	ClientActionID   string   `json:"client_action_id,omitempty"`
}

// SubmitQCRecord godoc
// @Summary      Submit an inspection
// @Description  Appends a QC record for a module at a station; a failed inspection puts the module on QC hold and alerts supervisors
// @Tags         qc
// @Accept       json
// @Param        module_id  path  int              true  "Module ID"
// @Param        request    body  submitQCRequest  true  "Inspection outcome"
// @Success      201  {object}  object
// @Failure      400  {object}  models.ErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /api/module/{module_id}/qc [post]
func SubmitQCRecord(db *sql.DB, store *storage.Store, svc *services.ModuleService, notifier *services.FCMService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		session, userName, err := GetSessionDetails(db, sessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		moduleID, err := strconv.Atoi(c.Param("module_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid module ID"})
			return
		}

		var req submitQCRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if req.ClientActionID == "" {
			req.ClientActionID = uuid.NewString()
		}

		module, err := store.GetModule(moduleID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch module", "details": err.Error()})
			return
		}

		status := models.QCPassed
		if !req.Passed {
			status = models.QCFailed
		}
		rec := &models.QCRecord{
			ModuleID:         moduleID,
			StationID:        req.StationID,
			InspectorID:      req.InspectorID,
			Status:           status,
			Passed:           req.Passed,
			ChecklistResults: req.ChecklistResults,
			DefectsFound:     req.DefectsFound,
			ReworkRequired:   req.ReworkRequired,
			PhotoURLs:        pq.StringArray(req.PhotoURLs),
			ClientActionID:   req.ClientActionID,
		}

		recordID, err := store.CreateQCRecord(rec)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create QC record", "details": err.Error()})
			return
		}
		rec.ID = recordID

		// A failed inspection holds the module until rework clears it.
		if !req.Passed && module.Status == models.StatusInProgress {
			if _, err := svc.UpdateModuleStatus(moduleID, models.StatusQCHold, nil, services.UpdateStatusOptions{}); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hold module", "details": err.Error()})
				return
			}
		}

		if !req.Passed && notifier != nil {
			station, stErr := store.GetStationTemplate(req.StationID)
			if stErr == nil {
				if nErr := notifier.NotifyQCFailure(c.Request.Context(), module, station, rec); nErr != nil {
					log.Printf("Failed to notify QC failure for module %d: %v", moduleID, nErr)
				}
			}
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "qc",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("QC record %d (%s) submitted for module %d", recordID, status, moduleID),
			EventName:    "qc_submitted",
			ProjectID:    module.ProjectID,
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message":   "QC record created",
			"record_id": recordID,
			"status":    status,
		})
	}
}

// GetModuleQCRecords godoc
// @Summary      Get module QC history
// @Description  Returns a module's inspection records, newest first
// @Tags         qc
// @Param        module_id  path  int  true  "Module ID"
// @Success      200  {array}   models.QCRecord
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/module/{module_id}/qc [get]
func GetModuleQCRecords(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		moduleID, err := strconv.Atoi(c.Param("module_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid module ID"})
			return
		}

		records, err := store.GetQCRecordsForModule(moduleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch QC records", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
	}
}

// CompleteRework godoc
// @Summary      Mark rework complete
// @Description  Flags the rework on a failed QC record as done; re-inspection still appends a fresh record
// @Tags         qc
// @Param        record_id  path  int  true  "QC record ID"
// @Success      200  {object}  models.MessageResponse
// @Failure      400  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/qc/{record_id}/rework-complete [put]
func CompleteRework(db *sql.DB, store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id header is missing"})
			return
		}
		session, userName, err := GetSessionDetails(db, sessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		recordID, err := strconv.Atoi(c.Param("record_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid record ID"})
			return
		}

		if err := store.MarkReworkCompleted(recordID); err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "No rework pending on that record"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark rework complete", "details": err.Error()})
			return
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "qc",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Rework completed on QC record %d", recordID),
			EventName:    "rework_completed",
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Rework marked complete"})
	}
}
