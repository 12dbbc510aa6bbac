package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"modtrack/models"
	"modtrack/repository"
	"modtrack/services"
	"modtrack/storage"
)

type createModulesRequest struct {
	FactoryID      int        `json:"factory_id" binding:"required"`
	Count          int        `json:"count" binding:"required"`
	SerialPrefix   string     `json:"serial_prefix,omitempty"`
	IsRush         bool       `json:"is_rush"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
}

// CreateProjectModules godoc
// @Summary      Materialize a project's modules
// @Description  Creates the next batch of production modules for a project, assigning sequential serial numbers from the project code
// @Tags         modules
// @Accept       json
// @Param        project_id  path  int                   true  "Project ID"
// @Param        request     body  createModulesRequest  true  "Batch definition"
// @Success      201  {object}  object
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/project/{project_id}/modules [post]
func CreateProjectModules(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		projectID, err := strconv.Atoi(c.Param("project_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
			return
		}

		var req createModulesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if req.Count < 1 || req.Count > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Count must be between 1 and 500"})
			return
		}
		if req.SerialPrefix == "" {
			req.SerialPrefix = "MOD"
		}

		projectCode, err := repository.FetchProjectCode(db, projectID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project code", "details": err.Error()})
			return
		}

		nextSeq, err := repository.NextSequenceNumber(db, projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to determine sequence number", "details": err.Error()})
			return
		}

		created := make([]models.Module, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			seq := nextSeq + i
			module := models.Module{
				SerialNumber:   repository.GenerateModuleSerial(req.SerialPrefix, projectCode, seq),
				SequenceNumber: seq,
				ProjectID:      projectID,
				FactoryID:      req.FactoryID,
				Status:         models.StatusNotStarted,
				IsRush:         req.IsRush,
				ScheduledStart: req.ScheduledStart,
				ScheduledEnd:   req.ScheduledEnd,
			}
			id, err := store.CreateModule(&module)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "Failed to create module",
					"details": err.Error(),
					"created": len(created),
				})
				return
			}
			module.ID = id
			created = append(created, module)
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "module",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Created %d modules for project %d", len(created), projectID),
			EventName:    "modules_created",
			ProjectID:    projectID,
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"modules": created, "count": len(created)})
	}
}

// GetModule godoc
// @Summary      Get a module
// @Description  Returns one production module with its current status and station
// @Tags         modules
// @Param        module_id  path  int  true  "Module ID"
// @Success      200  {object}  models.Module
// @Failure      400  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/module/{module_id} [get]
func GetModule(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		module, err := store.GetModule(moduleID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch module", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, module)
	}
}

// GetProjectModules godoc
// @Summary      List project modules
// @Description  Returns the non-archived modules of a project in sequence order
// @Tags         modules
// @Param        project_id  path  int  true  "Project ID"
// @Success      200  {array}   models.Module
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/project/{project_id}/modules [get]
func GetProjectModules(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		projectID, err := strconv.Atoi(c.Param("project_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
			return
		}

		modules, err := store.GetModulesByProject(projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch modules", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"modules": modules, "count": len(modules)})
	}
}

type updateStatusRequest struct {
	Status    models.ModuleStatus `json:"status" binding:"required"`
	StationID *int                `json:"station_id,omitempty"`
}

// UpdateModuleStatus godoc
// @Summary      Update module status
// @Description  Moves a module through the production status graph; rejected transitions return the validation result
// @Tags         modules
// @Accept       json
// @Param        module_id  path  int                  true  "Module ID"
// @Param        request    body  updateStatusRequest  true  "New status"
// @Success      200  {object}  models.MessageResponse
// @Failure      400  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ValidationFailureResponse
// @Router       /api/module/{module_id}/status [put]
func UpdateModuleStatus(db *sql.DB, svc *services.ModuleService) gin.HandlerFunc {
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

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		result, err := svc.UpdateModuleStatus(moduleID, req.Status, req.StationID, services.UpdateStatusOptions{})
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status", "details": err.Error()})
			return
		}
		if !result.Valid {
			c.JSON(http.StatusUnprocessableEntity, models.ValidationFailureResponse{
				Error:      "Status change rejected",
				Validation: result,
			})
			return
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "module",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Module %d status changed to %s", moduleID, req.Status),
			EventName:    "module_status_updated",
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Status updated", "status": req.Status})
	}
}

type moveModuleRequest struct {
	StationID     int   `json:"station_id" binding:"required"`
	LeadID        *int  `json:"lead_id,omitempty"`
	CrewIDs       []int `json:"crew_ids,omitempty"`
	IsRework      bool  `json:"is_rework"`
	AllowBackward bool  `json:"allow_backward"`
}

// MoveModuleToStation godoc
// @Summary      Move module to a station
// @Description  Validates line progression, crew size and certifications, then queues the module at the station
// @Tags         modules
// @Accept       json
// @Param        module_id  path  int                true  "Module ID"
// @Param        request    body  moveModuleRequest  true  "Target station and crew"
// @Success      200  {object}  models.MessageResponse
// @Failure      400  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ValidationFailureResponse
// @Router       /api/module/{module_id}/move [post]
func MoveModuleToStation(db *sql.DB, svc *services.ModuleService) gin.HandlerFunc {
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

		var req moveModuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		result, err := svc.MoveModuleToStation(moduleID, req.StationID, req.LeadID, req.CrewIDs, services.MoveOptions{
			IsRework:      req.IsRework,
			AllowBackward: req.AllowBackward,
		})
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module or station not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to move module", "details": err.Error()})
			return
		}
		if !result.Valid {
			c.JSON(http.StatusUnprocessableEntity, models.ValidationFailureResponse{
				Error:      "Move rejected",
				Validation: result,
			})
			return
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "module",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Module %d moved to station %d", moduleID, req.StationID),
			EventName:    "module_moved",
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Module moved", "details": result.Details})
	}
}

// GetModuleQRLabel godoc
// @Summary      Get module QR label
// @Description  Returns a PNG QR code encoding the module's serial number for floor scanning
// @Tags         modules
// @Produce      png
// @Param        module_id  path  int  true  "Module ID"
// @Success      200  {file}    file
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/module/{module_id}/qr [get]
func GetModuleQRLabel(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		module, err := store.GetModule(moduleID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch module", "details": err.Error()})
			return
		}

		png, err := qrcode.Encode(module.SerialNumber, qrcode.Medium, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code"})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=module-%s.png", module.SerialNumber))
		c.Data(http.StatusOK, "image/png", png)
	}
}
