package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"modtrack/models"
	"modtrack/storage"
)

// GetFactoryStations godoc
// @Summary      List factory stations
// @Description  Returns the active line positions of a factory in order
// @Tags         stations
// @Param        factory_id  path  int  true  "Factory ID"
// @Success      200  {array}   models.StationTemplate
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/factory/{factory_id}/stations [get]
func GetFactoryStations(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		factoryID, err := strconv.Atoi(c.Param("factory_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid factory ID"})
			return
		}

		stations, err := store.GetActiveStationsByFactory(factoryID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stations", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"stations": stations, "count": len(stations)})
	}
}

type createStationRequest struct {
	FactoryID          int    `json:"factory_id" binding:"required"`
	Name               string `json:"name" binding:"required"`
	OrderNum           int    `json:"order_num" binding:"required"`
	RequiresInspection bool   `json:"requires_inspection"`
	MinCrewSize        int    `json:"min_crew_size"`
	MaxCrewSize        int    `json:"max_crew_size"`
}

// CreateStation godoc
// @Summary      Create a station
// @Description  Adds a line position to a factory
// @Tags         stations
// @Accept       json
// @Param        request  body  createStationRequest  true  "Station definition"
// @Success      201  {object}  object
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/stations [post]
func CreateStation(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		var req createStationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if req.MinCrewSize < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_crew_size must be at least 1"})
			return
		}
		if req.MaxCrewSize < req.MinCrewSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_crew_size must be >= min_crew_size"})
			return
		}

		id, err := store.CreateStationTemplate(&models.StationTemplate{
			FactoryID:          req.FactoryID,
			Name:               req.Name,
			OrderNum:           req.OrderNum,
			RequiresInspection: req.RequiresInspection,
			MinCrewSize:        req.MinCrewSize,
			MaxCrewSize:        req.MaxCrewSize,
			IsActive:           true,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create station", "details": err.Error()})
			return
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "station",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Station %s created at order %d", req.Name, req.OrderNum),
			EventName:    "station_created",
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "Station created", "station_id": id})
	}
}

type updateStationRequest struct {
	Name               *string `json:"name,omitempty"`
	RequiresInspection *bool   `json:"requires_inspection,omitempty"`
	MinCrewSize        *int    `json:"min_crew_size,omitempty"`
	MaxCrewSize        *int    `json:"max_crew_size,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

// UpdateStation godoc
// @Summary      Update a station
// @Description  Partially updates a line position; deactivating a station blocks new moves onto it
// @Tags         stations
// @Accept       json
// @Param        station_id  path  int                   true  "Station ID"
// @Param        request     body  updateStationRequest  true  "Fields to update"
// @Success      200  {object}  models.MessageResponse
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/stations/{station_id} [put]
func UpdateStation(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		stationID, err := strconv.Atoi(c.Param("station_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid station ID"})
			return
		}

		var req updateStationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		fields := map[string]interface{}{}
		if req.Name != nil {
			fields["name"] = *req.Name
		}
		if req.RequiresInspection != nil {
			fields["requires_inspection"] = *req.RequiresInspection
		}
		if req.MinCrewSize != nil {
			fields["min_crew_size"] = *req.MinCrewSize
		}
		if req.MaxCrewSize != nil {
			fields["max_crew_size"] = *req.MaxCrewSize
		}
		if req.IsActive != nil {
			fields["is_active"] = *req.IsActive
		}
		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
			return
		}

		if err := store.UpdateStationTemplate(stationID, fields); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update station", "details": err.Error()})
			return
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "station",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Station %d updated", stationID),
			EventName:    "station_updated",
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Station updated"})
	}
}
