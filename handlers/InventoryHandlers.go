package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"modtrack/models"
	"modtrack/storage"
)

type receiveInventoryRequest struct {
	FactoryID      int     `json:"factory_id" binding:"required"`
	ItemCode       string  `json:"item_code" binding:"required"`
	Quantity       float64 `json:"quantity" binding:"required"`
	ReceivedBy     int     `json:"received_by" binding:"required"`
	ClientActionID string  `json:"client_action_id,omitempty"`
}

// ReceiveInventory godoc
// @Summary      Record a material receipt
// @Description  Records material received on the floor, idempotent on the client action id
// @Tags         inventory
// @Accept       json
// @Param        request  body  receiveInventoryRequest  true  "Receipt"
// @Success      201  {object}  object
// @Failure      400  {object}  models.ErrorResponse
// @Router       /api/inventory/receipts [post]
func ReceiveInventory(db *sql.DB, store *storage.Store) gin.HandlerFunc {
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

		var req receiveInventoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		if req.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
			return
		}
		if req.ClientActionID == "" {
			req.ClientActionID = uuid.NewString()
		}

		id, err := store.CreateInventoryReceipt(&models.InventoryReceipt{
			FactoryID:      req.FactoryID,
			ItemCode:       req.ItemCode,
			Quantity:       req.Quantity,
			ReceivedBy:     req.ReceivedBy,
			ClientActionID: req.ClientActionID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record receipt", "details": err.Error()})
			return
		}

		logErr := SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "inventory",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Received %.2f of %s at factory %d", req.Quantity, req.ItemCode, req.FactoryID),
			EventName:    "inventory_received",
		})
		if logErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity log"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "Receipt recorded", "receipt_id": id})
	}
}
