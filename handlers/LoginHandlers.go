package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"modtrack/utils"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a user and opens a session
// @Summary Login
// @Description Authenticate with email and password, returns a session token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body loginRequest true "Credentials"
// @Success 200 {object} object
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/login [post]
func Login(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		var userID int
		var hashedPassword, firstName, lastName string
		err := db.QueryRow(`
			SELECT id, password, first_name, last_name FROM users
			WHERE email = $1 AND is_active = true`, req.Email).
			Scan(&userID, &hashedPassword, &firstName, &lastName)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		if !utils.ValidatePassword(hashedPassword, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		accessToken, err := utils.GenerateJWT(req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		sessionID := uuid.NewString()
		refreshToken, err := utils.GenerateRefreshToken(req.Email, sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate refresh token"})
			return
		}

		expiresAt := time.Now().Add(15 * 24 * time.Hour)
		_, err = db.Exec(`
			INSERT INTO session (user_id, session_id, host_name, ip_address, timestp, expires_at)
			VALUES ($1, $2, $3, $4, NOW(), $5)`,
			userID, accessToken, req.Email, c.ClientIP(), expiresAt,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":       "Login successful",
			"session_id":    accessToken,
			"refresh_token": refreshToken,
			"user": gin.H{
				"id":    userID,
				"name":  firstName + " " + lastName,
				"email": req.Email,
			},
		})
	}
}
