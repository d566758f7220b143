package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"miniapp-games/internal/models"
	"miniapp-games/internal/services"
)

type SessionRevoker interface {
	RevokeSession(ctx context.Context, sessionID string, until time.Time) error
}

type UserHandler struct {
	sessions *services.SessionManager
	revoker  SessionRevoker
	logger   *zap.Logger
}

func NewUserHandler(sessions *services.SessionManager, revoker SessionRevoker, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		sessions: sessions,
		revoker:  revoker,
		logger:   logger.With(zap.String("component", "user_handler")),
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	value, exists := c.Get("session")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	session := value.(*models.UserSession)

	response := gin.H{
		"user": gin.H{
			"id":    session.UserID,
			"email": session.Email,
			"role":  session.Role,
		},
		"session": gin.H{
			"session_id": session.SessionID,
			"expires_at": session.ExpiresAt,
		},
	}

	o, err := h.sessions.Get(c.Request.Context(), session.UserID)
	if err != nil {
		h.logger.Warn("failed to load wallet", zap.String("user_id", session.UserID), zap.Error(err))
	} else if wallet := o.Snapshot().Wallet; wallet != nil {
		response["wallet"] = wallet
	}

	c.JSON(http.StatusOK, response)
}

func (h *UserHandler) Logout(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID := c.GetString("session_id")
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	if h.revoker != nil {
		if err := h.revoker.RevokeSession(c.Request.Context(), sessionID, c.GetTime("session_expires")); err != nil {
			h.logger.Error("failed to revoke session", zap.String("session_id", sessionID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
			return
		}
	}
	h.sessions.Remove(userID)

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
