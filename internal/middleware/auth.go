package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"miniapp-games/internal/models"
	"miniapp-games/internal/services"
)

type TokenValidator interface {
	ValidateToken(token string) (*models.UserSession, error)
}

type RevocationChecker interface {
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error)
}

// AuthMiddleware accepts a bearer token, or a token query parameter for websocket upgrades.
// revoked may be nil when no revocation store is configured.
func AuthMiddleware(tokens TokenValidator, revoked RevocationChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		session, err := tokens.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		if revoked != nil && session.SessionID != "" {
			isRevoked, err := revoked.IsSessionRevoked(c.Request.Context(), session.SessionID)
			if err != nil {
				logger.Error("failed to check session revocation", zap.String("session_id", session.SessionID), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session check failed"})
				c.Abort()
				return
			}
			if isRevoked {
				c.JSON(http.StatusUnauthorized, gin.H{"error": models.ErrSessionRevoked.Error()})
				c.Abort()
				return
			}
		}

		c.Set("user_id", session.UserID)
		c.Set("session_id", session.SessionID)
		c.Set("session_expires", session.ExpiresAt)
		c.Set("session", session)

		c.Next()
	}
}

// RateLimitMiddleware limits rolls per player. Other routes pass through.
func RateLimitMiddleware(limiter RateLimiter, bets int, logger *zap.Logger) gin.HandlerFunc {
	if bets <= 0 {
		bets = services.DefaultRateLimitBets
	}

	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var action string
		var limit int
		window := time.Minute

		switch {
		case strings.HasSuffix(path, "/games/dice/roll"):
			action, limit = "roll", bets
		case strings.HasSuffix(path, "/games/dice/fairness/rotate"):
			action, limit = "rotate", 10
		default:
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), userID, action, limit, window)
		if err != nil {
			logger.Warn("rate limit check failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORS allows the mini-app frontend to call the API from any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
