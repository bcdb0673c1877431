package auth

import (
	"net/http"
	"strings"

	"github.com/abduss/tasktrack/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const identityContextKey = "tasktrackIdentity"

const bearerPrefix = "Bearer "

// Fixed 401 bodies; the gate never says why a token was rejected.
const (
	msgNoToken      = "No token provided"
	msgInvalidToken = "Invalid or expired token"
)

// tokenValidator is satisfied by *Service.
type tokenValidator interface {
	ValidateAccessToken(token string) (TokenPayload, error)
}

// AuthMiddleware validates bearer tokens and attaches the caller's identity.
func AuthMiddleware(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgNoToken})
			return
		}

		payload, err := validator.ValidateAccessToken(header[len(bearerPrefix):])
		if err != nil {
			logger.FromContext(c).Debug("access token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
			return
		}

		c.Set(identityContextKey, payload)
		c.Next()
	}
}

// CurrentIdentity returns the verified token payload of the request.
func CurrentIdentity(c *gin.Context) (TokenPayload, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return TokenPayload{}, false
	}
	payload, ok := value.(TokenPayload)
	return payload, ok
}

// RequireUser fetches the authenticated user id.
func RequireUser(c *gin.Context) (uuid.UUID, TokenPayload, bool) {
	payload, ok := CurrentIdentity(c)
	if !ok || payload.UserID == uuid.Nil {
		return uuid.Nil, TokenPayload{}, false
	}
	return payload.UserID, payload, true
}
