package auth

import (
	"errors"
	"net/http"

	"github.com/abduss/tasktrack/internal/logger"
	"github.com/abduss/tasktrack/internal/metrics"
	"github.com/abduss/tasktrack/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts authentication endpoints under /auth. Logout and
// profile sit behind the bearer gate.
func RegisterRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	gate := AuthMiddleware(service)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", handler.register)
		authGroup.POST("/login", handler.login)
		authGroup.POST("/refresh", handler.refresh)
		authGroup.POST("/logout", gate, handler.logout)
		authGroup.GET("/me", gate, handler.me)
	}
}

type httpHandler struct {
	service *Service
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	User         Profile `json:"user"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

func (h *httpHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.Respond(c, validation.FromBinding(err))
		return
	}

	profile, err := h.service.Register(c.Request.Context(), RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			metrics.ObserveAuth("register", "invalid")
			validation.Respond(c, verr)
		case errors.Is(err, ErrEmailAlreadyExists):
			metrics.ObserveAuth("register", "conflict")
			c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
		default:
			internalError(c, "register", err)
		}
		return
	}

	metrics.ObserveAuth("register", "success")
	c.JSON(http.StatusCreated, gin.H{"user": profile})
}

func (h *httpHandler) login(c *gin.Context) {
	var req loginRequest
	// unparseable or incomplete credentials get the same answer as wrong ones
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		metrics.ObserveAuth("login", "rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	result, err := h.service.Login(c.Request.Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			metrics.ObserveAuth("login", "rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		internalError(c, "login", err)
		return
	}

	metrics.ObserveAuth("login", "success")
	c.JSON(http.StatusOK, loginResponse{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
}

func (h *httpHandler) refresh(c *gin.Context) {
	var req refreshRequest
	// a malformed body is treated like a missing token
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Refresh token required"})
		return
	}

	result, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			metrics.ObserveAuth("refresh", "rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}
		internalError(c, "refresh", err)
		return
	}

	metrics.ObserveAuth("refresh", "success")
	c.JSON(http.StatusOK, gin.H{"accessToken": result.AccessToken})
}

func (h *httpHandler) logout(c *gin.Context) {
	userID, _, ok := RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.service.Logout(c.Request.Context(), userID); err != nil {
		internalError(c, "logout", err)
		return
	}

	metrics.ObserveAuth("logout", "success")
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *httpHandler) me(c *gin.Context) {
	userID, _, ok := RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	profile, err := h.service.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, "profile", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": profile})
}

func internalError(c *gin.Context, operation string, err error) {
	metrics.ObserveAuth(operation, "error")
	logger.FromContext(c).Error("auth operation failed", zap.String("operation", operation), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
