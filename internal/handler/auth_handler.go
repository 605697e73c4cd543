package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/service"
	"taskmanager/pkg/logger"
)

type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Username  string  `json:"username" binding:"required,max=150"`
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required,min=8"`
	Password2 string  `json:"password2" binding:"omitempty,eqfield=Password"`
	FirstName string  `json:"first_name" binding:"max=150"`
	LastName  string  `json:"last_name" binding:"max=150"`
	Phone     *string `json:"phone" binding:"omitempty,max=15"`
	Bio       string  `json:"bio" binding:"max=500"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	u, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Bio:       req.Bio,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, newUserResponse(u))
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, u, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Info("Login failed",
			zap.String("username", req.Username),
			zap.String("client_ip", c.ClientIP()),
		)
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access":     token,
		"token_type": "Bearer",
		"user":       newUserResponse(u),
	})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	u := currentUser(c)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	c.JSON(http.StatusOK, newUserResponse(u))
}
