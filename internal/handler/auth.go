package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/service"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, apierr.Validation("Fields 'email' and 'password' are required"))
		return
	}

	token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWith(c, apierr.New(apierr.CodeAuthentication).WithMessage("Invalid email or password"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "bearer",
	})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
		Name     string `json:"name" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, apierr.Validation("Fields 'email', 'password' (min 8 chars) and 'name' are required"))
		return
	}

	if err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.Name); err != nil {
		abortWith(c, apierr.Validation(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
}
