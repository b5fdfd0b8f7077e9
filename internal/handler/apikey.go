package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/service"
)

type APIKeyHandler struct {
	service *service.APIKeyService
	debug   bool
}

func NewAPIKeyHandler(service *service.APIKeyService, debug bool) *APIKeyHandler {
	return &APIKeyHandler{service: service, debug: debug}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		CreatedBy string `json:"created_by"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, apierr.Validation("Field 'name' is required"))
		return
	}

	key, err := h.service.Create(c.Request.Context(), req.Name, req.CreatedBy)
	if err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"message": "Save this key - it won't be shown again",
	})
}

func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.service.List(c.Request.Context())
	if err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (h *APIKeyHandler) Get(c *gin.Context) {
	apiKey, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	if apiKey == nil {
		abortWith(c, apierr.New(apierr.CodeNotFound).WithMessage("API key not found"))
		return
	}

	c.JSON(http.StatusOK, apiKey)
}

func (h *APIKeyHandler) Update(c *gin.Context) {
	var req struct {
		Name     *string `json:"name"`
		IsActive *bool   `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, apierr.Validation("Request body must be a JSON object"))
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		abortWith(c, apierr.Validation("No fields to update"))
		return
	}

	if err := h.service.Update(c.Request.Context(), c.Param("id"), updates); err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key updated successfully"})
}

func (h *APIKeyHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key deleted successfully"})
}
