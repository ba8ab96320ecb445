package handler

import (
	"net/http"

	"upforit/internal/services"
	"upforit/internal/transport/httpdto"
	upforit_errors "upforit/pkg/errors"

	"github.com/gin-gonic/gin"
)

type devTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name"`
}

type devTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// AuthHandler issues tokens for local development. Production tokens come from the
// identity provider, so the route is only mounted outside release mode.
type AuthHandler struct {
	service *services.AuthService
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) DevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	token, err := h.service.IssueToken(req.UserID, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(devTokenResponse{AccessToken: token}))
}
