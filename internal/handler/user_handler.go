package handler

import (
	"net/http"

	"upforit/internal/services"
	"upforit/internal/transport/httpdto"
	upforit_errors "upforit/pkg/errors"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users   *services.UserService
	badges  *services.BadgeService
	avatars *services.AvatarService
}

func NewUserHandler(users *services.UserService, badges *services.BadgeService, avatars *services.AvatarService) *UserHandler {
	return &UserHandler{users: users, badges: badges, avatars: avatars}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromUser(u)))
}

// UpdateProfile creates the caller's profile on first use. Clients call it after
// every sign-in.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req httpdto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.users.EnsureProfile(c.Request.Context(), userID, req.DisplayName)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromUser(u)))
}

func (h *UserHandler) Badge(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var (
		badge int
		err   error
	)
	if c.Query("recompute") == "true" {
		badge, err = h.badges.RecomputeBadge(c.Request.Context(), userID)
	} else {
		badge, err = h.badges.Badge(c.Request.Context(), userID)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.BadgeResponse{Badge: badge}))
}

func (h *UserHandler) RegisterPushToken(c *gin.Context) {
	var req httpdto.PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.users.RegisterPushToken(c.Request.Context(), userID, req.Token); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *UserHandler) UnregisterPushToken(c *gin.Context) {
	var req httpdto.PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.users.UnregisterPushToken(c.Request.Context(), userID, req.Token); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *UserHandler) PresignAvatar(c *gin.Context) {
	var req httpdto.AvatarPresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	up, err := h.avatars.PresignAvatar(c.Request.Context(), userID, req.ContentType, req.Size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.AvatarPresignResponse{
		UploadURL: up.UploadURL,
		UploadKey: up.UploadKey,
		PublicURL: up.PublicURL,
		Headers:   up.Headers,
	}))
}

func (h *UserHandler) ConfirmAvatar(c *gin.Context) {
	var req httpdto.AvatarConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.avatars.ConfirmAvatar(c.Request.Context(), userID, req.UploadKey)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromUser(u)))
}
