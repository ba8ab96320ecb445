package handler

import (
	"net/http"

	"upforit/internal/domain/conversation"
	"upforit/internal/services"
	"upforit/internal/transport/httpdto"
	upforit_errors "upforit/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	conversations *services.ConversationService
	aggregator    *services.ConversationAggregator
	badges        *services.BadgeService
}

func NewConversationHandler(conversations *services.ConversationService, aggregator *services.ConversationAggregator, badges *services.BadgeService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, aggregator: aggregator, badges: badges}
}

// List serves the chat list. The app calls it on every focus, so it re-aggregates
// unless cached=true asks for the last persisted list.
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if c.Query("cached") == "true" {
		items, err := h.aggregator.Cached(ctx, userID)
		if err != nil {
			fail(c, err)
			return
		}
		if items != nil {
			items = conversation.FilterSummaries(items, c.Query("q"))
			c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConversationListResponse{
				Conversations: httpdto.FromSummaries(items),
				Cached:        true,
			}))
			return
		}
	}

	items, err := h.aggregator.BuildConversationList(ctx, userID, c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConversationListResponse{
		Conversations: httpdto.FromSummaries(items),
	}))
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, err := h.conversations.GetByID(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

func (h *ConversationHandler) StartDirect(c *gin.Context) {
	var req httpdto.StartDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, err := h.conversations.StartDirect(c.Request.Context(), userID, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req httpdto.CreateGroupChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, created, err := h.conversations.CreateGroupChat(c.Request.Context(), userID, req.CrewID, req.Date)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

func (h *ConversationHandler) Open(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	badge, err := h.badges.OpenConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.BadgeResponse{Badge: badge}))
}

func (h *ConversationHandler) Close(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.badges.CloseConversation(c.Request.Context(), userID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	badge, err := h.badges.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.BadgeResponse{Badge: badge}))
}
