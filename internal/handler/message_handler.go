package handler

import (
	"net/http"

	"upforit/internal/services"
	"upforit/internal/transport/httpdto"
	upforit_errors "upforit/pkg/errors"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.service.Send(c.Request.Context(), userID, c.Param("id"), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

func (h *MessageHandler) SendDirect(c *gin.Context) {
	var req httpdto.SendDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.service.SendDirect(c.Request.Context(), userID, req.RecipientID, req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

// List pages with ?before=<RFC3339 created_at of the oldest message seen>&limit=n.
func (h *MessageHandler) List(c *gin.Context) {
	before, err := parseBefore(c.Query("before"))
	if err != nil {
		fail(c, err)
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		fail(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.service.ListMessages(c.Request.Context(), userID, c.Param("id"), before, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListMessagesResponse{
		Messages: httpdto.FromMessages(items),
	}))
}
