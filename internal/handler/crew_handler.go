package handler

import (
	"net/http"

	"upforit/internal/services"
	"upforit/internal/transport/httpdto"
	upforit_errors "upforit/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CrewHandler struct {
	crews         *services.CrewService
	notifications *services.NotificationService
}

func NewCrewHandler(crews *services.CrewService, notifications *services.NotificationService) *CrewHandler {
	return &CrewHandler{crews: crews, notifications: notifications}
}

func (h *CrewHandler) Create(c *gin.Context) {
	var req httpdto.CreateCrewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	cr, err := h.crews.CreateCrew(c.Request.Context(), userID, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromCrew(cr)))
}

func (h *CrewHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.crews.ListCrews(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromCrews(items)))
}

func (h *CrewHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.crews.DeleteCrew(c.Request.Context(), userID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *CrewHandler) Join(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.crews.JoinCrew(c.Request.Context(), userID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *CrewHandler) Leave(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.crews.LeaveCrew(c.Request.Context(), userID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *CrewHandler) Members(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ids, err := h.crews.GetMembers(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CrewMembersResponse{MemberIDs: ids}))
}

func (h *CrewHandler) SetAvailability(c *gin.Context) {
	var req httpdto.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UpForIt == nil {
		fail(c, upforit_errors.ErrInvalidInput)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	crewID, date := c.Param("id"), c.Param("date")
	if err := h.crews.SetAvailability(c.Request.Context(), userID, crewID, date, *req.UpForIt); err != nil {
		fail(c, err)
		return
	}
	h.writeAvailability(c, userID, crewID, date)
}

func (h *CrewHandler) GetAvailability(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.writeAvailability(c, userID, c.Param("id"), c.Param("date"))
}

func (h *CrewHandler) writeAvailability(c *gin.Context, userID, crewID, date string) {
	flags, err := h.crews.GetAvailability(c.Request.Context(), userID, crewID, date)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromAvailability(crewID, date, flags)))
}

// Poke nudges the members of a crew who are not up for it on a date yet.
func (h *CrewHandler) Poke(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.notifications.Poke(c.Request.Context(), userID, c.Param("id"), c.Param("date"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PokeResponse{
		Recipients: res.Recipients,
		Pushes:     res.Pushes,
	}))
}
