package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dealerhub/announce-api/internal/service"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
	"github.com/dealerhub/announce-api/pkg/response"
)

// BroadcastHandler exposes administrator authoring endpoints.
type BroadcastHandler struct {
	broadcasts *service.BroadcastService
}

// NewBroadcastHandler constructs handler.
func NewBroadcastHandler(broadcasts *service.BroadcastService) *BroadcastHandler {
	return &BroadcastHandler{broadcasts: broadcasts}
}

// List godoc
// @Summary List announcements with filters
// @Tags Admin
// @Produce json
// @Param status query string false "Status filter"
// @Param audience query string false "Audience filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/announcements [get]
func (h *BroadcastHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	announcements, pagination, err := h.broadcasts.List(c.Request.Context(), service.BroadcastListRequest{
		Status:   c.Query("status"),
		Audience: c.Query("audience"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, pagination)
}

// Get godoc
// @Summary Fetch one announcement
// @Tags Admin
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /admin/announcements/{id} [get]
func (h *BroadcastHandler) Get(c *gin.Context) {
	announcement, err := h.broadcasts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Create godoc
// @Summary Create a draft announcement
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.CreateBroadcastRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Router /admin/announcements [post]
func (h *BroadcastHandler) Create(c *gin.Context) {
	var req service.CreateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid announcement payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims != nil {
		req.CreatedBy = claims.UserID
	}
	created, err := h.broadcasts.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Update an announcement
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body service.UpdateBroadcastRequest true "Announcement"
// @Success 200 {object} response.Envelope
// @Router /admin/announcements/{id} [put]
func (h *BroadcastHandler) Update(c *gin.Context) {
	var req service.UpdateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid announcement payload"))
		return
	}
	updated, err := h.broadcasts.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Publish godoc
// @Summary Publish an announcement
// @Tags Admin
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /admin/announcements/{id}/publish [post]
func (h *BroadcastHandler) Publish(c *gin.Context) {
	if err := h.broadcasts.Publish(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Archive godoc
// @Summary Archive an announcement
// @Tags Admin
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /admin/announcements/{id}/archive [post]
func (h *BroadcastHandler) Archive(c *gin.Context) {
	if err := h.broadcasts.Archive(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete an announcement and its receipts
// @Tags Admin
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /admin/announcements/{id} [delete]
func (h *BroadcastHandler) Delete(c *gin.Context) {
	if err := h.broadcasts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
