package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealerhub/announce-api/internal/service"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
	"github.com/dealerhub/announce-api/pkg/response"
)

// AnnouncementHandler exposes the delivery-facing announcement endpoints.
type AnnouncementHandler struct {
	delivery *service.DeliveryService
}

// NewAnnouncementHandler constructs handler.
func NewAnnouncementHandler(delivery *service.DeliveryService) *AnnouncementHandler {
	return &AnnouncementHandler{delivery: delivery}
}

// Active godoc
// @Summary List deliverable announcements for the caller
// @Tags Announcements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements/active [get]
func (h *AnnouncementHandler) Active(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	announcements, err := h.delivery.ActiveFor(c.Request.Context(), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil)
}

// Unread godoc
// @Summary List announcements the caller has not viewed
// @Tags Announcements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements/unread [get]
func (h *AnnouncementHandler) Unread(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	announcements, err := h.delivery.UnreadFor(c.Request.Context(), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil, map[string]interface{}{"unread_count": len(announcements)})
}

// MarkViewed godoc
// @Summary Record a view receipt for an announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id}/view [post]
func (h *AnnouncementHandler) MarkViewed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.delivery.MarkViewed(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"already_recorded": result.WasAlreadyRecorded}, nil)
}

// Acknowledge godoc
// @Summary Record an acknowledgment receipt for an announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /announcements/{id}/acknowledge [post]
func (h *AnnouncementHandler) Acknowledge(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.delivery.MarkAcknowledged(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
