package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/internal/service"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
	"github.com/famcare-id/famcare-api/pkg/response"
)

// AvailabilityHandler exposes slot publication and the availability listing.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

// NewAvailabilityHandler constructs AvailabilityHandler.
func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// List godoc
// @Summary List a consultant's available slots
// @Tags Availability
// @Produce json
// @Param id path string true "Consultant ID"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /consultants/{id}/slots [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	filter := models.SlotFilter{ConsultantID: c.Param("id")}
	if from := c.Query("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339"))
			return
		}
		filter.From = ts
	}
	if to := c.Query("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339"))
			return
		}
		filter.To = ts
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	slots, pagination, cached, err := h.availability.ListAvailable(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, pagination, map[string]interface{}{"cached": cached})
}

// Publish godoc
// @Summary Publish an availability slot
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Consultant ID"
// @Param payload body service.PublishSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /consultants/{id}/slots [post]
func (h *AvailabilityHandler) Publish(c *gin.Context) {
	var req service.PublishSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}

	slot, err := h.availability.Publish(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Withdraw godoc
// @Summary Withdraw a free slot
// @Tags Availability
// @Produce json
// @Param id path string true "Slot ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id} [delete]
func (h *AvailabilityHandler) Withdraw(c *gin.Context) {
	if err := h.availability.Withdraw(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
