package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/famcare-id/famcare-api/internal/service"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
	"github.com/famcare-id/famcare-api/pkg/response"
)

// BookingHandler exposes the reserve and confirm steps of the booking flow.
type BookingHandler struct {
	bookings *service.BookingService
}

// NewBookingHandler constructs BookingHandler.
func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// Reserve godoc
// @Summary Place a hold on a free slot
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.ReserveRequest true "Reserve payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id}/reserve [post]
func (h *BookingHandler) Reserve(c *gin.Context) {
	var req service.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reserve payload"))
		return
	}

	hold, err := h.bookings.Reserve(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hold, nil)
}

// Confirm godoc
// @Summary Confirm a hold into a pending session
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.ConfirmRequest true "Confirm payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/confirm [post]
func (h *BookingHandler) Confirm(c *gin.Context) {
	var req service.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid confirm payload"))
		return
	}

	session, err := h.bookings.Confirm(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Release godoc
// @Summary Give up a hold before it expires
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body handler.releaseRequest true "Release payload"
// @Success 204 {object} response.Envelope
// @Router /bookings/release [post]
func (h *BookingHandler) Release(c *gin.Context) {
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid release payload"))
		return
	}

	if err := h.bookings.ReleaseHold(c.Request.Context(), req.HoldToken, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type releaseRequest struct {
	HoldToken string `json:"hold_token" binding:"required"`
}
