package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/famcare-id/famcare-api/internal/service"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
	"github.com/famcare-id/famcare-api/pkg/response"
)

// ReviewHandler exposes review submission for completed sessions.
type ReviewHandler struct {
	reviews *service.ReviewService
}

// NewReviewHandler constructs ReviewHandler.
func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Submit godoc
// @Summary Review a completed session
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.SubmitReviewRequest true "Review payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/reviews [post]
func (h *ReviewHandler) Submit(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}

	review, err := h.reviews.Submit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// GetBySession godoc
// @Summary Get the review of a session
// @Tags Reviews
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/reviews [get]
func (h *ReviewHandler) GetBySession(c *gin.Context) {
	review, err := h.reviews.GetBySession(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}
