package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/internal/service"
	"github.com/famcare-id/famcare-api/pkg/response"
)

// ConsultantHandler exposes the consultant directory.
type ConsultantHandler struct {
	consultants *service.ConsultantService
	reviews     *service.ReviewService
}

// NewConsultantHandler constructs ConsultantHandler.
func NewConsultantHandler(consultants *service.ConsultantService, reviews *service.ReviewService) *ConsultantHandler {
	return &ConsultantHandler{consultants: consultants, reviews: reviews}
}

// List godoc
// @Summary List consultants
// @Tags Consultants
// @Produce json
// @Param search query string false "Search by name"
// @Param specialization query string false "Filter by specialization"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /consultants [get]
func (h *ConsultantHandler) List(c *gin.Context) {
	var filter models.ConsultantFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Specialization = c.Query("specialization")
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	consultants, pagination, err := h.consultants.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, consultants, pagination)
}

// Get godoc
// @Summary Get consultant profile
// @Tags Consultants
// @Produce json
// @Param id path string true "Consultant ID"
// @Success 200 {object} response.Envelope
// @Router /consultants/{id} [get]
func (h *ConsultantHandler) Get(c *gin.Context) {
	consultant, err := h.consultants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, consultant, nil)
}

// ListReviews godoc
// @Summary List consultant reviews
// @Tags Consultants
// @Produce json
// @Param id path string true "Consultant ID"
// @Param minRating query int false "Minimum rating"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /consultants/{id}/reviews [get]
func (h *ConsultantHandler) ListReviews(c *gin.Context) {
	filter := models.ReviewFilter{ConsultantID: c.Param("id")}
	if min, err := strconv.Atoi(c.Query("minRating")); err == nil {
		filter.MinRating = min
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	reviews, pagination, err := h.reviews.ListByConsultant(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, pagination)
}
