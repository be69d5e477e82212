package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/internal/service"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
	"github.com/famcare-id/famcare-api/pkg/response"
)

// SessionHandler exposes the session state machine over HTTP.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List godoc
// @Summary List the actor's sessions
// @Tags Sessions
// @Produce json
// @Param status query string false "Filter by status"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	if status := c.Query("status"); status != "" {
		filter.Status = models.SessionStatus(status)
	}
	if from := c.Query("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = ts
		}
	}
	if to := c.Query("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = ts
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

	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get session detail
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Transition godoc
// @Summary Transition a session's status
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.TransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/status [patch]
func (h *SessionHandler) Transition(c *gin.Context) {
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}

	result, err := h.sessions.Transition(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// PreviewCancellation godoc
// @Summary Preview the cancellation fee for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancellation [get]
func (h *SessionHandler) PreviewCancellation(c *gin.Context) {
	outcome, err := h.sessions.PreviewCancellation(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Receipt godoc
// @Summary Download a PDF receipt for a completed session
// @Tags Sessions
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Router /sessions/{id}/receipt [get]
func (h *SessionHandler) Receipt(c *gin.Context) {
	id := c.Param("id")
	data, err := h.sessions.Receipt(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"session-%s.pdf\"", id))
	c.Data(http.StatusOK, "application/pdf", data)
}
