package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/middleware"
	"github.com/dafibh/cooplend/cooplend-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// NotificationHandler serves a member's in-app notifications
type NotificationHandler struct {
	notificationService *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// NotificationResponse represents a notification in API responses
type NotificationResponse struct {
	ID        int32  `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	LoanID    *int32 `json:"loanId,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// GetNotifications godoc
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread notifications"
// @Success 200 {array} NotificationResponse
// @Failure 400 {object} ProblemDetails
// @Router /notifications [get]
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	unreadOnly := false
	if raw := c.QueryParam("unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "unread", Message: "Must be true or false"},
			})
		}
		unreadOnly = parsed
	}

	notifications, err := h.notificationService.List(c.Request().Context(), middleware.GetMemberID(c), unreadOnly)
	if err != nil {
		return respondError(c, err, "get notifications")
	}

	response := make([]NotificationResponse, len(notifications))
	for i, n := range notifications {
		response[i] = toNotificationResponse(n)
	}
	return c.JSON(http.StatusOK, response)
}

// MarkRead handles PATCH /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid notification ID", nil)
	}

	notification, err := h.notificationService.MarkRead(c.Request().Context(), middleware.GetMemberID(c), id)
	if err != nil {
		return respondError(c, err, "mark notification read")
	}
	return c.JSON(http.StatusOK, toNotificationResponse(notification))
}

func toNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Body:      n.Body,
		LoanID:    n.LoanID,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}
