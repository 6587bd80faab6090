package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dispatchlab/notification-service/internal/domain"
	"github.com/dispatchlab/notification-service/internal/service"
)

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	service  *service.NotificationService
	validate *validator.Validate
	metrics  *Metrics
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(service *service.NotificationService, metrics *Metrics) *NotificationHandler {
	return &NotificationHandler{
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Submit)
	r.Post("/bulk", h.SubmitBulk)
	r.Get("/{id}", h.GetByID)
	r.Get("/user/{userID}", h.ListForUser)
	r.Post("/{id}/delivered", h.MarkDelivered)
	r.Post("/{id}/read", h.MarkRead)
}

// Submit accepts a single notification for dispatch
// @Summary Submit notification
// @Description Accept a notification for asynchronous dispatch
// @Tags notifications
// @Accept json
// @Produce json
// @Param notification body service.SubmitRequest true "Notification request"
// @Success 201 {object} Response{data=domain.Notification}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 429 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications [post]
func (h *NotificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	notification, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.recordRejection(req.Channel, err)
		HandleError(w, err)
		return
	}

	h.metrics.RecordAccepted(string(notification.Channel))
	JSON(w, http.StatusCreated, notification)
}

// SubmitBulk fans one payload out to up to 1000 users
// @Summary Submit bulk notifications
// @Description Dispatch one payload to many users; failures are reported per user
// @Tags notifications
// @Accept json
// @Produce json
// @Param notifications body service.BulkRequest true "Bulk notification request"
// @Success 200 {object} Response{data=service.BulkResult}
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications/bulk [post]
func (h *NotificationHandler) SubmitBulk(w http.ResponseWriter, r *http.Request) {
	var req service.BulkRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	result, err := h.service.SubmitBulk(r.Context(), req)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// GetByID retrieves a notification by ID
// @Summary Get notification by ID
// @Description Get a notification and its delivery state
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} Response{data=domain.Notification}
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications/{id} [get]
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	notification, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, notification)
}

// ListForUser lists a user's notifications, newest first
// @Summary List notifications for a user
// @Description List a user's notifications with optional status filter and pagination
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Success 200 {object} Response{data=domain.NotificationPage}
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications/user/{userID} [get]
func (h *NotificationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID")
	if !ok {
		return
	}

	var status *domain.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.Status(s)
		if !st.IsValid() {
			JSONError(w, http.StatusBadRequest, "INVALID_STATUS", "Invalid status", nil)
			return
		}
		status = &st
	}

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p < 1 {
			JSONError(w, http.StatusBadRequest, "INVALID_PAGE", "Invalid page number", nil)
			return
		}
		page = p
	}

	pageSize := 20
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		ps, err := strconv.Atoi(sizeStr)
		if err != nil || ps < 1 || ps > 100 {
			JSONError(w, http.StatusBadRequest, "INVALID_PAGE_SIZE", "Page size must be between 1 and 100", nil)
			return
		}
		pageSize = ps
	}

	result, err := h.service.ListForUser(r.Context(), userID, status, page, pageSize)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// MarkDelivered records a delivery confirmation from a provider webhook
// @Summary Confirm delivery
// @Description Record an external delivery confirmation for a sent notification
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} Response{data=domain.Notification}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications/{id}/delivered [post]
func (h *NotificationHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	notification, err := h.service.MarkDelivered(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, notification)
}

// MarkRead records a user read acknowledgement
// @Summary Mark notification read
// @Description Record that the user has read a notification
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} Response{data=domain.Notification}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	notification, err := h.service.MarkRead(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, notification)
}

func (h *NotificationHandler) recordRejection(channel domain.Channel, err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, domain.ErrDuplicateEvent):
		reason = "duplicate"
	case errors.Is(err, domain.ErrChannelDisabled):
		reason = "channel_disabled"
	default:
		var rlerr domain.RateLimitError
		if errors.As(err, &rlerr) {
			reason = "rate_limited"
		}
	}
	h.metrics.RecordRejected(string(channel), reason)
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid "+param, nil)
		return uuid.Nil, false
	}
	return id, true
}
