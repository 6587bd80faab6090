package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchlab/notification-service/internal/domain"
)

// UserHandler exposes read-only user lookups. User records are provisioned
// out of band; this service only resolves recipients.
type UserHandler struct {
	repo domain.UserRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(repo domain.UserRepository) *UserHandler {
	return &UserHandler{repo: repo}
}

// RegisterRoutes registers user routes
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.GetByID)
	r.Get("/by-email/{email}", h.GetByEmail)
	r.Get("/by-phone/{phone}", h.GetByPhone)
}

// GetByID retrieves a user by ID
// @Summary Get user by ID
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} Response{data=domain.User}
// @Failure 404 {object} Response
// @Router /api/v1/users/{id} [get]
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, user)
}

// GetByEmail retrieves a user by email address
// @Summary Get user by email
// @Tags users
// @Produce json
// @Param email path string true "Email address"
// @Success 200 {object} Response{data=domain.User}
// @Failure 404 {object} Response
// @Router /api/v1/users/by-email/{email} [get]
func (h *UserHandler) GetByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		JSONError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email", nil)
		return
	}

	user, err := h.repo.GetByEmail(r.Context(), email)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, user)
}

// GetByPhone retrieves a user by phone number
// @Summary Get user by phone
// @Tags users
// @Produce json
// @Param phone path string true "Phone number"
// @Success 200 {object} Response{data=domain.User}
// @Failure 404 {object} Response
// @Router /api/v1/users/by-phone/{phone} [get]
func (h *UserHandler) GetByPhone(w http.ResponseWriter, r *http.Request) {
	phone, err := url.PathUnescape(chi.URLParam(r, "phone"))
	if err != nil || phone == "" {
		JSONError(w, http.StatusBadRequest, "INVALID_PHONE", "Invalid phone number", nil)
		return
	}

	user, err := h.repo.GetByPhone(r.Context(), phone)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, user)
}
