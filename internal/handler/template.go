package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dispatchlab/notification-service/internal/service"
)

// TemplateHandler handles template HTTP requests
type TemplateHandler struct {
	service  *service.TemplateService
	validate *validator.Validate
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(service *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers template routes
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{idOrName}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Deactivate)
}

// Create creates a new template
// @Summary Create template
// @Description Create a new message template
// @Tags templates
// @Accept json
// @Produce json
// @Param template body service.CreateTemplateRequest true "Template request"
// @Success 201 {object} Response{data=domain.Template}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/v1/templates [post]
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTemplateRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	template, err := h.service.Create(r.Context(), req)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusCreated, template)
}

// List lists all templates
// @Summary List templates
// @Description List all templates, including deactivated ones
// @Tags templates
// @Produce json
// @Success 200 {object} Response{data=[]domain.Template}
// @Router /api/v1/templates [get]
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.List(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, templates)
}

// Get retrieves a template by ID or name
// @Summary Get template
// @Description Get a template by its ID or unique name
// @Tags templates
// @Produce json
// @Param idOrName path string true "Template ID or name"
// @Success 200 {object} Response{data=domain.Template}
// @Failure 404 {object} Response
// @Router /api/v1/templates/{idOrName} [get]
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	idOrName := chi.URLParam(r, "idOrName")

	if id, err := uuid.Parse(idOrName); err == nil {
		template, err := h.service.GetByID(r.Context(), id)
		if err != nil {
			HandleError(w, err)
			return
		}
		JSON(w, http.StatusOK, template)
		return
	}

	template, err := h.service.GetByName(r.Context(), idOrName)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, template)
}

// Update updates an existing template
// @Summary Update template
// @Description Update a template's fields
// @Tags templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param template body service.UpdateTemplateRequest true "Template update"
// @Success 200 {object} Response{data=domain.Template}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/templates/{id} [put]
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req service.UpdateTemplateRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	template, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, template)
}

// Deactivate soft-deletes a template
// @Summary Deactivate template
// @Description Deactivate a template; the row survives but ingestion stops resolving it
// @Tags templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/templates/{id} [delete]
func (h *TemplateHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": "Template deactivated",
	})
}
