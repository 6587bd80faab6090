package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dispatchlab/notification-service/internal/domain"
)

// TemplateService handles template management
type TemplateService struct {
	repo   domain.TemplateRepository
	logger *slog.Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(repo domain.TemplateRepository, logger *slog.Logger) *TemplateService {
	return &TemplateService{
		repo:   repo,
		logger: logger,
	}
}

// CreateTemplateRequest represents a request to create a template
type CreateTemplateRequest struct {
	Name            string         `json:"name" validate:"required,min=1,max=100"`
	Channel         domain.Channel `json:"channel" validate:"required"`
	SubjectTemplate string         `json:"subject_template,omitempty"`
	BodyTemplate    string         `json:"body_template" validate:"required"`
}

// UpdateTemplateRequest represents a request to update a template
type UpdateTemplateRequest struct {
	Name            *string         `json:"name,omitempty"`
	Channel         *domain.Channel `json:"channel,omitempty"`
	SubjectTemplate *string         `json:"subject_template,omitempty"`
	BodyTemplate    *string         `json:"body_template,omitempty"`
	Active          *bool           `json:"active,omitempty"`
}

// Create creates a new template
func (s *TemplateService) Create(ctx context.Context, req CreateTemplateRequest) (*domain.Template, error) {
	if !req.Channel.IsValid() {
		return nil, domain.NewValidationError("channel", "invalid channel")
	}

	existing, err := s.repo.GetByName(ctx, req.Name)
	if err == nil && existing != nil {
		return nil, domain.ErrAlreadyExists
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing template: %w", err)
	}

	template := domain.NewTemplate(req.Name, req.Channel, req.SubjectTemplate, req.BodyTemplate)

	if err := s.repo.Create(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.Info("template created",
		"template_id", template.ID,
		"name", template.Name,
		"channel", template.Channel,
	)

	return template, nil
}

// GetByID retrieves a template by ID
func (s *TemplateService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByName retrieves a template by name
func (s *TemplateService) GetByName(ctx context.Context, name string) (*domain.Template, error) {
	return s.repo.GetByName(ctx, name)
}

// List retrieves all templates
func (s *TemplateService) List(ctx context.Context) ([]*domain.Template, error) {
	return s.repo.List(ctx)
}

// Update updates an existing template
func (s *TemplateService) Update(ctx context.Context, id uuid.UUID, req UpdateTemplateRequest) (*domain.Template, error) {
	template, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing, err := s.repo.GetByName(ctx, *req.Name)
		if err == nil && existing != nil && existing.ID != id {
			return nil, domain.ErrAlreadyExists
		}
		template.Name = *req.Name
	}

	if req.Channel != nil {
		if !req.Channel.IsValid() {
			return nil, domain.NewValidationError("channel", "invalid channel")
		}
		template.Channel = *req.Channel
	}

	if req.SubjectTemplate != nil {
		template.SubjectTemplate = *req.SubjectTemplate
	}
	if req.BodyTemplate != nil {
		template.BodyTemplate = *req.BodyTemplate
	}
	if req.SubjectTemplate != nil || req.BodyTemplate != nil {
		template.ExtractVariables()
	}

	if req.Active != nil {
		template.Active = *req.Active
	}

	if err := s.repo.Update(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	s.logger.Info("template updated",
		"template_id", template.ID,
	)

	return template, nil
}

// Deactivate soft-deletes a template
func (s *TemplateService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}

	s.logger.Info("template deactivated",
		"template_id", id,
	)

	return nil
}
