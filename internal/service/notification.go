package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dispatchlab/notification-service/internal/config"
	"github.com/dispatchlab/notification-service/internal/domain"
)

const maxBulkSize = 1000

// NotificationService handles notification ingestion and queries
type NotificationService struct {
	repo         domain.NotificationRepository
	userRepo     domain.UserRepository
	templateRepo domain.TemplateRepository
	publisher    domain.Publisher
	limiter      domain.RateLimiter
	gate         domain.IdempotencyGate
	retryCfg     config.RetryConfig
	logger       *slog.Logger

	statusBroadcast func(n *domain.Notification)
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	repo domain.NotificationRepository,
	userRepo domain.UserRepository,
	templateRepo domain.TemplateRepository,
	publisher domain.Publisher,
	limiter domain.RateLimiter,
	gate domain.IdempotencyGate,
	retryCfg config.RetryConfig,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:         repo,
		userRepo:     userRepo,
		templateRepo: templateRepo,
		publisher:    publisher,
		limiter:      limiter,
		gate:         gate,
		retryCfg:     retryCfg,
		logger:       logger,
	}
}

// SetStatusBroadcast sets the function to broadcast status updates
func (s *NotificationService) SetStatusBroadcast(fn func(n *domain.Notification)) {
	s.statusBroadcast = fn
}

// SubmitRequest is a request to dispatch one notification.
type SubmitRequest struct {
	EventID      string            `json:"event_id,omitempty"`
	UserID       uuid.UUID         `json:"user_id" validate:"required"`
	Channel      domain.Channel    `json:"channel" validate:"required"`
	Priority     domain.Priority   `json:"priority,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Content      string            `json:"content,omitempty"`
	TemplateName *string           `json:"template_name,omitempty"`
	TemplateVars map[string]string `json:"template_vars,omitempty"`
	MaxRetries   *int              `json:"max_retries,omitempty"`
}

// BulkRequest fans one payload out to up to maxBulkSize users. No event id:
// dedup keys are per submission and a shared one would mark every user after
// the first a duplicate.
type BulkRequest struct {
	UserIDs      []uuid.UUID       `json:"user_ids" validate:"required,min=1,max=1000"`
	Channel      domain.Channel    `json:"channel" validate:"required"`
	Priority     domain.Priority   `json:"priority,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Content      string            `json:"content,omitempty"`
	TemplateName *string           `json:"template_name,omitempty"`
	TemplateVars map[string]string `json:"template_vars,omitempty"`
	MaxRetries   *int              `json:"max_retries,omitempty"`
}

// BulkFailure records why one submission in a bulk request was rejected.
type BulkFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult summarizes a bulk submission. Failures are per-item: one bad
// submission never sinks its neighbors.
type BulkResult struct {
	TotalRequested  int           `json:"total_requested"`
	SuccessCount    int           `json:"success_count"`
	FailedCount     int           `json:"failed_count"`
	NotificationIDs []uuid.UUID   `json:"notification_ids"`
	Failures        []BulkFailure `json:"failures,omitempty"`
}

// Submit validates, deduplicates, rate-limits, renders, persists, and
// publishes one notification. The row is durable before the publish: a
// publish failure is logged, not returned, and the sweeper re-publishes the
// still-PENDING row on its next pass.
func (s *NotificationService) Submit(ctx context.Context, req SubmitRequest) (*domain.Notification, error) {
	if !req.Channel.IsValid() {
		return nil, domain.NewValidationError("channel", "invalid channel")
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, domain.NewValidationError("priority", "invalid priority")
	}

	// Exactly one content source: a template reference or literal
	// subject/content, never both, never neither.
	hasTemplate := req.TemplateName != nil && *req.TemplateName != ""
	if hasTemplate == (req.Subject != "" || req.Content != "") {
		return nil, domain.NewValidationError("content",
			"exactly one of template_name or subject/content must be set")
	}

	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, domain.ErrUserNotFound
	}

	enabled, err := s.userRepo.ChannelEnabled(ctx, user.ID, req.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to check channel preference: %w", err)
	}
	if !enabled {
		return nil, domain.ErrChannelDisabled
	}

	if req.EventID != "" && !s.gate.Claim(ctx, req.EventID) {
		return nil, domain.ErrDuplicateEvent
	}

	if decision := s.limiter.Admit(ctx, req.UserID, req.Channel); !decision.Allowed {
		return nil, domain.RateLimitError{UserLimit: decision.Limit, RetryAfter: decision.RetryAfter}
	}

	subject, content, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, domain.NewValidationError("content", "content is required")
	}

	notification := domain.NewNotification(req.UserID, req.Channel, priority, subject, content)
	notification.TemplateName = req.TemplateName
	notification.MaxRetries = s.retryCfg.MaxAttemptsDefault
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		notification.MaxRetries = *req.MaxRetries
	}

	if err := s.repo.Insert(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	if err := s.publisher.Publish(ctx, notification.Channel, notification.ID); err != nil {
		s.logger.Error("failed to publish notification, sweeper will recover",
			"notification_id", notification.ID,
			"channel", notification.Channel,
			"error", err,
		)
	}

	s.logger.Info("notification accepted",
		"notification_id", notification.ID,
		"user_id", notification.UserID,
		"channel", notification.Channel,
		"priority", notification.Priority,
	)

	return notification, nil
}

// SubmitBulk fans the payload out to each listed user independently and
// reports per-user results.
func (s *NotificationService) SubmitBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if len(req.UserIDs) == 0 {
		return nil, domain.NewValidationError("user_ids", "at least one user is required")
	}
	if len(req.UserIDs) > maxBulkSize {
		return nil, domain.NewValidationError("user_ids",
			fmt.Sprintf("bulk size exceeds maximum of %d", maxBulkSize))
	}

	result := &BulkResult{
		TotalRequested:  len(req.UserIDs),
		NotificationIDs: make([]uuid.UUID, 0, len(req.UserIDs)),
	}

	for i, userID := range req.UserIDs {
		n, err := s.Submit(ctx, SubmitRequest{
			UserID:       userID,
			Channel:      req.Channel,
			Priority:     req.Priority,
			Subject:      req.Subject,
			Content:      req.Content,
			TemplateName: req.TemplateName,
			TemplateVars: req.TemplateVars,
			MaxRetries:   req.MaxRetries,
		})
		if err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, BulkFailure{Index: i, Error: err.Error()})
			continue
		}
		result.SuccessCount++
		result.NotificationIDs = append(result.NotificationIDs, n.ID)
	}

	s.logger.Info("bulk submission processed",
		"total", result.TotalRequested,
		"succeeded", result.SuccessCount,
		"failed", result.FailedCount,
	)

	return result, nil
}

// GetByID retrieves a notification by ID
func (s *NotificationService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return s.repo.FindByID(ctx, id)
}

// ListForUser returns a page of a user's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID, status *domain.Status, page, pageSize int) (*domain.NotificationPage, error) {
	if status != nil && !status.IsValid() {
		return nil, domain.NewValidationError("status", "invalid status")
	}
	return s.repo.ListForUser(ctx, userID, status, page, pageSize)
}

// MarkDelivered records an external delivery confirmation.
func (s *NotificationService) MarkDelivered(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return s.promote(ctx, id, (*domain.Notification).MarkDelivered)
}

// MarkRead records a user read acknowledgement.
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return s.promote(ctx, id, (*domain.Notification).MarkRead)
}

// promote applies an external status promotion with a short retry on version
// conflicts; confirmations race with workers finishing the same row.
func (s *NotificationService) promote(ctx context.Context, id uuid.UUID, transition func(*domain.Notification) error) (*domain.Notification, error) {
	for attempt := 0; attempt < 3; attempt++ {
		notification, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := transition(notification); err != nil {
			return nil, err
		}

		err = s.repo.Update(ctx, notification)
		if err == nil {
			s.broadcastStatus(notification)
			return notification, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, domain.ErrVersionConflict
}

// resolveContent returns the subject and body, rendering the named template
// when one is requested. Inline subject/content act as the template-less
// path.
func (s *NotificationService) resolveContent(ctx context.Context, req SubmitRequest) (string, string, error) {
	if req.TemplateName == nil || *req.TemplateName == "" {
		return req.Subject, req.Content, nil
	}

	template, err := s.templateRepo.GetByName(ctx, *req.TemplateName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", domain.ErrTemplateNotFound
		}
		return "", "", fmt.Errorf("failed to load template: %w", err)
	}

	if !template.Active {
		return "", "", domain.ErrTemplateNotFound
	}
	if template.Channel != req.Channel {
		return "", "", domain.NewValidationError("template_name",
			fmt.Sprintf("template %q targets channel %s", template.Name, template.Channel))
	}

	subject, body := template.Render(req.TemplateVars)
	return subject, body, nil
}

func (s *NotificationService) broadcastStatus(n *domain.Notification) {
	if s.statusBroadcast != nil {
		s.statusBroadcast(n)
	}
}
