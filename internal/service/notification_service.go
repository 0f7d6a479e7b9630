package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fotoljay/internal/domain"
	"fotoljay/internal/metrics"
	"fotoljay/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultInboxLimit = 50
	MaxInboxLimit     = 100
)

// Notifier enqueues a user-facing message. Callers treat it as best effort.
type Notifier interface {
	Notify(ctx context.Context, req domain.NotificationRequest) (*domain.Notification, error)
}

// NotificationService is the notifier plus the owner-scoped inbox operations
type NotificationService interface {
	Notifier
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID, read bool) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type notificationService struct {
	repo    repository.NotificationRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationService creates a new instance of NotificationService
func NewNotificationService(repo repository.NotificationRepository, m *metrics.Metrics, logger *zap.Logger) NotificationService {
	return &notificationService{
		repo:    repo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *notificationService) Notify(ctx context.Context, req domain.NotificationRequest) (*domain.Notification, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		return nil, domain.NewValidation("notification title and body are required")
	}
	if req.Type == "" {
		req.Type = domain.NotificationGeneric
	}

	n := &domain.Notification{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Type:            req.Type,
		Title:           req.Title,
		Body:            req.Body,
		Payload:         req.Payload,
		ModerationLogID: req.ModerationLogID,
		CreatedAt:       s.now(),
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.metrics.NotificationCreated(string(n.Type))
	s.logger.Debug("Notification created",
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", n.UserID.String()),
		zap.String("type", string(n.Type)),
	)
	return n, nil
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	if limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uuid.UUID, read bool) (*domain.Notification, error) {
	n, err := s.repo.SetRead(ctx, id, userID, read)
	if err != nil {
		if err == repository.ErrNotificationNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	return n, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	changed, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return changed, nil
}

func (s *notificationService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if err == repository.ErrNotificationNotFound {
			return err
		}
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}
