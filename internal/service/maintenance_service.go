package service

import (
	"context"
	"fmt"
	"time"

	"fotoljay/internal/domain"
	"fotoljay/internal/metrics"
	"fotoljay/internal/repository"
	"fotoljay/internal/storage"

	"go.uber.org/zap"
)

const (
	JobRepublishReminder = "republish_reminder"
	JobVipExpiry         = "vip_expiry"
	JobOrphanCleanup     = "orphan_cleanup"

	DefaultReminderWindow = 3 * 24 * time.Hour
	DefaultCleanupBatch   = 50
)

// MaintenanceService holds the periodic jobs run by the worker
type MaintenanceService interface {
	SendRepublishReminders(ctx context.Context) (int, error)
	ExpireVip(ctx context.Context) (int, error)
	CleanupOrphanPhotos(ctx context.Context) (int, error)
}

// MaintenanceSettings configures the periodic jobs
type MaintenanceSettings struct {
	ReminderWindow time.Duration
	CleanupBatch   int
	Now            func() time.Time
}

type maintenanceService struct {
	repo     repository.ListingRepository
	notifier Notifier
	photos   storage.PhotoStore
	orphans  storage.OrphanQueue
	metrics  *metrics.Metrics
	logger   *zap.Logger
	settings MaintenanceSettings
}

func NewMaintenanceService(
	repo repository.ListingRepository,
	notifier Notifier,
	photos storage.PhotoStore,
	orphans storage.OrphanQueue,
	m *metrics.Metrics,
	logger *zap.Logger,
	settings MaintenanceSettings,
) MaintenanceService {
	if settings.ReminderWindow <= 0 {
		settings.ReminderWindow = DefaultReminderWindow
	}
	if settings.CleanupBatch <= 0 {
		settings.CleanupBatch = DefaultCleanupBatch
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &maintenanceService{
		repo:     repo,
		notifier: notifier,
		photos:   photos,
		orphans:  orphans,
		metrics:  m,
		logger:   logger,
		settings: settings,
	}
}

// SendRepublishReminders warns sellers whose listing expires within the
// reminder window. Each publication window gets at most one reminder.
func (s *maintenanceService) SendRepublishReminders(ctx context.Context) (sent int, err error) {
	defer func() { s.metrics.MaintenanceRun(JobRepublishReminder, err) }()

	now := s.settings.Now().UTC()
	due, err := s.repo.DueForReminder(ctx, now, now.Add(s.settings.ReminderWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to load listings due for reminder: %w", err)
	}

	for _, l := range due {
		_, err := s.notifier.Notify(ctx, domain.NotificationRequest{
			UserID: l.SellerID,
			Type:   domain.NotificationRepublishReminder,
			Title:  "Votre annonce expire bientôt",
			Body: fmt.Sprintf("Votre produit \"%s\" expire le %s. Republiez-le pour le garder visible.",
				l.Title, l.ExpiresAt.Format("02/01/2006")),
			Payload: map[string]interface{}{"productId": l.ID.String(), "expiresAt": l.ExpiresAt.Format(time.RFC3339)},
		})
		if err != nil {
			s.logger.Warn("Failed to send republish reminder", zap.String("listing_id", l.ID.String()), zap.Error(err))
			s.metrics.SideEffectFailed("notification")
			continue
		}

		if err := s.repo.MarkReminded(ctx, l.ID, now); err != nil {
			s.logger.Warn("Failed to mark listing reminded", zap.String("listing_id", l.ID.String()), zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("Republish reminders sent", zap.Int("count", sent))
	}
	return sent, nil
}

// ExpireVip clears lapsed VIP promotions and tells the sellers
func (s *maintenanceService) ExpireVip(ctx context.Context) (n int, err error) {
	defer func() { s.metrics.MaintenanceRun(JobVipExpiry, err) }()

	expired, err := s.repo.ExpireVip(ctx, s.settings.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire VIP listings: %w", err)
	}

	for _, l := range expired {
		_, err := s.notifier.Notify(ctx, domain.NotificationRequest{
			UserID:  l.SellerID,
			Type:    domain.NotificationVipExpired,
			Title:   "Statut VIP expiré",
			Body:    fmt.Sprintf("La mise en avant VIP de votre produit \"%s\" est terminée.", l.Title),
			Payload: map[string]interface{}{"productId": l.ID.String()},
		})
		if err != nil {
			s.logger.Warn("Failed to send VIP expiry notice", zap.String("listing_id", l.ID.String()), zap.Error(err))
			s.metrics.SideEffectFailed("notification")
		}
	}

	if len(expired) > 0 {
		s.logger.Info("VIP promotions expired", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// CleanupOrphanPhotos retries object deletions that failed after a commit
func (s *maintenanceService) CleanupOrphanPhotos(ctx context.Context) (deleted int, err error) {
	defer func() { s.metrics.MaintenanceRun(JobOrphanCleanup, err) }()

	keys, err := s.orphans.Pop(ctx, s.settings.CleanupBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to pop orphan photos: %w", err)
	}

	failed := []string{}
	for _, key := range keys {
		if err := s.photos.Delete(ctx, key); err != nil {
			failed = append(failed, key)
			continue
		}
		deleted++
	}

	if len(failed) > 0 {
		if err := s.orphans.Push(ctx, failed...); err != nil {
			return deleted, fmt.Errorf("failed to requeue %d orphan photos: %w", len(failed), err)
		}
		s.logger.Warn("Orphan photos still undeletable", zap.Int("count", len(failed)))
	}
	return deleted, nil
}
