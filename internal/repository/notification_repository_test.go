package repository

import (
	"context"
	"testing"
	"time"

	"fotoljay/internal/domain"

	"github.com/google/uuid"
)

func notificationRepositories() map[string]func() NotificationRepository {
	return map[string]func() NotificationRepository{
		"postgres": func() NotificationRepository { return NewNotificationRepository(testDB) },
		"memory":   NewMemoryNotificationRepository,
	}
}

func newTestNotification(userID uuid.UUID, at time.Time) *domain.Notification {
	return &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.NotificationModerationDecision,
		Title:     "Produit approuvé",
		Body:      "Votre produit a été approuvé",
		Payload:   map[string]interface{}{"productId": uuid.NewString(), "status": "VALIDE"},
		CreatedAt: at,
	}
}

func TestNotificationRepository_OwnerScoped(t *testing.T) {
	owner := createTestUser(t, domain.RoleSeller)
	stranger := createTestUser(t, domain.RoleSeller)

	for name, newRepo := range notificationRepositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			n := newTestNotification(owner.ID, time.Now().UTC().Truncate(time.Microsecond))
			if err := repo.Create(ctx, n); err != nil {
				t.Fatalf("Failed to create notification: %v", err)
			}

			if _, err := repo.SetRead(ctx, n.ID, stranger.ID, true); err != ErrNotificationNotFound {
				t.Errorf("stranger SetRead: expected ErrNotificationNotFound, got %v", err)
			}
			if err := repo.Delete(ctx, n.ID, stranger.ID); err != ErrNotificationNotFound {
				t.Errorf("stranger Delete: expected ErrNotificationNotFound, got %v", err)
			}

			updated, err := repo.SetRead(ctx, n.ID, owner.ID, true)
			if err != nil {
				t.Fatalf("owner SetRead failed: %v", err)
			}
			if !updated.IsRead {
				t.Error("notification should be read")
			}
			if updated.Payload["status"] != "VALIDE" {
				t.Errorf("payload not round-tripped: %v", updated.Payload)
			}

			if err := repo.Delete(ctx, n.ID, owner.ID); err != nil {
				t.Fatalf("owner Delete failed: %v", err)
			}
		})
	}
}

func TestNotificationRepository_UnreadCounting(t *testing.T) {
	user := createTestUser(t, domain.RoleSeller)

	for name, newRepo := range notificationRepositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			now := time.Now().UTC().Truncate(time.Microsecond)

			for i := 0; i < 3; i++ {
				if err := repo.Create(ctx, newTestNotification(user.ID, now.Add(time.Duration(i)*time.Second))); err != nil {
					t.Fatalf("Failed to create notification: %v", err)
				}
			}

			count, err := repo.CountUnread(ctx, user.ID)
			if err != nil {
				t.Fatalf("CountUnread failed: %v", err)
			}
			if count < 3 {
				t.Errorf("expected at least 3 unread, got %d", count)
			}

			listed, err := repo.ListByUser(ctx, user.ID, 2, 0)
			if err != nil {
				t.Fatalf("ListByUser failed: %v", err)
			}
			if len(listed) != 2 || listed[0].CreatedAt.Before(listed[1].CreatedAt) {
				t.Errorf("expected two notifications newest first, got %+v", listed)
			}

			if _, err := repo.MarkAllRead(ctx, user.ID); err != nil {
				t.Fatalf("MarkAllRead failed: %v", err)
			}
			count, err = repo.CountUnread(ctx, user.ID)
			if err != nil {
				t.Fatalf("CountUnread failed: %v", err)
			}
			if count != 0 {
				t.Errorf("expected 0 unread after MarkAllRead, got %d", count)
			}
		})
	}
}
