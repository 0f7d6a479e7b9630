package repository

import (
	"context"
	"sort"
	"sync"

	"fotoljay/internal/domain"

	"github.com/google/uuid"
)

type memoryNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*domain.Notification
}

// NewMemoryNotificationRepository creates a NotificationRepository backed by a map
func NewMemoryNotificationRepository() NotificationRepository {
	return &memoryNotificationRepository{
		notifications: make(map[uuid.UUID]*domain.Notification),
	}
}

func copyNotification(n *domain.Notification) *domain.Notification {
	c := *n
	if n.Payload != nil {
		c.Payload = make(map[string]interface{}, len(n.Payload))
		for k, v := range n.Payload {
			c.Payload[k] = v
		}
	}
	if n.ModerationLogID != nil {
		id := *n.ModerationLogID
		c.ModerationLogID = &id
	}
	return &c
}

func (r *memoryNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications[n.ID] = copyNotification(n)
	return nil
}

func (r *memoryNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	r.mu.RLock()
	owned := []*domain.Notification{}
	for _, n := range r.notifications {
		if n.UserID == userID {
			owned = append(owned, copyNotification(n))
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID.String() < owned[j].ID.String()
	})

	if offset >= len(owned) {
		return []*domain.Notification{}, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (r *memoryNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memoryNotificationRepository) SetRead(ctx context.Context, id, userID uuid.UUID, read bool) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	n.IsRead = read
	return copyNotification(n), nil
}

func (r *memoryNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *memoryNotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	delete(r.notifications, id)
	return nil
}
