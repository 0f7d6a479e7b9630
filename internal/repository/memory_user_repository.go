package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fotoljay/internal/domain"

	"github.com/google/uuid"
)

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

// NewMemoryUserRepository creates a UserRepository backed by a map
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[uuid.UUID]*domain.User)}
}

func (r *memoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrUserAlreadyExists
		}
	}
	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *memoryUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *memoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	existing.Username = user.Username
	existing.DisplayName = user.DisplayName
	existing.Phone = user.Phone
	existing.IsActive = user.IsActive
	existing.UpdatedAt = user.UpdatedAt
	return nil
}

func (r *memoryUserRepository) List(ctx context.Context, filter UserFilter) ([]*domain.User, int, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	matched := []*domain.User{}
	for _, u := range r.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		c := *u
		matched = append(matched, &c)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*domain.User{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

type memoryRefreshTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*domain.RefreshToken // keyed by digest
}

// NewMemoryRefreshTokenRepository creates a RefreshTokenRepository backed by a map
func NewMemoryRefreshTokenRepository() RefreshTokenRepository {
	return &memoryRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *memoryRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *token
	c.Token = TokenDigest(token.Token)
	r.tokens[c.Token] = &c
	return nil
}

func (r *memoryRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[TokenDigest(token)]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	if t.Revoked {
		return nil, ErrRefreshTokenRevoked
	}
	c := *t
	c.Token = token
	return &c, nil
}

func (r *memoryRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[TokenDigest(token)]
	if !ok || t.Revoked {
		return ErrRefreshTokenNotFound
	}
	t.Revoked = true
	return nil
}

func (r *memoryRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *memoryRefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for digest, t := range r.tokens {
		if t.ExpiresAt.Before(cutoff) || (t.Revoked && t.CreatedAt.Before(cutoff)) {
			delete(r.tokens, digest)
			n++
		}
	}
	return n, nil
}
