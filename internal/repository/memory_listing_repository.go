package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"fotoljay/internal/domain"

	"github.com/google/uuid"
)

// memoryListingRepository keeps listings in process memory. Writes made through
// Transact are buffered on a private copy and only become visible on success.
type memoryListingRepository struct {
	mu       sync.RWMutex
	listings map[uuid.UUID]*domain.Listing
	views    map[uuid.UUID][]domain.ProductView
	// photoViews is keyed by photo id
	photoViews map[uuid.UUID][]domain.PhotoView
	history    map[uuid.UUID][]*domain.HistoryEntry
	logs       map[uuid.UUID][]*domain.ModerationLogEntry

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewMemoryListingRepository creates a ListingRepository backed by maps
func NewMemoryListingRepository() ListingRepository {
	return &memoryListingRepository{
		listings:   make(map[uuid.UUID]*domain.Listing),
		views:      make(map[uuid.UUID][]domain.ProductView),
		photoViews: make(map[uuid.UUID][]domain.PhotoView),
		history:    make(map[uuid.UUID][]*domain.HistoryEntry),
		logs:       make(map[uuid.UUID][]*domain.ModerationLogEntry),
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *memoryListingRepository) lockFor(id uuid.UUID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// releaseLock drops the lock of a listing that no longer exists. A newer lock
// registered for the same id is left alone.
func (r *memoryListingRepository) releaseLock(id uuid.UUID, lock *sync.Mutex) {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	if r.locks[id] == lock {
		delete(r.locks, id)
	}
}

// dropPhotoViews must be called with r.mu held
func (r *memoryListingRepository) dropPhotoViews(photos []domain.Photo) {
	for _, p := range photos {
		delete(r.photoViews, p.ID)
	}
}

// snapshot must be called with r.mu held
func (r *memoryListingRepository) snapshot(id uuid.UUID) (*domain.Listing, bool) {
	l, ok := r.listings[id]
	if !ok {
		return nil, false
	}
	c := l.Clone()
	c.Views = len(r.views[id])
	if c.Photos == nil {
		c.Photos = []domain.Photo{}
	}
	for i := range c.Photos {
		c.Photos[i].Views = len(r.photoViews[c.Photos[i].ID])
	}
	return c, true
}

func (r *memoryListingRepository) Create(ctx context.Context, l *domain.Listing, history *domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listings[l.ID]; exists {
		return domain.NewConflict("product already exists")
	}
	stored := l.Clone()
	for i := range stored.Photos {
		stored.Photos[i].ListingID = l.ID
	}
	r.listings[l.ID] = stored
	if history != nil {
		entry := *history
		r.history[l.ID] = append(r.history[l.ID], &entry)
	}
	return nil
}

func (r *memoryListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.snapshot(id)
	if !ok {
		return nil, ErrListingNotFound
	}
	return l, nil
}

func (r *memoryListingRepository) List(ctx context.Context, filter ListingFilter) ([]*domain.Listing, int, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	matched := []*domain.Listing{}
	for id, l := range r.listings {
		if filter.Status != nil {
			if l.Status != *filter.Status {
				continue
			}
		} else if l.Status == domain.StatusDeleted {
			continue
		}
		if filter.IsVip != nil && l.IsVip != *filter.IsVip {
			continue
		}
		if filter.SellerID != nil && l.SellerID != *filter.SellerID {
			continue
		}
		c, _ := r.snapshot(id)
		matched = append(matched, c)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.IsVip != b.IsVip {
			return a.IsVip
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*domain.Listing{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (r *memoryListingRepository) RecordView(ctx context.Context, view *domain.ProductView) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[view.ListingID]; !ok {
		return ErrListingNotFound
	}
	r.views[view.ListingID] = append(r.views[view.ListingID], *view)
	return nil
}

func (r *memoryListingRepository) FindPhoto(ctx context.Context, id uuid.UUID) (*domain.Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.listings {
		for _, p := range l.Photos {
			if p.ID == id {
				c := p.Clone()
				c.Views = len(r.photoViews[id])
				return &c, nil
			}
		}
	}
	return nil, ErrPhotoNotFound
}

func (r *memoryListingRepository) RecordPhotoView(ctx context.Context, view *domain.PhotoView) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.listings {
		for _, p := range l.Photos {
			if p.ID == view.PhotoID {
				r.photoViews[p.ID] = append(r.photoViews[p.ID], *view)
				return nil
			}
		}
	}
	return ErrPhotoNotFound
}

func (r *memoryListingRepository) Transact(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx ListingTx) error) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	current, ok := r.snapshot(id)
	r.mu.RUnlock()
	if !ok {
		r.releaseLock(id, lock)
		return ErrListingNotFound
	}

	tx := &memoryListingTx{listing: current, removed: map[uuid.UUID]domain.Photo{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.deleted {
		r.dropPhotoViews(r.listings[id].Photos)
		delete(r.listings, id)
		delete(r.views, id)
		delete(r.history, id)
		delete(r.logs, id)
		r.releaseLock(id, lock)
		return nil
	}

	for _, p := range tx.removed {
		delete(r.photoViews, p.ID)
	}
	stored := tx.listing.Clone()
	stored.Views = 0
	for i := range stored.Photos {
		stored.Photos[i].Views = 0
	}
	r.listings[id] = stored
	r.history[id] = append(r.history[id], tx.history...)
	r.logs[id] = append(r.logs[id], tx.logs...)
	return nil
}

func (r *memoryListingRepository) History(ctx context.Context, listingID uuid.UUID) ([]*domain.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*domain.HistoryEntry, 0, len(r.history[listingID]))
	for _, e := range r.history[listingID] {
		c := *e
		entries = append(entries, &c)
	}
	return entries, nil
}

func (r *memoryListingRepository) ModerationLogs(ctx context.Context, listingID uuid.UUID) ([]*domain.ModerationLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*domain.ModerationLogEntry, 0, len(r.logs[listingID]))
	for _, e := range r.logs[listingID] {
		c := *e
		entries = append(entries, &c)
	}
	return entries, nil
}

func (r *memoryListingRepository) DueForReminder(ctx context.Context, now, deadline time.Time) ([]*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := []*domain.Listing{}
	for id, l := range r.listings {
		if l.Status != domain.StatusPendingReview && l.Status != domain.StatusValidated {
			continue
		}
		if l.ExpiresAt == nil || !l.ExpiresAt.After(now) || l.ExpiresAt.After(deadline) {
			continue
		}
		if l.RemindedAt != nil && l.PublishedAt != nil && !l.RemindedAt.Before(*l.PublishedAt) {
			continue
		}
		c, _ := r.snapshot(id)
		due = append(due, c)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ExpiresAt.Before(*due[j].ExpiresAt)
	})
	return due, nil
}

func (r *memoryListingRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		r.releaseLock(id, lock)
		return ErrListingNotFound
	}
	remindedAt := at
	l.RemindedAt = &remindedAt
	return nil
}

func (r *memoryListingRepository) ExpireVip(ctx context.Context, now time.Time) ([]*domain.Listing, error) {
	r.mu.RLock()
	candidates := []uuid.UUID{}
	for id, l := range r.listings {
		if l.IsVip && l.VipUntil != nil && !l.VipUntil.After(now) {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	expired := []*domain.Listing{}
	for _, id := range candidates {
		lock := r.lockFor(id)
		lock.Lock()

		r.mu.Lock()
		l, ok := r.listings[id]
		if ok && l.IsVip && l.VipUntil != nil && !l.VipUntil.After(now) {
			l.IsVip = false
			l.VipUntil = nil
			c, _ := r.snapshot(id)
			expired = append(expired, c)
		}
		r.mu.Unlock()

		lock.Unlock()
	}
	return expired, nil
}

type memoryListingTx struct {
	listing *domain.Listing
	history []*domain.HistoryEntry
	logs    []*domain.ModerationLogEntry
	removed map[uuid.UUID]domain.Photo
	deleted bool
}

func (t *memoryListingTx) Listing() *domain.Listing {
	return t.listing
}

func (t *memoryListingTx) Save(ctx context.Context, l *domain.Listing) error {
	t.listing = l
	return nil
}

func (t *memoryListingTx) ReplacePhotos(ctx context.Context, photos []domain.Photo) ([]domain.Photo, error) {
	removed := t.listing.Photos
	for _, p := range removed {
		t.removed[p.ID] = p
	}
	for i := range photos {
		photos[i].ListingID = t.listing.ID
	}
	t.listing.Photos = photos
	return removed, nil
}

func (t *memoryListingTx) AddPhoto(ctx context.Context, photo *domain.Photo) error {
	photo.ListingID = t.listing.ID
	t.listing.Photos = append(t.listing.Photos, *photo)
	return nil
}

func (t *memoryListingTx) RemovePhoto(ctx context.Context, photoID uuid.UUID) (domain.Photo, error) {
	for i, p := range t.listing.Photos {
		if p.ID == photoID {
			t.removed[p.ID] = p
			t.listing.Photos = append(t.listing.Photos[:i:i], t.listing.Photos[i+1:]...)
			return p, nil
		}
	}
	return domain.Photo{}, ErrPhotoNotFound
}

func (t *memoryListingTx) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	c := *entry
	t.history = append(t.history, &c)
	return nil
}

func (t *memoryListingTx) AppendModerationLog(ctx context.Context, entry *domain.ModerationLogEntry) error {
	c := *entry
	t.logs = append(t.logs, &c)
	return nil
}

func (t *memoryListingTx) Delete(ctx context.Context) ([]domain.Photo, error) {
	t.deleted = true
	return t.listing.Photos, nil
}
