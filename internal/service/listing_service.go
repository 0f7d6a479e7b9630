package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fotoljay/internal/domain"
	"fotoljay/internal/events"
	"fotoljay/internal/metrics"
	"fotoljay/internal/policy"
	"fotoljay/internal/repository"
	"fotoljay/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRepublishDays = 30
	DefaultVipDays       = 30
	DefaultMaxVipDays    = 365
)

// ListingSettings holds the lifecycle durations
type ListingSettings struct {
	RepublishDays  int
	DefaultVipDays int
	MaxVipDays     int
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

func (s ListingSettings) withDefaults() ListingSettings {
	if s.RepublishDays <= 0 {
		s.RepublishDays = DefaultRepublishDays
	}
	if s.DefaultVipDays <= 0 {
		s.DefaultVipDays = DefaultVipDays
	}
	if s.MaxVipDays <= 0 {
		s.MaxVipDays = DefaultMaxVipDays
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// PhotoUpload is an image received from a client
type PhotoUpload struct {
	Filename           string
	ContentType        string
	Data               []byte
	CapturedWithCamera bool
}

type CreateListingInput struct {
	Title       string
	Description string
	PriceCfa    *int
	Photos      []PhotoUpload
}

// UpdateListingInput changes only the non-nil fields. A non-nil Photos slice
// replaces every existing photo.
type UpdateListingInput struct {
	Title       *string
	Description *string
	PriceCfa    *int
	Photos      []PhotoUpload
}

// ListingService drives the listing lifecycle
type ListingService interface {
	Create(ctx context.Context, actor domain.Actor, in CreateListingInput) (*domain.Listing, error)
	Get(ctx context.Context, id uuid.UUID, viewerID *uuid.UUID) (*domain.Listing, error)
	List(ctx context.Context, filter repository.ListingFilter) ([]*domain.Listing, int, error)
	Update(ctx context.Context, id uuid.UUID, actor domain.Actor, in UpdateListingInput) (*domain.Listing, error)
	Republish(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Listing, error)
	Decide(ctx context.Context, id uuid.UUID, actor domain.Actor, status domain.ListingStatus, reason *string) (*domain.Listing, error)
	SetVip(ctx context.Context, id uuid.UUID, actor domain.Actor, durationDays int) (*domain.Listing, error)
	MarkSold(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Listing, error)
	Delete(ctx context.Context, id uuid.UUID, actor domain.Actor) error
	AddPhoto(ctx context.Context, id uuid.UUID, actor domain.Actor, upload PhotoUpload) (*domain.Photo, error)
	History(ctx context.Context, id uuid.UUID, actor domain.Actor) ([]*domain.HistoryEntry, error)
	GetPhoto(ctx context.Context, photoID uuid.UUID, viewerID *uuid.UUID) (*domain.Photo, error)
	Photos(ctx context.Context, id uuid.UUID) ([]domain.Photo, error)
	DeletePhoto(ctx context.Context, photoID uuid.UUID, actor domain.Actor) error
}

type listingService struct {
	repo      repository.ListingRepository
	notifier  Notifier
	photos    storage.PhotoStore
	orphans   storage.OrphanQueue
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	settings  ListingSettings
}

// NewListingService creates a new instance of ListingService
func NewListingService(
	repo repository.ListingRepository,
	notifier Notifier,
	photos storage.PhotoStore,
	orphans storage.OrphanQueue,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
	settings ListingSettings,
) ListingService {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &listingService{
		repo:      repo,
		notifier:  notifier,
		photos:    photos,
		orphans:   orphans,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		settings:  settings.withDefaults(),
	}
}

// sideEffect is work that runs after the listing transaction committed
type sideEffect func(ctx context.Context)

func (s *listingService) now() time.Time {
	return s.settings.Now().UTC()
}

func (s *listingService) republishWindow() time.Duration {
	return time.Duration(s.settings.RepublishDays) * 24 * time.Hour
}

func validateUpload(p PhotoUpload) error {
	if len(p.Data) == 0 {
		return domain.NewValidation("photo is empty")
	}
	if !strings.HasPrefix(p.ContentType, "image/") {
		return domain.NewValidation("only image files are allowed")
	}
	return nil
}

// uploadPhotos stores every upload and returns the photo rows. On failure the
// objects already written are removed again.
func (s *listingService) uploadPhotos(ctx context.Context, listingID uuid.UUID, uploads []PhotoUpload) ([]domain.Photo, error) {
	photos := make([]domain.Photo, 0, len(uploads))
	for _, u := range uploads {
		stored, err := s.photos.Put(ctx, storage.PhotoObject{
			ListingID:   listingID,
			Filename:    u.Filename,
			ContentType: u.ContentType,
			Data:        u.Data,
		})
		if err != nil {
			s.discardPhotos(context.WithoutCancel(ctx), photos)
			return nil, fmt.Errorf("failed to store photo: %w", err)
		}

		mime := u.ContentType
		size := int64(len(u.Data))
		photos = append(photos, domain.Photo{
			ID:                 uuid.New(),
			ListingID:          listingID,
			URL:                stored.URL,
			Filename:           u.Filename,
			StorageKey:         stored.Key,
			MimeType:           &mime,
			Size:               &size,
			CapturedWithCamera: u.CapturedWithCamera,
			CreatedAt:          s.now(),
		})
	}
	return photos, nil
}

// discardPhotos deletes photo objects; keys that cannot be deleted are queued
// for the cleanup job.
func (s *listingService) discardPhotos(ctx context.Context, photos []domain.Photo) {
	failed := []string{}
	for _, p := range photos {
		if p.StorageKey == "" {
			continue
		}
		if err := s.photos.Delete(ctx, p.StorageKey); err != nil {
			s.logger.Warn("Failed to delete photo object",
				zap.String("key", p.StorageKey),
				zap.Error(err),
			)
			s.metrics.SideEffectFailed("photo_delete")
			failed = append(failed, p.StorageKey)
		}
	}

	if len(failed) == 0 || s.orphans == nil {
		return
	}
	if err := s.orphans.Push(ctx, failed...); err != nil {
		s.logger.Error("Failed to queue orphan photos",
			zap.Strings("keys", failed),
			zap.Error(err),
		)
	}
}

func (s *listingService) notify(ctx context.Context, req domain.NotificationRequest) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, req); err != nil {
		s.logger.Error("Failed to create notification",
			zap.String("user_id", req.UserID.String()),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		s.metrics.SideEffectFailed("notification")
	}
}

func (s *listingService) publish(ctx context.Context, action string, l *domain.Listing, actor domain.Actor, from *domain.ListingStatus) {
	event := domain.ListingEvent{
		ListingID:  l.ID,
		SellerID:   l.SellerID,
		ActorID:    actor.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   l.Status,
		OccurredAt: s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish listing event",
			zap.String("listing_id", l.ID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
		s.metrics.SideEffectFailed("event")
	}
}

func (s *listingService) historyEntry(l *domain.Listing, actor domain.Actor, action string, from *domain.ListingStatus, note *string) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		ID:         uuid.New(),
		ListingID:  l.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   l.Status,
		ActorID:    actor.ID,
		Note:       note,
		CreatedAt:  s.now(),
	}
}

// mutate runs fn under the listing lock, then the returned side effects
// outside of it. Side effects never fail the operation.
func (s *listingService) mutate(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error)) error {
	var effects []sideEffect
	err := s.repo.Transact(ctx, id, func(ctx context.Context, tx repository.ListingTx) error {
		var err error
		effects, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}

	detached := context.WithoutCancel(ctx)
	for _, effect := range effects {
		effect(detached)
	}
	return nil
}

// load reads a listing outside of any transaction. Not found passes through,
// anything else is wrapped.
func (s *listingService) load(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, repository.ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return listing, nil
}

func statusPtr(st domain.ListingStatus) *domain.ListingStatus {
	return &st
}

// Create posts a new listing awaiting review
func (s *listingService) Create(ctx context.Context, actor domain.Actor, in CreateListingInput) (*domain.Listing, error) {
	if err := policy.CanCreate(actor); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return nil, domain.NewValidation("title and description are required")
	}
	if in.PriceCfa != nil && *in.PriceCfa < 0 {
		return nil, domain.NewValidation("price must be a non-negative amount")
	}
	if len(in.Photos) == 0 {
		return nil, domain.NewValidation("at least one photo is required")
	}
	for _, p := range in.Photos {
		if err := validateUpload(p); err != nil {
			return nil, err
		}
	}

	now := s.now()
	expires := now.Add(s.republishWindow())
	listing := &domain.Listing{
		ID:          uuid.New(),
		SellerID:    actor.ID,
		Title:       title,
		Description: description,
		PriceCfa:    in.PriceCfa,
		Status:      domain.StatusPendingReview,
		PublishedAt: &now,
		ExpiresAt:   &expires,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	photos, err := s.uploadPhotos(ctx, listing.ID, in.Photos)
	if err != nil {
		return nil, err
	}
	listing.Photos = photos

	if err := s.repo.Create(ctx, listing, s.historyEntry(listing, actor, "Product created", nil, nil)); err != nil {
		s.discardPhotos(context.WithoutCancel(ctx), photos)
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.metrics.Transition(events.ActionCreated, string(listing.Status))
	s.publish(context.WithoutCancel(ctx), events.ActionCreated, listing, actor, nil)

	s.logger.Info("Product created",
		zap.String("listing_id", listing.ID.String()),
		zap.String("seller_id", actor.ID.String()),
	)
	return listing, nil
}

// Get returns a listing and records the view
func (s *listingService) Get(ctx context.Context, id uuid.UUID, viewerID *uuid.UUID) (*domain.Listing, error) {
	listing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &domain.ProductView{
		ID:        uuid.New(),
		ListingID: id,
		ViewerID:  viewerID,
		ViewedAt:  s.now(),
	}
	if err := s.repo.RecordView(ctx, view); err != nil {
		s.logger.Warn("Failed to record product view", zap.String("listing_id", id.String()), zap.Error(err))
	}

	return listing, nil
}

func (s *listingService) List(ctx context.Context, filter repository.ListingFilter) ([]*domain.Listing, int, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, domain.NewValidation("invalid status: " + string(*filter.Status))
	}

	listings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return listings, total, nil
}

// Update edits a pending listing in place
func (s *listingService) Update(ctx context.Context, id uuid.UUID, actor domain.Actor, in UpdateListingInput) (*domain.Listing, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, domain.NewValidation("title cannot be empty")
	}
	if in.Description != nil && strings.TrimSpace(*in.Description) == "" {
		return nil, domain.NewValidation("description cannot be empty")
	}
	if in.PriceCfa != nil && *in.PriceCfa < 0 {
		return nil, domain.NewValidation("price must be a non-negative amount")
	}
	if in.Photos != nil && len(in.Photos) == 0 {
		return nil, domain.NewValidation("at least one photo is required")
	}
	for _, p := range in.Photos {
		if err := validateUpload(p); err != nil {
			return nil, err
		}
	}

	// Checked up front so nothing is uploaded for a request that will be refused.
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanEdit(actor, current); err != nil {
		return nil, err
	}

	var uploaded []domain.Photo
	if in.Photos != nil {
		uploaded, err = s.uploadPhotos(ctx, id, in.Photos)
		if err != nil {
			return nil, err
		}
	}

	var updated *domain.Listing
	err = s.mutate(ctx, id, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanEdit(actor, l); err != nil {
			return nil, err
		}

		if in.Title != nil {
			l.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			l.Description = strings.TrimSpace(*in.Description)
		}
		if in.PriceCfa != nil {
			l.PriceCfa = in.PriceCfa
		}
		l.UpdatedAt = s.now()

		var removed []domain.Photo
		if uploaded != nil {
			var err error
			if removed, err = tx.ReplacePhotos(ctx, uploaded); err != nil {
				return nil, err
			}
		}
		if err := tx.Save(ctx, l); err != nil {
			return nil, err
		}
		if err := tx.AppendHistory(ctx, s.historyEntry(l, actor, "Product updated", statusPtr(l.Status), nil)); err != nil {
			return nil, err
		}

		updated = l.Clone()
		return []sideEffect{
			func(ctx context.Context) { s.discardPhotos(ctx, removed) },
			func(ctx context.Context) {
				s.publish(ctx, events.ActionUpdated, updated, actor, statusPtr(updated.Status))
			},
		}, nil
	})
	if err != nil {
		if uploaded != nil {
			s.discardPhotos(context.WithoutCancel(ctx), uploaded)
		}
		return nil, err
	}

	s.metrics.Transition(events.ActionUpdated, string(updated.Status))
	return updated, nil
}

// Republish restarts the publication window and sends the listing back to review
func (s *listingService) Republish(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Listing, error) {
	var updated *domain.Listing
	err := s.mutate(ctx, id, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanRepublish(actor, l); err != nil {
			return nil, err
		}

		from := l.Status
		now := s.now()
		expires := now.Add(s.republishWindow())
		l.Status = domain.StatusPendingReview
		l.PublishedAt = &now
		l.ExpiresAt = &expires
		l.LastRepublishAt = &now
		l.RemindedAt = nil
		l.UpdatedAt = now

		if err := tx.Save(ctx, l); err != nil {
			return nil, err
		}
		if err := tx.AppendHistory(ctx, s.historyEntry(l, actor, "Product republished", &from, nil)); err != nil {
			return nil, err
		}

		updated = l.Clone()
		return []sideEffect{
			func(ctx context.Context) { s.publish(ctx, events.ActionRepublished, updated, actor, &from) },
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(events.ActionRepublished, string(updated.Status))
	return updated, nil
}

// decisionNotification renders the seller message for a moderation outcome.
// ok is false for statuses that have no template.
func decisionNotification(l *domain.Listing, status domain.ListingStatus, reason *string) (title, body string, ok bool) {
	switch status {
	case domain.StatusValidated:
		return "Produit approuvé",
			fmt.Sprintf("Votre produit \"%s\" a été approuvé par notre équipe de modération.", l.Title),
			true
	case domain.StatusRejected:
		body = fmt.Sprintf("Votre produit \"%s\" a été rejeté.", l.Title)
		if reason != nil && *reason != "" {
			body += " Raison: " + *reason
		}
		return "Produit rejeté", body, true
	}
	return "", "", false
}

// Decide applies a moderator decision to a pending listing
func (s *listingService) Decide(ctx context.Context, id uuid.UUID, actor domain.Actor, status domain.ListingStatus, reason *string) (*domain.Listing, error) {
	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		if trimmed == "" {
			reason = nil
		} else {
			reason = &trimmed
		}
	}

	var updated *domain.Listing
	err := s.mutate(ctx, id, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanDecide(actor, l, status); err != nil {
			return nil, err
		}

		from := l.Status
		l.Status = status
		l.UpdatedAt = s.now()
		if err := tx.Save(ctx, l); err != nil {
			return nil, err
		}

		logEntry := &domain.ModerationLogEntry{
			ID:          uuid.New(),
			ListingID:   l.ID,
			ModeratorID: actor.ID,
			Decision:    status,
			Reason:      reason,
			CreatedAt:   s.now(),
		}
		if err := tx.AppendModerationLog(ctx, logEntry); err != nil {
			return nil, err
		}
		if err := tx.AppendHistory(ctx, s.historyEntry(l, actor, "Status changed to "+string(status), &from, reason)); err != nil {
			return nil, err
		}

		updated = l.Clone()
		effects := []sideEffect{}
		if title, body, ok := decisionNotification(updated, status, reason); ok {
			logID := logEntry.ID
			effects = append(effects, func(ctx context.Context) {
				s.notify(ctx, domain.NotificationRequest{
					UserID:          updated.SellerID,
					Type:            domain.NotificationModerationDecision,
					Title:           title,
					Body:            body,
					Payload:         map[string]interface{}{"productId": updated.ID.String(), "status": string(status)},
					ModerationLogID: &logID,
				})
			})
		}
		effects = append(effects, func(ctx context.Context) {
			s.publish(ctx, events.ActionDecided, updated, actor, &from)
		})
		return effects, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(events.ActionDecided, string(updated.Status))
	s.logger.Info("Moderation decision applied",
		zap.String("listing_id", id.String()),
		zap.String("moderator_id", actor.ID.String()),
		zap.String("status", string(status)),
	)
	return updated, nil
}

// SetVip promotes a listing for durationDays, the default duration when not positive
func (s *listingService) SetVip(ctx context.Context, id uuid.UUID, actor domain.Actor, durationDays int) (*domain.Listing, error) {
	if durationDays <= 0 {
		durationDays = s.settings.DefaultVipDays
	}
	if durationDays > s.settings.MaxVipDays {
		return nil, domain.NewValidation(fmt.Sprintf("VIP duration cannot exceed %d days", s.settings.MaxVipDays))
	}

	var updated *domain.Listing
	err := s.mutate(ctx, id, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanSetVip(actor, l); err != nil {
			return nil, err
		}

		now := s.now()
		until := now.Add(time.Duration(durationDays) * 24 * time.Hour)
		l.IsVip = true
		l.VipUntil = &until
		l.UpdatedAt = now

		if err := tx.Save(ctx, l); err != nil {
			return nil, err
		}
		note := fmt.Sprintf("%d days", durationDays)
		if err := tx.AppendHistory(ctx, s.historyEntry(l, actor, "VIP enabled", statusPtr(l.Status), &note)); err != nil {
			return nil, err
		}

		updated = l.Clone()
		return []sideEffect{
			func(ctx context.Context) { s.publish(ctx, events.ActionVip, updated, actor, statusPtr(updated.Status)) },
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(events.ActionVip, string(updated.Status))
	return updated, nil
}

// MarkSold closes a validated listing
func (s *listingService) MarkSold(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Listing, error) {
	var updated *domain.Listing
	err := s.mutate(ctx, id, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanMarkSold(actor, l); err != nil {
			return nil, err
		}

		from := l.Status
		l.Status = domain.StatusSold
		l.UpdatedAt = s.now()
		if err := tx.Save(ctx, l); err != nil {
			return nil, err
		}
		if err := tx.AppendHistory(ctx, s.historyEntry(l, actor, "Product marked as sold", &from, nil)); err != nil {
			return nil, err
		}

		updated = l.Clone()
		return []sideEffect{
			func(ctx context.Context) {
				s.notify(ctx, domain.NotificationRequest{
					UserID:  updated.SellerID,
					Type:    domain.NotificationGeneric,
					Title:   "Produit marqué comme vendu",
					Body:    fmt.Sprintf("Votre produit \"%s\" a été marqué comme vendu avec succès.", updated.Title),
					Payload: map[string]interface{}{"productId": updated.ID.String(), "status": string(updated.Status)},
				})
			},
			func(ctx context.Context) { s.publish(ctx, events.ActionSold, updated, actor, &from) },
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(events.ActionSold, string(updated.Status))
	return updated, nil
}

// Delete removes the listing with every dependent record
func (s *listingService) Delete(ctx context.Context, id uuid.UUID, actor domain.Actor) error {
	err := s.mutate(ctx, id, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanDelete(actor, l); err != nil {
			return nil, err
		}

		from := l.Status
		removed, err := tx.Delete(ctx)
		if err != nil {
			return nil, err
		}

		deleted := l.Clone()
		deleted.Status = domain.StatusDeleted
		return []sideEffect{
			func(ctx context.Context) { s.discardPhotos(ctx, removed) },
			func(ctx context.Context) { s.publish(ctx, events.ActionDeleted, deleted, actor, &from) },
		}, nil
	})
	if err != nil {
		return err
	}

	s.metrics.Transition(events.ActionDeleted, string(domain.StatusDeleted))
	s.logger.Info("Product deleted",
		zap.String("listing_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	return nil
}

// AddPhoto attaches one more photo to a pending listing
func (s *listingService) AddPhoto(ctx context.Context, id uuid.UUID, actor domain.Actor, upload PhotoUpload) (*domain.Photo, error) {
	if err := validateUpload(upload); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAddPhoto(actor, current); err != nil {
		return nil, err
	}

	uploaded, err := s.uploadPhotos(ctx, id, []PhotoUpload{upload})
	if err != nil {
		return nil, err
	}
	photo := uploaded[0]

	err = s.mutate(ctx, id, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanAddPhoto(actor, l); err != nil {
			return nil, err
		}
		if err := tx.AddPhoto(ctx, &photo); err != nil {
			return nil, err
		}
		l.UpdatedAt = s.now()
		if err := tx.Save(ctx, l); err != nil {
			return nil, err
		}
		note := photo.Filename
		if err := tx.AppendHistory(ctx, s.historyEntry(l, actor, "Photo added", statusPtr(l.Status), &note)); err != nil {
			return nil, err
		}

		updated := l.Clone()
		return []sideEffect{
			func(ctx context.Context) {
				s.publish(ctx, events.ActionUpdated, updated, actor, statusPtr(updated.Status))
			},
		}, nil
	})
	if err != nil {
		s.discardPhotos(context.WithoutCancel(ctx), uploaded)
		return nil, err
	}

	return &photo, nil
}

// History returns the audit trail to the owner and to moderation staff
func (s *listingService) History(ctx context.Context, id uuid.UUID, actor domain.Actor) ([]*domain.HistoryEntry, error) {
	listing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanViewHistory(actor, listing); err != nil {
		return nil, err
	}

	entries, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load product history: %w", err)
	}
	return entries, nil
}

// GetPhoto returns one photo and records the view. The count in the response
// excludes the current view.
func (s *listingService) GetPhoto(ctx context.Context, photoID uuid.UUID, viewerID *uuid.UUID) (*domain.Photo, error) {
	photo, err := s.repo.FindPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, repository.ErrPhotoNotFound) {
			return nil, repository.ErrPhotoNotFound
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}

	view := &domain.PhotoView{
		ID:       uuid.New(),
		PhotoID:  photoID,
		ViewerID: viewerID,
		ViewedAt: s.now(),
	}
	if err := s.repo.RecordPhotoView(ctx, view); err != nil {
		s.logger.Warn("Failed to record photo view", zap.String("photo_id", photoID.String()), zap.Error(err))
	}
	return photo, nil
}

// Photos lists the photos of a listing, oldest first, with their view counts
func (s *listingService) Photos(ctx context.Context, id uuid.UUID) ([]domain.Photo, error) {
	listing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return listing.Photos, nil
}

// DeletePhoto removes one photo; its object is deleted after commit
func (s *listingService) DeletePhoto(ctx context.Context, photoID uuid.UUID, actor domain.Actor) error {
	photo, err := s.repo.FindPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, repository.ErrPhotoNotFound) {
			return repository.ErrPhotoNotFound
		}
		return fmt.Errorf("failed to get photo: %w", err)
	}

	err = s.mutate(ctx, photo.ListingID, func(ctx context.Context, tx repository.ListingTx) ([]sideEffect, error) {
		l := tx.Listing()
		if err := policy.CanDeletePhoto(actor, l); err != nil {
			return nil, err
		}
		removed, err := tx.RemovePhoto(ctx, photoID)
		if err != nil {
			return nil, err
		}
		l = tx.Listing()
		l.UpdatedAt = s.now()
		if err := tx.Save(ctx, l); err != nil {
			return nil, err
		}
		note := removed.Filename
		if err := tx.AppendHistory(ctx, s.historyEntry(l, actor, "Photo removed", statusPtr(l.Status), &note)); err != nil {
			return nil, err
		}

		updated := l.Clone()
		return []sideEffect{
			func(ctx context.Context) { s.discardPhotos(ctx, []domain.Photo{removed}) },
			func(ctx context.Context) {
				s.publish(ctx, events.ActionUpdated, updated, actor, statusPtr(updated.Status))
			},
		}, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			// the listing went away with its photos
			return repository.ErrPhotoNotFound
		}
		return err
	}

	s.logger.Info("Photo deleted",
		zap.String("photo_id", photoID.String()),
		zap.String("listing_id", photo.ListingID.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	return nil
}
