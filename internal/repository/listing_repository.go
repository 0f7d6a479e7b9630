package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fotoljay/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrListingNotFound = domain.NewNotFound("product not found")
	ErrPhotoNotFound   = domain.NewNotFound("photo not found")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListingFilter narrows List results. Deleted listings are hidden unless
// Status asks for them explicitly.
type ListingFilter struct {
	Status   *domain.ListingStatus
	IsVip    *bool
	SellerID *uuid.UUID
	Limit    int
	Offset   int
}

// Normalize clamps paging to sane bounds
func (f ListingFilter) Normalize() ListingFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ListingTx is the unit of work handed to Transact. The listing it exposes is
// locked for the lifetime of the transaction.
type ListingTx interface {
	Listing() *domain.Listing
	Save(ctx context.Context, listing *domain.Listing) error
	ReplacePhotos(ctx context.Context, photos []domain.Photo) (removed []domain.Photo, err error)
	AddPhoto(ctx context.Context, photo *domain.Photo) error
	// RemovePhoto deletes one photo of the listing with its views
	RemovePhoto(ctx context.Context, photoID uuid.UUID) (domain.Photo, error)
	AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error
	AppendModerationLog(ctx context.Context, entry *domain.ModerationLogEntry) error
	// Delete removes the listing and every dependent row, children first, and
	// returns the photos that were removed.
	Delete(ctx context.Context) (removed []domain.Photo, err error)
}

// ListingRepository defines the interface for listing data access
type ListingRepository interface {
	Create(ctx context.Context, listing *domain.Listing, history *domain.HistoryEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]*domain.Listing, int, error)
	RecordView(ctx context.Context, view *domain.ProductView) error
	FindPhoto(ctx context.Context, id uuid.UUID) (*domain.Photo, error)
	RecordPhotoView(ctx context.Context, view *domain.PhotoView) error
	Transact(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx ListingTx) error) error
	History(ctx context.Context, listingID uuid.UUID) ([]*domain.HistoryEntry, error)
	ModerationLogs(ctx context.Context, listingID uuid.UUID) ([]*domain.ModerationLogEntry, error)
	// DueForReminder returns live listings expiring before deadline that have
	// not been reminded since their last publication.
	DueForReminder(ctx context.Context, now, deadline time.Time) ([]*domain.Listing, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
	// ExpireVip clears the VIP flag of listings whose promotion lapsed before now
	// and returns them.
	ExpireVip(ctx context.Context, now time.Time) ([]*domain.Listing, error)
}

type listingRepository struct {
	db *sql.DB
}

// NewListingRepository creates a new PostgreSQL-backed ListingRepository
func NewListingRepository(db *sql.DB) ListingRepository {
	return &listingRepository{db: db}
}

const listingColumns = `
	l.id, l.seller_id, l.title, l.description, l.price_cfa, l.status, l.is_vip, l.vip_until,
	l.published_at, l.expires_at, l.last_republish_at, l.reminded_at, l.created_at, l.updated_at,
	(SELECT COUNT(*) FROM product_views v WHERE v.listing_id = l.id)`

const photoColumns = `id, listing_id, url, filename, storage_key, mime_type, size, captured_with_camera, created_at`

const photoSelect = `SELECT ` + photoColumns + `,
	(SELECT COUNT(*) FROM photo_views pv WHERE pv.photo_id = photos.id)
	FROM photos`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	l := &domain.Listing{}
	var (
		price                                                   sql.NullInt64
		status                                                  string
		vipUntil, publishedAt, expiresAt, republishedAt, remind sql.NullTime
	)

	err := row.Scan(
		&l.ID,
		&l.SellerID,
		&l.Title,
		&l.Description,
		&price,
		&status,
		&l.IsVip,
		&vipUntil,
		&publishedAt,
		&expiresAt,
		&republishedAt,
		&remind,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.Views,
	)
	if err != nil {
		return nil, err
	}

	l.PriceCfa = intPtr(price)
	l.Status = domain.ListingStatus(status)
	l.VipUntil = timePtr(vipUntil)
	l.PublishedAt = timePtr(publishedAt)
	l.ExpiresAt = timePtr(expiresAt)
	l.LastRepublishAt = timePtr(republishedAt)
	l.RemindedAt = timePtr(remind)
	l.Photos = []domain.Photo{}
	return l, nil
}

func findListing(ctx context.Context, q dbtx, id uuid.UUID, forUpdate bool) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings l WHERE l.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF l`
	}

	l, err := scanListing(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	photos, err := photosByListing(ctx, q, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	l.Photos = photos[id]
	if l.Photos == nil {
		l.Photos = []domain.Photo{}
	}
	return l, nil
}

func photosByListing(ctx context.Context, q dbtx, ids []uuid.UUID) (map[uuid.UUID][]domain.Photo, error) {
	result := make(map[uuid.UUID][]domain.Photo, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`%s
		WHERE listing_id IN (%s)
		ORDER BY created_at ASC, id ASC
	`, photoSelect, strings.Join(placeholders, ", "))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		result[p.ListingID] = append(result[p.ListingID], p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}
	return result, nil
}

func scanPhoto(row rowScanner) (domain.Photo, error) {
	var (
		p        domain.Photo
		mimeType sql.NullString
		size     sql.NullInt64
	)
	err := row.Scan(
		&p.ID,
		&p.ListingID,
		&p.URL,
		&p.Filename,
		&p.StorageKey,
		&mimeType,
		&size,
		&p.CapturedWithCamera,
		&p.CreatedAt,
		&p.Views,
	)
	p.MimeType = stringPtr(mimeType)
	p.Size = int64Ptr(size)
	return p, err
}

func insertPhoto(ctx context.Context, q dbtx, p *domain.Photo) error {
	query := `INSERT INTO photos (` + photoColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := q.ExecContext(ctx, query,
		p.ID,
		p.ListingID,
		p.URL,
		p.Filename,
		p.StorageKey,
		nullString(p.MimeType),
		nullInt64(p.Size),
		p.CapturedWithCamera,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, q dbtx, e *domain.HistoryEntry) error {
	var from sql.NullString
	if e.FromStatus != nil {
		from = sql.NullString{String: string(*e.FromStatus), Valid: true}
	}

	query := `
		INSERT INTO listing_history (id, listing_id, action, from_status, to_status, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		e.ID,
		e.ListingID,
		e.Action,
		from,
		string(e.ToStatus),
		e.ActorID,
		nullString(e.Note),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Create inserts the listing, its photos and its creation history entry in one transaction
func (r *listingRepository) Create(ctx context.Context, l *domain.Listing, history *domain.HistoryEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO listings (id, seller_id, title, description, price_cfa, status, is_vip, vip_until,
			published_at, expires_at, last_republish_at, reminded_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if _, err = tx.ExecContext(ctx, query,
		l.ID,
		l.SellerID,
		l.Title,
		l.Description,
		nullInt(l.PriceCfa),
		string(l.Status),
		l.IsVip,
		nullTime(l.VipUntil),
		nullTime(l.PublishedAt),
		nullTime(l.ExpiresAt),
		nullTime(l.LastRepublishAt),
		nullTime(l.RemindedAt),
		l.CreatedAt,
		l.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	for i := range l.Photos {
		if err = insertPhoto(ctx, tx, &l.Photos[i]); err != nil {
			return err
		}
	}

	if history != nil {
		if err = insertHistory(ctx, tx, history); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product creation: %w", err)
	}
	return nil
}

// FindByID retrieves a listing with its photos and view count
func (r *listingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	return findListing(ctx, r.db, id, false)
}

// List retrieves listings matching the filter, VIP listings first
func (r *listingRepository) List(ctx context.Context, filter ListingFilter) ([]*domain.Listing, int, error) {
	filter = filter.Normalize()

	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	} else {
		conditions = append(conditions, fmt.Sprintf("l.status <> $%d", argIndex))
		args = append(args, string(domain.StatusDeleted))
		argIndex++
	}
	if filter.IsVip != nil {
		conditions = append(conditions, fmt.Sprintf("l.is_vip = $%d", argIndex))
		args = append(args, *filter.IsVip)
		argIndex++
	}
	if filter.SellerID != nil {
		conditions = append(conditions, fmt.Sprintf("l.seller_id = $%d", argIndex))
		args = append(args, *filter.SellerID)
		argIndex++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM listings l " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM listings l
		%s
		ORDER BY l.is_vip DESC, l.created_at DESC, l.id
		LIMIT $%d OFFSET $%d
	`, listingColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	listings, err := r.queryListings(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (r *listingRepository) queryListings(ctx context.Context, query string, args ...interface{}) ([]*domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	listings := []*domain.Listing{}
	ids := []uuid.UUID{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		listings = append(listings, l)
		ids = append(ids, l.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	photos, err := photosByListing(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for _, l := range listings {
		if p, ok := photos[l.ID]; ok {
			l.Photos = p
		}
	}
	return listings, nil
}

// RecordView stores one read of a listing
func (r *listingRepository) RecordView(ctx context.Context, view *domain.ProductView) error {
	var viewer interface{}
	if view.ViewerID != nil {
		viewer = *view.ViewerID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO product_views (id, listing_id, viewer_id, viewed_at) VALUES ($1, $2, $3, $4)`,
		view.ID, view.ListingID, viewer, view.ViewedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record product view: %w", err)
	}
	return nil
}

// FindPhoto retrieves one photo with its view count
func (r *listingRepository) FindPhoto(ctx context.Context, id uuid.UUID) (*domain.Photo, error) {
	p, err := scanPhoto(r.db.QueryRowContext(ctx, photoSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPhotoNotFound
		}
		return nil, fmt.Errorf("failed to find photo: %w", err)
	}
	return &p, nil
}

// RecordPhotoView stores one read of a photo
func (r *listingRepository) RecordPhotoView(ctx context.Context, view *domain.PhotoView) error {
	var viewer interface{}
	if view.ViewerID != nil {
		viewer = *view.ViewerID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO photo_views (id, photo_id, viewer_id, viewed_at) VALUES ($1, $2, $3, $4)`,
		view.ID, view.PhotoID, viewer, view.ViewedAt,
	)
	switch {
	case isForeignKeyViolation(err):
		return ErrPhotoNotFound
	case err != nil:
		return fmt.Errorf("failed to record photo view: %w", err)
	}
	return nil
}

// Transact locks the listing row and runs fn inside one transaction
func (r *listingRepository) Transact(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx ListingTx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	listing, err := findListing(ctx, tx, id, true)
	if err != nil {
		return err
	}

	if err = fn(ctx, &listingTx{tx: tx, listing: listing}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns the audit trail of a listing, oldest first
func (r *listingRepository) History(ctx context.Context, listingID uuid.UUID) ([]*domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, listing_id, action, from_status, to_status, actor_id, note, created_at
		FROM listing_history
		WHERE listing_id = $1
		ORDER BY created_at ASC, id ASC
	`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	entries := []*domain.HistoryEntry{}
	for rows.Next() {
		var (
			e        domain.HistoryEntry
			from     sql.NullString
			to       string
			noteText sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ListingID, &e.Action, &from, &to, &e.ActorID, &noteText, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if from.Valid {
			status := domain.ListingStatus(from.String)
			e.FromStatus = &status
		}
		e.ToStatus = domain.ListingStatus(to)
		e.Note = stringPtr(noteText)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ModerationLogs returns the moderation decisions on a listing, oldest first
func (r *listingRepository) ModerationLogs(ctx context.Context, listingID uuid.UUID) ([]*domain.ModerationLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, listing_id, moderator_id, decision, reason, created_at
		FROM moderation_logs
		WHERE listing_id = $1
		ORDER BY created_at ASC, id ASC
	`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load moderation logs: %w", err)
	}
	defer rows.Close()

	entries := []*domain.ModerationLogEntry{}
	for rows.Next() {
		var (
			e        domain.ModerationLogEntry
			decision string
			reason   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ListingID, &e.ModeratorID, &decision, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderation log: %w", err)
		}
		e.Decision = domain.ListingStatus(decision)
		e.Reason = stringPtr(reason)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DueForReminder returns live listings whose publication window closes before deadline
func (r *listingRepository) DueForReminder(ctx context.Context, now, deadline time.Time) ([]*domain.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings l
		WHERE l.status IN ($1, $2)
		  AND l.expires_at IS NOT NULL
		  AND l.expires_at > $3
		  AND l.expires_at <= $4
		  AND (l.reminded_at IS NULL OR l.published_at IS NULL OR l.reminded_at < l.published_at)
		ORDER BY l.expires_at ASC
	`
	return r.queryListings(ctx, query,
		string(domain.StatusPendingReview),
		string(domain.StatusValidated),
		now,
		deadline,
	)
}

// MarkReminded records that the seller was reminded about the current window
func (r *listingRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE listings SET reminded_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark product reminded: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrListingNotFound
	}
	return nil
}

// ExpireVip clears lapsed promotions and returns the affected listings
func (r *listingRepository) ExpireVip(ctx context.Context, now time.Time) ([]*domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE listings
		SET is_vip = FALSE, vip_until = NULL
		WHERE is_vip = TRUE AND vip_until IS NOT NULL AND vip_until <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire VIP products: %w", err)
	}

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expired product: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired products: %w", err)
	}

	expired := make([]*domain.Listing, 0, len(ids))
	for _, id := range ids {
		l, err := findListing(ctx, r.db, id, false)
		if err != nil {
			if errors.Is(err, ErrListingNotFound) {
				continue
			}
			return nil, err
		}
		expired = append(expired, l)
	}
	return expired, nil
}

type listingTx struct {
	tx      *sql.Tx
	listing *domain.Listing
}

func (t *listingTx) Listing() *domain.Listing {
	return t.listing
}

func (t *listingTx) Save(ctx context.Context, l *domain.Listing) error {
	query := `
		UPDATE listings
		SET title = $2, description = $3, price_cfa = $4, status = $5, is_vip = $6, vip_until = $7,
		    published_at = $8, expires_at = $9, last_republish_at = $10, reminded_at = $11, updated_at = $12
		WHERE id = $1
	`
	result, err := t.tx.ExecContext(ctx, query,
		l.ID,
		l.Title,
		l.Description,
		nullInt(l.PriceCfa),
		string(l.Status),
		l.IsVip,
		nullTime(l.VipUntil),
		nullTime(l.PublishedAt),
		nullTime(l.ExpiresAt),
		nullTime(l.LastRepublishAt),
		nullTime(l.RemindedAt),
		l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrListingNotFound
	}

	t.listing = l
	return nil
}

func (t *listingTx) ReplacePhotos(ctx context.Context, photos []domain.Photo) ([]domain.Photo, error) {
	removed := t.listing.Photos

	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM photo_views WHERE photo_id IN (SELECT id FROM photos WHERE listing_id = $1)`,
		t.listing.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to delete photo views: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM photos WHERE listing_id = $1`, t.listing.ID); err != nil {
		return nil, fmt.Errorf("failed to delete photos: %w", err)
	}

	for i := range photos {
		photos[i].ListingID = t.listing.ID
		if err := insertPhoto(ctx, t.tx, &photos[i]); err != nil {
			return nil, err
		}
	}

	t.listing.Photos = photos
	return removed, nil
}

func (t *listingTx) AddPhoto(ctx context.Context, photo *domain.Photo) error {
	photo.ListingID = t.listing.ID
	if err := insertPhoto(ctx, t.tx, photo); err != nil {
		return err
	}
	t.listing.Photos = append(t.listing.Photos, *photo)
	return nil
}

func (t *listingTx) RemovePhoto(ctx context.Context, photoID uuid.UUID) (domain.Photo, error) {
	idx := -1
	for i, p := range t.listing.Photos {
		if p.ID == photoID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Photo{}, ErrPhotoNotFound
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM photo_views WHERE photo_id = $1`, photoID); err != nil {
		return domain.Photo{}, fmt.Errorf("failed to delete photo views: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, photoID); err != nil {
		return domain.Photo{}, fmt.Errorf("failed to delete photo: %w", err)
	}

	removed := t.listing.Photos[idx]
	t.listing.Photos = append(t.listing.Photos[:idx:idx], t.listing.Photos[idx+1:]...)
	return removed, nil
}

func (t *listingTx) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	return insertHistory(ctx, t.tx, entry)
}

func (t *listingTx) AppendModerationLog(ctx context.Context, entry *domain.ModerationLogEntry) error {
	query := `
		INSERT INTO moderation_logs (id, listing_id, moderator_id, decision, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.ExecContext(ctx, query,
		entry.ID,
		entry.ListingID,
		entry.ModeratorID,
		string(entry.Decision),
		nullString(entry.Reason),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append moderation log: %w", err)
	}
	return nil
}

func (t *listingTx) Delete(ctx context.Context) ([]domain.Photo, error) {
	id := t.listing.ID

	// children before parent
	steps := []struct {
		name  string
		query string
	}{
		{"photo views", `DELETE FROM photo_views WHERE photo_id IN (SELECT id FROM photos WHERE listing_id = $1)`},
		{"photos", `DELETE FROM photos WHERE listing_id = $1`},
		{"product views", `DELETE FROM product_views WHERE listing_id = $1`},
		{"moderation logs", `DELETE FROM moderation_logs WHERE listing_id = $1`},
		{"history", `DELETE FROM listing_history WHERE listing_id = $1`},
		{"product", `DELETE FROM listings WHERE id = $1`},
	}
	for _, step := range steps {
		if _, err := t.tx.ExecContext(ctx, step.query, id); err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", step.name, err)
		}
	}

	return t.listing.Photos, nil
}
