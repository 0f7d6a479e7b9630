package domain

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus is the moderation lifecycle state of a listing.
type ListingStatus string

const (
	StatusPendingReview ListingStatus = "EN_ATTENTE"
	StatusValidated     ListingStatus = "VALIDE"
	StatusRejected      ListingStatus = "REJETE"
	StatusSold          ListingStatus = "VENDU"
	StatusDeleted       ListingStatus = "SUPPRIME"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []ListingStatus{
	StatusPendingReview,
	StatusValidated,
	StatusRejected,
	StatusSold,
	StatusDeleted,
}

func (s ListingStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Listing represents a product offered for sale by a seller
type Listing struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	SellerID        uuid.UUID     `json:"seller_id" db:"seller_id"`
	Title           string        `json:"title" db:"title"`
	Description     string        `json:"description" db:"description"`
	PriceCfa        *int          `json:"price_cfa,omitempty" db:"price_cfa"`
	Status          ListingStatus `json:"status" db:"status"`
	IsVip           bool          `json:"is_vip" db:"is_vip"`
	VipUntil        *time.Time    `json:"vip_until,omitempty" db:"vip_until"`
	PublishedAt     *time.Time    `json:"published_at,omitempty" db:"published_at"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	LastRepublishAt *time.Time    `json:"last_republish_at,omitempty" db:"last_republish_at"`
	RemindedAt      *time.Time    `json:"-" db:"reminded_at"`
	Photos          []Photo       `json:"photos"`
	Views           int           `json:"views"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers never share photo slices or time pointers.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	c.PriceCfa = cloneInt(l.PriceCfa)
	c.VipUntil = cloneTime(l.VipUntil)
	c.PublishedAt = cloneTime(l.PublishedAt)
	c.ExpiresAt = cloneTime(l.ExpiresAt)
	c.LastRepublishAt = cloneTime(l.LastRepublishAt)
	c.RemindedAt = cloneTime(l.RemindedAt)
	if l.Photos != nil {
		c.Photos = make([]Photo, len(l.Photos))
		copy(c.Photos, l.Photos)
		for i := range c.Photos {
			c.Photos[i].MimeType = cloneString(l.Photos[i].MimeType)
			c.Photos[i].Size = cloneInt64(l.Photos[i].Size)
		}
	}
	return &c
}

// Photo is an image owned by exactly one listing
type Photo struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	ListingID          uuid.UUID `json:"listing_id" db:"listing_id"`
	URL                string    `json:"url" db:"url"`
	Filename           string    `json:"filename" db:"filename"`
	StorageKey         string    `json:"-" db:"storage_key"`
	MimeType           *string   `json:"mime_type,omitempty" db:"mime_type"`
	Size               *int64    `json:"size,omitempty" db:"size"`
	CapturedWithCamera bool      `json:"captured_with_camera" db:"captured_with_camera"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	// Views is derived from the photo_views rows
	Views int `json:"views" db:"-"`
}

// Clone returns a copy that shares no pointers with p
func (p Photo) Clone() Photo {
	p.MimeType = cloneString(p.MimeType)
	p.Size = cloneInt64(p.Size)
	return p
}

// PhotoView records one read of a photo detail
type PhotoView struct {
	ID       uuid.UUID  `json:"id" db:"id"`
	PhotoID  uuid.UUID  `json:"photo_id" db:"photo_id"`
	ViewerID *uuid.UUID `json:"viewer_id,omitempty" db:"viewer_id"`
	ViewedAt time.Time  `json:"viewed_at" db:"viewed_at"`
}

// ProductView records one read of a listing detail
type ProductView struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	ListingID uuid.UUID  `json:"listing_id" db:"listing_id"`
	ViewerID  *uuid.UUID `json:"viewer_id,omitempty" db:"viewer_id"`
	ViewedAt  time.Time  `json:"viewed_at" db:"viewed_at"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
