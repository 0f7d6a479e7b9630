package domain

import (
	"time"

	"github.com/google/uuid"
)

// ModerationLogEntry is the immutable record of one moderator decision
type ModerationLogEntry struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	ListingID   uuid.UUID     `json:"listing_id" db:"listing_id"`
	ModeratorID uuid.UUID     `json:"moderator_id" db:"moderator_id"`
	Decision    ListingStatus `json:"decision" db:"decision"`
	Reason      *string       `json:"reason,omitempty" db:"reason"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// HistoryEntry is the immutable audit trail row of one lifecycle action
type HistoryEntry struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	ListingID  uuid.UUID      `json:"listing_id" db:"listing_id"`
	Action     string         `json:"action" db:"action"`
	FromStatus *ListingStatus `json:"from_status,omitempty" db:"from_status"`
	ToStatus   ListingStatus  `json:"to_status" db:"to_status"`
	ActorID    uuid.UUID      `json:"actor_id" db:"actor_id"`
	Note       *string        `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// ListingEvent is published to the message bus after a lifecycle change commits
type ListingEvent struct {
	ListingID  uuid.UUID      `json:"listingId"`
	SellerID   uuid.UUID      `json:"sellerId"`
	ActorID    uuid.UUID      `json:"actorId"`
	Action     string         `json:"action"`
	FromStatus *ListingStatus `json:"fromStatus,omitempty"`
	ToStatus   ListingStatus  `json:"toStatus"`
	OccurredAt time.Time      `json:"occurredAt"`
}
