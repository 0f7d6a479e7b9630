// Package policy decides which lifecycle operations an actor may perform on a
// listing. It performs no I/O.
package policy

import (
	"fotoljay/internal/domain"
)

// edges is the listing status graph. Creation (no prior status) is handled by
// CanCreate; deletion is reachable from every non-deleted status.
var edges = map[domain.ListingStatus][]domain.ListingStatus{
	domain.StatusPendingReview: {
		domain.StatusValidated,
		domain.StatusRejected,
		domain.StatusPendingReview,
		domain.StatusDeleted,
	},
	domain.StatusValidated: {
		domain.StatusSold,
		domain.StatusPendingReview,
		domain.StatusDeleted,
	},
	domain.StatusRejected: {domain.StatusDeleted},
	domain.StatusSold:     {domain.StatusDeleted},
}

// Transition reports whether the status graph has an edge from -> to
func Transition(from, to domain.ListingStatus) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanCreate allows sellers and admins to post listings
func CanCreate(actor domain.Actor) error {
	if !actor.HasRole(domain.RoleSeller, domain.RoleAdmin) {
		return domain.NewUnauthorized("only sellers can create products")
	}
	return nil
}

// CanEdit allows the owning seller to edit a listing still awaiting review
func CanEdit(actor domain.Actor, l *domain.Listing) error {
	if !actor.Owns(l) {
		return domain.NewUnauthorized("not the owner of this product")
	}
	if l.Status != domain.StatusPendingReview {
		return domain.NewConflict("cannot modify validated/rejected/sold product")
	}
	return nil
}

// CanAddPhoto follows the edit rule: photos are listing content
func CanAddPhoto(actor domain.Actor, l *domain.Listing) error {
	return CanEdit(actor, l)
}

// CanDeletePhoto lets the owner remove a photo while the listing awaits
// review. Admins may remove photos in any live status. The last photo of a
// listing cannot be removed.
func CanDeletePhoto(actor domain.Actor, l *domain.Listing) error {
	if !actor.Owns(l) && !actor.IsAdmin() {
		return domain.NewUnauthorized("not allowed to delete this photo")
	}
	if l.Status == domain.StatusDeleted {
		return domain.NewConflict("product deleted")
	}
	if !actor.IsAdmin() && l.Status != domain.StatusPendingReview {
		return domain.NewConflict("cannot modify validated/rejected/sold product")
	}
	if len(l.Photos) <= 1 {
		return domain.NewConflict("a product must keep at least one photo")
	}
	return nil
}

// CanRepublish allows the owning seller to restart the publication window
func CanRepublish(actor domain.Actor, l *domain.Listing) error {
	if !actor.Owns(l) {
		return domain.NewUnauthorized("not the owner of this product")
	}
	if !Transition(l.Status, domain.StatusPendingReview) {
		return domain.NewConflict("cannot republish product with status " + string(l.Status))
	}
	return nil
}

// IsDecision reports whether status is a moderator decision outcome
func IsDecision(status domain.ListingStatus) bool {
	return status == domain.StatusValidated || status == domain.StatusRejected
}

// CanDecide allows moderators and admins to approve or reject a pending listing
func CanDecide(actor domain.Actor, l *domain.Listing, target domain.ListingStatus) error {
	if !actor.HasRole(domain.RoleModerator, domain.RoleAdmin) {
		return domain.NewUnauthorized("only moderators can change product status")
	}
	if !IsDecision(target) {
		return domain.NewValidation("invalid status: " + string(target))
	}
	if l.Status != domain.StatusPendingReview || !Transition(l.Status, target) {
		return domain.NewConflict("product is not awaiting review")
	}
	return nil
}

// CanMarkSold allows the owning seller to close a validated listing
func CanMarkSold(actor domain.Actor, l *domain.Listing) error {
	if !actor.Owns(l) {
		return domain.NewUnauthorized("not the owner of this product")
	}
	if l.Status != domain.StatusValidated {
		return domain.NewConflict("only validated products can be marked as sold")
	}
	return nil
}

// CanDelete allows the owner or an admin to delete a listing
func CanDelete(actor domain.Actor, l *domain.Listing) error {
	if !actor.Owns(l) && !actor.IsAdmin() {
		return domain.NewUnauthorized("not allowed to delete this product")
	}
	if !Transition(l.Status, domain.StatusDeleted) {
		return domain.NewConflict("product already deleted")
	}
	return nil
}

// CanSetVip allows the owner or an admin to promote a listing
func CanSetVip(actor domain.Actor, l *domain.Listing) error {
	if !actor.Owns(l) && !actor.IsAdmin() {
		return domain.NewUnauthorized("not allowed to promote this product")
	}
	if l.Status == domain.StatusDeleted {
		return domain.NewConflict("product deleted")
	}
	return nil
}

// CanViewHistory allows the owner, moderators and admins to read the audit trail
func CanViewHistory(actor domain.Actor, l *domain.Listing) error {
	if actor.Owns(l) || actor.HasRole(domain.RoleModerator, domain.RoleAdmin) {
		return nil
	}
	return domain.NewUnauthorized("not allowed to view product history")
}

// CanListUsers reserves the account directory to admins
func CanListUsers(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return domain.NewUnauthorized("only admins can list users")
	}
	return nil
}
