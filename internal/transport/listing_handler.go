package transport

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"fotoljay/internal/domain"
	"fotoljay/internal/middleware"
	"fotoljay/internal/repository"
	"fotoljay/internal/service"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	photoField            = "photo"
	DefaultMaxUploadBytes = 5 << 20
)

// DecisionRequest is the moderator decision payload
type DecisionRequest struct {
	Status string  `json:"status" validate:"required,decision"`
	Reason *string `json:"reason" validate:"omitempty,max=1000"`
}

// VipRequest sets the promotion length; zero means the default duration
type VipRequest struct {
	DurationDays int `json:"durationDays" validate:"gte=0"`
}

// UpdateListingRequest is the JSON form of a listing edit
type UpdateListingRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,min=1"`
	PriceCfa    *int    `json:"priceCfa" validate:"omitempty,gte=0"`
}

// ListingPage is the list response
type ListingPage struct {
	Products []*domain.Listing `json:"products"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ListingHandler handles HTTP requests for the listing lifecycle
type ListingHandler struct {
	listingService service.ListingService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewListingHandler creates a new ListingHandler
func NewListingHandler(listingService service.ListingService, maxUploadBytes int64, logger *zap.Logger) *ListingHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ListingHandler{
		listingService: listingService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers all product routes
func (h *ListingHandler) RegisterRoutes(r chi.Router, authMiddleware, optionalAuth func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.With(optionalAuth).Get("/{id}", h.Get)
		r.Get("/{id}/photos", h.Photos)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)

			r.With(middleware.RequireRole(h.logger, domain.RoleSeller, domain.RoleAdmin)).Post("/", h.Create)
			r.With(middleware.RequireRole(h.logger, domain.RoleSeller)).Put("/{id}", h.Update)
			r.With(middleware.RequireRole(h.logger, domain.RoleSeller)).Patch("/{id}/republish", h.Republish)
			r.With(middleware.RequireRole(h.logger, domain.RoleModerator, domain.RoleAdmin)).Patch("/{id}/status", h.Decide)
			r.With(middleware.RequireRole(h.logger, domain.RoleSeller, domain.RoleAdmin)).Patch("/{id}/vip", h.SetVip)
			r.With(middleware.RequireRole(h.logger, domain.RoleSeller)).Patch("/{id}/sell", h.MarkSold)
			r.With(middleware.RequireRole(h.logger, domain.RoleSeller, domain.RoleAdmin)).Delete("/{id}", h.Delete)
			r.With(middleware.RequireRole(h.logger, domain.RoleSeller)).Post("/{id}/photos", h.AddPhoto)
			r.Get("/{id}/history", h.History)
		})
	})

	r.Route("/api/photos", func(r chi.Router) {
		r.With(optionalAuth).Get("/{id}", h.GetPhoto)
		r.With(authMiddleware, middleware.RequireRole(h.logger, domain.RoleSeller, domain.RoleAdmin)).Delete("/{id}", h.DeletePhoto)
	})
}

func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "authentication required")
	}
	return actor, ok
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// readUpload reads one multipart file and checks its content is an image
func readUpload(fh *multipart.FileHeader, capturedWithCamera bool) (service.PhotoUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return service.PhotoUpload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.PhotoUpload{}, err
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return service.PhotoUpload{}, domain.NewValidation("only image files are allowed")
	}

	return service.PhotoUpload{
		Filename:           fh.Filename,
		ContentType:        mtype.String(),
		Data:               data,
		CapturedWithCamera: capturedWithCamera,
	}, nil
}

// parseMultipart limits the body size and returns the uploaded photos
func (h *ListingHandler) parseMultipart(w http.ResponseWriter, r *http.Request) ([]service.PhotoUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewValidation("file too large")
		}
		return nil, domain.NewValidation("invalid multipart form")
	}

	camera, _ := strconv.ParseBool(r.FormValue("capturedWithCamera"))
	files := r.MultipartForm.File[photoField]
	uploads := make([]service.PhotoUpload, 0, len(files))
	for _, fh := range files {
		upload, err := readUpload(fh, camera)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func parsePrice(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	price, err := strconv.Atoi(raw)
	if err != nil {
		return nil, domain.NewValidation("price must be an integer amount")
	}
	return &price, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// Create handles a multipart listing submission
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !isMultipart(r) {
		middleware.RespondWithError(w, http.StatusBadRequest, "multipart form with a photo is required")
		return
	}

	uploads, err := h.parseMultipart(w, r)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	price, err := parsePrice(r.FormValue("priceCfa"))
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	listing, err := h.listingService.Create(r.Context(), actor, service.CreateListingInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		PriceCfa:    price,
		Photos:      uploads,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, listing)
}

// ListQuery holds the catalogue query string
type ListQuery struct {
	Status   string `json:"status" validate:"omitempty,listing_status"`
	IsVip    string `json:"isVip" validate:"omitempty,boolean"`
	SellerID string `json:"sellerId" validate:"omitempty,uuid"`
}

// List handles the public catalogue query
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := ListQuery{Status: q.Get("status"), IsVip: q.Get("isVip"), SellerID: q.Get("sellerId")}
	if err := middleware.ValidateRequest(&query); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	filter := repository.ListingFilter{}
	if query.Status != "" {
		status := domain.ListingStatus(query.Status)
		filter.Status = &status
	}
	if query.IsVip != "" {
		isVip, _ := strconv.ParseBool(query.IsVip)
		filter.IsVip = &isVip
	}
	if query.SellerID != "" {
		sellerID := uuid.MustParse(query.SellerID)
		filter.SellerID = &sellerID
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter = filter.Normalize()

	listings, total, err := h.listingService.List(r.Context(), filter)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ListingPage{
		Products: listings,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// Get returns one listing and counts the view
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var viewerID *uuid.UUID
	if actor, ok := middleware.GetActor(r.Context()); ok {
		viewerID = &actor.ID
	}

	listing, err := h.listingService.Get(r.Context(), id, viewerID)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listing)
}

// Update accepts JSON for field edits or multipart to also replace the photos
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var in service.UpdateListingInput
	if isMultipart(r) {
		uploads, err := h.parseMultipart(w, r)
		if err != nil {
			middleware.RespondWithDomainError(w, err, h.logger)
			return
		}
		if len(uploads) > 0 {
			in.Photos = uploads
		}
		if v, present := r.MultipartForm.Value["title"]; present && len(v) > 0 {
			in.Title = &v[0]
		}
		if v, present := r.MultipartForm.Value["description"]; present && len(v) > 0 {
			in.Description = &v[0]
		}
		if in.PriceCfa, err = parsePrice(r.FormValue("priceCfa")); err != nil {
			middleware.RespondWithDomainError(w, err, h.logger)
			return
		}
	} else {
		var req UpdateListingRequest
		if err := middleware.DecodeAndValidate(r, &req); err != nil {
			middleware.RespondWithDecodeError(w, err)
			return
		}
		in.Title, in.Description, in.PriceCfa = req.Title, req.Description, req.PriceCfa
	}

	listing, err := h.listingService.Update(r.Context(), id, actor, in)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listing)
}

// Republish restarts the publication window
func (h *ListingHandler) Republish(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	listing, err := h.listingService.Republish(r.Context(), id, actor)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listing)
}

// Decide applies a moderation decision
func (h *ListingHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	listing, err := h.listingService.Decide(r.Context(), id, actor, domain.ListingStatus(req.Status), req.Reason)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listing)
}

// SetVip promotes a listing. An empty body uses the default duration.
func (h *ListingHandler) SetVip(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req VipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateRequest(&req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	listing, err := h.listingService.SetVip(r.Context(), id, actor, req.DurationDays)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listing)
}

// MarkSold closes a validated listing
func (h *ListingHandler) MarkSold(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	listing, err := h.listingService.MarkSold(r.Context(), id, actor)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listing)
}

// Delete removes a listing and everything attached to it
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.listingService.Delete(r.Context(), id, actor); err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// AddPhoto attaches one uploaded photo
func (h *ListingHandler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	uploads, err := h.parseMultipart(w, r)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	if len(uploads) != 1 {
		middleware.RespondWithError(w, http.StatusBadRequest, "exactly one photo is required")
		return
	}

	photo, err := h.listingService.AddPhoto(r.Context(), id, actor, uploads[0])
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, photo)
}

// History returns the audit trail
func (h *ListingHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	entries, err := h.listingService.History(r.Context(), id, actor)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, entries)
}

// Photos lists the photos of a listing with their view counts
func (h *ListingHandler) Photos(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	photos, err := h.listingService.Photos(r.Context(), id)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, photos)
}

// GetPhoto returns one photo and counts the view
func (h *ListingHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var viewerID *uuid.UUID
	if actor, ok := middleware.GetActor(r.Context()); ok {
		viewerID = &actor.ID
	}

	photo, err := h.listingService.GetPhoto(r.Context(), id, viewerID)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, photo)
}

// DeletePhoto removes one photo of a listing
func (h *ListingHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.listingService.DeletePhoto(r.Context(), id, actor); err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "photo deleted"})
}
