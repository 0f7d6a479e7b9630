package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fotoljay/internal/domain"
	"fotoljay/internal/events"
	"fotoljay/internal/middleware"
	"fotoljay/internal/repository"
	"fotoljay/internal/service"
	"fotoljay/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newTestRouter(register func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.ErrorHandlingMiddleware(zap.NewNop()))
	register(r)
	return r
}

func tokenFor(t *testing.T, actor domain.Actor) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": actor.ID.String(),
		"role":    string(actor.Role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type listingAPI struct {
	router        http.Handler
	notifications service.NotificationService
	seller        domain.Actor
	moderator     domain.Actor
	admin         domain.Actor
	stranger      domain.Actor
}

func newListingAPI(t *testing.T) *listingAPI {
	t.Helper()
	logger := zap.NewNop()
	notifications := service.NewNotificationService(repository.NewMemoryNotificationRepository(), nil, logger)
	listings := service.NewListingService(
		repository.NewMemoryListingRepository(),
		notifications,
		storage.NewMemoryPhotoStore("http://cdn.test"),
		storage.NewMemoryOrphanQueue(),
		events.NewRecorder(),
		nil,
		logger,
		service.ListingSettings{},
	)

	handler := NewListingHandler(listings, 1<<20, logger)
	notificationHandler := NewNotificationHandler(notifications, logger)
	router := newTestRouter(func(r chi.Router) {
		auth := middleware.AuthMiddleware(testSecret, logger)
		handler.RegisterRoutes(r, auth, middleware.OptionalAuth(testSecret, logger))
		notificationHandler.RegisterRoutes(r, auth)
	})

	return &listingAPI{
		router:        router,
		notifications: notifications,
		seller:        domain.Actor{ID: uuid.New(), Role: domain.RoleSeller},
		moderator:     domain.Actor{ID: uuid.New(), Role: domain.RoleModerator},
		admin:         domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin},
		stranger:      domain.Actor{ID: uuid.New(), Role: domain.RoleSeller},
	}
}

func (a *listingAPI) do(t *testing.T, actor *domain.Actor, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *actor))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *listingAPI) doJSON(t *testing.T, actor *domain.Actor, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return a.do(t, actor, method, path, body, "application/json")
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(photoField, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (a *listingAPI) create(t *testing.T) domain.Listing {
	t.Helper()
	body, ct := multipartBody(t,
		map[string]string{"title": "Vélo de ville", "description": "Bon état", "priceCfa": "15000"},
		map[string][]byte{"velo.png": pngHeader},
	)
	w := a.do(t, &a.seller, http.MethodPost, "/api/products", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var listing domain.Listing
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listing))
	return listing
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error.Message
}

func TestListingHandler_CreateFromMultipart(t *testing.T) {
	api := newListingAPI(t)

	listing := api.create(t)
	assert.Equal(t, domain.StatusPendingReview, listing.Status)
	assert.Equal(t, api.seller.ID, listing.SellerID)
	require.NotNil(t, listing.PriceCfa)
	assert.Equal(t, 15000, *listing.PriceCfa)
	require.Len(t, listing.Photos, 1)
	assert.True(t, strings.HasPrefix(listing.Photos[0].URL, "http://cdn.test/"))
	require.NotNil(t, listing.Photos[0].MimeType)
	assert.Equal(t, "image/png", *listing.Photos[0].MimeType)
}

func TestListingHandler_CreateRejections(t *testing.T) {
	api := newListingAPI(t)

	t.Run("non image upload", func(t *testing.T) {
		body, ct := multipartBody(t,
			map[string]string{"title": "Livre", "description": "Roman"},
			map[string][]byte{"notes.txt": []byte("just some text")},
		)
		w := api.do(t, &api.seller, http.MethodPost, "/api/products", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "only image files are allowed", errorMessage(t, w))
	})

	t.Run("json body", func(t *testing.T) {
		w := api.doJSON(t, &api.seller, http.MethodPost, "/api/products", map[string]string{"title": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing photo", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"title": "Livre", "description": "Roman"}, nil)
		w := api.do(t, &api.seller, http.MethodPost, "/api/products", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("moderator cannot create", func(t *testing.T) {
		body, ct := multipartBody(t,
			map[string]string{"title": "Livre", "description": "Roman"},
			map[string][]byte{"livre.png": pngHeader},
		)
		w := api.do(t, &api.moderator, http.MethodPost, "/api/products", body, ct)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"title": "Livre"}, nil)
		w := api.do(t, nil, http.MethodPost, "/api/products", body, ct)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestListingHandler_ModerationFlow(t *testing.T) {
	api := newListingAPI(t)
	listing := api.create(t)
	path := "/api/products/" + listing.ID.String()

	// sellers cannot moderate
	w := api.doJSON(t, &api.seller, http.MethodPatch, path+"/status", DecisionRequest{Status: "VALIDE"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.doJSON(t, &api.moderator, http.MethodPatch, path+"/status", DecisionRequest{Status: "VENDU"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.doJSON(t, &api.moderator, http.MethodPatch, path+"/status", DecisionRequest{Status: "VALIDE"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var decided domain.Listing
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decided))
	assert.Equal(t, domain.StatusValidated, decided.Status)

	// a second decision loses
	w = api.doJSON(t, &api.admin, http.MethodPatch, path+"/status", DecisionRequest{Status: "REJETE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.doJSON(t, &api.seller, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var inbox []domain.Notification
	require.NoError(t, json.NewDecoder(w.Body).Decode(&inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, domain.NotificationModerationDecision, inbox[0].Type)
	assert.Equal(t, "Produit approuvé", inbox[0].Title)

	w = api.doJSON(t, &api.stranger, http.MethodPatch, path+"/sell", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.doJSON(t, &api.seller, http.MethodPatch, path+"/sell", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sold domain.Listing
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sold))
	assert.Equal(t, domain.StatusSold, sold.Status)

	w = api.doJSON(t, &api.seller, http.MethodGet, path+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []domain.HistoryEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&history))
	assert.Len(t, history, 3)
}

func TestListingHandler_GetAndList(t *testing.T) {
	api := newListingAPI(t)
	listing := api.create(t)

	// the response reflects views recorded before this request
	for _, want := range []int{0, 1} {
		w := api.doJSON(t, nil, http.MethodGet, "/api/products/"+listing.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got domain.Listing
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, want, got.Views)
	}

	w := api.doJSON(t, nil, http.MethodGet, "/api/products/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.doJSON(t, nil, http.MethodGet, "/api/products/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.doJSON(t, nil, http.MethodGet, "/api/products?status=EN_ATTENTE&sellerId="+api.seller.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page ListingPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Products, 1)
	assert.Equal(t, listing.ID, page.Products[0].ID)

	w = api.doJSON(t, nil, http.MethodGet, "/api/products?isVip=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.doJSON(t, nil, http.MethodGet, "/api/products?status=ARCHIVE&sellerId=nope", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "validation failed", resp.Error.Message)
	assert.Len(t, resp.Error.Details["validation_errors"], 2)
}

func TestListingHandler_UpdateJSON(t *testing.T) {
	api := newListingAPI(t)
	listing := api.create(t)
	path := "/api/products/" + listing.ID.String()

	title := "Vélo de course"
	w := api.doJSON(t, &api.seller, http.MethodPut, path, UpdateListingRequest{Title: &title})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated domain.Listing
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, title, updated.Title)
	assert.Len(t, updated.Photos, 1)

	w = api.doJSON(t, &api.stranger, http.MethodPut, path, UpdateListingRequest{Title: &title})
	assert.Equal(t, http.StatusForbidden, w.Code)

	negative := -5
	w = api.doJSON(t, &api.seller, http.MethodPut, path, UpdateListingRequest{PriceCfa: &negative})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListingHandler_AddPhotoAndDelete(t *testing.T) {
	api := newListingAPI(t)
	listing := api.create(t)
	path := "/api/products/" + listing.ID.String()

	body, ct := multipartBody(t, map[string]string{"capturedWithCamera": "true"}, map[string][]byte{"cadre.png": pngHeader})
	w := api.do(t, &api.seller, http.MethodPost, path+"/photos", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var photo domain.Photo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&photo))
	assert.True(t, photo.CapturedWithCamera)

	w = api.doJSON(t, &api.moderator, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.doJSON(t, &api.admin, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.doJSON(t, nil, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListingHandler_SetVip(t *testing.T) {
	api := newListingAPI(t)
	listing := api.create(t)
	path := "/api/products/" + listing.ID.String()

	w := api.doJSON(t, &api.moderator, http.MethodPatch, path+"/status", DecisionRequest{Status: "VALIDE"})
	require.Equal(t, http.StatusOK, w.Code)

	// empty body means the default duration
	w = api.do(t, &api.seller, http.MethodPatch, path+"/vip", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var vip domain.Listing
	require.NoError(t, json.NewDecoder(w.Body).Decode(&vip))
	assert.True(t, vip.IsVip)
	require.NotNil(t, vip.VipUntil)

	w = api.doJSON(t, &api.seller, http.MethodPatch, path+"/vip", VipRequest{DurationDays: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListingHandler_PhotoRoutes(t *testing.T) {
	api := newListingAPI(t)
	listing := api.create(t)
	first := listing.Photos[0]

	body, ct := multipartBody(t, nil, map[string][]byte{"cadre.png": pngHeader})
	w := api.do(t, &api.seller, http.MethodPost, "/api/products/"+listing.ID.String()+"/photos", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var extra domain.Photo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&extra))

	for i := 0; i < 2; i++ {
		w = api.doJSON(t, nil, http.MethodGet, "/api/photos/"+first.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	var detail domain.Photo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&detail))
	assert.Equal(t, listing.ID, detail.ListingID)
	assert.Equal(t, 1, detail.Views)

	w = api.doJSON(t, nil, http.MethodGet, "/api/products/"+listing.ID.String()+"/photos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var photos []domain.Photo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&photos))
	require.Len(t, photos, 2)
	assert.Equal(t, 2, photos[0].Views)
	assert.Zero(t, photos[1].Views)

	photoPath := "/api/photos/" + extra.ID.String()
	assert.Equal(t, http.StatusUnauthorized, api.doJSON(t, nil, http.MethodDelete, photoPath, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.doJSON(t, &api.moderator, http.MethodDelete, photoPath, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.doJSON(t, &api.stranger, http.MethodDelete, photoPath, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.doJSON(t, &api.seller, http.MethodDelete, "/api/photos/nope", nil).Code)

	w = api.doJSON(t, &api.seller, http.MethodDelete, photoPath, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusNotFound, api.doJSON(t, nil, http.MethodGet, photoPath, nil).Code)

	w = api.doJSON(t, &api.seller, http.MethodDelete, "/api/photos/"+first.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "a product must keep at least one photo", errorMessage(t, w))
}
