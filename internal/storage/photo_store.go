// Package storage keeps listing photo bytes in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fotoljay/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// PhotoObject is an uploaded image ready to be stored
type PhotoObject struct {
	ListingID   uuid.UUID
	Filename    string
	ContentType string
	Data        []byte
}

// StoredPhoto locates a stored object
type StoredPhoto struct {
	Key string
	URL string
}

// PhotoStore persists photo bytes and returns a public URL
type PhotoStore interface {
	Put(ctx context.Context, obj PhotoObject) (StoredPhoto, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds the storage key of a photo, keeping the original extension
func ObjectKey(listingID uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("listings/%s/%s%s", listingID, uuid.NewString(), ext)
}

type minioPhotoStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *zap.Logger
}

// NewMinioPhotoStore connects to MinIO and ensures the bucket exists
func NewMinioPhotoStore(cfg config.StorageConfig, logger *zap.Logger) (PhotoStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("Created photo bucket", zap.String("bucket", cfg.Bucket))
	}

	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = client.EndpointURL().String() + "/" + cfg.Bucket
	}

	return &minioPhotoStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
		logger:    logger,
	}, nil
}

func (s *minioPhotoStore) Put(ctx context.Context, obj PhotoObject) (StoredPhoto, error) {
	key := ObjectKey(obj.ListingID, obj.Filename)

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(obj.Data), int64(len(obj.Data)), minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		UserMetadata: map[string]string{"original-filename": obj.Filename},
	})
	if err != nil {
		return StoredPhoto{}, fmt.Errorf("failed to upload photo %s: %w", key, err)
	}

	s.logger.Debug("Photo uploaded",
		zap.String("bucket", info.Bucket),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size),
	)

	return StoredPhoto{Key: key, URL: s.publicURL + "/" + key}, nil
}

func (s *minioPhotoStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete photo %s: %w", key, err)
	}
	return nil
}

// MemoryPhotoStore keeps objects in process memory. Used when no object
// storage endpoint is configured and in tests.
type MemoryPhotoStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	// FailDeletes makes Delete return an error, simulating an unreachable backend.
	FailDeletes bool
}

func NewMemoryPhotoStore(baseURL string) *MemoryPhotoStore {
	return &MemoryPhotoStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

func (s *MemoryPhotoStore) Put(ctx context.Context, obj PhotoObject) (StoredPhoto, error) {
	key := ObjectKey(obj.ListingID, obj.Filename)

	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	s.objects[key] = data
	return StoredPhoto{Key: key, URL: s.baseURL + "/" + key}, nil
}

func (s *MemoryPhotoStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDeletes {
		return fmt.Errorf("failed to delete photo %s: backend unavailable", key)
	}
	delete(s.objects, key)
	return nil
}

// Has reports whether key is stored
func (s *MemoryPhotoStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Len returns the number of stored objects
func (s *MemoryPhotoStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
