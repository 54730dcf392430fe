package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"lms-dashboard-go/internal/logger"
)

// GCSStore keeps every logical bucket as a prefix inside one GCS bucket.
type GCSStore struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	log           *logger.Logger
}

var _ ObjectStore = (*GCSStore)(nil)

func NewGCSStore(ctx context.Context, bucket, credentialsFile, publicBaseURL string, log *logger.Logger) (*GCSStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "GCSStore")
	serviceLog.Info("Object storage initialized", "bucket", bucket, "public_base_url", publicBaseURL)
	return &GCSStore{client: client, bucket: bucket, publicBaseURL: publicBaseURL, log: serviceLog}, nil
}

func (s *GCSStore) key(bucket, objectPath string) (string, error) {
	cleaned, err := cleanPath(bucket, objectPath)
	if err != nil {
		return "", err
	}
	return bucket + "/" + cleaned, nil
}

func (s *GCSStore) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, contentType string) (Object, error) {
	key, err := s.key(bucket, objectPath)
	if err != nil {
		return Object{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(w, hasher), body)
	if err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if size == 0 {
		// Closing would create a zero-byte object; cancel the upload instead.
		cancel()
		_ = w.Close()
		return Object{}, ErrEmptyObject
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return Object{
		Bucket:      bucket,
		Path:        objectPath,
		Size:        size,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		ContentType: contentType,
	}, nil
}

func (s *GCSStore) PublicURL(bucket, objectPath string) string {
	key := bucket + "/" + objectPath
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return "https://storage.googleapis.com/" + s.bucket + "/" + (&url.URL{Path: key}).EscapedPath()
}

func (s *GCSStore) Remove(ctx context.Context, bucket, objectPath string) error {
	key, err := s.key(bucket, objectPath)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
