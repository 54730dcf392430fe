package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// LocalStore writes objects under Root/<bucket>/<path> and serves them from
// BaseURL + "/media/".
type LocalStore struct {
	Root    string
	BaseURL string
}

var _ ObjectStore = LocalStore{}

func NewLocalStore(root, baseURL string) LocalStore {
	return LocalStore{Root: root, BaseURL: baseURL}
}

func (s LocalStore) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, contentType string) (Object, error) {
	cleaned, err := cleanPath(bucket, objectPath)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	target := filepath.Join(s.Root, bucket, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Object{}, err
	}
	file, err := os.Create(target)
	if err != nil {
		return Object{}, err
	}
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hasher), body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return Object{}, err
	}
	if size == 0 {
		_ = os.Remove(target)
		return Object{}, ErrEmptyObject
	}
	return Object{
		Bucket:      bucket,
		Path:        cleaned,
		Size:        size,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		ContentType: contentType,
	}, nil
}

func (s LocalStore) PublicURL(bucket, objectPath string) string {
	return s.BaseURL + "/media/" + bucket + "/" + objectPath
}

func (s LocalStore) Remove(_ context.Context, bucket, objectPath string) error {
	cleaned, err := cleanPath(bucket, objectPath)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.Root, bucket, filepath.FromSlash(cleaned)))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
