// Package storage keeps uploaded file bytes. Objects are addressed by a logical
// bucket and a slash-separated path inside it.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

const BucketUploads = "uploads"

var (
	ErrEmptyObject = errors.New("storage: empty object")
	ErrInvalidPath = errors.New("storage: invalid object path")
	ErrNotFound    = errors.New("storage: object not found")
)

type Object struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"content_type"`
}

type ObjectStore interface {
	Upload(ctx context.Context, bucket, objectPath string, body io.Reader, contentType string) (Object, error)
	PublicURL(bucket, objectPath string) string
	Remove(ctx context.Context, bucket, objectPath string) error
}

// cleanPath rejects absolute paths and parent references.
func cleanPath(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\.`) {
		return "", ErrInvalidPath
	}
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, `\`) {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(objectPath)
	if cleaned != objectPath || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidPath
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return "", ErrInvalidPath
		}
	}
	return cleaned, nil
}
