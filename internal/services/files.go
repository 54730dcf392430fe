package services

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/storage"
)

type FileURL struct {
	URL string `json:"url"`
}

type FileService struct {
	objects storage.ObjectStore
	log     *logger.Logger
}

func NewFileService(objects storage.ObjectStore, log *logger.Logger) *FileService {
	if log == nil {
		log = logger.NewNop()
	}
	return &FileService{objects: objects, log: log.With("service", "FileService")}
}

// Upload stores body under "<user_id>/<uuid><ext>" in the uploads bucket.
// Callers upload for themselves; admins may upload for anyone.
func (s *FileService) Upload(ctx context.Context, v Viewer, userID, fileName, contentType string, body io.Reader) (models.FileMeta, error) {
	if userID == "" {
		userID = v.ID
	}
	if userID != v.ID && !v.IsAdmin() {
		return models.FileMeta{}, ErrForbidden("Not allowed")
	}
	fileName = path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if fileName == "" || fileName == "." || fileName == "/" {
		return models.FileMeta{}, ErrBadRequest("file name is required")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	objectPath := userID + "/" + uuid.NewString() + ext
	obj, err := s.objects.Upload(ctx, storage.BucketUploads, objectPath, body, contentType)
	switch {
	case errors.Is(err, storage.ErrEmptyObject):
		return models.FileMeta{}, ErrBadRequest("File is empty")
	case errors.Is(err, storage.ErrInvalidPath):
		return models.FileMeta{}, ErrBadRequest("Invalid file name")
	case err != nil:
		s.log.Error("upload failed", "user_id", userID, "error", err)
		return models.FileMeta{}, err
	}
	return models.FileMeta{
		FileName: fileName,
		FilePath: obj.Path,
		FileType: contentType,
		FileSize: obj.Size,
	}, nil
}

func (s *FileService) PublicURL(objectName string) (FileURL, error) {
	objectName = strings.TrimPrefix(strings.TrimSpace(objectName), storage.BucketUploads+"/")
	if objectName == "" {
		return FileURL{}, ErrBadRequest("objectName is required")
	}
	if path.Clean(objectName) != objectName || strings.HasPrefix(objectName, "/") || strings.HasPrefix(objectName, "..") {
		return FileURL{}, ErrBadRequest("Invalid object name")
	}
	return FileURL{URL: s.objects.PublicURL(storage.BucketUploads, objectName)}, nil
}

// ownsObject reports whether objectName lies under v's upload prefix. Admins
// may reference any object.
func ownsObject(v Viewer, objectName string) bool {
	if v.IsAdmin() {
		return true
	}
	return strings.HasPrefix(path.Clean(objectName), v.ID+"/")
}
