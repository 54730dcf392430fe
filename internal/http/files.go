package httpapi

import (
	"errors"
	"net/http"
)

const multipartMemory = 8 << 20

// Upload accepts a multipart "file" field and stores it for ?user_id=, which
// defaults to the caller.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	if s.Config.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.Config.UploadMaxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta, err := s.Files.Upload(r.Context(), CurrentViewer(r), r.URL.Query().Get("user_id"), header.Filename, contentType, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, meta)
}

func (s *Server) FileURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.Files.PublicURL(r.URL.Query().Get("objectName"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, url)
}
