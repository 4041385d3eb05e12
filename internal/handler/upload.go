package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/dukerupert/maycafe/internal/blob"
)

// formFiles opened from a multipart request. Close releases every file.
type formFiles struct {
	open []multipart.File
}

func (f *formFiles) Close() {
	for _, file := range f.open {
		file.Close()
	}
	f.open = nil
}

// list returns uploads under any of the given field names, skipping the
// empty parts browsers send for untouched inputs.
func (f *formFiles) list(r *http.Request, fields ...string) ([]blob.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var ups []blob.Upload
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			if fh.Filename == "" {
				continue
			}
			file, err := fh.Open()
			if err != nil {
				return nil, err
			}
			f.open = append(f.open, file)
			ups = append(ups, blob.Upload{Filename: fh.Filename, Body: file})
		}
	}
	return ups, nil
}

func (f *formFiles) one(r *http.Request, field string) (*blob.Upload, error) {
	ups, err := f.list(r, field)
	if err != nil || len(ups) == 0 {
		return nil, err
	}
	return &ups[0], nil
}

// parseMultipart reads a form of at most maxUploadBytes. It writes the error
// response itself and reports false on failure.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMsg(w, http.StatusRequestEntityTooLarge, "upload too large")
			return false
		}
		writeErrorMsg(w, http.StatusBadRequest, "invalid multipart form")
		return false
	}
	return true
}

// ServeUploads streams stored blobs for GET /uploads/{name}. It works with
// either blob backend.
func ServeUploads(blobs blob.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		rc, err := blobs.Open(r.Context(), blob.Prefix+name)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidPath) {
				http.NotFound(w, r)
				return
			}
			logger.Error("open upload", "name", name, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		if ct := mime.TypeByExtension("." + blob.Ext(name)); ct != "" {
			w.Header().Set("Content-Type", ct)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		io.Copy(w, rc)
	}
}
