package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/auth"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// UploadField is the multipart form field holding the uploaded file.
const UploadField = "file"

// multipartOverhead is the room left for form boundaries and headers.
const multipartOverhead = 1 << 20

// FileHandler serves file upload, read, listing and deletion.
type FileHandler struct {
	fileService FileService
	maxFileSize int64
	logger      zerolog.Logger
}

// NewFileHandler creates a new FileHandler. maxFileSize bounds the request
// body; the service applies the exact limit.
func NewFileHandler(fileService FileService, maxFileSize int64, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		maxFileSize: maxFileSize,
		logger:      logger.With().Str("handler", "file").Logger(),
	}
}

// RegisterRoutes registers file routes.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/containers/{id}/files", h.handleList)
	r.Post("/containers/{id}/files", h.handleUpload)
	r.Get("/containers/{id}/files/{fid}/content", h.handleRead)
	r.Delete("/containers/{id}/files/{fid}", h.handleDelete)
}

func (h *FileHandler) handleList(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	files, err := h.fileService.List(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeList(w, files, len(files))
}

func (h *FileHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if h.maxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	}

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, domain.NewDomainError(domain.ErrFileTooLarge,
				fmt.Sprintf("request exceeds the %d byte limit", h.maxFileSize), ""))
			return
		}
		writeError(w, r, h.logger, domain.Validationf("multipart field %q is required", UploadField))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, h.logger, domain.Validationf("failed to read uploaded file: %v", err))
		return
	}

	out, err := h.fileService.Upload(r.Context(), service.UploadInput{
		Caller:      caller,
		ContainerID: chi.URLParam(r, "id"),
		Name:        header.Filename,
		MimeType:    detectMimeType(header.Header.Get("Content-Type"), header.Filename, data),
		Content:     data,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusCreated, map[string]any{
		"success":        true,
		"file":           out.File,
		"container_name": out.ContainerName,
	})
}

func (h *FileHandler) handleRead(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	content, err := h.fileService.Read(r.Context(), caller, chi.URLParam(r, "id"), chi.URLParam(r, "fid"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, content)
}

func (h *FileHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.fileService.Delete(r.Context(), caller, chi.URLParam(r, "id"), chi.URLParam(r, "fid")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, map[string]bool{"success": true})
}

// detectMimeType returns the media type without parameters. Generic or
// missing types fall back to the extension, then to content sniffing.
func detectMimeType(declared, filename string, data []byte) string {
	candidates := []string{declared}
	if declared == "" || declared == "application/octet-stream" {
		candidates = []string{mime.TypeByExtension(filepath.Ext(filename)), http.DetectContentType(data)}
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if mediaType, _, err := mime.ParseMediaType(c); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}
