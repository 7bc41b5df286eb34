package handler

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/auth"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// OCRHandler serves text recognition of base64 images.
type OCRHandler struct {
	ocrService OCRService
	logger     zerolog.Logger
}

// NewOCRHandler creates a new OCRHandler.
func NewOCRHandler(ocrService OCRService, logger zerolog.Logger) *OCRHandler {
	return &OCRHandler{
		ocrService: ocrService,
		logger:     logger.With().Str("handler", "ocr").Logger(),
	}
}

type ocrRequest struct {
	// Image is base64, optionally as a data URL.
	Image       string `json:"image"`
	ContainerID string `json:"container_id"`
	Filename    string `json:"filename"`
	Visualize   bool   `json:"visualize"`
	Save        bool   `json:"save"`
}

type ocrResponse struct {
	*service.ProcessOutput

	// Visualization is the annotated JPEG in base64.
	Visualization string `json:"visualization,omitempty"`
}

// RegisterRoutes registers OCR routes.
func (h *OCRHandler) RegisterRoutes(r chi.Router) {
	r.Post("/ocr/process", h.handleProcess)
}

func (h *OCRHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req ocrRequest
	if err := decodeJSONLimit(w, r, &req, maxImageBody); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	image, err := decodeImage(req.Image)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.ocrService.Process(r.Context(), service.ProcessInput{
		Caller:      caller,
		ContainerID: req.ContainerID,
		Image:       image,
		Filename:    req.Filename,
		Visualize:   req.Visualize,
		Save:        req.Save,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := ocrResponse{ProcessOutput: out}
	if len(out.Visualization) > 0 {
		resp.Visualization = base64.StdEncoding.EncodeToString(out.Visualization)
	}
	writeData(w, http.StatusOK, resp)
}

// maxImageBody bounds OCR request bodies.
const maxImageBody = 32 << 20

// decodeImage accepts plain base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		return nil, domain.ErrEmptyImage
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.Validationf("image is not valid base64")
	}
	return data, nil
}
