package service

import (
	"bytes"
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/ocr"
	"github.com/prn-tf/owl-middleware/internal/repository"
	"github.com/prn-tf/owl-middleware/internal/storage"
	"github.com/prn-tf/owl-middleware/internal/transform"
)

// DefaultOCRPreviewLength is the inline preview size in characters.
const DefaultOCRPreviewLength = 4000

// OCRService recognises text in images and optionally saves it as a file.
type OCRService struct {
	recognizer    Recognizer
	files         *FileService
	containerRepo repository.ContainerRepository
	artifacts     storage.Backend
	previewLength int
	now           func() time.Time
	logger        zerolog.Logger
}

// NewOCRService creates a new OCRService. recognizer may be nil when OCR is
// not configured; artifacts may be nil when visualizations are not kept.
func NewOCRService(
	recognizer Recognizer,
	files *FileService,
	containerRepo repository.ContainerRepository,
	artifacts storage.Backend,
	previewLength int,
	logger zerolog.Logger,
) *OCRService {
	if previewLength <= 0 {
		previewLength = DefaultOCRPreviewLength
	}
	return &OCRService{
		recognizer:    recognizer,
		files:         files,
		containerRepo: containerRepo,
		artifacts:     artifacts,
		previewLength: previewLength,
		now:           time.Now,
		logger:        logger.With().Str("service", "ocr").Logger(),
	}
}

// ProcessInput is one image to recognise.
type ProcessInput struct {
	Caller *domain.User

	// ContainerID is required when Save is set.
	ContainerID string
	Image       []byte
	Filename    string

	// Visualize asks for bounding boxes drawn over the image.
	Visualize bool

	// Save stores the recognised text in the container.
	Save bool
}

// ProcessOutput is the recognised text and what was done with it.
type ProcessOutput struct {
	Text            string  `json:"text"`
	Preview         string  `json:"preview"`
	Truncated       bool    `json:"truncated"`
	CharactersCount int     `json:"characters_count"`
	BoxesCount      int     `json:"boxes_count"`
	Confidence      float64 `json:"confidence"`

	// Visualization is the annotated JPEG, nil when not requested or no boxes.
	Visualization []byte `json:"-"`

	FileID      string `json:"file_id,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	ArtifactKey string `json:"artifact_key,omitempty"`
}

// Process runs OCR over input.Image.
func (s *OCRService) Process(ctx context.Context, input ProcessInput) (*ProcessOutput, error) {
	if input.Caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if len(input.Image) == 0 {
		return nil, domain.ErrEmptyImage
	}
	if s.recognizer == nil {
		return nil, ErrOCRUnavailable
	}

	// Check the target before paying for recognition.
	if input.Save {
		if _, err := loadContainer(ctx, s.containerRepo, s.logger, input.Caller, input.ContainerID); err != nil {
			return nil, err
		}
	}

	mode := ocr.ModePlain
	if input.Visualize {
		mode = ocr.ModeGrounding
	}

	recognized, err := s.recognizer.Recognize(ctx, input.Image, mode)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", input.Filename).Msg("ocr failed")
		return nil, err
	}

	out := &ProcessOutput{Confidence: recognized.Confidence}

	if input.Visualize {
		boxes := transform.ParseBoundingBoxes(recognized.Text)
		out.BoxesCount = len(boxes)
		if len(boxes) > 0 {
			out.Visualization, out.ArtifactKey = s.visualize(ctx, input.Image, boxes)
		}
	}

	out.Text = transform.CleanHTMLTags(recognized.Text)
	if strings.TrimSpace(out.Text) == "" {
		return nil, ocr.ErrNoText
	}
	out.CharactersCount = utf8.RuneCountInString(out.Text)
	out.Preview, out.Truncated = transform.Preview(out.Text, s.previewLength)

	if input.Save {
		name := "ocr_result_" + s.now().Format("20060102_150405")
		uploaded, err := s.files.Upload(ctx, UploadInput{
			Caller:      input.Caller,
			ContainerID: input.ContainerID,
			Name:        name,
			MimeType:    "text/plain",
			Content:     []byte(out.Text),
		})
		if err != nil {
			return nil, err
		}
		out.FileID = uploaded.File.ID
		out.FileName = name
	}

	s.logger.Info().
		Str("filename", input.Filename).
		Int("characters", out.CharactersCount).
		Int("boxes", out.BoxesCount).
		Bool("saved", out.FileID != "").
		Msg("ocr completed")

	return out, nil
}

// visualize draws the boxes and keeps the result in the artifact store.
// Failures only cost the visualization.
func (s *OCRService) visualize(ctx context.Context, image []byte, boxes []transform.BoundingBox) ([]byte, string) {
	annotated, err := transform.DrawBoundingBoxes(image, boxes)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to draw bounding boxes")
		return nil, ""
	}
	if s.artifacts == nil {
		return annotated, ""
	}

	key, err := s.artifacts.Store(ctx, bytes.NewReader(annotated), int64(len(annotated)), "image/jpeg")
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to store visualization")
		return annotated, ""
	}
	return annotated, key
}
