package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/metrics"
	"github.com/prn-tf/owl-middleware/internal/pkg/crypto"
	"github.com/prn-tf/owl-middleware/internal/pkg/result"
	"github.com/prn-tf/owl-middleware/internal/repository"
	"github.com/prn-tf/owl-middleware/internal/transform"
)

const (
	// DefaultMaxFileSize is the upload limit when none is configured.
	DefaultMaxFileSize = 20 * domain.MiB

	// DefaultPreviewLength is the read preview size in characters.
	DefaultPreviewLength = 3000

	// StorageErrorNotFound marks listed files the backend no longer holds.
	StorageErrorNotFound = "Not found in storage"

	// listConcurrency bounds remote reads while enriching a listing.
	listConcurrency = 8
)

// FileServiceConfig contains file service settings.
type FileServiceConfig struct {
	MaxFileSize   int64
	PreviewLength int
}

// FileService handles file upload, read, listing and deletion.
// Uploads are two-phase like containers: pending record, remote write,
// activation, with the record deleted again when the remote write fails.
type FileService struct {
	fileRepo      repository.FileRepository
	containerRepo repository.ContainerRepository
	backend       RemoteBackend
	metrics       *metrics.Metrics
	config        FileServiceConfig
	logger        zerolog.Logger
}

// NewFileService creates a new FileService.
func NewFileService(
	fileRepo repository.FileRepository,
	containerRepo repository.ContainerRepository,
	remote RemoteBackend,
	m *metrics.Metrics,
	config FileServiceConfig,
	logger zerolog.Logger,
) *FileService {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if config.PreviewLength <= 0 {
		config.PreviewLength = DefaultPreviewLength
	}
	return &FileService{
		fileRepo:      fileRepo,
		containerRepo: containerRepo,
		backend:       remote,
		metrics:       m,
		config:        config,
		logger:        logger.With().Str("service", "file").Logger(),
	}
}

// =============================================================================
// Input/Output Types
// =============================================================================

// UploadInput contains the data needed to upload a file.
type UploadInput struct {
	Caller      *domain.User
	ContainerID string

	// FileID defaults to a random uuid.
	FileID   string
	Name     string
	MimeType string
	Content  []byte
}

// UploadOutput contains the result of an upload.
type UploadOutput struct {
	File          *domain.File       `json:"file"`
	ContainerName string             `json:"container_name"`
	Encoding      transform.Encoding `json:"encoding"`
}

// Content is the displayable content of a file.
// Text is HTML escaped and truncated to the preview length.
type Content struct {
	FileID    string             `json:"file_id"`
	Name      string             `json:"name"`
	Path      string             `json:"path"`
	Text      string             `json:"content"`
	Encoding  transform.Encoding `json:"encoding"`
	Size      int64              `json:"size"`
	MimeType  string             `json:"mime_type"`
	Truncated bool               `json:"truncated"`
	IsPDF     bool               `json:"is_pdf"`
}

// FileView is a file record merged with the backend's view of it.
type FileView struct {
	*domain.File

	Path         string `json:"path"`
	RemoteSize   *int64 `json:"remote_size,omitempty"`
	StorageError string `json:"storage_error,omitempty"`
}

// Download is the original bytes of a file.
type Download struct {
	Name     string
	MimeType string
	Data     []byte
}

// fileTarget is a resolved file location.
type fileTarget struct {
	meta        *domain.File
	containerID string
	ownerID     int64
	path        string
}

// =============================================================================
// Service Methods
// =============================================================================

// Upload validates limits, stores the record and writes the content remotely.
func (s *FileService) Upload(ctx context.Context, input UploadInput) (*UploadOutput, error) {
	container, err := loadContainer(ctx, s.containerRepo, s.logger, input.Caller, input.ContainerID)
	if err != nil {
		return nil, err
	}

	size := int64(len(input.Content))
	if size == 0 {
		return nil, domain.ErrEmptyFile
	}
	if size > s.config.MaxFileSize {
		return nil, domain.NewDomainError(domain.ErrFileTooLarge,
			fmt.Sprintf("%d bytes exceeds the %d byte limit", size, s.config.MaxFileSize), input.Name)
	}

	used, count, err := s.fileRepo.UsageByContainer(ctx, container.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to compute usage")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if used+size > container.Tariff.StorageQuota {
		remaining := container.Tariff.StorageQuota - used
		if remaining < 0 {
			remaining = 0
		}
		return nil, domain.NewDomainError(domain.ErrStorageQuotaExceeded,
			fmt.Sprintf("%d bytes available", remaining), "")
	}
	if count >= container.Tariff.FileLimit {
		return nil, domain.NewDomainError(domain.ErrFileLimitExceeded,
			fmt.Sprintf("container holds %d of %d files", count, container.Tariff.FileLimit), "")
	}

	fileID := input.FileID
	if fileID == "" {
		fileID = uuid.NewString()
	}
	file := domain.NewFile(fileID, container.ID, container.UserID, input.Name, size, input.MimeType)
	file.ContentHash = crypto.Digest(input.Content)

	// Phase 1: pending record
	if err := s.fileRepo.Create(ctx, file); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.NewDomainError(domain.ErrFileAlreadyExists, "", file.ID)
		}
		if errors.Is(err, domain.ErrContainerNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("file_id", file.ID).Msg("failed to store file record")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	content, encoding, err := transform.ToStorageContent(file.MimeType, input.Content)
	if err != nil {
		s.logger.Info().Err(err).Str("file_id", file.ID).Msg("content transform failed")
		s.rollbackFile(ctx, file)
		return nil, err
	}

	// Phase 2: remote content
	_, err = s.backend.CreateFile(ctx, backend.CreateFileRequest{
		Path:        file.RemotePath(),
		Content:     content,
		UserID:      container.UserID,
		ContainerID: container.ID,
	})
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("file_id", file.ID).
			Str("container_id", container.ID).
			Msg("remote file creation failed, rolling back")
		s.rollbackFile(ctx, file)
		return nil, uploadError(err, size)
	}

	if _, err := s.fileRepo.SetStatus(ctx, file.ID, domain.StatusActive); err != nil {
		s.logger.Error().Err(err).Str("file_id", file.ID).Msg("failed to activate file")
		if delErr := s.backend.DeleteFile(context.WithoutCancel(ctx), file.RemotePath(), container.UserID, container.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("file_id", file.ID).Msg("failed to delete remote file during rollback")
		}
		s.rollbackFile(ctx, file)
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	file.Status = domain.StatusActive
	s.metrics.RecordUpload(size)

	s.logger.Info().
		Str("file_id", file.ID).
		Str("container_id", container.ID).
		Str("name", file.Name).
		Int64("size", size).
		Str("encoding", string(encoding)).
		Msg("file uploaded")

	return &UploadOutput{File: file, ContainerName: container.ID, Encoding: encoding}, nil
}

// uploadError maps a remote write failure onto the error shown to the caller.
func uploadError(err error, size int64) error {
	switch {
	case errors.Is(err, backend.ErrPayloadTooLarge):
		return domain.NewDomainError(domain.ErrFileTooLarge,
			fmt.Sprintf("storage rejected %d bytes", size), "")
	case strings.Contains(strings.ToLower(err.Error()), "mimetype"):
		return ErrStorageCommunication
	}
	return err
}

func (s *FileService) rollbackFile(ctx context.Context, file *domain.File) {
	_, err := s.fileRepo.Delete(context.WithoutCancel(ctx), file.ID)
	s.metrics.RecordRollback("file", err)
	if err != nil {
		s.logger.Error().Err(err).Str("file_id", file.ID).Msg("file rollback failed, record left pending")
		return
	}
	s.logger.Info().Str("file_id", file.ID).Msg("file rolled back")
}

// Read returns a preview of a file's content. fileID may be a raw backend
// path when no record exists, in which case containerID is required.
func (s *FileService) Read(ctx context.Context, caller *domain.User, containerID, fileID string) (*Content, error) {
	target, err := s.resolve(ctx, caller, containerID, fileID)
	if err != nil {
		return nil, err
	}

	remote, err := s.backend.ReadFile(ctx, target.path, target.ownerID, target.containerID)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, domain.NewDomainError(domain.ErrFileNotFound, StorageErrorNotFound, fileID)
		}
		return nil, err
	}

	out := &Content{
		FileID:   fileID,
		Name:     path.Base(target.path),
		Path:     target.path,
		Size:     remote.Size,
		MimeType: domain.DefaultMimeType,
	}
	if out.Size == 0 {
		out.Size = int64(len(remote.Content))
	}
	if target.meta != nil {
		out.Name = target.meta.Name
		out.MimeType = target.meta.MimeType
	}

	text := remote.Content
	switch isPDF, raw := transform.IsPDFContent(remote.Content); {
	case isPDF:
		extracted, err := transform.ExtractPDFText(raw)
		if err != nil {
			return nil, err
		}
		text = extracted
		out.IsPDF = true
		out.Encoding = transform.EncodingPDFText
	case target.meta != nil && target.meta.IsPDF():
		out.IsPDF = true
		out.Encoding = transform.EncodingPDFText
	case (target.meta == nil || !target.meta.IsText()) && transform.LooksLikeBase64(remote.Content):
		out.Encoding = transform.EncodingBase64
	default:
		out.Encoding = transform.EncodingText
	}

	out.Text, out.Truncated = transform.Preview(text, s.config.PreviewLength)
	return out, nil
}

// Download returns the original bytes of a file for document replies.
func (s *FileService) Download(ctx context.Context, caller *domain.User, fileID, containerID string) (*Download, error) {
	target, err := s.resolve(ctx, caller, containerID, fileID)
	if err != nil {
		return nil, err
	}

	remote, err := s.backend.ReadFile(ctx, target.path, target.ownerID, target.containerID)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, domain.NewDomainError(domain.ErrFileNotFound, StorageErrorNotFound, fileID)
		}
		return nil, err
	}

	dl := &Download{Name: path.Base(target.path), MimeType: domain.DefaultMimeType}
	switch {
	case target.meta != nil && target.meta.IsPDF():
		// Stored as extracted text.
		dl.Name = target.meta.Name + ".txt"
		dl.MimeType = "text/plain"
		dl.Data = []byte(remote.Content)
	case target.meta != nil && target.meta.IsText():
		dl.Name = target.meta.Name
		dl.MimeType = target.meta.MimeType
		dl.Data = []byte(remote.Content)
	default:
		if target.meta != nil {
			dl.Name = target.meta.Name
			dl.MimeType = target.meta.MimeType
		}
		dl.Data = transform.DecodeContent(remote.Content)
	}
	return dl, nil
}

// Delete removes the record, then the remote content. The remote delete is
// not compensated; a failure is logged. A non-empty containerID must match the
// file's container.
func (s *FileService) Delete(ctx context.Context, caller *domain.User, containerID, fileID string) error {
	if caller == nil {
		return domain.ErrUnauthenticated
	}

	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		s.logger.Error().Err(err).Str("file_id", fileID).Msg("failed to get file")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if file == nil || (containerID != "" && file.ContainerID != containerID) {
		return domain.NewDomainError(domain.ErrFileNotFound, "", fileID)
	}
	if err := Authorize(caller, file.UserID); err != nil {
		return err
	}

	deleted, err := s.fileRepo.Delete(ctx, file.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("file_id", file.ID).Msg("failed to delete file record")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !deleted {
		return domain.NewDomainError(domain.ErrFileNotFound, "", fileID)
	}

	if err := s.backend.DeleteFile(ctx, file.RemotePath(), file.UserID, file.ContainerID); err != nil && !backend.IsNotFound(err) {
		s.logger.Warn().Err(err).Str("file_id", file.ID).Msg("failed to delete remote file")
	}

	s.logger.Info().
		Str("file_id", file.ID).
		Str("container_id", file.ContainerID).
		Msg("file deleted")

	return nil
}

// List returns a container's files enriched with the backend's view.
func (s *FileService) List(ctx context.Context, caller *domain.User, containerID string) ([]*FileView, error) {
	container, err := loadContainer(ctx, s.containerRepo, s.logger, caller, containerID)
	if err != nil {
		return nil, err
	}

	all, err := s.fileRepo.ListByContainer(ctx, container.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to list files")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	files := activeFiles(all)

	remote := result.Gather(ctx, len(files), listConcurrency, func(ctx context.Context, i int) (*backend.FileResponse, error) {
		return s.backend.ReadFile(ctx, files[i].RemotePath(), container.UserID, container.ID)
	})

	views := make([]*FileView, len(files))
	for i, f := range files {
		view := &FileView{File: f, Path: f.RemotePath()}
		resp, err := remote[i].Unwrap()
		switch {
		case err == nil:
			size := resp.Size
			if size == 0 {
				size = int64(len(resp.Content))
			}
			view.RemoteSize = &size
		case backend.IsNotFound(err):
			view.StorageError = StorageErrorNotFound
		default:
			view.StorageError = domain.Message(err)
		}
		views[i] = view
	}

	return views, nil
}

// ListForUser returns every active file across the caller's containers.
func (s *FileService) ListForUser(ctx context.Context, caller *domain.User) ([]*domain.File, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	all, err := s.fileRepo.ListByUser(ctx, caller.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", caller.ID).Msg("failed to list user files")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return activeFiles(all), nil
}

// resolve finds where a file lives and checks access.
func (s *FileService) resolve(ctx context.Context, caller *domain.User, containerID, fileID string) (*fileTarget, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if fileID == "" {
		return nil, domain.ErrFileNotFound
	}

	meta, err := s.fileRepo.GetByID(ctx, strings.TrimPrefix(fileID, "/"))
	if err != nil {
		s.logger.Error().Err(err).Str("file_id", fileID).Msg("failed to get file")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if meta != nil && (containerID == "" || containerID == meta.ContainerID) {
		if err := Authorize(caller, meta.UserID); err != nil {
			return nil, err
		}
		if !meta.IsActive() {
			return nil, domain.NewDomainError(domain.ErrFileNotFound, "", fileID)
		}
		return &fileTarget{
			meta:        meta,
			containerID: meta.ContainerID,
			ownerID:     meta.UserID,
			path:        meta.RemotePath(),
		}, nil
	}

	// No record: treat fileID as a raw backend path inside containerID.
	if containerID == "" {
		return nil, domain.NewDomainError(domain.ErrFileNotFound, "", fileID)
	}
	container, err := loadContainer(ctx, s.containerRepo, s.logger, caller, containerID)
	if err != nil {
		return nil, err
	}
	return &fileTarget{
		containerID: container.ID,
		ownerID:     container.UserID,
		path:        domain.RemotePathFor(fileID),
	}, nil
}

func activeFiles(all []*domain.File) []*domain.File {
	files := make([]*domain.File, 0, len(all))
	for _, f := range all {
		if f.IsActive() {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})
	return files
}
