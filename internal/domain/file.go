package domain

import (
	"strings"
	"time"
)

// DefaultMimeType is used when the uploader gives no content type.
const DefaultMimeType = "application/octet-stream"

// File is the metadata record of one file inside a container.
// The content itself lives in the remote backend under RemotePath.
type File struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"container_id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mime_type"`
	ContentHash string    `json:"content_hash,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewFile creates a pending file record.
func NewFile(id, containerID string, userID int64, name string, size int64, mimeType string) *File {
	if name == "" {
		name = "file_" + id
	}
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return &File{
		ID:          id,
		ContainerID: containerID,
		UserID:      userID,
		Name:        name,
		Size:        size,
		MimeType:    mimeType,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// RemotePath returns the backend path derived from the file id.
func (f *File) RemotePath() string {
	return RemotePathFor(f.ID)
}

// RemotePathFor derives a backend path from a file id or raw path.
func RemotePathFor(id string) string {
	if strings.HasPrefix(id, "/") {
		return id
	}
	return "/" + id
}

// IsPDF reports whether the file was uploaded as a PDF document.
func (f *File) IsPDF() bool {
	return f.MimeType == "application/pdf"
}

// IsText reports whether the file was uploaded with a text/* content type.
func (f *File) IsText() bool {
	return strings.HasPrefix(f.MimeType, "text/")
}

// IsActive reports whether the remote content write succeeded.
func (f *File) IsActive() bool {
	return f.Status == StatusActive
}
