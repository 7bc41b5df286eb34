package mongo

import (
	"time"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// Stored document shapes. The domain types carry JSON tags only.

type userDoc struct {
	ID           int64     `bson:"_id"`
	TelegramID   *int64    `bson:"tg_id,omitempty"`
	Email        *string   `bson:"email,omitempty"`
	Username     string    `bson:"username"`
	FirstName    string    `bson:"first_name"`
	LastName     string    `bson:"last_name"`
	PasswordHash string    `bson:"password_hash"`
	IsActive     bool      `bson:"is_active"`
	IsAdmin      bool      `bson:"is_admin"`
	Language     string    `bson:"lang"`
	RegisteredAt time.Time `bson:"registered_at"`
	AuthMethod   string    `bson:"auth_method"`
}

func newUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:           u.ID,
		TelegramID:   u.TelegramID,
		Email:        u.Email,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsAdmin:      u.IsAdmin,
		Language:     string(u.Language),
		RegisteredAt: u.RegisteredAt.UTC(),
		AuthMethod:   string(u.AuthMethod),
	}
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		TelegramID:   d.TelegramID,
		Email:        d.Email,
		Username:     d.Username,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		PasswordHash: d.PasswordHash,
		IsActive:     d.IsActive,
		IsAdmin:      d.IsAdmin,
		Language:     domain.Language(d.Language),
		RegisteredAt: d.RegisteredAt.UTC(),
		AuthMethod:   domain.AuthMethod(d.AuthMethod),
	}
}

type labelDoc struct {
	Key   string `bson:"key"`
	Value string `bson:"value"`
}

type tariffDoc struct {
	MemoryLimit  int64 `bson:"memory_limit"`
	StorageQuota int64 `bson:"storage_quota"`
	FileLimit    int64 `bson:"file_limit"`
}

type containerDoc struct {
	ID         string    `bson:"_id"`
	UserID     int64     `bson:"user_id"`
	Tariff     tariffDoc `bson:"tariff"`
	EnvLabel   labelDoc  `bson:"env_label"`
	TypeLabel  labelDoc  `bson:"type_label"`
	Privileged bool      `bson:"privileged"`
	Commands   []string  `bson:"commands"`
	Status     string    `bson:"status"`
	CreatedAt  time.Time `bson:"created_at"`
}

func newContainerDoc(c *domain.Container) containerDoc {
	return containerDoc{
		ID:     c.ID,
		UserID: c.UserID,
		Tariff: tariffDoc{
			MemoryLimit:  c.Tariff.MemoryLimit,
			StorageQuota: c.Tariff.StorageQuota,
			FileLimit:    c.Tariff.FileLimit,
		},
		EnvLabel:   labelDoc{Key: c.EnvLabel.Key, Value: c.EnvLabel.Value},
		TypeLabel:  labelDoc{Key: c.TypeLabel.Key, Value: c.TypeLabel.Value},
		Privileged: c.Privileged,
		Commands:   c.Commands,
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

func (d containerDoc) toDomain() *domain.Container {
	return &domain.Container{
		ID:     d.ID,
		UserID: d.UserID,
		Tariff: domain.Tariff{
			MemoryLimit:  d.Tariff.MemoryLimit,
			StorageQuota: d.Tariff.StorageQuota,
			FileLimit:    d.Tariff.FileLimit,
		},
		EnvLabel:   domain.Label{Key: d.EnvLabel.Key, Value: d.EnvLabel.Value},
		TypeLabel:  domain.Label{Key: d.TypeLabel.Key, Value: d.TypeLabel.Value},
		Privileged: d.Privileged,
		Commands:   d.Commands,
		Status:     domain.Status(d.Status),
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

type fileDoc struct {
	ID          string    `bson:"_id"`
	ContainerID string    `bson:"container_id"`
	UserID      int64     `bson:"user_id"`
	Name        string    `bson:"name"`
	Size        int64     `bson:"size"`
	MimeType    string    `bson:"mime_type"`
	ContentHash string    `bson:"content_hash"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"created_at"`
}

func newFileDoc(f *domain.File) fileDoc {
	return fileDoc{
		ID:          f.ID,
		ContainerID: f.ContainerID,
		UserID:      f.UserID,
		Name:        f.Name,
		Size:        f.Size,
		MimeType:    f.MimeType,
		ContentHash: f.ContentHash,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt.UTC(),
	}
}

func (d fileDoc) toDomain() *domain.File {
	return &domain.File{
		ID:          d.ID,
		ContainerID: d.ContainerID,
		UserID:      d.UserID,
		Name:        d.Name,
		Size:        d.Size,
		MimeType:    d.MimeType,
		ContentHash: d.ContentHash,
		Status:      domain.Status(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
	}
}
