package domain

import (
	"regexp"
	"time"
)

// MiB is one mebibyte in bytes.
const MiB = 1024 * 1024

// Container limits and defaults.
const (
	DefaultMemoryLimitMB  = 512
	DefaultStorageQuotaMB = 1024
	DefaultFileLimit      = 10

	MaxMemoryLimitMB  = 4096
	MaxStorageQuotaMB = 10240
)

// DefaultCommands are the backend commands enabled on new containers.
var DefaultCommands = []string{"search", "debug", "all", "create"}

// containerIDRegex validates caller-chosen container ids.
var containerIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Status is the commit state of a two-phase record.
type Status string

const (
	// StatusPending marks a record written before its remote counterpart exists.
	StatusPending Status = "pending"

	// StatusActive marks a record whose remote counterpart was created.
	StatusActive Status = "active"
)

// Label is a key/value classification tag.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Tariff holds the resource limits of a container.
type Tariff struct {
	// MemoryLimit is the sandbox memory limit in MB.
	MemoryLimit int64 `json:"memory_limit"`

	// StorageQuota is the total file size allowed, in bytes.
	StorageQuota int64 `json:"storage_quota"`

	// FileLimit is the maximum number of files.
	FileLimit int64 `json:"file_limit"`
}

// DefaultTariff returns the tariff used when the caller gives no limits.
func DefaultTariff() Tariff {
	return Tariff{
		MemoryLimit:  DefaultMemoryLimitMB,
		StorageQuota: DefaultStorageQuotaMB * MiB,
		FileLimit:    DefaultFileLimit,
	}
}

// StorageQuotaFromMB converts a quota given in MB to bytes. Values outside
// 1..MaxStorageQuotaMB are rejected before the multiplication can overflow.
func StorageQuotaFromMB(mb int64) (int64, error) {
	if mb <= 0 {
		return 0, ErrTariffNotPositive
	}
	if mb > MaxStorageQuotaMB {
		return 0, ErrStorageQuotaTooHigh
	}
	return mb * MiB, nil
}

// Validate checks that all limits are positive and within bounds.
func (t Tariff) Validate() error {
	if t.MemoryLimit <= 0 || t.StorageQuota <= 0 || t.FileLimit <= 0 {
		return ErrTariffNotPositive
	}
	if t.MemoryLimit > MaxMemoryLimitMB {
		return ErrMemoryLimitTooHigh
	}
	if t.StorageQuota > MaxStorageQuotaMB*MiB {
		return ErrStorageQuotaTooHigh
	}
	return nil
}

// Container is a remote workspace owned by exactly one user.
type Container struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Tariff     Tariff    `json:"tariff"`
	EnvLabel   Label     `json:"env_label"`
	TypeLabel  Label     `json:"type_label"`
	Privileged bool      `json:"privileged"`
	Commands   []string  `json:"commands"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewContainer creates a pending container with the default labels and commands.
func NewContainer(id string, userID int64, tariff Tariff) *Container {
	commands := make([]string, len(DefaultCommands))
	copy(commands, DefaultCommands)
	return &Container{
		ID:        id,
		UserID:    userID,
		Tariff:    tariff,
		EnvLabel:  Label{Key: "environment", Value: "development"},
		TypeLabel: Label{Key: "type", Value: "workspace"},
		Commands:  commands,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// ValidateContainerID checks a caller-chosen container id.
func ValidateContainerID(id string) error {
	if !containerIDRegex.MatchString(id) {
		return ErrContainerIDFormat
	}
	return nil
}

// Validate checks the container's id and tariff.
func (c *Container) Validate() error {
	if err := ValidateContainerID(c.ID); err != nil {
		return err
	}
	return c.Tariff.Validate()
}

// IsActive reports whether the container finished both creation phases.
func (c *Container) IsActive() bool {
	return c.Status == StatusActive
}

// LimitUsage reports usage of one resource dimension against its limit.
type LimitUsage struct {
	Used         int64   `json:"used"`
	Limit        int64   `json:"limit"`
	Exceeded     bool    `json:"exceeded"`
	UsagePercent float64 `json:"usage_percent"`
}

// NewLimitUsage computes the exceeded flag and percentage (two decimals).
func NewLimitUsage(used, limit int64) LimitUsage {
	u := LimitUsage{Used: used, Limit: limit, Exceeded: used > limit}
	if limit > 0 {
		pct := float64(used) * 100 / float64(limit)
		u.UsagePercent = float64(int64(pct*100+0.5)) / 100
	}
	return u
}

// Limits is the advisory usage report of a container.
type Limits struct {
	Storage LimitUsage `json:"storage"`
	Files   LimitUsage `json:"files"`
}
