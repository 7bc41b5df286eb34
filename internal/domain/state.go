package domain

import "time"

// Well-known keys of UserState.Metadata.
const (
	StateKeyPendingOCR   = "pending_ocr"
	StateKeyLastSearchID = "last_search_id"
	StateKeyAwaitUpload  = "await_upload"
)

// UserState is the ephemeral per-user bot state.
// It is not part of the metadata store and may be lost on restart.
type UserState struct {
	UserID          int64             `json:"user_id"`
	WorkContainerID string            `json:"work_container_id,omitempty"`
	LastActivity    time.Time         `json:"last_activity"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// NewUserState creates an empty state for userID.
func NewUserState(userID int64) *UserState {
	return &UserState{
		UserID:       userID,
		LastActivity: time.Now().UTC(),
		Metadata:     make(map[string]string),
	}
}

// Touch records activity.
func (s *UserState) Touch() {
	s.LastActivity = time.Now().UTC()
}

// SearchHit is one ranked result of a semantic search.
type SearchHit struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}
