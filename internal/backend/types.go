package backend

// Label is a key/value classification tag sent with container creation.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// CreateContainerRequest is the body of POST /containers/create.
type CreateContainerRequest struct {
	UserID       int64    `json:"user_id"`
	ContainerID  string   `json:"container_id"`
	MemoryLimit  int64    `json:"memory_limit"`
	StorageQuota int64    `json:"storage_quota"`
	FileLimit    int64    `json:"file_limit"`
	EnvLabel     Label    `json:"env_label"`
	TypeLabel    Label    `json:"type_label"`
	Commands     []string `json:"commands"`
	Privileged   bool     `json:"privileged"`
}

// ContainerResponse is returned by the container endpoints.
type ContainerResponse struct {
	ContainerID string `json:"container_id,omitempty"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}

// containerRef identifies a container in delete requests.
type containerRef struct {
	UserID      int64  `json:"user_id"`
	ContainerID string `json:"container_id"`
}

// CreateFileRequest is the body of POST /files/create.
type CreateFileRequest struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	UserID      int64  `json:"user_id"`
	ContainerID string `json:"container_id"`
}

// fileRef identifies a file in delete requests.
type fileRef struct {
	Path        string `json:"path"`
	UserID      int64  `json:"user_id"`
	ContainerID string `json:"container_id"`
}

// FileResponse is returned by the file endpoints.
type FileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Size    int64  `json:"size"`
	Created bool   `json:"created,omitempty"`
}

// SearchRequest is the body of POST /semantic.
type SearchRequest struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
	UserID      int64  `json:"user_id"`
	ContainerID string `json:"container_id"`
}

// SearchResult is one ranked path.
type SearchResult struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// SearchResponse is returned by POST /semantic.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// MessageResponse is returned by / and /rebuild.
type MessageResponse struct {
	Message string `json:"message"`
}
