package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/auth"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// ContainerHandler serves container lifecycle requests.
type ContainerHandler struct {
	containerService ContainerService
	logger           zerolog.Logger
}

// NewContainerHandler creates a new ContainerHandler.
func NewContainerHandler(containerService ContainerService, logger zerolog.Logger) *ContainerHandler {
	return &ContainerHandler{
		containerService: containerService,
		logger:           logger.With().Str("handler", "container").Logger(),
	}
}

// createContainerRequest carries the tariff in MB. Zero limits take the
// default tariff's value.
type createContainerRequest struct {
	ContainerID  string `json:"container_id"`
	MemoryLimit  int64  `json:"memory_limit"`
	StorageQuota int64  `json:"storage_quota"`
	FileLimit    int64  `json:"file_limit"`
}

func (req createContainerRequest) tariff() (*domain.Tariff, error) {
	t := domain.DefaultTariff()
	if req.MemoryLimit != 0 {
		t.MemoryLimit = req.MemoryLimit
	}
	if req.StorageQuota != 0 {
		quota, err := domain.StorageQuotaFromMB(req.StorageQuota)
		if err != nil {
			return nil, err
		}
		t.StorageQuota = quota
	}
	if req.FileLimit != 0 {
		t.FileLimit = req.FileLimit
	}
	return &t, nil
}

// RegisterRoutes registers container routes.
func (h *ContainerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/containers", h.handleList)
	r.Post("/containers", h.handleCreate)
	r.Get("/containers/{id}", h.handleGet)
	r.Get("/containers/{id}/limits", h.handleLimits)
	r.Delete("/containers/{id}", h.handleDelete)
}

func (h *ContainerHandler) handleList(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	containers, err := h.containerService.List(r.Context(), caller)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, containers)
}

func (h *ContainerHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req createContainerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	tariff, err := req.tariff()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.containerService.Create(r.Context(), service.CreateContainerInput{
		Caller:      caller,
		ContainerID: req.ContainerID,
		Tariff:      tariff,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusCreated, out)
}

func (h *ContainerHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	container, err := h.containerService.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{"container": container})
}

func (h *ContainerHandler) handleLimits(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// Get enforces ownership, CheckLimits does not.
	container, err := h.containerService.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	limits, err := h.containerService.CheckLimits(r.Context(), container.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, limits)
}

func (h *ContainerHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.containerService.Delete(r.Context(), caller, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info().Str("container_id", id).Int64("user_id", caller.ID).Msg("container deleted over HTTP")
	writeJSON(w, http.StatusOK, messageResponse{Message: "container " + id + " deleted"})
}
