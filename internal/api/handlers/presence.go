package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/familiar-chat/mediagate/internal/api/dto"
	"github.com/familiar-chat/mediagate/internal/presence"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PresenceHandler is the internal ingest surface the real-time transport
// uses to report visitor connections.
type PresenceHandler struct {
	store  *presence.Store
	logger *slog.Logger
}

func NewPresenceHandler(store *presence.Store, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{store: store, logger: logger}
}

// Open registers a new connected session and returns its generated id.
func (h *PresenceHandler) Open(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationId")
	visitorID := chi.URLParam(r, "visitorId")
	connID := uuid.NewString()

	if err := h.store.SetConnection(r.Context(), orgID, visitorID, connID, true); err != nil {
		h.logFailure("open", orgID, visitorID, err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ConnectionResponse{ConnectionID: connID})
}

// Set records the connected flag of an existing or new session.
func (h *PresenceHandler) Set(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationId")
	visitorID := chi.URLParam(r, "visitorId")

	var req dto.ConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Connected == nil {
		writeError(w, http.StatusBadRequest, "connected is required")
		return
	}

	err := h.store.SetConnection(r.Context(), orgID, visitorID, chi.URLParam(r, "connectionId"), *req.Connected)
	if err != nil {
		h.logFailure("set", orgID, visitorID, err)
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresenceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationId")
	visitorID := chi.URLParam(r, "visitorId")

	err := h.store.RemoveConnection(r.Context(), orgID, visitorID, chi.URLParam(r, "connectionId"))
	if err != nil {
		h.logFailure("remove", orgID, visitorID, err)
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresenceHandler) Count(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationId")
	visitorID := chi.URLParam(r, "visitorId")

	n, err := h.store.ConnectedCount(r.Context(), orgID, visitorID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ConnectedCountResponse{VisitorID: visitorID, ConnectedCount: n})
}

func (h *PresenceHandler) logFailure(op, orgID, visitorID string, err error) {
	h.logger.Warn("connection write failed",
		"op", op,
		"organization_id", orgID,
		"visitor_id", visitorID,
		"error", err,
	)
}
