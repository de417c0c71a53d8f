package handler

import (
	"encoding/json"
	"net/http"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/session"
	"github.com/servicechat/console/pkg/logger"
)

// SessionHandler manages the persisted operator identity and the
// transport's bearer credential.
type SessionHandler struct {
	transport *api.Client
	store     *session.Store
	logger    *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(transport *api.Client, store *session.Store, log *logger.Logger) *SessionHandler {
	return &SessionHandler{transport: transport, store: store, logger: log}
}

// Get handles GET /console/session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.Load()
	if err != nil {
		h.logger.Warn("session load failed")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// Put handles PUT /console/session.
func (h *SessionHandler) Put(w http.ResponseWriter, r *http.Request) {
	var id session.Identity
	if err := json.NewDecoder(r.Body).Decode(&id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.Save(id); err != nil {
		h.logger.Error("session save failed")
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	writeJSON(w, http.StatusOK, id)
}

type tokenRequest struct {
	Token string `json:"token"`
}

// SetToken handles POST /console/session/token. An empty token clears the
// credential. The response carries the identity prefilled from the token's
// claims, if any.
func (h *SessionHandler) SetToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.transport.SetAuthToken(req.Token)
	if req.Token == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}
	writeJSON(w, http.StatusOK, session.IdentityFromToken(req.Token))
}
