package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/chat"
	"github.com/servicechat/console/internal/middleware"
	"github.com/servicechat/console/internal/model"
	"github.com/servicechat/console/pkg/logger"
)

// maxOpenThreads bounds the thread registry; the thread not viewed for the
// longest is evicted when a new one would exceed it.
const maxOpenThreads = 256

// ChatHandler bridges conversation views to ThreadSync instances, one per
// open thread.
type ChatHandler struct {
	transport *api.Client
	logger    *logger.Logger

	mu      sync.Mutex
	threads map[chat.ThreadKey]*threadEntry
}

type threadEntry struct {
	ts       *chat.ThreadSync
	lastUsed time.Time
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(transport *api.Client, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		transport: transport,
		logger:    log,
		threads:   make(map[chat.ThreadKey]*threadEntry),
	}
}

func (h *ChatHandler) threadFor(key chat.ThreadKey) *chat.ThreadSync {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.threads[key]
	if !ok {
		if len(h.threads) >= maxOpenThreads {
			h.evictStalestLocked()
		}
		e = &threadEntry{ts: chat.New(h.transport, key, h.logger)}
		h.threads[key] = e
	}
	e.lastUsed = time.Now()
	return e.ts
}

// evictStalestLocked drops the least-recently-viewed thread. Any in-flight
// submission it owns still completes; only the local view is discarded.
func (h *ChatHandler) evictStalestLocked() {
	var stalest chat.ThreadKey
	var oldest time.Time
	found := false
	for key, e := range h.threads {
		if !found || e.lastUsed.Before(oldest) {
			stalest = key
			oldest = e.lastUsed
			found = true
		}
	}
	if found {
		delete(h.threads, stalest)
	}
}

// Flush waits for in-flight message submissions across all threads. Called
// during gateway shutdown.
func (h *ChatHandler) Flush() {
	h.mu.Lock()
	threads := make([]*chat.ThreadSync, 0, len(h.threads))
	for _, e := range h.threads {
		threads = append(threads, e.ts)
	}
	h.mu.Unlock()
	for _, ts := range threads {
		ts.Flush()
	}
}

type threadView struct {
	State    chat.State      `json:"state"`
	Messages []model.Message `json:"messages"`
}

// Messages handles GET /console/chat/{customerID}/{counterpartID}/messages.
// It refreshes the thread's history and returns the merged view.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	counterpartID := chi.URLParam(r, "counterpartID")

	key, err := chat.ResolveThread(customerID, counterpartID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	ts := h.threadFor(key)
	msgs := ts.LoadHistory(r.Context())
	writeJSON(w, http.StatusOK, threadView{State: ts.State(), Messages: msgs})
}

type sendMessageRequest struct {
	Sender model.Sender `json:"sender"`
	Text   string       `json:"text"`
}

// Send handles POST /console/chat/{customerID}/{counterpartID}/messages.
// The message is applied optimistically and submitted in the background.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	counterpartID := chi.URLParam(r, "counterpartID")

	key, err := chat.ResolveThread(customerID, counterpartID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Sender == "" {
		req.Sender = model.SenderCustomer
	}

	ts := h.threadFor(key)
	msg, err := ts.SendMessage(r.Context(), req.Sender, req.Text)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

// Customers handles GET /console/agents/{agentID}/customers.
func (h *ChatHandler) Customers(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := middleware.ValidateParticipantID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, err := chat.CustomersForAgent(r.Context(), h.transport, agentID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}
