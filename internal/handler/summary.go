package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/servicechat/console/internal/chat"
	"github.com/servicechat/console/internal/middleware"
	"github.com/servicechat/console/internal/model"
	"github.com/servicechat/console/internal/summary"
	"github.com/servicechat/console/pkg/logger"
)

// SummaryHandler bridges the manager and agent consoles to the summary
// and suggestion client.
type SummaryHandler struct {
	client *summary.Client
	logger *logger.Logger
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(client *summary.Client, log *logger.Logger) *SummaryHandler {
	return &SummaryHandler{client: client, logger: log}
}

// Get handles GET /console/summary/{customerID} and
// GET /console/summary/{customerID}/{agentID}. An unavailable summary is a
// 200 with a null summary, not an error.
func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	agentID := chi.URLParam(r, "agentID")

	q := r.URL.Query()
	var rng summary.Range
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		rng.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		rng.End = t
	}
	sentences, _ := strconv.Atoi(q.Get("sentences"))
	force := q.Get("force") == "true"

	s, err := h.client.GetSummary(r.Context(), customerID, agentID, rng, sentences, force)
	if err != nil {
		if errors.Is(err, summary.ErrSummaryUnavailable) {
			writeJSON(w, http.StatusOK, map[string]any{
				"summary": nil,
				"notice":  "no summary available",
			})
			return
		}
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": s})
}

// Generate handles POST /console/summary/generate.
func (h *SummaryHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.client.GenerateSummary(r.Context(), req)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Suggestions handles GET /console/suggestions/{customerID}/{agentID}.
func (h *SummaryHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	agentID := chi.URLParam(r, "agentID")
	if err := middleware.ValidateParticipantID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := chat.ResolveThread(customerID, agentID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	suggestions, err := h.client.ListSuggestions(r.Context(), key)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

type useSuggestionRequest struct {
	SuggestionMessageID string `json:"suggestion_message_id"`
	AgentID             string `json:"agent_id"`
	SendAs              string `json:"send_as"`
}

// UseSuggestion handles POST /console/suggestions/use.
func (h *SummaryHandler) UseSuggestion(w http.ResponseWriter, r *http.Request) {
	var req useSuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.client.ConsumeSuggestion(r.Context(), req.SuggestionMessageID, req.AgentID, req.SendAs); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consumed"})
}
