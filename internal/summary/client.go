// Package summary retrieves AI conversation summaries and bot reply
// suggestions for the manager and agent consoles.
package summary

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/chat"
	"github.com/servicechat/console/internal/model"
	"github.com/servicechat/console/pkg/logger"
	"github.com/servicechat/console/pkg/metrics"
)

var (
	ErrCustomerRequired = &api.ValidationError{Field: "customer_id", Reason: "cannot be empty"}

	// ErrSummaryUnavailable means the summary could not be fetched; callers
	// treat this as "no summary to show", not a fatal error.
	ErrSummaryUnavailable = errors.New("summary unavailable")
)

// Range bounds the conversation window a summary covers.
type Range struct {
	Start time.Time
	End   time.Time
}

// Client fetches summaries and manages the local suggestion list.
type Client struct {
	transport *api.Client
	logger    *logger.Logger

	mu          sync.Mutex
	suggestions []model.Suggestion
}

// New creates a summary/suggestion client.
func New(transport *api.Client, log *logger.Logger) *Client {
	return &Client{transport: transport, logger: log}
}

// GetSummary fetches a date-ranged summary. force instructs the backend to
// bypass its cached result and regenerate; the client itself never caches,
// every call is a fresh request.
func (c *Client) GetSummary(ctx context.Context, customerID, agentID string, rng Range, sentences int, force bool) (*model.Summary, error) {
	if customerID == "" {
		return nil, ErrCustomerRequired
	}

	path := "/v1/summary/" + url.PathEscape(customerID)
	if agentID != "" {
		path += "/" + url.PathEscape(agentID)
	}
	query := url.Values{}
	if !rng.Start.IsZero() {
		query.Set("start", rng.Start.UTC().Format(time.RFC3339))
	}
	if !rng.End.IsZero() {
		query.Set("end", rng.End.UTC().Format(time.RFC3339))
	}
	if sentences > 0 {
		query.Set("sentences", strconv.Itoa(sentences))
	}
	if force {
		query.Set("force", "true")
	}

	var s model.Summary
	if err := c.transport.Get(ctx, "summary.get", path, query, &s, api.RetryReads); err != nil {
		c.logger.Warn("summary fetch failed",
			zap.String("customer_id", customerID),
			zap.Bool("force", force),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	return &s, nil
}

// GenerateSummary asks the backend to produce a summary synchronously.
func (c *Client) GenerateSummary(ctx context.Context, req model.GenerateSummaryRequest) (*model.Summary, error) {
	if req.CustomerID == "" {
		return nil, ErrCustomerRequired
	}
	var s model.Summary
	if err := c.transport.Post(ctx, "summary.generate", "/v1/summary/generate", req, &s, api.RetryNone); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSuggestions derives unconsumed bot suggestions from the thread's
// history payload. There is no separate suggestion store server-side: a
// suggestion is a history message carrying the bot-suggestion marker that
// no agent has used yet.
func (c *Client) ListSuggestions(ctx context.Context, key chat.ThreadKey) ([]model.Suggestion, error) {
	path := fmt.Sprintf("/v1/chat/history/%s/%s",
		url.PathEscape(key.CustomerID), url.PathEscape(key.CounterpartID))
	var hist model.History
	if err := c.transport.Get(ctx, "chat.history", path, nil, &hist, api.RetryReads); err != nil {
		return nil, err
	}

	var suggestions []model.Suggestion
	for _, m := range hist.Messages {
		if m.IsUnusedSuggestion() {
			suggestions = append(suggestions, model.Suggestion{MessageID: m.ID, Text: m.Text})
		}
	}

	c.mu.Lock()
	c.suggestions = suggestions
	c.mu.Unlock()
	return suggestions, nil
}

// ConsumeSuggestion marks a suggestion used server-side and removes it from
// the local list only on success; on failure it stays listed so the agent
// can retry.
func (c *Client) ConsumeSuggestion(ctx context.Context, messageID, agentID, sendAs string) error {
	if messageID == "" {
		return &api.ValidationError{Field: "suggestion_message_id", Reason: "cannot be empty"}
	}
	if agentID == "" {
		return &api.ValidationError{Field: "agent_id", Reason: "cannot be empty"}
	}
	if sendAs == "" {
		sendAs = string(model.SenderAgent)
	}

	body := model.UseSuggestionRequest{
		SuggestionMessageID: messageID,
		AgentID:             agentID,
		SendAs:              sendAs,
	}
	if err := c.transport.Post(ctx, "chat.suggestion_use", "/v1/chat/suggestion/use", body, nil, api.RetryNone); err != nil {
		return err
	}

	c.mu.Lock()
	kept := c.suggestions[:0]
	for _, s := range c.suggestions {
		if s.MessageID != messageID {
			kept = append(kept, s)
		}
	}
	c.suggestions = kept
	c.mu.Unlock()

	metrics.SuggestionsConsumedTotal.Inc()
	return nil
}

// Suggestions returns the locally tracked suggestion list.
func (c *Client) Suggestions() []model.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Suggestion, len(c.suggestions))
	copy(out, c.suggestions)
	return out
}
