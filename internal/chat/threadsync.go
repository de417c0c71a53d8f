// Package chat synchronizes conversation threads against the backend
// message store, reconciling optimistic local sends with server-confirmed
// history.
package chat

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/model"
	"github.com/servicechat/console/pkg/logger"
	"github.com/servicechat/console/pkg/metrics"
)

// BotCounterpart is the sentinel counterpart id for bot-only threads.
const BotCounterpart = "bot"

// submitTimeout bounds the background save of an optimistic message.
const submitTimeout = 30 * time.Second

// ErrInvalidIdentity is returned when a thread is resolved without a
// customer id.
var ErrInvalidIdentity = &api.ValidationError{Field: "customer_id", Reason: "cannot be empty"}

// ThreadKey identifies one conversation: exactly the (customer,
// counterpart) pair. Two keys with the same pair are the same thread.
type ThreadKey struct {
	CustomerID    string
	CounterpartID string
}

func (k ThreadKey) String() string {
	return k.CustomerID + "/" + k.CounterpartID
}

// ResolveThread maps a customer/counterpart pair to its thread key. An
// absent counterpart resolves to the bot sentinel.
func ResolveThread(customerID, counterpartID string) (ThreadKey, error) {
	if customerID == "" {
		return ThreadKey{}, ErrInvalidIdentity
	}
	if counterpartID == "" {
		counterpartID = BotCounterpart
	}
	return ThreadKey{CustomerID: customerID, CounterpartID: counterpartID}, nil
}

// State is the lifecycle of one thread view.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateEmpty   State = "empty"
)

// pendingMessage is a locally-originated message awaiting server
// confirmation, tagged with the send attempt that produced it.
type pendingMessage struct {
	msg       model.Message
	attemptID string
}

// ThreadSync owns the message state for one open conversation view.
type ThreadSync struct {
	transport *api.Client
	base      *logger.Logger
	logger    *logger.Logger

	mu          sync.Mutex
	key         ThreadKey
	state       State
	confirmed   []model.Message
	pending     []pendingMessage
	generations map[ThreadKey]uint64

	inflight sync.WaitGroup
}

// New creates a ThreadSync bound to one thread key.
func New(transport *api.Client, key ThreadKey, log *logger.Logger) *ThreadSync {
	return &ThreadSync{
		transport:   transport,
		base:        log,
		logger:      log.WithThread(key.CustomerID, key.CounterpartID),
		key:         key,
		state:       StateIdle,
		generations: make(map[ThreadKey]uint64),
	}
}

// Key returns the thread currently in view.
func (s *ThreadSync) Key() ThreadKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// State returns the current view state.
func (s *ThreadSync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Switch changes the thread in view. Unconfirmed optimistic messages
// belonging to the previous key are discarded, not carried over.
func (s *ThreadSync) Switch(key ThreadKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.key {
		return
	}
	metrics.PendingMessages.Sub(float64(len(s.pending)))
	s.key = key
	s.pending = nil
	s.confirmed = nil
	s.state = StateIdle
	s.logger = s.base.WithThread(key.CustomerID, key.CounterpartID)
}

// LoadHistory refreshes the confirmed partition from the backend and
// returns the merged view. Any transport failure degrades to an empty
// history: a never-contacted pair legitimately has no thread server-side,
// so the caller renders "no messages", never an error.
//
// Each call is tagged with a per-key generation; if a newer request for the
// same key was issued while this one was in flight, the result is discarded
// so a slow response can never overwrite a newer view.
func (s *ThreadSync) LoadHistory(ctx context.Context) []model.Message {
	s.mu.Lock()
	key := s.key
	s.generations[key]++
	gen := s.generations[key]
	s.state = StateLoading
	s.mu.Unlock()

	path := fmt.Sprintf("/v1/chat/history/%s/%s",
		url.PathEscape(key.CustomerID), url.PathEscape(key.CounterpartID))
	var hist model.History
	err := s.transport.Get(ctx, "chat.history", path, nil, &hist, api.RetryReads)

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != s.key || gen != s.generations[key] {
		metrics.StaleResponsesDiscarded.Inc()
		s.logger.Debug("discarding stale history response", zap.Uint64("generation", gen))
		return s.viewLocked()
	}

	if err != nil {
		s.logger.Warn("history fetch failed, rendering empty thread", zap.Error(err))
		s.confirmed = nil
		s.state = StateEmpty
		return s.viewLocked()
	}

	s.applyHistoryLocked(hist.Messages)
	if len(s.confirmed) == 0 && len(s.pending) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateLoaded
	}
	return s.viewLocked()
}

// applyHistoryLocked replaces the confirmed partition and reconciles
// pending messages by id: an entry the server now returns is promoted out
// of pending; entries the refresh does not mention stay pending.
func (s *ThreadSync) applyHistoryLocked(msgs []model.Message) {
	for i := range msgs {
		msgs[i].Confirmed = true
	}
	s.confirmed = msgs

	ids := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		ids[m.ID] = struct{}{}
	}
	kept := s.pending[:0]
	for _, p := range s.pending {
		if _, confirmed := ids[p.msg.ID]; confirmed {
			metrics.PendingMessages.Dec()
			continue
		}
		kept = append(kept, p)
	}
	s.pending = kept
}

// SendMessage applies the message optimistically and submits it to the
// backend in the background. Submission failure is logged and surfaces no
// error: the optimistic entry stays visible until a later refresh confirms
// it or the thread is switched.
func (s *ThreadSync) SendMessage(ctx context.Context, sender model.Sender, text string) (model.Message, error) {
	if text == "" {
		return model.Message{}, &api.ValidationError{Field: "text", Reason: "cannot be empty"}
	}

	msg := model.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	key := s.key
	s.pending = append(s.pending, pendingMessage{msg: msg, attemptID: uuid.NewString()})
	if s.state == StateIdle || s.state == StateEmpty {
		s.state = StateLoaded
	}
	s.mu.Unlock()

	metrics.PendingMessages.Inc()
	metrics.MessagesSentTotal.WithLabelValues(string(sender)).Inc()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.submit(key, msg)
	}()

	return msg, nil
}

func (s *ThreadSync) submit(key ThreadKey, msg model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	var agentID *string
	if key.CounterpartID != BotCounterpart {
		agentID = &key.CounterpartID
	}
	body := model.SaveMessagesRequest{
		CustomerID: key.CustomerID,
		AgentID:    agentID,
		Messages:   []model.Message{msg},
	}
	if err := s.transport.Post(ctx, "chat.save", "/v1/chat/save", body, nil, api.RetryNone); err != nil {
		s.logger.Warn("message save failed, keeping optimistic entry",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// Flush blocks until in-flight message submissions have completed. Used at
// shutdown and by tests.
func (s *ThreadSync) Flush() {
	s.inflight.Wait()
}

// Messages returns the merged view: confirmed history plus pending
// optimistic sends, ascending by creation time, ties kept in arrival order.
func (s *ThreadSync) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *ThreadSync) viewLocked() []model.Message {
	merged := make([]model.Message, 0, len(s.confirmed)+len(s.pending))
	merged = append(merged, s.confirmed...)
	for _, p := range s.pending {
		merged = append(merged, p.msg)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// CustomersForAgent lists the customer ids an agent has threads with.
func CustomersForAgent(ctx context.Context, transport *api.Client, agentID string) ([]string, error) {
	if agentID == "" {
		return nil, &api.ValidationError{Field: "agent_id", Reason: "cannot be empty"}
	}
	var ids []string
	path := "/v1/chat/customers_for_agent/" + url.PathEscape(agentID)
	if err := transport.Get(ctx, "chat.customers_for_agent", path, nil, &ids, api.RetryReads); err != nil {
		return nil, err
	}
	return ids, nil
}
