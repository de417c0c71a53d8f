package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/model"
	"github.com/servicechat/console/pkg/logger"
)

func newTestSync(t *testing.T, handler http.HandlerFunc) (*ThreadSync, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport := api.New(srv.URL, logger.NewNop())
	key, err := ResolveThread("cust-1", "agent-1")
	require.NoError(t, err)
	return New(transport, key, logger.NewNop()), srv
}

func TestResolveThread(t *testing.T) {
	key, err := ResolveThread("cust-1", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, ThreadKey{CustomerID: "cust-1", CounterpartID: "agent-1"}, key)

	key, err = ResolveThread("cust-1", "")
	require.NoError(t, err)
	assert.Equal(t, BotCounterpart, key.CounterpartID)

	_, err = ResolveThread("", "agent-1")
	assert.Error(t, err)
}

func TestLoadHistorySortsAscending(t *testing.T) {
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/history/cust-1/agent-1", r.URL.Path)
		w.Write([]byte(`[
			{"message_id":"m2","sender":"agent","message":"second","created_at":"2026-01-02T00:00:00Z"},
			{"message_id":"m1","sender":"customer","message":"first","created_at":"2026-01-01T00:00:00Z"}
		]`))
	})

	msgs := s.LoadHistory(context.Background())
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.True(t, msgs[0].Confirmed)
	assert.Equal(t, StateLoaded, s.State())
}

func TestLoadHistoryAcceptsWrappedPayload(t *testing.T) {
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[{"message_id":"m1","sender":"bot","message":"hi","created_at":"2026-01-01T00:00:00Z"}]}`))
	})

	msgs := s.LoadHistory(context.Background())
	require.Len(t, msgs, 1)
	assert.Equal(t, model.SenderBot, msgs[0].Sender)
}

func TestLoadHistoryFailureRendersEmpty(t *testing.T) {
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	msgs := s.LoadHistory(context.Background())
	assert.Empty(t, msgs)
	assert.Equal(t, StateEmpty, s.State())
}

func TestSendMessageAppearsImmediately(t *testing.T) {
	var mu sync.Mutex
	var saved []model.SaveMessagesRequest
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/chat/save" {
			var req model.SaveMessagesRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			mu.Lock()
			saved = append(saved, req)
			mu.Unlock()
		}
		w.Write([]byte(`{}`))
	})

	msg, err := s.SendMessage(context.Background(), model.SenderCustomer, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.False(t, msgs[0].Confirmed)
	assert.Equal(t, StateLoaded, s.State())

	s.Flush()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, saved, 1)
	assert.Equal(t, "cust-1", saved[0].CustomerID)
	require.NotNil(t, saved[0].AgentID)
	assert.Equal(t, "agent-1", *saved[0].AgentID)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := s.SendMessage(context.Background(), model.SenderCustomer, "")
	assert.Error(t, err)
	assert.Empty(t, s.Messages())
}

func TestSendFailureKeepsOptimisticEntry(t *testing.T) {
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := s.SendMessage(context.Background(), model.SenderCustomer, "hello")
	require.NoError(t, err)
	s.Flush()

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Confirmed)
}

func TestRefreshPromotesConfirmedPending(t *testing.T) {
	var mu sync.Mutex
	echo := false
	var sentID string
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/chat/save" {
			w.Write([]byte(`{}`))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !echo {
			w.Write([]byte(`[]`))
			return
		}
		resp := []model.Message{{ID: sentID, Sender: model.SenderCustomer, Text: "hello", CreatedAt: time.Now().UTC()}}
		json.NewEncoder(w).Encode(resp)
	})

	msg, err := s.SendMessage(context.Background(), model.SenderCustomer, "hello")
	require.NoError(t, err)
	s.Flush()

	mu.Lock()
	echo = true
	sentID = msg.ID
	mu.Unlock()

	msgs := s.LoadHistory(context.Background())
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.True(t, msgs[0].Confirmed)

	// A second refresh must not duplicate the entry.
	msgs = s.LoadHistory(context.Background())
	assert.Len(t, msgs, 1)
}

func TestRefreshKeepsUnconfirmedPending(t *testing.T) {
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/chat/save" {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`[{"message_id":"srv-1","sender":"agent","message":"earlier","created_at":"2020-01-01T00:00:00Z"}]`))
	})

	msg, err := s.SendMessage(context.Background(), model.SenderCustomer, "hello")
	require.NoError(t, err)
	s.Flush()

	msgs := s.LoadHistory(context.Background())
	require.Len(t, msgs, 2)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.Equal(t, msg.ID, msgs[1].ID)
	assert.False(t, msgs[1].Confirmed)
}

func TestSwitchDiscardsPending(t *testing.T) {
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := s.SendMessage(context.Background(), model.SenderCustomer, "hello")
	require.NoError(t, err)
	s.Flush()
	require.Len(t, s.Messages(), 1)

	s.Switch(ThreadKey{CustomerID: "cust-2", CounterpartID: BotCounterpart})
	assert.Empty(t, s.Messages())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, "cust-2", s.Key().CustomerID)
}

func TestSlowResponseCannotOverwriteNewerView(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	s, _ := newTestSync(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			w.Write([]byte(`[{"message_id":"old","sender":"customer","message":"stale","created_at":"2026-01-01T00:00:00Z"}]`))
			return
		}
		w.Write([]byte(`[{"message_id":"new","sender":"customer","message":"fresh","created_at":"2026-01-02T00:00:00Z"}]`))
	})

	first := make(chan []model.Message, 1)
	go func() {
		first <- s.LoadHistory(context.Background())
	}()
	<-started

	fresh := s.LoadHistory(context.Background())
	require.Len(t, fresh, 1)
	assert.Equal(t, "new", fresh[0].ID)

	close(release)
	stale := <-first

	// The slow first response is discarded: its caller sees the newer view
	// and the synced state still holds the fresh history.
	require.Len(t, stale, 1)
	assert.Equal(t, "new", stale[0].ID)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].ID)
}

func TestSwitchDoesNotStackLoggerFields(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	transport := api.New(srv.URL, logger.NewNop())
	s := New(transport, ThreadKey{CustomerID: "cust-1", CounterpartID: BotCounterpart}, log)

	s.Switch(ThreadKey{CustomerID: "cust-2", CounterpartID: BotCounterpart})
	s.Switch(ThreadKey{CustomerID: "cust-3", CounterpartID: "agent-1"})
	s.LoadHistory(context.Background())

	entries := observed.All()
	require.NotEmpty(t, entries)

	var customerFields []string
	for _, f := range entries[len(entries)-1].Context {
		if f.Key == "customer_id" {
			customerFields = append(customerFields, f.String)
		}
	}
	require.Len(t, customerFields, 1)
	assert.Equal(t, "cust-3", customerFields[0])
}

func TestCustomersForAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/customers_for_agent/agent-1", r.URL.Path)
		w.Write([]byte(`["cust-1","cust-2"]`))
	}))
	defer srv.Close()

	transport := api.New(srv.URL, logger.NewNop())
	ids, err := CustomersForAgent(context.Background(), transport, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cust-1", "cust-2"}, ids)

	_, err = CustomersForAgent(context.Background(), transport, "")
	assert.Error(t, err)
}
