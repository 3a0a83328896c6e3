package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage/memory"
)

var actor = solana.MustPublicKey("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) *domain.LedgerEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var e domain.LedgerEvent
	require.NoError(t, json.Unmarshal(msg, &e))
	return &e
}

func TestHub_DeliversWithFilter(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	all := dial(t, server, "")
	filtered := dial(t, server, "?presale=SALE")
	waitClients(t, hub, 2)

	ctx := context.Background()
	other := domain.NewLedgerEvent(domain.EventPurchase, "OTHER", actor, 1)
	sale := domain.NewLedgerEvent(domain.EventClaim, "SALE", actor, 2)
	require.NoError(t, hub.Publish(ctx, other))
	require.NoError(t, hub.Publish(ctx, sale))

	assert.Equal(t, other.ID, readEvent(t, all).ID)
	assert.Equal(t, sale.ID, readEvent(t, all).ID)

	got := readEvent(t, filtered)
	assert.Equal(t, sale.ID, got.ID)
	assert.Equal(t, domain.EventClaim, got.Kind)
	assert.Equal(t, actor, got.Actor)
}

func TestHub_RejectsBadFilter(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?presale=WAYTOOLONGTITLE"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_ClientLeaves(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server, "")
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "")
	waitClients(t, hub, 1)

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_RefusesAfterClose(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	require.NoError(t, hub.Close())

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// A client that finished its upgrade after Close is not registered.
	assert.False(t, hub.add(&client{done: make(chan struct{})}))
	assert.Zero(t, hub.ClientCount())
	require.NoError(t, hub.Close())
}

func TestHub_CloseRacesWithSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		hub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	wg.Wait()
	assert.Zero(t, hub.ClientCount())
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, *domain.LedgerEvent) error {
	p.calls++
	return errors.New("sink down")
}

func TestMulti(t *testing.T) {
	store := memory.NewEventStore()
	failing := &failingPublisher{}
	m := Multi{failing, nil, NewStorePublisher(store)}

	ctx := context.Background()
	e := domain.NewLedgerEvent(domain.EventPurchase, "SALE", actor, 10)
	err := m.Publish(ctx, e)
	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)

	// The store still received the event.
	got, err := store.GetByPresale(ctx, "SALE", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)

	// A duplicate is surfaced by the store publisher.
	assert.Error(t, NewStorePublisher(store).Publish(ctx, e))
}
