package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mintledger/internal/domain"
)

func testNotification(seq uint64) domain.Notification {
	return domain.Notification{
		Sequence:    seq,
		Kind:        domain.KindTickerReserved,
		Actor:       domain.Address("alice"),
		TimestampMs: 1700000000000,
	}
}

func TestBroadcast_LocalSubscriber(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	var got []domain.Notification
	hub.SubscribeLocal(func(n domain.Notification) {
		got = append(got, n)
	})

	hub.Broadcast(testNotification(0))
	hub.Broadcast(testNotification(1))

	if len(got) != 2 {
		t.Fatalf("received %d notifications, want 2", len(got))
	}
	if got[0].Sequence != 0 || got[1].Sequence != 1 {
		t.Errorf("sequences = %d, %d; want 0, 1", got[0].Sequence, got[1].Sequence)
	}
}

func TestBroadcast_WebSocketClient(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration races the dial returning; wait for the hub to see
	// the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(testNotification(7))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var n domain.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Sequence != 7 || n.Kind != domain.KindTickerReserved {
		t.Errorf("notification = %+v", n)
	}
}

func TestClose_DisconnectsClients(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Errorf("client count after close = %d, want 0", hub.ClientCount())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read after close succeeded")
	}
}
