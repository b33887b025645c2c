package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// realtimeServer is a minimal phoenix-channel endpoint: it acks the join and
// lets the test push frames down the socket.
type realtimeServer struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	joined chan frame
}

func newRealtimeServer(t *testing.T) (*realtimeServer, *httptest.Server) {
	rs := &realtimeServer{joined: make(chan frame, 1)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/v1/websocket" {
			t.Errorf("path = %s, want /realtime/v1/websocket", r.URL.Path)
		}
		if r.URL.Query().Get("apikey") == "" {
			t.Error("apikey query parameter missing")
		}

		conn, err := rs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		rs.mu.Lock()
		rs.conn = conn
		rs.mu.Unlock()

		var join frame
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		rs.joined <- join

		reply := frame{
			Topic:   join.Topic,
			Event:   "phx_reply",
			Payload: json.RawMessage(`{"status":"ok"}`),
			Ref:     join.Ref,
		}
		conn.WriteJSON(reply)

		// Keep reading so heartbeats don't pile up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return rs, server
}

// push writes a frame to the connected client. Write errors are ignored;
// the client may already have hung up.
func (rs *realtimeServer) push(f frame) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.conn.WriteJSON(f)
}

func insertFrame(t *testing.T, topic string, msg Message) frame {
	t.Helper()
	payload, err := json.Marshal(changePayload{Type: "INSERT", Record: msg})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return frame{Topic: topic, Event: "INSERT", Payload: payload}
}

func TestSubscribeJoinsChatScopedTopic(t *testing.T) {
	rs, server := newRealtimeServer(t)
	defer server.Close()

	client := NewClient(server.URL, testKey, 0)
	sub, err := client.Subscribe(context.Background(), "chat-1", func(Message) {})
	if err != nil {
		t.Fatalf("Subscribe() = %v, want nil", err)
	}
	defer sub.Close()

	select {
	case join := <-rs.joined:
		wantTopic := "realtime:public:messages:chat_id=eq.chat-1"
		if join.Topic != wantTopic {
			t.Errorf("join topic = %q, want %q", join.Topic, wantTopic)
		}
		if join.Event != "phx_join" {
			t.Errorf("join event = %q, want phx_join", join.Event)
		}
		if join.Ref == "" {
			t.Error("join ref is empty, want a unique ref")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no join frame received")
	}
}

func TestSubscribeDispatchesInserts(t *testing.T) {
	rs, server := newRealtimeServer(t)
	defer server.Close()

	received := make(chan Message, 4)
	client := NewClient(server.URL, testKey, 0)
	sub, err := client.Subscribe(context.Background(), "chat-1", func(m Message) {
		received <- m
	})
	if err != nil {
		t.Fatalf("Subscribe() = %v, want nil", err)
	}
	defer sub.Close()
	<-rs.joined

	topic := "realtime:public:messages:chat_id=eq.chat-1"
	rs.push(insertFrame(t, topic, Message{ID: "m1", ChatID: "chat-1", Role: RoleUser, Content: "hello"}))

	select {
	case m := <-received:
		if m.ID != "m1" || m.Content != "hello" {
			t.Errorf("received = %+v, want m1/hello", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("insert was not dispatched")
	}
}

func TestSubscribeIgnoresOtherTopics(t *testing.T) {
	rs, server := newRealtimeServer(t)
	defer server.Close()

	received := make(chan Message, 4)
	client := NewClient(server.URL, testKey, 0)
	sub, err := client.Subscribe(context.Background(), "chat-1", func(m Message) {
		received <- m
	})
	if err != nil {
		t.Fatalf("Subscribe() = %v, want nil", err)
	}
	defer sub.Close()
	<-rs.joined

	ownTopic := "realtime:public:messages:chat_id=eq.chat-1"
	rs.push(insertFrame(t, "realtime:public:messages:chat_id=eq.chat-2", Message{ID: "other"}))
	rs.push(insertFrame(t, ownTopic, Message{ID: "mine"}))

	select {
	case m := <-received:
		if m.ID != "mine" {
			t.Errorf("received %q, want only the subscribed chat's insert", m.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("own-topic insert was not dispatched")
	}
}

func TestCloseStopsCallbacks(t *testing.T) {
	rs, server := newRealtimeServer(t)
	defer server.Close()

	var mu sync.Mutex
	var afterClose bool
	closed := make(chan struct{})

	client := NewClient(server.URL, testKey, 0)
	sub, err := client.Subscribe(context.Background(), "chat-1", func(Message) {
		select {
		case <-closed:
			mu.Lock()
			afterClose = true
			mu.Unlock()
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe() = %v, want nil", err)
	}
	<-rs.joined

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
	close(closed)

	// Frames arriving after Close must not reach the callback.
	topic := "realtime:public:messages:chat_id=eq.chat-1"
	rs.push(insertFrame(t, topic, Message{ID: "late"}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if afterClose {
		t.Fatal("callback fired after Close returned")
	}

	// Close is idempotent.
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close() = %v, want nil", err)
	}
}

func TestRealtimeURLRejectsUnsupportedScheme(t *testing.T) {
	client := NewClient("ftp://example.com", testKey, 0)
	_, err := client.Subscribe(context.Background(), "chat-1", func(Message) {})
	if err == nil {
		t.Fatal("Subscribe() = nil, want scheme error")
	}
}
