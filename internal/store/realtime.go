package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lechat-terminal/internal/logging"
)

const (
	realtimePath      = "/realtime/v1/websocket"
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
)

// frame is the phoenix-channel envelope every realtime message travels in.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// changePayload is the body of a postgres change event. Only the new row is
// carried for inserts, which is all this client relies on.
type changePayload struct {
	Type   string  `json:"type"`
	Record Message `json:"record"`
}

type realtimeSubscription struct {
	conn     *websocket.Conn
	topic    string
	onInsert func(Message)

	writeMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Subscribe opens a realtime channel scoped to one chat and invokes onInsert
// for every message row inserted into it. The returned subscription must be
// closed when the chat is no longer displayed.
func (c *Client) Subscribe(ctx context.Context, chatID string, onInsert func(Message)) (Subscription, error) {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	sub := &realtimeSubscription{
		conn:     conn,
		topic:    fmt.Sprintf("realtime:public:messages:chat_id=eq.%s", chatID),
		onInsert: onInsert,
		done:     make(chan struct{}),
	}

	if err := sub.join(); err != nil {
		conn.Close()
		return nil, err
	}

	sub.wg.Add(2)
	go sub.readLoop()
	go sub.heartbeatLoop()

	return sub, nil
}

func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid store URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported store URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + realtimePath
	query := u.Query()
	query.Set("apikey", c.apiKey)
	query.Set("vsn", "1.0.0")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (s *realtimeSubscription) join() error {
	return s.write(frame{
		Topic:   s.topic,
		Event:   "phx_join",
		Payload: json.RawMessage("{}"),
		Ref:     uuid.New().String(),
	})
}

func (s *realtimeSubscription) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f)
}

func (s *realtimeSubscription) readLoop() {
	defer s.wg.Done()

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			select {
			case <-s.done:
				// Normal teardown.
			default:
				logging.Error("Realtime channel read failed: %v", err)
			}
			return
		}

		switch f.Event {
		case "phx_reply":
			var reply struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(f.Payload, &reply); err == nil && reply.Status != "ok" {
				logging.Error("Realtime channel %s reply: %s", f.Topic, reply.Status)
			}

		case "phx_error":
			logging.Error("Realtime channel %s errored", f.Topic)

		case "INSERT":
			if f.Topic != s.topic {
				continue
			}
			var change changePayload
			if err := json.Unmarshal(f.Payload, &change); err != nil {
				logging.Error("Failed to decode realtime insert: %v", err)
				continue
			}
			select {
			case <-s.done:
				return
			default:
				s.onInsert(change.Record)
			}
		}
	}
}

func (s *realtimeSubscription) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			hb := frame{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage("{}"),
				Ref:     uuid.New().String(),
			}
			if err := s.write(hb); err != nil {
				logging.Error("Realtime heartbeat failed: %v", err)
				return
			}
		}
	}
}

// Close tears the channel down. It blocks until the read loop has exited, so
// no onInsert callback fires after it returns.
func (s *realtimeSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
		s.wg.Wait()
	})
	return nil
}
