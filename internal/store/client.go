package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const restPrefix = "/rest/v1"

// Client talks to the hosted conversation store over HTTPS. The REST surface
// is PostgREST-style: tables addressed by path, filters and ordering passed
// as query parameters, inserts returning the created row when asked to.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateChat inserts a chat row and returns it. An empty title falls back to
// the default one.
func (c *Client) CreateChat(ctx context.Context, title string) (Chat, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultChatTitle
	}

	payload := []map[string]string{{"title": title}}
	var rows []Chat
	if err := c.do(ctx, http.MethodPost, "/chats", nil, payload, &rows); err != nil {
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}
	if len(rows) == 0 {
		return Chat{}, fmt.Errorf("create chat: store returned no row")
	}
	return rows[0], nil
}

// ListChats returns all chats, newest first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "created_at.desc")

	var chats []Chat
	if err := c.do(ctx, http.MethodGet, "/chats", query, nil, &chats); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes a chat. The backend cascades the delete to the chat's
// messages.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	query := url.Values{}
	query.Set("id", "eq."+chatID)

	if err := c.do(ctx, http.MethodDelete, "/chats", query, nil, nil); err != nil {
		return fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return nil
}

// ListMessages returns the full history of a chat, oldest first.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("chat_id", "eq."+chatID)
	query.Set("order", "created_at.asc")

	var messages []Message
	if err := c.do(ctx, http.MethodGet, "/messages", query, nil, &messages); err != nil {
		return nil, fmt.Errorf("list messages for chat %s: %w", chatID, err)
	}
	return messages, nil
}

// InsertMessage persists a message and returns the created row, including
// the server-assigned id and timestamp.
func (c *Client) InsertMessage(ctx context.Context, msg NewMessage) (Message, error) {
	var rows []Message
	if err := c.do(ctx, http.MethodPost, "/messages", nil, []NewMessage{msg}, &rows); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if len(rows) == 0 {
		return Message{}, fmt.Errorf("insert message: store returned no row")
	}
	return rows[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + restPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		// Inserts must echo the created row back so the caller learns the
		// server-assigned id and timestamp.
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, storeErrorMessage(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// storeErrorMessage pulls the human-readable message out of a PostgREST
// error body, falling back to the raw body.
func storeErrorMessage(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(body))
}
