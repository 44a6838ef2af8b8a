// Package transport is the client side of the dev server protocol: a
// ChatService over HTTP/JSON and a WebSocket event feed that applies live
// updates to the store.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatline/internal/domain"
)

// Client implements domain.ChatService against a dev server instance.
type Client struct {
	baseURL string
	token   string
	user    domain.User
	http    *http.Client
}

var _ domain.ChatService = (*Client)(nil)

// Dial opens a session against the server: fetches a token for the given
// user and returns a ready client. userID 0 means the server default.
func Dial(ctx context.Context, baseURL string, userID int64) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	path := "/api/session"
	if userID != 0 {
		path += "?user_id=" + strconv.FormatInt(userID, 10)
	}
	var res struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	c.token = res.Token
	c.user = res.User
	return c, nil
}

// Token exposes the session token; the event feed dials with it.
func (c *Client) Token() string { return c.token }

func (c *Client) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	u := c.user
	return &u, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var res []domain.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var res []domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) CreateOrGetConversation(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	if userA == userB {
		return nil, domain.ErrSelfConversation
	}
	// The session identifies userA; the request carries the other party.
	other := userB
	if other == c.user.ID {
		other = userA
	}
	body := map[string]int64{"user_id": other}
	var res domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var res []domain.Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) SendMessage(ctx context.Context, in domain.SendMessageInput) (*domain.Message, error) {
	body := map[string]string{"body": in.Body, "image": in.Image, "doc": in.Doc}
	path := "/api/conversations/" + url.PathEscape(in.ConversationID) + "/messages"
	var res domain.Message
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) MarkMessagesAsSeen(ctx context.Context, messageIDs []string, userID int64) error {
	body := map[string][]string{"message_ids": messageIDs}
	return c.do(ctx, http.MethodPost, "/api/messages/seen", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
