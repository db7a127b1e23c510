package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"
)

const defaultHTTPTimeout = 15 * time.Second

// API is the chat HTTP surface the views depend on.
type API interface {
	Conversations(ctx context.Context) ([]model.Conversation, error)
	History(ctx context.Context, key model.ConversationKey, page, pageSize int) ([]model.Message, error)
	Send(ctx context.Context, key model.ConversationKey, content string) (*model.Message, error)
	MarkAsRead(ctx context.Context, key model.ConversationKey) error
}

// HTTPClient talks to the chat server's REST API with a bearer token.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type envelope struct {
	HttpStatusCode int             `json:"HttpStatusCode"`
	ResponseBody   json.RawMessage `json:"ResponseBody"`
	IsSuccess      bool            `json:"IsSuccess"`
	Message        string          `json:"Message"`
}

func (c *HTTPClient) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var cvs []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/chat/api/conversations", nil, nil, &cvs); err != nil {
		return nil, err
	}
	return cvs, nil
}

func (c *HTTPClient) History(ctx context.Context, key model.ConversationKey, page, pageSize int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if key.BookID != "" {
		q.Set("bookId", key.BookID)
	}

	var msgs []model.Message
	if err := c.do(ctx, http.MethodGet, messagesPath(key), q, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *HTTPClient) Send(ctx context.Context, key model.ConversationKey, content string) (*model.Message, error) {
	body := map[string]string{"content": content}
	if key.BookID != "" {
		body["bookId"] = key.BookID
	}

	var msg model.Message
	if err := c.do(ctx, http.MethodPost, messagesPath(key), nil, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPClient) MarkAsRead(ctx context.Context, key model.ConversationKey) error {
	q := url.Values{}
	if key.BookID != "" {
		q.Set("bookId", key.BookID)
	}
	return c.do(ctx, http.MethodPut, messagesPath(key)+"/read", q, nil, nil)
}

// UnreadCount returns the total unread messages addressed to the caller.
func (c *HTTPClient) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/api/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.IsSuccess {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	if out == nil || len(env.ResponseBody) == 0 || string(env.ResponseBody) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.ResponseBody, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func messagesPath(key model.ConversationKey) string {
	return "/chat/api/messages/" + url.PathEscape(key.OtherUserID.String())
}
