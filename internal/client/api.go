package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// APIClient handles HTTP communication with the River API. Cookies set by
// the server are kept in a jar, so a session survives across calls.
type APIClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	jar        http.CookieJar
}

// NewAPIClient creates a new API client for baseURL
func NewAPIClient(baseURL string) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &APIClient{
		baseURL: u,
		jar:     jar,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Response types matching backend

type User struct {
	ID        uint    `json:"id"`
	Email     string  `json:"email"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

type Prompt struct {
	ID          uint     `json:"id"`
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Question    string   `json:"question"`
	Guidance    string   `json:"guidance"`
	Placeholder string   `json:"placeholder"`
	Examples    []string `json:"examples"`
	Optional    bool     `json:"optional"`
	Position    int      `json:"position"`
}

type Journal struct {
	ID          uint     `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Prompts     []Prompt `json:"prompts"`
}

// ServerState is the progress cursor as the server reports it.
type ServerState struct {
	ActiveStep  int     `json:"activeStep"`
	Todo        bool    `json:"todo"`
	SkippedAt   *string `json:"skippedAt"`
	LastUpdated *string `json:"lastUpdated"`
}

type JournalView struct {
	Journal   Journal           `json:"journal"`
	UserState *ServerState      `json:"userState"`
	Responses map[string]string `json:"responses"`
}

// Snapshot is the body of a save request.
type Snapshot struct {
	Responses  map[string]string `json:"responses"`
	ActiveStep int               `json:"activeStep"`
	Todo       bool              `json:"todo"`
	SkippedAt  *string           `json:"skippedAt"`
}

type SaveResponse struct {
	State     ServerState       `json:"state"`
	Responses map[string]string `json:"responses"`
}

// ProgressEvent is pushed over the events socket after each save.
type ProgressEvent struct {
	JournalID   uint              `json:"journalId"`
	JournalSlug string            `json:"journalSlug"`
	State       ServerState       `json:"state"`
	Responses   map[string]string `json:"responses"`
}

// APIError is a non-2xx response carrying the server's {error, message}.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api request failed (status %d)", e.Status)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
}

// SetSession installs a session cookie, e.g. one copied from a browser.
func (c *APIClient) SetSession(name, value string) {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Me returns the signed-in user, or nil for an anonymous session.
func (c *APIClient) Me(ctx context.Context) (*User, error) {
	var result struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &result); err != nil {
		return nil, err
	}
	return result.User, nil
}

func (c *APIClient) GetJournal(ctx context.Context, identifier string) (*JournalView, error) {
	var view JournalView
	if err := c.do(ctx, http.MethodGet, "/journals/"+url.PathEscape(identifier), nil, &view); err != nil {
		return nil, err
	}
	if view.Responses == nil {
		view.Responses = map[string]string{}
	}
	return &view, nil
}

func (c *APIClient) SaveResponses(ctx context.Context, identifier string, snap Snapshot) (*SaveResponse, error) {
	var result SaveResponse
	if err := c.do(ctx, http.MethodPut, "/journals/"+url.PathEscape(identifier)+"/responses", snap, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchProgress streams PROGRESS_SAVED events for the signed-in user until
// ctx is cancelled or the connection drops.
func (c *APIClient) WatchProgress(ctx context.Context, identifier string, fn func(ProgressEvent)) error {
	wsURL := *c.baseURL
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path += "/journals/" + url.PathEscape(identifier) + "/events"

	dialer := websocket.Dialer{
		Jar:              c.jar,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("failed to connect to events: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if msg.Type != "PROGRESS_SAVED" {
			continue
		}

		var event ProgressEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return fmt.Errorf("failed to decode progress event: %w", err)
		}
		fn(event)
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		bodyBytes, _ := io.ReadAll(resp.Body)
		json.Unmarshal(bodyBytes, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
