// Package oleg provides a client for the Oleg chat server HTTP API.
package oleg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultURL is used when no server URL is configured.
const DefaultURL = "http://localhost:8080"

// Client is an Oleg API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
	Reason  string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("oleg error %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("oleg error %d: %s", e.Status, e.Message)
}

// NewClient creates a new client. token may be empty until Login.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request and returns the response body.
func (c *Client) doRequest(method, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, &Error{Status: resp.StatusCode, Message: errResp.Error, Reason: errResp.Reason}
	}

	return respBody, nil
}

// call sends in as JSON and decodes the response into out when non-nil.
func (c *Client) call(method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	respBody, err := c.doRequest(method, path, "application/json", body)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the public view of an account.
type User struct {
	Username   string `json:"username"`
	Online     bool   `json:"online"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Bio        string `json:"bio,omitempty"`
	StatusText string `json:"status_text,omitempty"`
}

// Register creates an account.
func (c *Client) Register(username, password string) (*User, error) {
	var u User
	if err := c.call("POST", "/api/register", credentials{username, password}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login obtains a session token and keeps it on the client.
func (c *Client) Login(username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.call("POST", "/api/login", credentials{username, password}, &resp); err != nil {
		return "", err
	}
	c.Token = resp.Token
	return resp.Token, nil
}

// Logout revokes the session token.
func (c *Client) Logout() error {
	if err := c.call("POST", "/api/logout", nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

// SearchUsers finds users whose name contains query.
func (c *Client) SearchUsers(query string) ([]User, error) {
	var users []User
	err := c.call("GET", "/api/user_search?q="+url.QueryEscape(query), nil, &users)
	return users, err
}

// Guild is a summary of a guild.
type Guild struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// ListGuilds lists the guilds the caller belongs to.
func (c *Client) ListGuilds() ([]Guild, error) {
	var guilds []Guild
	err := c.call("GET", "/api/guilds", nil, &guilds)
	return guilds, err
}

// Message is a chat message.
type Message struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Pinned    bool   `json:"pinned"`
}

// MessagesPage is one page of a room's history.
type MessagesPage struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
}

// GetMessages retrieves one page of a room.
func (c *Client) GetMessages(room string, page, limit int) (*MessagesPage, error) {
	path := fmt.Sprintf("/api/rooms/%s/messages?page=%d&limit=%d", url.PathEscape(room), page, limit)
	var resp MessagesPage
	if err := c.call("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats are server counters.
type Stats struct {
	Users       int    `json:"users"`
	OnlineUsers int    `json:"online_users"`
	Guilds      int    `json:"guilds"`
	Rooms       int    `json:"rooms"`
	Messages    int    `json:"messages"`
	Connections int    `json:"connections"`
	Started     string `json:"started"`
}

// Stats fetches server counters.
func (c *Client) Stats() (*Stats, error) {
	var resp Stats
	if err := c.call("GET", "/api/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Export downloads the full state snapshot. Admin only.
func (c *Client) Export() ([]byte, error) {
	return c.doRequest("GET", "/api/admin/export", "", nil)
}

// Import replaces the server state with a snapshot and returns the
// resulting counters. Admin only.
func (c *Client) Import(snapshot []byte) (*Stats, error) {
	respBody, err := c.doRequest("POST", "/api/admin/import", "application/json", snapshot)
	if err != nil {
		return nil, err
	}
	var resp Stats
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Region    string                 `json:"region,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503, which is
// reported as a degraded status rather than an error.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", "", nil)
	if err != nil {
		if e, ok := err.(*Error); !ok || e.Status != http.StatusServiceUnavailable {
			return nil, err
		}
		return &HealthResponse{Status: "degraded"}, nil
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
