// Package client is a Go client for the forum REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forgeboard/forum/internal/domain/post"
	"github.com/forgeboard/forum/internal/domain/user"
)

// APIError is a non-2xx response decoded from the API error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Client calls the forum API. The zero value is not usable; use New.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, typically after Login.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, email, password string) (user.Summary, error) {
	var resp struct {
		User user.Summary `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &resp)
	return resp.User, err
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, identifier, password string) (user.Summary, error) {
	var resp struct {
		Token string       `json:"token"`
		User  user.Summary `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &resp)
	if err != nil {
		return user.Summary{}, err
	}
	c.token = resp.Token
	return resp.User, nil
}

// ListPosts returns all posts, newest first.
func (c *Client) ListPosts(ctx context.Context) ([]post.ListItem, error) {
	var items []post.ListItem
	err := c.do(ctx, http.MethodGet, "/posts", nil, &items)
	return items, err
}

// GetPost returns one post with its comments.
func (c *Client) GetPost(ctx context.Context, id int64) (post.Detail, error) {
	var detail post.Detail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/posts/%d", id), nil, &detail)
	return detail, err
}

// CreatePost publishes a new post.
func (c *Client) CreatePost(ctx context.Context, title, content string) (post.Post, error) {
	var resp struct {
		Post post.Post `json:"post"`
	}
	err := c.do(ctx, http.MethodPost, "/posts", map[string]string{
		"title":   title,
		"content": content,
	}, &resp)
	return resp.Post, err
}

// UpdatePost edits an existing post.
func (c *Client) UpdatePost(ctx context.Context, id int64, title, content string) (post.Post, error) {
	var resp struct {
		Post post.Post `json:"post"`
	}
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/posts/%d", id), map[string]string{
		"title":   title,
		"content": content,
	}, &resp)
	return resp.Post, err
}

// DeletePost removes a post and its comments.
func (c *Client) DeletePost(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/posts/%d", id), nil, nil)
}

// AddComment comments on a post.
func (c *Client) AddComment(ctx context.Context, postID int64, content string) (post.Comment, error) {
	var resp struct {
		Comment post.Comment `json:"comment"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/posts/%d/comments", postID), map[string]string{
		"content": content,
	}, &resp)
	return resp.Comment, err
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, postID, commentID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/posts/%d/comments/%d", postID, commentID), nil, nil)
}

// ListUsers returns all accounts. Requires an admin token.
func (c *Client) ListUsers(ctx context.Context) ([]user.Summary, error) {
	var all []user.Summary
	err := c.do(ctx, http.MethodGet, "/admin/users", nil, &all)
	return all, err
}

// UpdateUserRole changes an account's role. Requires an admin token.
func (c *Client) UpdateUserRole(ctx context.Context, id int64, role user.Role) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/admin/users/%d/role", id), map[string]string{
		"role": string(role),
	}, nil)
}

// DeleteUser removes an account. Requires an admin token.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/admin/users/%d", id), nil, nil)
}

// Health reports whether the API is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
