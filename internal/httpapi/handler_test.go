package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgeboard/forum/internal/auth"
	"github.com/forgeboard/forum/internal/domain/user"
	"github.com/forgeboard/forum/internal/middleware"
	"github.com/forgeboard/forum/internal/services/posts"
	"github.com/forgeboard/forum/internal/services/users"
	"github.com/forgeboard/forum/internal/storage/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store := memory.New()
	tokens, err := auth.NewTokenManager("test-secret", 0)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	userSvc := users.New(store, tokens, nil)
	postSvc := posts.New(store, store, nil)

	if err := userSvc.EnsureAdmin(context.Background(), "admin", "admin@forum.com", "admin123"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	h := NewHandler(userSvc, postSvc, nil)
	return h.Router(middleware.NewAuthMiddleware(tokens, nil), Options{})
}

func marshal(v any) []byte {
	buf, _ := json.Marshal(v)
	return buf
}

func doJSON(handler http.Handler, method, url, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func loginAs(t *testing.T, handler http.Handler, identifier, password string) string {
	t.Helper()
	resp := doJSON(handler, http.MethodPost, "/auth/login", "", marshal(map[string]any{
		"identifier": identifier,
		"password":   password,
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", identifier, resp.Code, resp.Body.String())
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if result.Token == "" {
		t.Fatal("login returned empty token")
	}
	return result.Token
}

func TestHandlerLifecycle(t *testing.T) {
	handler := newTestRouter(t)

	// Register alice and log in.
	resp := doJSON(handler, http.MethodPost, "/auth/register", "", marshal(map[string]any{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "pw123",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 register, got %d: %s", resp.Code, resp.Body.String())
	}

	aliceToken := loginAs(t, handler, "alice", "pw123")

	// Create a post.
	resp = doJSON(handler, http.MethodPost, "/posts", aliceToken, marshal(map[string]any{
		"title":   "Hi",
		"content": "Hello",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create post, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Post struct {
			ID int64 `json:"id"`
		} `json:"post"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.Post.ID <= 0 {
		t.Fatalf("expected positive post id, got %d", created.Post.ID)
	}
	postURL := fmt.Sprintf("/posts/%d", created.Post.ID)

	// The new post comes back with its author name and an empty comment list.
	resp = doJSON(handler, http.MethodGet, postURL, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get post, got %d", resp.Code)
	}
	var detail struct {
		Title      string `json:"title"`
		Content    string `json:"content"`
		AuthorName string `json:"author_name"`
		Comments   []any  `json:"comments"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Title != "Hi" || detail.Content != "Hello" {
		t.Fatalf("unexpected post body: %+v", detail)
	}
	if detail.AuthorName != "alice" {
		t.Fatalf("author_name = %q, want alice", detail.AuthorName)
	}
	if detail.Comments == nil || len(detail.Comments) != 0 {
		t.Fatalf("expected empty comments array, got %v", detail.Comments)
	}

	// List shows the post with its comment count.
	resp = doJSON(handler, http.MethodGet, "/posts", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 list posts, got %d", resp.Code)
	}
	var list []struct {
		ID           int64  `json:"id"`
		AuthorName   string `json:"author_name"`
		CommentCount int    `json:"comment_count"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.Post.ID || list[0].CommentCount != 0 {
		t.Fatalf("unexpected list: %+v", list)
	}

	// Add a comment and see the count change.
	resp = doJSON(handler, http.MethodPost, postURL+"/comments", aliceToken, marshal(map[string]any{
		"content": "first!",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 add comment, got %d: %s", resp.Code, resp.Body.String())
	}
	var commented struct {
		Comment struct {
			ID int64 `json:"id"`
		} `json:"comment"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &commented); err != nil {
		t.Fatalf("unmarshal comment response: %v", err)
	}

	resp = doJSON(handler, http.MethodGet, "/posts", "", nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list[0].CommentCount != 1 {
		t.Fatalf("comment_count = %d, want 1", list[0].CommentCount)
	}

	// Update the post.
	resp = doJSON(handler, http.MethodPut, postURL, aliceToken, marshal(map[string]any{
		"title":   "Hi again",
		"content": "Hello again",
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 update post, got %d: %s", resp.Code, resp.Body.String())
	}

	// Delete the comment, then the post.
	resp = doJSON(handler, http.MethodDelete, fmt.Sprintf("%s/comments/%d", postURL, commented.Comment.ID), aliceToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 delete comment, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(handler, http.MethodDelete, postURL, aliceToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 delete post, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(handler, http.MethodGet, postURL, "", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestHandlerAuthRequired(t *testing.T) {
	handler := newTestRouter(t)

	tests := []struct {
		method string
		url    string
	}{
		{http.MethodPost, "/posts"},
		{http.MethodPut, "/posts/1"},
		{http.MethodDelete, "/posts/1"},
		{http.MethodPost, "/posts/1/comments"},
		{http.MethodDelete, "/posts/1/comments/1"},
		{http.MethodGet, "/admin/users"},
		{http.MethodPut, "/admin/users/1/role"},
		{http.MethodDelete, "/admin/users/1"},
	}

	for _, tt := range tests {
		resp := doJSON(handler, tt.method, tt.url, "", nil)
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tt.method, tt.url, resp.Code)
		}
	}
}

func TestHandlerRegisterConflict(t *testing.T) {
	handler := newTestRouter(t)

	body := marshal(map[string]any{"username": "bob", "email": "bob@x.com", "password": "pw"})
	resp := doJSON(handler, http.MethodPost, "/auth/register", "", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	resp = doJSON(handler, http.MethodPost, "/auth/register", "", body)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 duplicate, got %d: %s", resp.Code, resp.Body.String())
	}

	var errResp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if errResp.Error.Code != "CONFLICT" {
		t.Errorf("error code = %q, want CONFLICT", errResp.Error.Code)
	}
}

func TestHandlerRegisterMissingFields(t *testing.T) {
	handler := newTestRouter(t)

	resp := doJSON(handler, http.MethodPost, "/auth/register", "", marshal(map[string]any{
		"username": "nopass",
	}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHandlerLoginBadCredentials(t *testing.T) {
	handler := newTestRouter(t)

	resp := doJSON(handler, http.MethodPost, "/auth/login", "", marshal(map[string]any{
		"identifier": "admin",
		"password":   "wrong",
	}))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestHandlerOwnership(t *testing.T) {
	handler := newTestRouter(t)

	for _, u := range []string{"alice", "bob"} {
		resp := doJSON(handler, http.MethodPost, "/auth/register", "", marshal(map[string]any{
			"username": u,
			"email":    u + "@x.com",
			"password": "pw123",
		}))
		if resp.Code != http.StatusCreated {
			t.Fatalf("register %s: got %d", u, resp.Code)
		}
	}
	aliceToken := loginAs(t, handler, "alice", "pw123")
	bobToken := loginAs(t, handler, "bob", "pw123")

	resp := doJSON(handler, http.MethodPost, "/posts", aliceToken, marshal(map[string]any{
		"title": "mine", "content": "hands off",
	}))
	var created struct {
		Post struct {
			ID int64 `json:"id"`
		} `json:"post"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	postURL := fmt.Sprintf("/posts/%d", created.Post.ID)

	// Bob can neither edit nor delete alice's post.
	resp = doJSON(handler, http.MethodPut, postURL, bobToken, marshal(map[string]any{
		"title": "stolen", "content": "mine now",
	}))
	if resp.Code != http.StatusForbidden {
		t.Errorf("bob update: expected 403, got %d", resp.Code)
	}
	resp = doJSON(handler, http.MethodDelete, postURL, bobToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("bob delete: expected 403, got %d", resp.Code)
	}

	// An admin can.
	adminToken := loginAs(t, handler, "admin", "admin123")
	resp = doJSON(handler, http.MethodDelete, postURL, adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("admin delete: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerAdminRoutes(t *testing.T) {
	handler := newTestRouter(t)

	resp := doJSON(handler, http.MethodPost, "/auth/register", "", marshal(map[string]any{
		"username": "carol", "email": "carol@x.com", "password": "pw123",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("register: got %d", resp.Code)
	}
	var reg struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	carolToken := loginAs(t, handler, "carol", "pw123")
	adminToken := loginAs(t, handler, "admin", "admin123")

	// Non-admin callers are rejected.
	resp = doJSON(handler, http.MethodGet, "/admin/users", carolToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("non-admin list: expected 403, got %d", resp.Code)
	}

	// Admin sees both users, without password material.
	resp = doJSON(handler, http.MethodGet, "/admin/users", adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin list: expected 200, got %d", resp.Code)
	}
	if bytes.Contains(resp.Body.Bytes(), []byte("password")) {
		t.Error("user listing leaks password material")
	}
	var listed []struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 users, got %d", len(listed))
	}

	// Promote carol, then demote again.
	roleURL := fmt.Sprintf("/admin/users/%d/role", reg.User.ID)
	resp = doJSON(handler, http.MethodPut, roleURL, adminToken, marshal(map[string]any{"role": "admin"}))
	if resp.Code != http.StatusOK {
		t.Fatalf("promote: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(handler, http.MethodPut, roleURL, adminToken, marshal(map[string]any{"role": "user"}))
	if resp.Code != http.StatusOK {
		t.Fatalf("demote: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Invalid role value.
	resp = doJSON(handler, http.MethodPut, roleURL, adminToken, marshal(map[string]any{"role": "root"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("invalid role: expected 400, got %d", resp.Code)
	}

	// Unknown user.
	resp = doJSON(handler, http.MethodPut, "/admin/users/9999/role", adminToken, marshal(map[string]any{"role": "admin"}))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", resp.Code)
	}

	// Delete carol.
	resp = doJSON(handler, http.MethodDelete, fmt.Sprintf("/admin/users/%d", reg.User.ID), adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("delete user: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Carol's token still verifies but her account is gone from the listing.
	resp = doJSON(handler, http.MethodGet, "/admin/users", adminToken, nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(listed) != 1 || listed[0].Username != "admin" {
		t.Fatalf("unexpected users after delete: %+v", listed)
	}
}

func TestHandlerAdminSelfDelete(t *testing.T) {
	handler := newTestRouter(t)
	adminToken := loginAs(t, handler, "admin", "admin123")

	resp := doJSON(handler, http.MethodGet, "/admin/users", adminToken, nil)
	var listed []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}

	resp = doJSON(handler, http.MethodDelete, fmt.Sprintf("/admin/users/%d", listed[0].ID), adminToken, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("self delete: expected 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerCommentOnMissingPost(t *testing.T) {
	handler := newTestRouter(t)
	adminToken := loginAs(t, handler, "admin", "admin123")

	resp := doJSON(handler, http.MethodPost, "/posts/42/comments", adminToken, marshal(map[string]any{
		"content": "into the void",
	}))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestHandlerRateLimitPerUser(t *testing.T) {
	store := memory.New()
	tokens, err := auth.NewTokenManager("test-secret", 0)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	userSvc := users.New(store, tokens, nil)
	postSvc := posts.New(store, store, nil)

	ctx := context.Background()
	tokenFor := func(username string) string {
		summary, err := userSvc.Register(ctx, username, username+"@x.com", "pw123")
		if err != nil {
			t.Fatalf("register %s: %v", username, err)
		}
		token, err := tokens.Issue(user.User{ID: summary.ID, Username: username, Role: user.RoleUser})
		if err != nil {
			t.Fatalf("issue token for %s: %v", username, err)
		}
		return token
	}
	aliceToken := tokenFor("alice")
	bobToken := tokenFor("bob")

	h := NewHandler(userSvc, postSvc, nil)
	handler := h.Router(middleware.NewAuthMiddleware(tokens, nil), Options{
		RateLimiter: middleware.NewRateLimiter(1, 1, nil),
	})

	// httptest gives every request the same remote address, so this is two
	// authenticated users behind one NAT. Each gets their own bucket.
	body := marshal(map[string]any{"title": "t", "content": "c"})
	resp := doJSON(handler, http.MethodPost, "/posts", aliceToken, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("alice create: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(handler, http.MethodPost, "/posts", bobToken, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("bob create: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	// The same user exhausting their own bucket is throttled.
	resp = doJSON(handler, http.MethodPost, "/posts", aliceToken, body)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("alice repeat: expected 429, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerHealthAndMetrics(t *testing.T) {
	handler := newTestRouter(t)

	resp := doJSON(handler, http.MethodGet, "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.Code)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}

	resp = doJSON(handler, http.MethodGet, "/metrics", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.Code)
	}
	if resp.Body.Len() == 0 {
		t.Error("expected metrics output to be non-empty")
	}
}

func TestHandlerUnknownRoute(t *testing.T) {
	handler := newTestRouter(t)

	resp := doJSON(handler, http.MethodGet, "/nope", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
