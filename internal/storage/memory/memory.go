// Package memory provides an in-memory store used by tests and local runs
// without a database.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/forgeboard/forum/internal/domain/post"
	"github.com/forgeboard/forum/internal/domain/user"
	"github.com/forgeboard/forum/internal/storage"
)

// Store implements the storage interfaces with maps guarded by a mutex.
type Store struct {
	mu sync.RWMutex

	users    map[int64]user.User
	posts    map[int64]post.Post
	comments map[int64]post.Comment

	nextUserID    int64
	nextPostID    int64
	nextCommentID int64
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.CommentStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[int64]user.User),
		posts:    make(map[int64]post.Post),
		comments: make(map[int64]post.Comment),
	}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Exact-match uniqueness, same collation as the Postgres constraints.
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return user.User{}, storage.ErrDuplicate
		}
	}

	s.nextUserID++
	u.ID = s.nextUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) FindUserByIdentifier(ctx context.Context, identifier string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return user.User{}, sql.ErrNoRows
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	// Newest registration first; fall back to id for equal timestamps.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id int64, role user.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	s.users[id] = u
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return sql.ErrNoRows
	}

	for cid, c := range s.comments {
		if c.UserID == id {
			delete(s.comments, cid)
		}
	}
	for pid, p := range s.posts {
		if p.UserID != id {
			continue
		}
		for cid, c := range s.comments {
			if c.PostID == pid {
				delete(s.comments, cid)
			}
		}
		delete(s.posts, pid)
	}
	delete(s.users, id)
	return nil
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.users {
		if u.Role == user.RoleAdmin {
			count++
		}
	}
	return count, nil
}

// --- PostStore --------------------------------------------------------------

func (s *Store) CreatePost(ctx context.Context, p post.Post) (post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPostID++
	p.ID = s.nextPostID
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	s.posts[p.ID] = p
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id int64) (post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return post.Post{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetPostDetail(ctx context.Context, id int64) (post.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return post.Detail{}, sql.ErrNoRows
	}

	detail := post.Detail{
		Post:       p,
		AuthorName: s.usernameLocked(p.UserID),
		Comments:   []post.CommentView{},
	}
	for _, c := range s.comments {
		if c.PostID == id {
			detail.Comments = append(detail.Comments, post.CommentView{
				Comment:    c,
				AuthorName: s.usernameLocked(c.UserID),
			})
		}
	}
	sort.Slice(detail.Comments, func(i, j int) bool {
		if detail.Comments[i].CreatedAt.Equal(detail.Comments[j].CreatedAt) {
			return detail.Comments[i].ID < detail.Comments[j].ID
		}
		return detail.Comments[i].CreatedAt.Before(detail.Comments[j].CreatedAt)
	})
	return detail, nil
}

func (s *Store) ListPosts(ctx context.Context) ([]post.ListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int)
	for _, c := range s.comments {
		counts[c.PostID]++
	}

	out := make([]post.ListItem, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, post.ListItem{
			Post:         p,
			AuthorName:   s.usernameLocked(p.UserID),
			CommentCount: counts[p.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdatePost(ctx context.Context, p post.Post) (post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.posts[p.ID]
	if !ok {
		return post.Post{}, sql.ErrNoRows
	}
	existing.Title = p.Title
	existing.Content = p.Content
	existing.UpdatedAt = time.Now().UTC()
	s.posts[p.ID] = existing
	return existing, nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return sql.ErrNoRows
	}
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	delete(s.posts, id)
	return nil
}

// --- CommentStore -----------------------------------------------------------

func (s *Store) CreateComment(ctx context.Context, c post.Comment) (post.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCommentID++
	c.ID = s.nextCommentID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.comments[c.ID] = c
	return c, nil
}

func (s *Store) GetComment(ctx context.Context, id int64) (post.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return post.Comment{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.comments, id)
	return nil
}

func (s *Store) usernameLocked(userID int64) string {
	if u, ok := s.users[userID]; ok {
		return u.Username
	}
	return ""
}
