// Package storage declares the persistence interfaces consumed by the
// domain services. Implementations report an absent row as sql.ErrNoRows
// and a uniqueness violation as ErrDuplicate.
package storage

import (
	"context"
	"errors"

	"github.com/forgeboard/forum/internal/domain/post"
	"github.com/forgeboard/forum/internal/domain/user"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate value")

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id int64) (user.User, error)
	// FindUserByIdentifier resolves a login identifier against username
	// or email.
	FindUserByIdentifier(ctx context.Context, identifier string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUserRole(ctx context.Context, id int64, role user.Role) error
	// DeleteUser removes the user together with their comments, the
	// comments under their posts, and their posts, atomically.
	DeleteUser(ctx context.Context, id int64) error
	CountAdmins(ctx context.Context) (int, error)
}

// PostStore persists posts and their annotated read views.
type PostStore interface {
	CreatePost(ctx context.Context, p post.Post) (post.Post, error)
	GetPost(ctx context.Context, id int64) (post.Post, error)
	// GetPostDetail returns the post with author name and its comments
	// ordered oldest-first.
	GetPostDetail(ctx context.Context, id int64) (post.Detail, error)
	// ListPosts returns all posts newest-first with author names and
	// derived comment counts.
	ListPosts(ctx context.Context) ([]post.ListItem, error)
	UpdatePost(ctx context.Context, p post.Post) (post.Post, error)
	// DeletePost removes the post and its comments atomically.
	DeletePost(ctx context.Context, id int64) error
}

// CommentStore persists comments.
type CommentStore interface {
	CreateComment(ctx context.Context, c post.Comment) (post.Comment, error)
	GetComment(ctx context.Context, id int64) (post.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
}
