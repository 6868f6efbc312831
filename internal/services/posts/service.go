// Package posts implements post and comment operations with ownership checks.
package posts

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/forgeboard/forum/internal/domain/post"
	"github.com/forgeboard/forum/internal/domain/user"
	apperrors "github.com/forgeboard/forum/internal/errors"
	"github.com/forgeboard/forum/internal/storage"
	"github.com/forgeboard/forum/pkg/logger"
)

// Caller identifies the authenticated user performing an operation.
type Caller struct {
	UserID int64
	Role   user.Role
}

// CanModify reports whether the caller owns the resource or is an admin.
func (c Caller) CanModify(ownerID int64) bool {
	return c.UserID == ownerID || c.Role.IsAdmin()
}

// Service manages posts and comments.
type Service struct {
	posts    storage.PostStore
	comments storage.CommentStore
	log      *logger.Logger
}

// New constructs a post service.
func New(posts storage.PostStore, comments storage.CommentStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("posts")
	}
	return &Service{posts: posts, comments: comments, log: log}
}

// List returns all posts newest-first with author names and comment counts.
func (s *Service) List(ctx context.Context) ([]post.ListItem, error) {
	items, err := s.posts.ListPosts(ctx)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if items == nil {
		items = []post.ListItem{}
	}
	return items, nil
}

// Get returns a single post with its comments, oldest-first.
func (s *Service) Get(ctx context.Context, id int64) (post.Detail, error) {
	detail, err := s.posts.GetPostDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return post.Detail{}, apperrors.NotFound("post not found")
		}
		return post.Detail{}, apperrors.Internal("", err)
	}
	return detail, nil
}

// Create persists a new post for the caller.
func (s *Service) Create(ctx context.Context, title, content string, caller Caller) (post.Post, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return post.Post{}, apperrors.Validation("title and content are required")
	}

	created, err := s.posts.CreatePost(ctx, post.Post{
		Title:   title,
		Content: content,
		UserID:  caller.UserID,
	})
	if err != nil {
		return post.Post{}, apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).
		WithField("post_id", created.ID).
		WithField("user_id", caller.UserID).
		Info("post created")
	return created, nil
}

// Update edits a post's title and content, owner or admin only.
func (s *Service) Update(ctx context.Context, id int64, title, content string, caller Caller) (post.Post, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return post.Post{}, apperrors.Validation("title and content are required")
	}

	existing, err := s.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return post.Post{}, apperrors.NotFound("post not found")
		}
		return post.Post{}, apperrors.Internal("", err)
	}
	if !caller.CanModify(existing.UserID) {
		return post.Post{}, apperrors.Forbidden("not authorized to edit this post")
	}

	existing.Title = title
	existing.Content = content
	updated, err := s.posts.UpdatePost(ctx, existing)
	if err != nil {
		return post.Post{}, apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).WithField("post_id", id).Info("post updated")
	return updated, nil
}

// Delete removes a post and its comments, owner or admin only. The
// cascade runs inside one store transaction.
func (s *Service) Delete(ctx context.Context, id int64, caller Caller) error {
	existing, err := s.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("post not found")
		}
		return apperrors.Internal("", err)
	}
	if !caller.CanModify(existing.UserID) {
		return apperrors.Forbidden("not authorized to delete this post")
	}

	if err := s.posts.DeletePost(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("post not found")
		}
		return apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).WithField("post_id", id).Info("post deleted")
	return nil
}

// AddComment creates a comment under an existing post.
func (s *Service) AddComment(ctx context.Context, postID int64, content string, caller Caller) (post.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return post.Comment{}, apperrors.Validation("comment content is required")
	}

	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return post.Comment{}, apperrors.NotFound("post not found")
		}
		return post.Comment{}, apperrors.Internal("", err)
	}

	created, err := s.comments.CreateComment(ctx, post.Comment{
		Content: content,
		PostID:  postID,
		UserID:  caller.UserID,
	})
	if err != nil {
		return post.Comment{}, apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).
		WithField("comment_id", created.ID).
		WithField("post_id", postID).
		Info("comment created")
	return created, nil
}

// DeleteComment removes a comment under the given post, owner or admin only.
func (s *Service) DeleteComment(ctx context.Context, postID, commentID int64, caller Caller) error {
	existing, err := s.comments.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("comment not found")
		}
		return apperrors.Internal("", err)
	}
	if existing.PostID != postID {
		return apperrors.NotFound("comment not found")
	}
	if !caller.CanModify(existing.UserID) {
		return apperrors.Forbidden("not authorized to delete this comment")
	}

	if err := s.comments.DeleteComment(ctx, commentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("comment not found")
		}
		return apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).WithField("comment_id", commentID).Info("comment deleted")
	return nil
}
