// Package post defines post and comment models plus their annotated read views.
package post

import "time"

// Post is a top-level forum entry.
type Post struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	UserID    int64     `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Comment is a reply under a post. Comments cannot be edited.
type Comment struct {
	ID        int64     `json:"id" db:"id"`
	Content   string    `json:"content" db:"content"`
	PostID    int64     `json:"post_id" db:"post_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ListItem is a post annotated for the list view: author display name and
// a comment count derived per request, not stored.
type ListItem struct {
	Post
	AuthorName   string `json:"author_name" db:"author_name"`
	CommentCount int    `json:"comment_count" db:"comment_count"`
}

// CommentView is a comment annotated with its author's display name.
type CommentView struct {
	Comment
	AuthorName string `json:"author_name" db:"author_name"`
}

// Detail is the full single-post view including its comments oldest-first.
type Detail struct {
	Post
	AuthorName string        `json:"author_name" db:"author_name"`
	Comments   []CommentView `json:"comments"`
}
