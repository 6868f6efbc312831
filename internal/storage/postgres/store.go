// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/forgeboard/forum/internal/domain/post"
	"github.com/forgeboard/forum/internal/domain/user"
	"github.com/forgeboard/forum/internal/storage"
)

// Store implements the storage interfaces over a sqlx database handle.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.CommentStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres, applies pool settings and verifies the
// connection with a bounded ping.
func Open(dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.Role == "" {
		u.Role = user.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, storage.ErrDuplicate
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, username, email, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) FindUserByIdentifier(ctx context.Context, identifier string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, username, email, password_hash, role, created_at
		FROM users
		WHERE username = $1 OR email = $1
	`, identifier)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	var out []user.User
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, username, email, password_hash, role, created_at
		FROM users
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id int64, role user.Role) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = $2 WHERE id = $1
	`, id, role)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM comments WHERE user_id = $1
	`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM comments WHERE post_id IN (SELECT id FROM posts WHERE user_id = $1)
	`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM posts WHERE user_id = $1
	`, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM users WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM users WHERE role = $1
	`, user.RoleAdmin)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// --- PostStore --------------------------------------------------------------

func (s *Store) CreatePost(ctx context.Context, p post.Post) (post.Post, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO posts (title, content, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.Title, p.Content, p.UserID, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return post.Post{}, err
	}
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id int64) (post.Post, error) {
	var p post.Post
	err := s.db.GetContext(ctx, &p, `
		SELECT id, title, content, user_id, created_at, updated_at
		FROM posts
		WHERE id = $1
	`, id)
	if err != nil {
		return post.Post{}, err
	}
	return p, nil
}

func (s *Store) GetPostDetail(ctx context.Context, id int64) (post.Detail, error) {
	var detail post.Detail
	err := s.db.GetContext(ctx, &detail, `
		SELECT p.id, p.title, p.content, p.user_id, p.created_at, p.updated_at,
		       u.username AS author_name
		FROM posts p
		JOIN users u ON p.user_id = u.id
		WHERE p.id = $1
	`, id)
	if err != nil {
		return post.Detail{}, err
	}

	detail.Comments = []post.CommentView{}
	err = s.db.SelectContext(ctx, &detail.Comments, `
		SELECT c.id, c.content, c.post_id, c.user_id, c.created_at,
		       u.username AS author_name
		FROM comments c
		JOIN users u ON c.user_id = u.id
		WHERE c.post_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`, id)
	if err != nil {
		return post.Detail{}, err
	}
	return detail, nil
}

func (s *Store) ListPosts(ctx context.Context) ([]post.ListItem, error) {
	out := []post.ListItem{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT p.id, p.title, p.content, p.user_id, p.created_at, p.updated_at,
		       u.username AS author_name,
		       (SELECT COUNT(*) FROM comments WHERE post_id = p.id) AS comment_count
		FROM posts p
		JOIN users u ON p.user_id = u.id
		ORDER BY p.created_at DESC, p.id DESC
	`)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdatePost(ctx context.Context, p post.Post) (post.Post, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET title = $2, content = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, p.Title, p.Content, p.UpdatedAt)
	if err != nil {
		return post.Post{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return post.Post{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM comments WHERE post_id = $1
	`, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM posts WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// --- CommentStore -----------------------------------------------------------

func (s *Store) CreateComment(ctx context.Context, c post.Comment) (post.Comment, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO comments (content, post_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.Content, c.PostID, c.UserID, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return post.Comment{}, err
	}
	return c, nil
}

func (s *Store) GetComment(ctx context.Context, id int64) (post.Comment, error) {
	var c post.Comment
	err := s.db.GetContext(ctx, &c, `
		SELECT id, content, post_id, user_id, created_at
		FROM comments
		WHERE id = $1
	`, id)
	if err != nil {
		return post.Comment{}, err
	}
	return c, nil
}

func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comments WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
