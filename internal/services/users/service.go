// Package users implements registration, login and admin user management.
package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/forgeboard/forum/internal/auth"
	"github.com/forgeboard/forum/internal/domain/user"
	apperrors "github.com/forgeboard/forum/internal/errors"
	"github.com/forgeboard/forum/internal/storage"
	"github.com/forgeboard/forum/pkg/logger"
)

// LoginResult carries the issued token and the authenticated user.
type LoginResult struct {
	Token string       `json:"token"`
	User  user.Summary `json:"user"`
}

// Service manages user accounts.
type Service struct {
	store  storage.UserStore
	tokens *auth.TokenManager
	log    *logger.Logger
}

// New constructs a user service.
func New(store storage.UserStore, tokens *auth.TokenManager, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, tokens: tokens, log: log}
}

// Register creates a new account with the default role.
func (s *Service) Register(ctx context.Context, username, email, password string) (user.Summary, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return user.Summary{}, apperrors.Validation("username, email and password are required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return user.Summary{}, apperrors.Internal("", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleUser,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return user.Summary{}, apperrors.Conflict("username or email already exists")
		}
		return user.Summary{}, apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).WithField("user_id", created.ID).Info("user registered")
	return created.Summarize(), nil
}

// Login verifies credentials against username or email and issues a token.
func (s *Service) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return LoginResult{}, apperrors.Validation("identifier and password are required")
	}

	u, err := s.store.FindUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoginResult{}, apperrors.Unauthorized("invalid credentials")
		}
		return LoginResult{}, apperrors.Internal("", err)
	}

	if !auth.CheckPassword(u.PasswordHash, password) {
		return LoginResult{}, apperrors.Unauthorized("invalid credentials")
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return LoginResult{}, apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).WithField("user_id", u.ID).Info("user logged in")
	return LoginResult{Token: token, User: u.Summarize()}, nil
}

// List returns all users, newest registration first.
func (s *Service) List(ctx context.Context) ([]user.Summary, error) {
	all, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	out := make([]user.Summary, 0, len(all))
	for _, u := range all {
		out = append(out, u.Summarize())
	}
	return out, nil
}

// UpdateRole changes a user's role. Demoting the last remaining admin is
// rejected so the system can never reach zero admins.
func (s *Service) UpdateRole(ctx context.Context, id int64, role user.Role) error {
	if !role.Valid() {
		return apperrors.Validation("role must be one of: user, admin")
	}

	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("user not found")
		}
		return apperrors.Internal("", err)
	}

	if target.Role.IsAdmin() && role == user.RoleUser {
		admins, err := s.store.CountAdmins(ctx)
		if err != nil {
			return apperrors.Internal("", err)
		}
		if admins <= 1 {
			return apperrors.Validation("cannot demote the last admin")
		}
	}

	if err := s.store.UpdateUserRole(ctx, id, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("user not found")
		}
		return apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).
		WithField("user_id", id).
		WithField("role", role).
		Info("user role updated")
	return nil
}

// Delete removes a user and all content they own. Self-deletion is rejected.
func (s *Service) Delete(ctx context.Context, id, callerID int64) error {
	if id == callerID {
		return apperrors.Validation("cannot delete your own account")
	}

	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("user not found")
		}
		return apperrors.Internal("", err)
	}

	s.log.WithContext(ctx).WithField("user_id", id).Info("user deleted")
	return nil
}

// EnsureAdmin seeds the bootstrap admin account when no admin row exists.
// Running it repeatedly never creates a second admin.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) error {
	admins, err := s.store.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if admins > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
	})
	if err != nil {
		// A concurrent seeder may have won the race.
		if errors.Is(err, storage.ErrDuplicate) {
			return nil
		}
		return err
	}

	s.log.WithField("user_id", created.ID).WithField("username", username).Info("bootstrap admin created")
	return nil
}
