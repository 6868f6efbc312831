// Package httpapi exposes the forum REST API over gorilla/mux.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/forgeboard/forum/internal/errors"
	"github.com/forgeboard/forum/internal/metrics"
	"github.com/forgeboard/forum/internal/middleware"
	"github.com/forgeboard/forum/internal/services/posts"
	"github.com/forgeboard/forum/internal/services/users"
	"github.com/forgeboard/forum/pkg/logger"
)

// Handler bundles the HTTP endpoints for the forum services.
type Handler struct {
	users *users.Service
	posts *posts.Service
	log   *logger.Logger
}

// Options configures optional router behavior.
type Options struct {
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSMiddleware
}

// NewHandler constructs the API handler.
func NewHandler(userSvc *users.Service, postSvc *posts.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{users: userSvc, posts: postSvc, log: log}
}

// Router builds the full route tree with middleware applied.
func (h *Handler) Router(authMW *middleware.AuthMiddleware, opts Options) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.LoggingMiddleware(h.log))
	r.Use(middleware.MetricsMiddleware())

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Public routes are throttled per remote address.
	public := r.NewRoute().Subrouter()
	if opts.RateLimiter != nil {
		public.Use(opts.RateLimiter.Handler)
	}
	public.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	public.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	public.HandleFunc("/posts", h.listPosts).Methods(http.MethodGet)
	public.HandleFunc("/posts/{id:[0-9]+}", h.getPost).Methods(http.MethodGet)

	// Authenticated routes run the limiter after auth so callers are
	// throttled per user id rather than per remote address.
	authed := r.NewRoute().Subrouter()
	authed.Use(authMW.Handler)
	if opts.RateLimiter != nil {
		authed.Use(opts.RateLimiter.Handler)
	}
	authed.HandleFunc("/posts", h.createPost).Methods(http.MethodPost)
	authed.HandleFunc("/posts/{id:[0-9]+}", h.updatePost).Methods(http.MethodPut)
	authed.HandleFunc("/posts/{id:[0-9]+}", h.deletePost).Methods(http.MethodDelete)
	authed.HandleFunc("/posts/{id:[0-9]+}/comments", h.addComment).Methods(http.MethodPost)
	authed.HandleFunc("/posts/{id:[0-9]+}/comments/{cid:[0-9]+}", h.deleteComment).Methods(http.MethodDelete)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(authMW.Handler)
	if opts.RateLimiter != nil {
		admin.Use(opts.RateLimiter.Handler)
	}
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id:[0-9]+}/role", h.updateUserRole).Methods(http.MethodPut)
	admin.HandleFunc("/users/{id:[0-9]+}", h.deleteUser).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, apperrors.NotFound("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	var handler http.Handler = h.recoverPanics(r)
	if opts.CORS != nil {
		handler = opts.CORS.Handler(handler)
	}
	return handler
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Forum API is running",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// recoverPanics is the last-resort responder for unhandled panics.
func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithContext(r.Context()).
					WithField("panic", rec).
					WithField("path", r.URL.Path).
					Error("panic recovered in handler")
				writeError(w, apperrors.Internal("internal server error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("invalid id")
	}
	return id, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders an error in the API error envelope. Anything that is
// not a ServiceError is treated as internal and its detail suppressed.
func writeError(w http.ResponseWriter, err error) {
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = apperrors.Internal("internal server error", err)
	}
	writeJSON(w, serviceErr.HTTPStatus, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    serviceErr.Code,
			"message": serviceErr.Message,
		},
	})
}
