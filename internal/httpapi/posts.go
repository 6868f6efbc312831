package httpapi

import (
	"net/http"

	apperrors "github.com/forgeboard/forum/internal/errors"
	"github.com/forgeboard/forum/internal/middleware"
	"github.com/forgeboard/forum/internal/services/posts"
)

func callerFrom(r *http.Request) (posts.Caller, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return posts.Caller{}, false
	}
	return posts.Caller{UserID: id.UserID, Role: id.Role}, true
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	items, err := h.posts.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.posts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var payload struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	created, err := h.posts.Create(r.Context(), payload.Title, payload.Content, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Post created successfully",
		"post":    created,
	})
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var payload struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	updated, err := h.posts.Update(r.Context(), id, payload.Title, payload.Content, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Post updated successfully",
		"post":    updated,
	})
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.posts.Delete(r.Context(), id, caller); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	postID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}

	created, err := h.posts.AddComment(r.Context(), postID, payload.Content, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Comment created successfully",
		"comment": created,
	})
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	postID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	commentID, err := pathID(r, "cid")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.posts.DeleteComment(r.Context(), postID, commentID, caller); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Comment deleted successfully"})
}
