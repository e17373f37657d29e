// Package api provides HTTP handlers for the Coddy REST surface.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coddyhq/coddy-server/internal/catalog"
	"github.com/coddyhq/coddy-server/internal/store"
	"github.com/go-chi/chi/v5"
)

// CatalogReader is the slice of the catalog client the HTTP layer needs.
type CatalogReader interface {
	ListPaths(ctx context.Context) []catalog.LearningPath
	GetRoadmap(ctx context.Context, pathID string) (*catalog.Roadmap, error)
	TutorialsByCourse(ctx context.Context, courseID string) []catalog.Tutorial
}

// Handler serves the catalog and chat-history endpoints.
type Handler struct {
	repo    store.Repository
	catalog CatalogReader
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, cat CatalogReader) *Handler {
	return &Handler{repo: repo, catalog: cat}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts all REST endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/paths", h.listPaths)
		r.Get("/roadmap/{pathID}", h.getRoadmap)
		r.Get("/tutorials/{courseID}", h.listTutorials)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.listSessions)
			r.Post("/", h.createSession)
			r.Get("/{sessionID}", h.getSession)
			r.Patch("/{sessionID}", h.renameSession)
			r.Delete("/{sessionID}", h.deleteSession)
		})
	})
}

// listPaths returns all learning paths for the selection menu.
func (h *Handler) listPaths(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.catalog.ListPaths(r.Context()))
}

// getRoadmap returns the roadmap aggregate for one learning path.
func (h *Handler) getRoadmap(w http.ResponseWriter, r *http.Request) {
	pathID := chi.URLParam(r, "pathID")

	roadmap, err := h.catalog.GetRoadmap(r.Context(), pathID)
	if err != nil {
		slog.Error("Failed to build roadmap", "path_id", pathID, "error", err)
		Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if roadmap == nil {
		Error(w, http.StatusNotFound, "Roadmap not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   roadmap,
	})
}

// listTutorials returns all tutorials attached to one course.
func (h *Handler) listTutorials(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	JSON(w, http.StatusOK, h.catalog.TutorialsByCourse(r.Context(), courseID))
}

// listSessions returns a user's chat sessions for the sidebar.
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		Error(w, http.StatusBadRequest, "No User ID")
		return
	}

	sessions, err := h.repo.ListSessions(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list sessions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	JSON(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	UserID       string `json:"userId"`
	FirstMessage string `json:"firstMessage,omitempty"`
}

// createSession creates a new chat session, seeded with either the user's
// first message or the bot's greeting.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		Error(w, http.StatusBadRequest, "No User ID")
		return
	}

	session, err := h.repo.CreateSession(r.Context(), req.UserID, req.FirstMessage)
	if err != nil {
		slog.Error("Failed to create session", "user_id", req.UserID, "error", err)
		Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	JSON(w, http.StatusOK, session)
}

// getSession returns one session with its full transcript.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to get session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	JSON(w, http.StatusOK, session)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// renameSession replaces a session's title.
func (h *Handler) renameSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		Error(w, http.StatusBadRequest, "title cannot be empty")
		return
	}

	if err := h.repo.RenameSession(r.Context(), sessionID, req.Title); err != nil {
		if strings.Contains(err.Error(), "not found") {
			Error(w, http.StatusNotFound, "Session not found")
			return
		}
		slog.Error("Failed to rename session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// deleteSession removes a session and its transcript.
func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.repo.DeleteSession(r.Context(), sessionID); err != nil {
		slog.Error("Failed to delete session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
