/*
handlers.go - HTTP API handlers for the idea-voting system

PURPOSE:
  Exposes the voting engine and the surrounding CRUD via REST. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Users:
    POST   /api/users                 Register (creates the token account)
    GET    /api/user                  Current user's profile (refreshes tokens)
    POST   /api/auth/logout           Delete the caller's session

  Ideas:
    GET    /api/ideas                 List ideas
    POST   /api/ideas                 Submit a new idea
    GET    /api/ideas/{ideaId}        Idea with its vote counters

  Votes:
    POST   /api/ideas/{ideaId}/vote   Spend one token on an idea

ERROR HANDLING:
  Expected rejections (no tokens, already voted) are 400 with a stable
  error string. Unknown user/idea is 404. Conflicts are retried inside
  the engine and never reach here. Everything else is a 500 with the
  detail logged server-side only.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
  - voting/engine.go: the cast-vote transaction
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ideaforge/vote-engine/session"
	"github.com/ideaforge/vote-engine/store/sqlite"
	"github.com/ideaforge/vote-engine/voting"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Engine   *voting.Engine
	Sessions session.Store
	Policy   voting.TokenPolicy
	// SessionTTL is the lifetime of tokens issued at registration.
	SessionTTL time.Duration
	Log        *zap.Logger
}

// NewHandler creates a handler with the given dependencies.
func NewHandler(store *sqlite.Store, engine *voting.Engine, sessions session.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:      store,
		Engine:     engine,
		Sessions:   sessions,
		Policy:     voting.DefaultTokenPolicy(),
		SessionTTL: session.DefaultTTL,
		Log:        log,
	}
}

// =============================================================================
// USERS
// =============================================================================

// Register creates a user with a full token allowance and issues a
// session token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	now := time.Now()
	userID := voting.UserID(uuid.NewString())
	user := voting.User{
		ID:          userID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Account:     h.Policy.NewAccount(userID, now),
		CreatedAt:   now,
	}

	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		h.Log.Error("failed to create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	token := uuid.NewString()
	if err := h.Sessions.Create(r.Context(), token, user.ID, h.SessionTTL); err != nil {
		h.Log.Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		User:         toUserDTO(&user),
		SessionToken: token,
	})
}

// Logout deletes the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := h.Sessions.Delete(r.Context(), token); err != nil {
			h.Log.Warn("failed to delete session", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCurrentUser returns the caller's profile, refreshing the token
// balance first if a refill is due.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// Opportunistic refill before reading the profile.
	if _, err := h.Engine.Refill(r.Context(), userID, time.Now()); err != nil && !errors.Is(err, voting.ErrUserNotFound) {
		h.Log.Warn("profile refill failed", zap.String("user_id", string(userID)), zap.Error(err))
	}

	user, err := h.Store.GetUser(r.Context(), userID)
	if errors.Is(err, voting.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.Log.Error("failed to load user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// =============================================================================
// IDEAS
// =============================================================================

// CreateIdea submits a new idea for the authenticated user.
func (h *Handler) CreateIdea(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateIdeaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	category := voting.IdeaCategory(req.Category)
	if category == "" {
		category = voting.CategoryOther
	}

	idea := voting.Idea{
		ID:          voting.IdeaID(uuid.NewString()),
		CreatorID:   userID,
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Tags:        req.Tags,
		Status:      voting.StatusActive,
		CreatedAt:   time.Now(),
	}

	if err := h.Store.CreateIdea(r.Context(), idea); err != nil {
		if errors.Is(err, voting.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.Log.Error("failed to create idea", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusCreated, toIdeaDTO(&idea))
}

// ListIdeas returns all ideas, most recent first.
func (h *Handler) ListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := h.Store.ListIdeas(r.Context())
	if err != nil {
		h.Log.Error("failed to list ideas", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	dtos := make([]IdeaDTO, 0, len(ideas))
	for i := range ideas {
		dtos = append(dtos, toIdeaDTO(&ideas[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetIdea returns one idea with its counters.
func (h *Handler) GetIdea(w http.ResponseWriter, r *http.Request) {
	ideaID := voting.IdeaID(chi.URLParam(r, "ideaId"))

	idea, err := h.Store.GetIdea(r.Context(), ideaID)
	if errors.Is(err, voting.ErrIdeaNotFound) {
		writeError(w, http.StatusNotFound, "Idea not found")
		return
	}
	if err != nil {
		h.Log.Error("failed to load idea", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, toIdeaDTO(idea))
}

// =============================================================================
// VOTES
// =============================================================================

// Vote spends one of the caller's tokens on an idea.
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	ideaID := voting.IdeaID(chi.URLParam(r, "ideaId"))

	result, err := h.Engine.CastVote(r.Context(), userID, ideaID, time.Now())
	switch {
	case errors.Is(err, voting.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, voting.ErrIdeaNotFound):
		writeError(w, http.StatusNotFound, "Idea not found")
		return
	case err != nil:
		h.Log.Error("vote failed",
			zap.String("user_id", string(userID)),
			zap.String("idea_id", string(ideaID)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	switch result.Status {
	case voting.VoteAccepted:
		writeJSON(w, http.StatusOK, VoteResponse{Success: true, RemainingTokens: result.RemainingTokens})
	case voting.VoteRejectedNoTokens:
		writeError(w, http.StatusBadRequest, "No tokens available")
	case voting.VoteRejectedAlreadyVoted:
		writeError(w, http.StatusBadRequest, "Already voted this week")
	default:
		h.Log.Error("unexpected vote status", zap.String("status", string(result.Status)))
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
