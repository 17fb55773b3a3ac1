/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/ideaforge/vote-engine/voting"
)

// =============================================================================
// USERS
// =============================================================================

// RegisterRequest creates a user and its token account.
type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// RegisterResponse carries the new identity and its session token.
type RegisterResponse struct {
	User         UserDTO `json:"user"`
	SessionToken string  `json:"session_token"`
}

// UserDTO represents a user profile in API responses.
type UserDTO struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	Tokens         int    `json:"tokens"`
	LastRefillAt   string `json:"last_token_refill"`
	IdeasSubmitted int    `json:"ideas_submitted"`
	TotalVotesCast int    `json:"total_votes_cast"`
	VotesReceived  int    `json:"votes_received_on_ideas"`
	CreatedAt      string `json:"created_at,omitempty"`
}

func toUserDTO(u *voting.User) UserDTO {
	return UserDTO{
		ID:             string(u.ID),
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		Tokens:         u.Account.Tokens,
		LastRefillAt:   u.Account.LastRefillAt.UTC().Format(time.RFC3339),
		IdeasSubmitted: u.IdeasSubmitted,
		TotalVotesCast: u.Account.TotalVotesCast,
		VotesReceived:  u.VotesReceived,
		CreatedAt:      u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// IDEAS
// =============================================================================

// CreateIdeaRequest is the request to submit a new idea.
type CreateIdeaRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// IdeaDTO represents an idea in API responses.
type IdeaDTO struct {
	ID          string   `json:"id"`
	CreatorID   string   `json:"creator_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
	Status      string   `json:"status"`
	TotalVotes  int      `json:"total_votes"`
	WeeklyVotes int      `json:"weekly_votes"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func toIdeaDTO(i *voting.Idea) IdeaDTO {
	return IdeaDTO{
		ID:          string(i.ID),
		CreatorID:   string(i.CreatorID),
		Title:       i.Title,
		Description: i.Description,
		Category:    string(i.Category),
		Tags:        i.Tags,
		Status:      string(i.Status),
		TotalVotes:  i.Counters.TotalVotes,
		WeeklyVotes: i.Counters.WeeklyVotes,
		CreatedAt:   i.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// VOTES
// =============================================================================

// VoteResponse is returned for an accepted vote.
type VoteResponse struct {
	Success         bool `json:"success"`
	RemainingTokens int  `json:"remainingTokens"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
