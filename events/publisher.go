// Package events publishes committed votes to downstream consumers
// (analytics, trending feeds). Publishing is best-effort and happens
// outside the voting transaction: a publish failure never affects the
// vote itself.
package events

import (
	"context"
	"time"
)

// VoteEvent is the wire shape of one committed vote.
type VoteEvent struct {
	VoteID    string    `json:"vote_id"`
	UserID    string    `json:"user_id"`
	IdeaID    string    `json:"idea_id"`
	Year      int       `json:"year"`
	Week      int       `json:"week"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher emits committed-vote events.
type Publisher interface {
	Publish(ctx context.Context, ev VoteEvent) error
	Close() error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, VoteEvent) error { return nil }
func (Nop) Close() error                             { return nil }
