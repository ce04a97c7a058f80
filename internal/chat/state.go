// Package chat holds the conversation transcript and drives the avatar's mood from it.
package chat

import (
	"time"

	"github.com/normanking/posteravatar/internal/avatar"
)

// Role identifies who wrote a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FallbackReply is shown when the conversational request fails.
const FallbackReply = "Aw jeez, something went wrong with the interdimensional communication! Try again, *burp*"

// Entry is one transcript line.
type Entry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the orchestrator's complete conversational state.
type State struct {
	Transcript []Entry `json:"transcript"`
	// Pending is the reply being narrated; it is committed when narration ends.
	Pending  *Entry `json:"pending,omitempty"`
	Thinking bool   `json:"isThinking"`
	Talking  bool   `json:"isTalking"`
	InFlight bool   `json:"inFlight"`
	// AudioURL is the last narration, kept for replay.
	AudioURL string `json:"audioUrl,omitempty"`
	// Generation increases on every Cleared; completions from older generations are stale.
	Generation uint64 `json:"generation"`
}

// Mood derives the avatar mood from the state flags.
func (s State) Mood() avatar.Mood {
	return avatar.MoodOf(s.Thinking, s.Talking)
}

// Window returns the last n committed entries, oldest first.
func (s State) Window(n int) []Entry {
	if n <= 0 || len(s.Transcript) <= n {
		return append([]Entry(nil), s.Transcript...)
	}
	return append([]Entry(nil), s.Transcript[len(s.Transcript)-n:]...)
}

// Clone returns a deep copy safe to hand to observers.
func (s State) Clone() State {
	c := s
	c.Transcript = append([]Entry(nil), s.Transcript...)
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	return c
}
