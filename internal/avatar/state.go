// Package avatar defines the character's mood and how it is derived from the conversation.
package avatar

import "sync"

// Mood is the animation-relevant state of the character.
type Mood string

const (
	MoodIdle     Mood = "idle"
	MoodThinking Mood = "thinking"
	MoodTalking  Mood = "talking"
)

// MoodOf derives the mood from the two conversation flags. Thinking wins over talking.
func MoodOf(thinking, talking bool) Mood {
	switch {
	case thinking:
		return MoodThinking
	case talking:
		return MoodTalking
	default:
		return MoodIdle
	}
}

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodIdle, MoodThinking, MoodTalking:
		return true
	}
	return false
}

// State is the pair of flags the mood is derived from.
type State struct {
	IsThinking bool `json:"isThinking"`
	IsTalking  bool `json:"isTalking"`
}

// Mood returns the derived mood.
func (s State) Mood() Mood {
	return MoodOf(s.IsThinking, s.IsTalking)
}

// Controller holds the flags and notifies on every mood change.
type Controller struct {
	mu    sync.RWMutex
	state State

	onMoodChange func(Mood)
}

// NewController creates a controller in the idle mood.
func NewController() *Controller {
	return &Controller{}
}

// SetMoodHandler sets the callback for mood changes. It runs under the controller's
// lock so notifications arrive in order; it must not call back into the controller.
func (c *Controller) SetMoodHandler(handler func(Mood)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMoodChange = handler
}

// GetState returns the current flags.
func (c *Controller) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Mood returns the current derived mood.
func (c *Controller) Mood() Mood {
	return c.GetState().Mood()
}

// Set replaces both flags and reports whether the mood changed.
func (c *Controller) Set(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state.Mood()
	c.state = s
	next := s.Mood()
	if prev == next {
		return false
	}
	if c.onMoodChange != nil {
		c.onMoodChange(next)
	}
	return true
}
