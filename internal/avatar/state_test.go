package avatar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoodOfPrecedence(t *testing.T) {
	tests := []struct {
		thinking, talking bool
		want              Mood
	}{
		{false, false, MoodIdle},
		{true, false, MoodThinking},
		{false, true, MoodTalking},
		{true, true, MoodThinking},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MoodOf(tt.thinking, tt.talking))
	}
}

func TestControllerNotifiesOnlyOnChange(t *testing.T) {
	c := NewController()
	var seen []Mood
	c.SetMoodHandler(func(m Mood) { seen = append(seen, m) })

	assert.True(t, c.Set(State{IsThinking: true}))
	assert.False(t, c.Set(State{IsThinking: true}))
	assert.True(t, c.Set(State{IsTalking: true}))
	// talking -> talking+thinking flips to thinking
	assert.True(t, c.Set(State{IsThinking: true, IsTalking: true}))
	assert.True(t, c.Set(State{IsTalking: true}))
	assert.True(t, c.Set(State{}))
	assert.False(t, c.Set(State{}))

	assert.Equal(t, []Mood{MoodThinking, MoodTalking, MoodThinking, MoodTalking, MoodIdle}, seen)
	assert.Equal(t, MoodIdle, c.Mood())
}

func TestMoodValid(t *testing.T) {
	assert.True(t, MoodTalking.Valid())
	assert.False(t, Mood("dancing").Valid())
}
