package animation

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/posteravatar/internal/avatar"
)

// DefaultCrossfade is how long the outgoing and incoming clips overlap.
const DefaultCrossfade = 500 * time.Millisecond

// Controller keeps exactly one clip active and replaces it when the mood changes.
type Controller struct {
	lib       *Library
	rng       *rand.Rand
	crossfade float32
	logger    zerolog.Logger

	active      *Action
	mood        avatar.Mood
	transitions int

	onChange func(cat Category, clip *Clip)
}

// NewController creates a controller over a library. A nil rng uses a time-seeded source.
func NewController(lib *Library, rng *rand.Rand, crossfade time.Duration, logger zerolog.Logger) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if crossfade < 0 {
		crossfade = DefaultCrossfade
	}
	return &Controller{
		lib:       lib,
		rng:       rng,
		crossfade: float32(crossfade.Seconds()),
		logger:    logger,
		mood:      avatar.MoodIdle,
	}
}

// OnChange registers a callback for every clip change.
func (c *Controller) OnChange(fn func(cat Category, clip *Clip)) {
	c.onChange = fn
}

// Active returns the current action, or nil before Start.
func (c *Controller) Active() *Action { return c.active }

// Mood returns the last mood applied.
func (c *Controller) Mood() avatar.Mood { return c.mood }

// Transitions counts the crossfades performed.
func (c *Controller) Transitions() int { return c.transitions }

// Start plays a random idle clip at full weight. It reports false when no idle
// clip exists.
func (c *Controller) Start() bool {
	a, ok := c.lib.Pick(CategoryIdle, c.rng)
	if !ok {
		c.logger.Warn().Str("category", string(CategoryIdle)).Msg("no animation available")
		return false
	}
	a.Reset()
	a.Loop = true
	a.TimeScale = 1
	a.Play()

	c.active = a
	c.mood = avatar.MoodIdle
	c.notify(CategoryIdle, a)
	return true
}

// Apply switches to a random clip of the mood's category. Repeating the current mood
// while one of its clips plays, or picking the clip already active, does nothing;
// otherwise the active clip fades out while the new one fades in. It reports whether
// a transition started.
func (c *Controller) Apply(m avatar.Mood) bool {
	cat := CategoryFor(m)
	if m == c.mood && c.playing(cat) {
		return false
	}
	c.mood = m

	next, ok := c.lib.Pick(cat, c.rng)
	if !ok {
		c.logger.Warn().Str("category", string(cat)).Msg("no animation available")
		return false
	}
	if next == c.active {
		return false
	}

	if c.active != nil {
		c.active.FadeOut(c.crossfade)
	}
	next.Reset()
	next.Loop = true
	next.FadeIn(c.crossfade)
	next.Play()

	c.active = next
	c.transitions++
	c.logger.Debug().
		Str("mood", string(m)).
		Str("clip", next.Clip().Name).
		Msg("animation transition")
	c.notify(cat, next)
	return true
}

// playing reports whether the active action belongs to cat.
func (c *Controller) playing(cat Category) bool {
	if c.active == nil {
		return false
	}
	for _, a := range c.lib.Actions(cat) {
		if a == c.active {
			return true
		}
	}
	return false
}

func (c *Controller) notify(cat Category, a *Action) {
	if c.onChange != nil {
		c.onChange(cat, a.Clip())
	}
}
