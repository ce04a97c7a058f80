package animation

import (
	"math/rand"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/posteravatar/internal/avatar"
)

// Category groups clips by the mood they express.
type Category string

const (
	CategoryIdle     Category = "idle"
	CategoryTalk     Category = "talk"
	CategoryThinking Category = "thinking"
)

// Categories lists every category in resolution order.
var Categories = []Category{CategoryIdle, CategoryTalk, CategoryThinking}

// Positional buckets for clips whose names match nothing.
const (
	idleSlots = 3
	talkSlots = 3
)

// Classify assigns a clip to a category. Names are matched case-insensitively on
// "idle", then "talk", then "think"; other clips fall back on their index in the
// asset: 0-2 idle, 3-5 talk, the rest thinking.
func Classify(name string, index int) Category {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "idle"):
		return CategoryIdle
	case strings.Contains(lower, "talk"):
		return CategoryTalk
	case strings.Contains(lower, "think"):
		return CategoryThinking
	}

	switch {
	case index < idleSlots:
		return CategoryIdle
	case index < idleSlots+talkSlots:
		return CategoryTalk
	default:
		return CategoryThinking
	}
}

// CategoryFor maps a mood onto the clip category that expresses it.
func CategoryFor(m avatar.Mood) Category {
	switch m {
	case avatar.MoodThinking:
		return CategoryThinking
	case avatar.MoodTalking:
		return CategoryTalk
	default:
		return CategoryIdle
	}
}

// Library maps each category to the actions that can play it. When the asset has at
// least one clip every category resolves to at least one action.
type Library struct {
	byCategory map[Category][]*Action
	backfilled map[Category]bool
}

// NewLibrary classifies clips and backfills empty categories: idle takes clip 0; talk
// takes clip 1, or idle's actions when there is none; thinking takes clip 2, or
// idle's actions.
func NewLibrary(m *Mixer, clips []*Clip, logger zerolog.Logger) *Library {
	lib := &Library{
		byCategory: make(map[Category][]*Action, len(Categories)),
		backfilled: make(map[Category]bool),
	}

	for i, c := range clips {
		cat := Classify(c.Name, i)
		lib.byCategory[cat] = append(lib.byCategory[cat], m.ClipAction(c))
	}

	if len(clips) == 0 {
		logger.Warn().Msg("character has no animation clips")
		return lib
	}

	lib.backfill(CategoryIdle, func() []*Action { return []*Action{m.ClipAction(clips[0])} })
	lib.backfill(CategoryTalk, func() []*Action {
		if len(clips) > 1 {
			return []*Action{m.ClipAction(clips[1])}
		}
		return append([]*Action(nil), lib.byCategory[CategoryIdle]...)
	})
	lib.backfill(CategoryThinking, func() []*Action {
		if len(clips) > 2 {
			return []*Action{m.ClipAction(clips[2])}
		}
		return append([]*Action(nil), lib.byCategory[CategoryIdle]...)
	})

	for _, cat := range Categories {
		names := make([]string, 0, len(lib.byCategory[cat]))
		for _, a := range lib.byCategory[cat] {
			names = append(names, a.Clip().Name)
		}
		logger.Debug().
			Str("category", string(cat)).
			Strs("clips", names).
			Bool("backfilled", lib.backfilled[cat]).
			Msg("animation category")
	}
	return lib
}

func (l *Library) backfill(cat Category, fallback func() []*Action) {
	if len(l.byCategory[cat]) > 0 {
		return
	}
	l.byCategory[cat] = fallback()
	l.backfilled[cat] = true
}

// Actions returns the actions registered for a category.
func (l *Library) Actions(cat Category) []*Action {
	return l.byCategory[cat]
}

// Backfilled reports whether the category was filled by the fallback rules.
func (l *Library) Backfilled(cat Category) bool {
	return l.backfilled[cat]
}

// Pick selects one action of the category uniformly at random.
func (l *Library) Pick(cat Category, rng *rand.Rand) (*Action, bool) {
	actions := l.byCategory[cat]
	if len(actions) == 0 {
		return nil, false
	}
	if len(actions) == 1 {
		return actions[0], true
	}
	if rng == nil {
		return actions[rand.Intn(len(actions))], true
	}
	return actions[rng.Intn(len(actions))], true
}
