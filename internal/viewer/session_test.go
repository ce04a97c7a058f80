package viewer

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/posteravatar/internal/animation"
	"github.com/normanking/posteravatar/internal/asset"
	"github.com/normanking/posteravatar/internal/avatar"
	"github.com/normanking/posteravatar/internal/scene"
)

type fakeSurface struct {
	mu         sync.Mutex
	w, h       int
	handler    *InputHandler
	characters []*asset.Character
	background image.Image
	frames     []scene.Frame
	released   bool
	loadErr    error
}

func (f *fakeSurface) Size() (int, int) { return f.w, f.h }

func (f *fakeSurface) SetInputHandler(h *InputHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeSurface) PollEvents()       {}
func (f *fakeSurface) ShouldClose() bool { return false }

func (f *fakeSurface) LoadCharacter(ch *asset.Character) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.characters = append(f.characters, ch)
	return nil
}

func (f *fakeSurface) SetBackground(img image.Image) error {
	f.background = img
	return nil
}

func (f *fakeSurface) Render(fr *scene.Frame) {
	f.frames = append(f.frames, *fr)
}

func (f *fakeSurface) Release() { f.released = true }

func (f *fakeSurface) input() *InputHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

type fakeLoader struct {
	character *asset.Character
	err       error
	block     bool
	bgErr     error
	cancelled chan struct{}
}

func (l *fakeLoader) LoadCharacter(ctx context.Context, url string, progress asset.Progress) (*asset.Character, error) {
	progress(0)
	if l.block {
		<-ctx.Done()
		close(l.cancelled)
		return nil, ctx.Err()
	}
	progress(50)
	if l.err != nil {
		return nil, l.err
	}
	progress(100)
	return l.character, nil
}

func (l *fakeLoader) LoadBackground(ctx context.Context, url string) (image.Image, error) {
	if l.bgErr != nil {
		return nil, l.bgErr
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func clip(name string, index int) *animation.Clip {
	return animation.NewClip(name, index, []animation.Channel{{
		Node:          0,
		Path:          animation.PathTranslation,
		Interpolation: animation.InterpolationLinear,
		Times:         []float32{0, 2},
		Values:        []float32{0, 0, 0, 0, 1, 0},
	}})
}

func testCharacter() *asset.Character {
	return &asset.Character{
		URL: "test.glb",
		Graph: &scene.Graph{
			Nodes: []scene.Node{{Name: "root", Rest: scene.IdentityTransform(), Mesh: -1, Skin: -1}},
			Roots: []int{0},
		},
		Clips:  []*animation.Clip{clip("Idle", 0), clip("Talking", 1), clip("Thinking", 2)},
		Bounds: scene.Box{Min: mgl32.Vec3{-1, 0, -1}, Max: mgl32.Vec3{1, 2, 1}},
	}
}

func newTestSession(t *testing.T, loader *fakeLoader, mutate func(*Config)) (*Session, *fakeSurface, *fakeClock) {
	t.Helper()
	surface := &fakeSurface{w: 480, h: 720}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cfg := DefaultConfig("test.glb")
	cfg.StartupDelay = 0
	cfg.Now = clock.Now
	cfg.Rand = rand.New(rand.NewSource(1))
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(surface, loader, cfg, zerolog.Nop())
	require.NoError(t, s.Mount(context.Background()))
	t.Cleanup(s.Close)
	return s, surface, clock
}

func tickUntil(t *testing.T, s *Session, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		s.Tick()
		time.Sleep(time.Millisecond)
	}
}

func TestSessionLoadsNormalizesAndFrames(t *testing.T) {
	loader := &fakeLoader{character: testCharacter()}
	s, surface, _ := newTestSession(t, loader, nil)

	tickUntil(t, s, func() bool { return s.Status().Loaded })

	st := s.Status()
	assert.Equal(t, float64(100), st.Progress)
	assert.Empty(t, st.Error)
	assert.Equal(t, "test.glb", st.ModelURL)
	require.Len(t, surface.characters, 1)

	p := s.Placement()
	assert.InDelta(t, 1.5, p.Scale, 1e-6)
	assert.InDelta(t, 3, p.Size.Y(), 1e-5)

	// d = 3 * 1.2, look-at height 0.3 * 3
	cam := s.Camera()
	assert.InDelta(t, 3.6*0.6, cam.Position.X(), 1e-4)
	assert.InDelta(t, 0.9+3.6*0.4, cam.Position.Y(), 1e-4)
	assert.InDelta(t, 3.6*0.7, cam.Position.Z(), 1e-4)
	assert.InDelta(t, 0.9, cam.Target.Y(), 1e-5)

	require.NotNil(t, s.Controller())
	active := s.Controller().Active()
	require.NotNil(t, active)
	assert.Equal(t, "Idle", active.Clip().Name)
	assert.Equal(t, float32(1), active.Weight())

	s.Tick()
	last := surface.frames[len(surface.frames)-1]
	assert.True(t, last.HasCharacter)
	assert.Len(t, last.World, 1)
}

func TestSessionLoadFailureKeepsRendering(t *testing.T) {
	loader := &fakeLoader{err: errors.New("404 not found")}
	s, surface, _ := newTestSession(t, loader, nil)

	tickUntil(t, s, func() bool { return s.Status().Error != "" })

	st := s.Status()
	assert.False(t, st.Loaded)
	assert.Equal(t, "failed to load model: 404 not found", st.Error)
	assert.Equal(t, "test.glb", st.ModelURL)

	before := s.Frames()
	s.Tick()
	s.Tick()
	assert.Equal(t, before+2, s.Frames())
	assert.False(t, surface.frames[len(surface.frames)-1].HasCharacter)
	assert.Nil(t, s.Controller())
}

func TestSessionSurfaceUploadFailureIsLoadError(t *testing.T) {
	loader := &fakeLoader{character: testCharacter()}
	s, surface, _ := newTestSession(t, loader, nil)
	surface.loadErr = errors.New("too many joints")

	tickUntil(t, s, func() bool { return s.Status().Error != "" })
	assert.Equal(t, "failed to load model: too many joints", s.Status().Error)
}

func TestSessionMoodDrivesTransitions(t *testing.T) {
	loader := &fakeLoader{character: testCharacter()}
	s, _, clock := newTestSession(t, loader, nil)
	tickUntil(t, s, func() bool { return s.Controller() != nil })

	ctrl := s.Controller()
	s.SetMood(avatar.MoodThinking)
	s.Tick()
	assert.Equal(t, "Thinking", ctrl.Active().Clip().Name)
	assert.Equal(t, 1, ctrl.Transitions())

	// only the latest mood between ticks is applied
	s.SetMood(avatar.MoodTalking)
	s.SetMood(avatar.MoodIdle)
	s.Tick()
	assert.Equal(t, "Idle", ctrl.Active().Clip().Name)
	assert.Equal(t, 2, ctrl.Transitions())

	// unchanged mood does not restart the clip
	clock.Advance(time.Second)
	s.Tick()
	assert.Equal(t, 2, ctrl.Transitions())
}

func TestSessionAdvancesByWallTime(t *testing.T) {
	loader := &fakeLoader{character: testCharacter()}
	s, _, clock := newTestSession(t, loader, nil)
	tickUntil(t, s, func() bool { return s.Controller() != nil })

	s.Tick()
	active := s.Controller().Active()
	start := active.Time()

	clock.Advance(250 * time.Millisecond)
	s.Tick()
	clock.Advance(500 * time.Millisecond)
	s.Tick()
	assert.InDelta(t, start+0.75, active.Time(), 1e-4)
}

func TestSessionStartupDelay(t *testing.T) {
	loader := &fakeLoader{character: testCharacter()}
	s, _, _ := newTestSession(t, loader, func(c *Config) { c.StartupDelay = 20 * time.Millisecond })

	tickUntil(t, s, func() bool { return s.Controller() != nil })
	assert.Nil(t, s.Controller().Active())

	tickUntil(t, s, func() bool { return s.Controller().Active() != nil })
	assert.Equal(t, "Idle", s.Controller().Active().Clip().Name)
}

func TestSessionResizeUpdatesAspect(t *testing.T) {
	s, surface, _ := newTestSession(t, &fakeLoader{character: testCharacter()}, nil)
	assert.InDelta(t, 480.0/720.0, s.Camera().AspectRatio, 1e-6)

	h := surface.input()
	require.NotNil(t, h)
	h.Resized(800, 400)
	assert.InDelta(t, 2, s.Camera().AspectRatio, 1e-6)

	h.Resized(0, 400)
	assert.InDelta(t, 2, s.Camera().AspectRatio, 1e-6)
}

func TestSessionBackground(t *testing.T) {
	loader := &fakeLoader{character: testCharacter()}
	s, surface, _ := newTestSession(t, loader, func(c *Config) { c.BackgroundURL = "bg.png" })
	tickUntil(t, s, func() bool { return s.Status().BackgroundLoaded && s.Status().Loaded })
	assert.NotNil(t, surface.background)

	failing := &fakeLoader{character: testCharacter(), bgErr: errors.New("nope")}
	s2, surface2, _ := newTestSession(t, failing, func(c *Config) { c.BackgroundURL = "bg.png" })
	tickUntil(t, s2, func() bool { return s2.Status().Loaded })
	assert.False(t, s2.Status().BackgroundLoaded)
	assert.Empty(t, s2.Status().Error)
	assert.Nil(t, surface2.background)
}

func TestSessionCloseStopsTicksAndReleases(t *testing.T) {
	loader := &fakeLoader{block: true, cancelled: make(chan struct{})}
	s, surface, _ := newTestSession(t, loader, nil)

	s.Tick()
	frames := s.Frames()

	s.Close()
	select {
	case <-loader.cancelled:
	default:
		t.Fatal("loader was not cancelled before Close returned")
	}

	s.Tick()
	assert.Equal(t, frames, s.Frames())
	assert.True(t, surface.released)
	assert.Nil(t, surface.input())

	s.Close()
	assert.ErrorIs(t, s.Mount(context.Background()), ErrClosed)
}

func TestSessionStatusCallback(t *testing.T) {
	loader := &fakeLoader{character: testCharacter()}
	surface := &fakeSurface{w: 100, h: 100}
	cfg := DefaultConfig("test.glb")
	cfg.StartupDelay = 0

	var mu sync.Mutex
	var seen []Status
	s := New(surface, loader, cfg, zerolog.Nop())
	s.OnStatus(func(st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	var clips []string
	s.OnClipChange(func(cat animation.Category, name string) { clips = append(clips, name) })

	require.NoError(t, s.Mount(context.Background()))
	defer s.Close()
	tickUntil(t, s, func() bool { return s.Status().Loaded })

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[len(seen)-1].Loaded)
	assert.Equal(t, []string{"Idle"}, clips)
}

func TestRunStopsOnCancel(t *testing.T) {
	surface := &fakeSurface{w: 100, h: 100}
	cfg := DefaultConfig("test.glb")
	cfg.FrameInterval = time.Millisecond
	s := New(surface, &fakeLoader{character: testCharacter()}, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.True(t, surface.released)
	assert.Positive(t, s.Frames())
}
