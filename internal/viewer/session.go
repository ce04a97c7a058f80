// internal/viewer/session.go
//
// Viewer session: owns one mounted character scene from mount to teardown
package viewer

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/posteravatar/internal/animation"
	"github.com/normanking/posteravatar/internal/asset"
	"github.com/normanking/posteravatar/internal/avatar"
	"github.com/normanking/posteravatar/internal/scene"
)

// ErrClosed is returned when mounting a session that was already torn down.
var ErrClosed = errors.New("viewer session closed")

// Config controls one session.
type Config struct {
	ModelURL      string
	BackgroundURL string

	TargetSize    float32
	Crossfade     time.Duration
	StartupDelay  time.Duration // zero starts the idle clip as soon as the character is attached
	FrameInterval time.Duration // zero renders as fast as PollEvents/vsync allow

	// Now is the clock used for frame timing; nil uses time.Now.
	Now func() time.Time
	// Rand drives clip selection; nil uses a time-seeded source.
	Rand *rand.Rand
}

// DefaultConfig returns the session defaults for a model URL.
func DefaultConfig(modelURL string) Config {
	return Config{
		ModelURL:     modelURL,
		TargetSize:   scene.DefaultTargetSize,
		Crossfade:    animation.DefaultCrossfade,
		StartupDelay: 100 * time.Millisecond,
	}
}

// Status is the observable load state of a session.
type Status struct {
	Loaded           bool    `json:"loaded"`
	Progress         float64 `json:"progress"`
	Error            string  `json:"error,omitempty"`
	ModelURL         string  `json:"modelUrl"`
	BackgroundLoaded bool    `json:"backgroundLoaded"`
}

// Session renders one character into a surface. Mount, Tick and Close must be called
// from the same goroutine (the one that owns the GL context); SetMood and Status are
// safe from anywhere.
type Session struct {
	surface Surface
	loader  Loader
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time

	// cross-goroutine
	events    chan func()
	alive     atomic.Bool
	mounted   atomic.Bool
	closed    atomic.Bool
	mood      atomic.Value // avatar.Mood
	frames    atomic.Uint64
	ctx       context.Context
	cancel    context.CancelFunc
	loaders   errgroup.Group
	timerMu   sync.Mutex
	startTime *time.Timer

	statusMu sync.Mutex
	status   Status
	onStatus func(Status)
	onClip   func(cat animation.Category, clip string)

	// render goroutine only
	camera     *scene.Camera
	controls   *scene.OrbitControls
	lighting   scene.LightingRig
	idle       *scene.IdleMotion
	character  *asset.Character
	placement  scene.Placement
	mixer      *animation.Mixer
	library    *animation.Library
	controller *animation.Controller
	lastTick   time.Time
	world      []mgl32.Mat4
	joints     [][]mgl32.Mat4
	frame      scene.Frame
}

// New creates an unmounted session.
func New(surface Surface, loader Loader, cfg Config, logger zerolog.Logger) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Crossfade < 0 {
		cfg.Crossfade = animation.DefaultCrossfade
	}

	w, h := surface.Size()
	aspect := float32(1)
	if w > 0 && h > 0 {
		aspect = float32(w) / float32(h)
	}
	camera := scene.NewViewerCamera(aspect)

	s := &Session{
		surface:  surface,
		loader:   loader,
		cfg:      cfg,
		logger:   logger.With().Str("component", "viewer").Str("model", cfg.ModelURL).Logger(),
		now:      cfg.Now,
		events:   make(chan func(), 16),
		camera:   camera,
		controls: scene.NewOrbitControls(camera),
		lighting: scene.NewCharacterLighting(),
		idle:     scene.NewIdleMotion(),
		status:   Status{ModelURL: cfg.ModelURL},
	}
	s.mood.Store(avatar.MoodIdle)
	return s
}

// OnStatus registers a callback for status changes. It may run on a loader goroutine.
func (s *Session) OnStatus(fn func(Status)) {
	s.statusMu.Lock()
	s.onStatus = fn
	s.statusMu.Unlock()
}

// OnClipChange registers a callback invoked on the render goroutine whenever the
// active clip changes.
func (s *Session) OnClipChange(fn func(cat animation.Category, clip string)) {
	s.onClip = fn
}

// Status returns a snapshot of the load state.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Frames returns how many frames have been rendered.
func (s *Session) Frames() uint64 {
	return s.frames.Load()
}

// SetMood hands the latest mood to the render loop. Only the most recent value is
// applied on the next tick.
func (s *Session) SetMood(m avatar.Mood) {
	if !m.Valid() {
		m = avatar.MoodIdle
	}
	s.mood.Store(m)
}

// Mood returns the latest mood handed to the session.
func (s *Session) Mood() avatar.Mood {
	return s.mood.Load().(avatar.Mood)
}

// Camera exposes the session camera.
func (s *Session) Camera() *scene.Camera {
	return s.camera
}

// Controller returns the animation controller, or nil before a character is attached.
func (s *Session) Controller() *animation.Controller {
	return s.controller
}

// Placement returns the normalization applied to the attached character.
func (s *Session) Placement() scene.Placement {
	return s.placement
}

// Run mounts the session and renders until ctx is cancelled or the surface asks
// to close, then tears everything down.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Mount(ctx); err != nil {
		return err
	}
	defer s.Close()

	var tick <-chan time.Time
	if s.cfg.FrameInterval > 0 {
		t := time.NewTicker(s.cfg.FrameInterval)
		defer t.Stop()
		tick = t.C
	}

	for !s.surface.ShouldClose() {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		s.surface.PollEvents()
		s.Tick()
	}
	return nil
}

// Mount attaches input handling and starts the asset loads.
func (s *Session) Mount(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.mounted.CompareAndSwap(false, true) {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.alive.Store(true)
	s.lastTick = s.now()

	s.surface.SetInputHandler(&InputHandler{
		Resized:  s.resize,
		Dragged:  func(dx, dy float64) { s.controls.Rotate(float32(dx), float32(dy)) },
		Scrolled: func(dy float64) { s.controls.Zoom(float32(dy)) },
	})
	if w, h := s.surface.Size(); w > 0 && h > 0 {
		s.resize(w, h)
	}

	if s.cfg.BackgroundURL != "" {
		s.loaders.Go(s.loadBackground)
	}
	s.loaders.Go(s.loadCharacter)

	s.logger.Info().Str("background", s.cfg.BackgroundURL).Msg("session mounted")
	return nil
}

func (s *Session) loadBackground() error {
	img, err := s.loader.LoadBackground(s.ctx, s.cfg.BackgroundURL)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("url", s.cfg.BackgroundURL).Msg("background failed to load")
		}
		return nil
	}
	s.post(func() { s.attachBackground(img) })
	return nil
}

func (s *Session) loadCharacter() error {
	ch, err := s.loader.LoadCharacter(s.ctx, s.cfg.ModelURL, func(p float64) {
		if !s.alive.Load() {
			return
		}
		s.updateStatus(func(st *Status) { st.Progress = p })
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return nil
		}
		s.post(func() { s.fail(err) })
		return nil
	}
	s.post(func() { s.attach(ch) })
	return nil
}

// post queues fn for the render goroutine. Work posted after teardown is dropped.
func (s *Session) post(fn func()) {
	if !s.alive.Load() {
		return
	}
	select {
	case s.events <- fn:
	case <-s.ctx.Done():
	}
}

func (s *Session) drain() {
	for {
		select {
		case fn := <-s.events:
			if s.alive.Load() {
				fn()
			}
		default:
			return
		}
	}
}

func (s *Session) fail(err error) {
	s.logger.Error().Err(err).Msg("failed to load model")
	s.updateStatus(func(st *Status) {
		st.Loaded = false
		st.Error = "failed to load model: " + err.Error()
	})
}

func (s *Session) attachBackground(img image.Image) {
	if err := s.surface.SetBackground(img); err != nil {
		s.logger.Warn().Err(err).Msg("background upload failed")
		return
	}
	s.updateStatus(func(st *Status) { st.BackgroundLoaded = true })
}

func (s *Session) attach(ch *asset.Character) {
	if err := s.surface.LoadCharacter(ch); err != nil {
		s.fail(err)
		return
	}

	s.character = ch
	s.placement = scene.Normalize(ch.Bounds, s.cfg.TargetSize)
	scene.FrameFor(s.placement.Size).Apply(s.camera, s.controls)
	s.idle.Reset()

	s.mixer = animation.NewMixer(ch.Graph.RestPose())
	s.library = animation.NewLibrary(s.mixer, ch.Clips, s.logger)
	s.controller = animation.NewController(s.library, s.cfg.Rand, s.cfg.Crossfade, s.logger)
	s.controller.OnChange(func(cat animation.Category, clip *animation.Clip) {
		if s.onClip != nil {
			s.onClip(cat, clip.Name)
		}
	})

	s.world = make([]mgl32.Mat4, len(ch.Graph.Nodes))
	s.joints = make([][]mgl32.Mat4, len(ch.Skins))

	s.updateStatus(func(st *Status) {
		st.Loaded = true
		st.Progress = 100
		st.Error = ""
	})
	s.logger.Info().
		Float32("scale", s.placement.Scale).
		Float32("height", s.placement.Size.Y()).
		Int("clips", len(ch.Clips)).
		Msg("character attached")

	if s.cfg.StartupDelay <= 0 {
		s.startAnimation()
		return
	}
	s.timerMu.Lock()
	s.startTime = time.AfterFunc(s.cfg.StartupDelay, func() { s.post(s.startAnimation) })
	s.timerMu.Unlock()
}

func (s *Session) startAnimation() {
	if s.controller == nil || s.controller.Active() != nil {
		return
	}
	s.controller.Start()
}

func (s *Session) resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	s.camera.SetAspectRatio(float32(w) / float32(h))
}

// Tick runs one iteration of the render loop: posted work, mood, animation, idle
// motion, camera, then one rendered frame. It does nothing once the session is closed.
func (s *Session) Tick() {
	if !s.alive.Load() {
		return
	}
	s.drain()
	if !s.alive.Load() {
		return
	}

	now := s.now()
	dt := float32(now.Sub(s.lastTick).Seconds())
	if dt < 0 {
		dt = 0
	}
	s.lastTick = now

	if s.controller != nil && s.controller.Active() != nil {
		if m := s.Mood(); m != s.controller.Mood() {
			s.controller.Apply(m)
		}
	}

	s.controls.Update()
	s.buildFrame(dt)
	s.surface.Render(&s.frame)
	s.frames.Add(1)
}

func (s *Session) buildFrame(dt float32) {
	f := &s.frame
	f.View = s.camera.ViewMatrix()
	f.Projection = s.camera.ProjectionMatrix()
	f.CameraPos = s.camera.Position
	f.Lighting = s.lighting
	f.ClearColor = scene.BackgroundColor
	f.HasCharacter = s.character != nil
	if s.character == nil {
		return
	}

	pose := s.mixer.Update(dt)
	s.idle.Update(dt)

	g := s.character.Graph
	s.world = g.WorldMatrices(pose, s.world)
	for i, sk := range s.character.Skins {
		s.joints[i] = scene.SkinMatrices(s.world, sk.Joints, sk.InverseBind, s.joints[i])
	}

	f.Model = s.placement.Matrix(s.idle.Spin(), s.idle.Bob())
	f.World = s.world
	f.Joints = s.joints
}

// Close tears the session down: no tick runs afterwards, pending loads are cancelled
// and awaited, the startup timer is stopped, input is detached and the surface is
// released. It is safe to call more than once.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.alive.Store(false)

	if s.mounted.Load() {
		s.cancel()
		if err := s.loaders.Wait(); err != nil {
			s.logger.Debug().Err(err).Msg("loader exited")
		}
		s.surface.SetInputHandler(nil)
	}

	s.timerMu.Lock()
	if s.startTime != nil {
		s.startTime.Stop()
	}
	s.timerMu.Unlock()

	if s.mixer != nil {
		s.mixer.StopAll()
	}
	s.surface.Release()
	s.logger.Info().Uint64("frames", s.frames.Load()).Msg("session closed")
}

func (s *Session) updateStatus(fn func(*Status)) {
	s.statusMu.Lock()
	fn(&s.status)
	st, cb := s.status, s.onStatus
	s.statusMu.Unlock()
	if cb != nil {
		cb(st)
	}
}
