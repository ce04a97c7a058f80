package renderer

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/normanking/posteravatar/internal/asset"
	"github.com/normanking/posteravatar/internal/scene"
	"github.com/normanking/posteravatar/internal/viewer"
)

type Config struct {
	Width  int
	Height int
	Title  string
	VSync  bool
	MSAA   int
	// ShaderDir, when set, loads character.{vert,frag} and background.{vert,frag}
	// from disk and reloads them on change.
	ShaderDir string
}

func DefaultConfig() Config {
	return Config{
		Width:  480,
		Height: 720,
		Title:  "Poster Avatar",
		VSync:  true,
		MSAA:   4,
	}
}

// drawPlan ties one primitive to the node that places it.
type drawPlan struct {
	node int
	mesh int
	prim int
	skin int // -1 when rigid
}

type drawItem struct {
	plan     drawPlan
	mesh     *Mesh
	material Material
}

// Renderer is a GLFW window with an OpenGL 4.1 core context. It implements
// viewer.Surface and must only be used from the thread that created it.
type Renderer struct {
	window *glfw.Window
	config Config
	logger zerolog.Logger

	characterShader  *Shader
	backgroundShader *Shader
	watcher          *ShaderWatcher

	white    uint32
	textures []uint32
	items    []drawItem

	background uint32
	bgWidth    int
	bgHeight   int
	emptyVAO   uint32
	fbWidth    int
	fbHeight   int
	handler    *viewer.InputHandler
	dragging   bool
	lastX      float64
	lastY      float64
	drawCalls  int
	triangles  int
	released   bool
}

var _ viewer.Surface = (*Renderer)(nil)

// New opens the window and compiles the shaders. glfw.Init must have been called
// on the locked main thread.
func New(cfg Config, logger zerolog.Logger) (*Renderer, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	if cfg.MSAA > 0 {
		glfw.WindowHint(glfw.Samples, cfg.MSAA)
	}

	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		window.Destroy()
		return nil, fmt.Errorf("gl init: %w", err)
	}

	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	r := &Renderer{
		window: window,
		config: cfg,
		logger: logger.With().Str("component", "renderer").Logger(),
	}
	r.fbWidth, r.fbHeight = window.GetFramebufferSize()

	if err := r.initShaders(); err != nil {
		window.Destroy()
		return nil, fmt.Errorf("init shaders: %w", err)
	}

	r.white = createSolidTexture(255, 255, 255, 255)
	gl.GenVertexArrays(1, &r.emptyVAO)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	if cfg.MSAA > 0 {
		gl.Enable(gl.MULTISAMPLE)
	}

	r.logger.Info().
		Str("gl", gl.GoStr(gl.GetString(gl.VERSION))).
		Int("width", r.fbWidth).
		Int("height", r.fbHeight).
		Msg("renderer initialized")
	return r, nil
}

func (r *Renderer) initShaders() error {
	var err error
	if dir := r.config.ShaderDir; dir != "" {
		r.characterShader, err = NewShaderFromFiles("character",
			filepath.Join(dir, "character.vert"), filepath.Join(dir, "character.frag"))
		if err != nil {
			r.logger.Warn().Err(err).Msg("falling back to built-in character shader")
		}
		r.backgroundShader, err = NewShaderFromFiles("background",
			filepath.Join(dir, "background.vert"), filepath.Join(dir, "background.frag"))
		if err != nil {
			r.logger.Warn().Err(err).Msg("falling back to built-in background shader")
		}
	}

	if r.characterShader == nil {
		if r.characterShader, err = NewShaderFromSource("character", characterVertSrc, characterFragSrc); err != nil {
			return err
		}
	}
	if r.backgroundShader == nil {
		if r.backgroundShader, err = NewShaderFromSource("background", backgroundVertSrc, backgroundFragSrc); err != nil {
			return err
		}
	}

	if r.config.ShaderDir == "" {
		return nil
	}
	r.watcher, err = NewShaderWatcher(r.logger)
	if err != nil {
		r.logger.Warn().Err(err).Msg("shader hot reload disabled")
		return nil
	}
	for _, s := range []*Shader{r.characterShader, r.backgroundShader} {
		if s.vertPath == "" {
			continue
		}
		if err := r.watcher.Watch(s); err != nil {
			r.logger.Warn().Err(err).Str("shader", s.Name).Msg("cannot watch shader")
		}
	}
	return nil
}

// Size returns the framebuffer size in pixels.
func (r *Renderer) Size() (int, int) {
	return r.fbWidth, r.fbHeight
}

// SetInputHandler routes framebuffer resizes, left-button drags and scrolling to h.
// A nil handler detaches every callback.
func (r *Renderer) SetInputHandler(h *viewer.InputHandler) {
	r.handler = h
	if h == nil {
		r.window.SetFramebufferSizeCallback(nil)
		r.window.SetMouseButtonCallback(nil)
		r.window.SetCursorPosCallback(nil)
		r.window.SetScrollCallback(nil)
		r.dragging = false
		return
	}

	r.window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		r.fbWidth, r.fbHeight = width, height
		if r.handler != nil && r.handler.Resized != nil {
			r.handler.Resized(width, height)
		}
	})
	r.window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		r.dragging = action == glfw.Press
		r.lastX, r.lastY = w.GetCursorPos()
	})
	r.window.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if !r.dragging {
			return
		}
		dx, dy := x-r.lastX, y-r.lastY
		r.lastX, r.lastY = x, y
		if r.handler != nil && r.handler.Dragged != nil {
			r.handler.Dragged(dx, dy)
		}
	})
	r.window.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if r.handler != nil && r.handler.Scrolled != nil {
			r.handler.Scrolled(yoff)
		}
	})
}

// PollEvents processes pending window events.
func (r *Renderer) PollEvents() {
	glfw.PollEvents()
}

// ShouldClose reports whether the user closed the window.
func (r *Renderer) ShouldClose() bool {
	return r.released || r.window.ShouldClose()
}

// LoadCharacter uploads every primitive and embedded texture of ch, replacing the
// previous character.
func (r *Renderer) LoadCharacter(ch *asset.Character) error {
	for _, sk := range ch.Skins {
		if len(sk.Joints) > asset.MaxJoints {
			return fmt.Errorf("skin %q has %d joints, the shader supports %d", sk.Name, len(sk.Joints), asset.MaxJoints)
		}
	}
	r.releaseCharacter()

	r.textures = make([]uint32, len(ch.Images))
	for i, img := range ch.Images {
		if len(img.Data) == 0 {
			continue
		}
		tex, err := CreateTextureFromBytes(img.Data)
		if err != nil {
			r.logger.Warn().Err(err).Int("image", i).Msg("texture skipped")
			continue
		}
		r.textures[i] = tex
	}

	for _, plan := range planDraws(ch) {
		prim := &ch.Meshes[plan.mesh].Primitives[plan.prim]
		mat := Material{BaseColor: prim.BaseColor}
		if prim.Image >= 0 && prim.Image < len(r.textures) {
			mat.Texture = r.textures[prim.Image]
		}
		r.items = append(r.items, drawItem{plan: plan, mesh: NewMesh(prim), material: mat})
	}

	r.logger.Debug().Int("draws", len(r.items)).Int("textures", len(r.textures)).Msg("character uploaded")
	return nil
}

// planDraws lists the primitives reachable from nodes in node order.
func planDraws(ch *asset.Character) []drawPlan {
	var plans []drawPlan
	for i, n := range ch.Graph.Nodes {
		if n.Mesh < 0 || n.Mesh >= len(ch.Meshes) {
			continue
		}
		skin := -1
		if n.Skin >= 0 && n.Skin < len(ch.Skins) {
			skin = n.Skin
		}
		for p, prim := range ch.Meshes[n.Mesh].Primitives {
			if len(prim.Positions) == 0 {
				continue
			}
			plan := drawPlan{node: i, mesh: n.Mesh, prim: p, skin: skin}
			if !prim.Skinned() {
				plan.skin = -1
			}
			plans = append(plans, plan)
		}
	}
	return plans
}

// SetBackground uploads img as a full-window backdrop; nil removes it.
func (r *Renderer) SetBackground(img image.Image) error {
	deleteTexture(&r.background)
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("empty background image")
	}
	r.background = createTextureFromImage(img, gl.CLAMP_TO_EDGE)
	r.bgWidth, r.bgHeight = b.Dx(), b.Dy()
	return nil
}

// coverScale returns the texture coordinate scale that fills the viewport with an
// image while keeping its aspect ratio, cropping the overflow.
func coverScale(imgW, imgH, viewW, viewH int) mgl32.Vec2 {
	if imgW <= 0 || imgH <= 0 || viewW <= 0 || viewH <= 0 {
		return mgl32.Vec2{1, 1}
	}
	imgAspect := float32(imgW) / float32(imgH)
	viewAspect := float32(viewW) / float32(viewH)
	if viewAspect > imgAspect {
		return mgl32.Vec2{1, imgAspect / viewAspect}
	}
	return mgl32.Vec2{viewAspect / imgAspect, 1}
}

// Render draws one frame and presents it.
func (r *Renderer) Render(f *scene.Frame) {
	if r.released {
		return
	}
	if r.watcher != nil {
		r.watcher.Apply()
	}

	r.drawCalls = 0
	r.triangles = 0

	gl.Viewport(0, 0, int32(r.fbWidth), int32(r.fbHeight))
	c := f.ClearColor
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	if r.background != 0 {
		r.drawBackground()
	}
	if f.HasCharacter {
		r.drawCharacter(f)
	}

	r.window.SwapBuffers()
}

func (r *Renderer) drawBackground() {
	gl.Disable(gl.DEPTH_TEST)
	defer gl.Enable(gl.DEPTH_TEST)

	s := r.backgroundShader
	s.Use()
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.background)
	s.SetInt("uBackground", 0)
	s.SetVec2("uScale", coverScale(r.bgWidth, r.bgHeight, r.fbWidth, r.fbHeight))

	gl.BindVertexArray(r.emptyVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	r.drawCalls++
}

func (r *Renderer) drawCharacter(f *scene.Frame) {
	s := r.characterShader
	s.Use()
	s.SetMat4("uView", f.View)
	s.SetMat4("uProjection", f.Projection)
	s.SetVec3("uCameraPos", f.CameraPos)
	SetLightUniforms(s, f.Lighting)

	for _, it := range r.items {
		// skinned vertices are already in character space once the joints apply
		if it.plan.skin >= 0 && it.plan.skin < len(f.Joints) && len(f.Joints[it.plan.skin]) > 0 {
			s.SetBool("uSkinned", true)
			s.SetMat4Array("uJoints", f.Joints[it.plan.skin])
			s.SetMat4("uModel", f.Model)
		} else {
			s.SetBool("uSkinned", false)
			model := f.Model
			if it.plan.node < len(f.World) {
				model = model.Mul4(f.World[it.plan.node])
			}
			s.SetMat4("uModel", model)
		}
		it.material.Bind(s, r.white)
		r.triangles += it.mesh.Draw()
		r.drawCalls++
	}
}

// Stats returns the draw calls and triangles of the last frame.
func (r *Renderer) Stats() (drawCalls, triangles int) {
	return r.drawCalls, r.triangles
}

func (r *Renderer) releaseCharacter() {
	for _, it := range r.items {
		it.mesh.Delete()
	}
	r.items = nil
	for i := range r.textures {
		deleteTexture(&r.textures[i])
	}
	r.textures = nil
}

// Release frees all GPU resources and destroys the window. Further calls are no-ops.
func (r *Renderer) Release() {
	if r.released {
		return
	}
	r.released = true

	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			r.logger.Debug().Err(err).Msg("shader watcher close")
		}
	}
	r.SetInputHandler(nil)
	r.releaseCharacter()
	deleteTexture(&r.background)
	deleteTexture(&r.white)
	gl.DeleteVertexArrays(1, &r.emptyVAO)
	r.characterShader.Delete()
	r.backgroundShader.Delete()

	r.window.Destroy()
	r.logger.Info().Msg("renderer released")
}
