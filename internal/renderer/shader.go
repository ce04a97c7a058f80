// internal/renderer/shader.go
//
// Shader compilation, uniform helpers and file-based hot reload
package renderer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
)

// Shader represents a compiled OpenGL shader program
type Shader struct {
	ID   uint32
	Name string

	// Source paths for hot-reload
	vertPath string
	fragPath string

	uniformCache map[string]int32
}

// NewShaderFromFiles loads and compiles shaders from files
func NewShaderFromFiles(name, vertPath, fragPath string) (*Shader, error) {
	vertSrc, err := os.ReadFile(vertPath)
	if err != nil {
		return nil, fmt.Errorf("read vertex shader %s: %w", vertPath, err)
	}
	fragSrc, err := os.ReadFile(fragPath)
	if err != nil {
		return nil, fmt.Errorf("read fragment shader %s: %w", fragPath, err)
	}

	shader, err := NewShaderFromSource(name, terminate(string(vertSrc)), terminate(string(fragSrc)))
	if err != nil {
		return nil, err
	}
	shader.vertPath = vertPath
	shader.fragPath = fragPath
	return shader, nil
}

func terminate(src string) string {
	if strings.HasSuffix(src, "\x00") {
		return src
	}
	return src + "\x00"
}

// NewShaderFromSource compiles shaders from NUL-terminated source strings
func NewShaderFromSource(name, vertSrc, fragSrc string) (*Shader, error) {
	vertShader, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return nil, fmt.Errorf("%s vertex shader: %w", name, err)
	}
	defer gl.DeleteShader(vertShader)

	fragShader, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return nil, fmt.Errorf("%s fragment shader: %w", name, err)
	}
	defer gl.DeleteShader(fragShader)

	program := gl.CreateProgram()
	gl.AttachShader(program, vertShader)
	gl.AttachShader(program, fragShader)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)

		return nil, fmt.Errorf("%s link failed: %s", name, strings.TrimRight(log, "\x00"))
	}

	return &Shader{
		ID:           program,
		Name:         name,
		uniformCache: make(map[string]int32),
	}, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csource, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)

		return 0, fmt.Errorf("compile error: %s", strings.TrimRight(log, "\x00"))
	}

	return shader, nil
}

// Use activates this shader program
func (s *Shader) Use() {
	gl.UseProgram(s.ID)
}

// Delete releases shader resources
func (s *Shader) Delete() {
	if s.ID != 0 {
		gl.DeleteProgram(s.ID)
		s.ID = 0
	}
}

// Reload recompiles the shader from its source files. The old program stays in
// use when compilation fails.
func (s *Shader) Reload() error {
	if s.vertPath == "" || s.fragPath == "" {
		return fmt.Errorf("shader %s was not loaded from files", s.Name)
	}

	next, err := NewShaderFromFiles(s.Name, s.vertPath, s.fragPath)
	if err != nil {
		return err
	}

	gl.DeleteProgram(s.ID)
	s.ID = next.ID
	s.uniformCache = make(map[string]int32)
	return nil
}

func (s *Shader) location(name string) int32 {
	if loc, ok := s.uniformCache[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(s.ID, gl.Str(name+"\x00"))
	s.uniformCache[name] = loc
	return loc
}

// SetBool sets a boolean uniform
func (s *Shader) SetBool(name string, value bool) {
	var v int32
	if value {
		v = 1
	}
	gl.Uniform1i(s.location(name), v)
}

// SetInt sets an integer uniform
func (s *Shader) SetInt(name string, value int32) {
	gl.Uniform1i(s.location(name), value)
}

// SetFloat sets a float uniform
func (s *Shader) SetFloat(name string, value float32) {
	gl.Uniform1f(s.location(name), value)
}

// SetVec2 sets a vec2 uniform
func (s *Shader) SetVec2(name string, v mgl32.Vec2) {
	gl.Uniform2fv(s.location(name), 1, &v[0])
}

// SetVec3 sets a vec3 uniform
func (s *Shader) SetVec3(name string, v mgl32.Vec3) {
	gl.Uniform3fv(s.location(name), 1, &v[0])
}

// SetVec4 sets a vec4 uniform
func (s *Shader) SetVec4(name string, v mgl32.Vec4) {
	gl.Uniform4fv(s.location(name), 1, &v[0])
}

// SetMat4 sets a mat4 uniform
func (s *Shader) SetMat4(name string, m mgl32.Mat4) {
	gl.UniformMatrix4fv(s.location(name), 1, false, &m[0])
}

// SetMat4Array uploads consecutive matrices to an array uniform.
func (s *Shader) SetMat4Array(name string, ms []mgl32.Mat4) {
	if len(ms) == 0 {
		return
	}
	gl.UniformMatrix4fv(s.location(name), int32(len(ms)), false, &ms[0][0])
}

// =============================================================================
// SHADER HOT-RELOAD WATCHER
// =============================================================================

// ShaderWatcher watches shader files and queues reloads. GL calls are only legal on
// the thread owning the context, so the reloads run when Apply is called from there.
type ShaderWatcher struct {
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu      sync.Mutex
	shaders map[string]*Shader // path -> shader
	pending map[*Shader]string // shader -> changed file
	done    chan struct{}
}

// NewShaderWatcher creates a new shader watcher
func NewShaderWatcher(logger zerolog.Logger) (*ShaderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &ShaderWatcher{
		watcher: watcher,
		logger:  logger,
		shaders: make(map[string]*Shader),
		pending: make(map[*Shader]string),
		done:    make(chan struct{}),
	}
	go sw.watchLoop()
	return sw, nil
}

// Watch adds a shader to be watched for changes
func (sw *ShaderWatcher) Watch(shader *Shader) error {
	if shader.vertPath == "" || shader.fragPath == "" {
		return fmt.Errorf("shader %s was not loaded from files", shader.Name)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	for _, dir := range []string{filepath.Dir(shader.vertPath), filepath.Dir(shader.fragPath)} {
		if err := sw.watcher.Add(dir); err != nil {
			return err
		}
	}
	sw.shaders[filepath.Clean(shader.vertPath)] = shader
	sw.shaders[filepath.Clean(shader.fragPath)] = shader
	return nil
}

func (sw *ShaderWatcher) watchLoop() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			sw.mu.Lock()
			if shader, ok := sw.shaders[filepath.Clean(event.Name)]; ok {
				sw.pending[shader] = event.Name
			}
			sw.mu.Unlock()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn().Err(err).Msg("shader watcher error")
		}
	}
}

// Apply reloads every shader whose files changed since the last call. It must run on
// the GL thread.
func (sw *ShaderWatcher) Apply() {
	sw.mu.Lock()
	if len(sw.pending) == 0 {
		sw.mu.Unlock()
		return
	}
	pending := sw.pending
	sw.pending = make(map[*Shader]string)
	sw.mu.Unlock()

	for shader, file := range pending {
		if err := shader.Reload(); err != nil {
			sw.logger.Error().Err(err).Str("file", file).Msg("shader reload failed")
			continue
		}
		sw.logger.Info().Str("shader", shader.Name).Str("file", file).Msg("shader reloaded")
	}
}

// Close stops the shader watcher
func (sw *ShaderWatcher) Close() error {
	close(sw.done)
	return sw.watcher.Close()
}
