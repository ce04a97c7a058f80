// internal/scene/camera.go
//
// Perspective camera, framing rules and damped orbit controls
package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera represents a 3D camera
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	// Projection parameters
	FOV         float32
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	// Cached matrices
	viewMatrix       mgl32.Mat4
	projectionMatrix mgl32.Mat4
	dirty            bool
}

// NewCamera creates a new camera
func NewCamera(position, target, up mgl32.Vec3, fov, aspect, near, far float32) *Camera {
	c := &Camera{
		Position:    position,
		Target:      target,
		Up:          up,
		FOV:         fov,
		AspectRatio: aspect,
		NearPlane:   near,
		FarPlane:    far,
		dirty:       true,
	}
	c.updateMatrices()
	return c
}

// NewViewerCamera creates the 45 degree camera the viewer starts with, at z=5 until a
// character is framed.
func NewViewerCamera(aspect float32) *Camera {
	return NewCamera(
		mgl32.Vec3{0, 0, 5},
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 1, 0},
		45.0,
		aspect,
		0.1, 1000.0,
	)
}

// ViewMatrix returns the view matrix
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewMatrix
}

// ProjectionMatrix returns the projection matrix
func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.projectionMatrix
}

func (c *Camera) updateMatrices() {
	c.viewMatrix = mgl32.LookAtV(c.Position, c.Target, c.Up)
	c.projectionMatrix = mgl32.Perspective(
		mgl32.DegToRad(c.FOV),
		c.AspectRatio,
		c.NearPlane,
		c.FarPlane,
	)
	c.dirty = false
}

// SetPosition updates camera position
func (c *Camera) SetPosition(pos mgl32.Vec3) {
	c.Position = pos
	c.dirty = true
}

// SetTarget updates camera target
func (c *Camera) SetTarget(target mgl32.Vec3) {
	c.Target = target
	c.dirty = true
}

// SetAspectRatio updates aspect ratio; non-positive values are ignored.
func (c *Camera) SetAspectRatio(aspect float32) {
	if aspect <= 0 || math.IsNaN(float64(aspect)) || math.IsInf(float64(aspect), 0) {
		return
	}
	c.AspectRatio = aspect
	c.dirty = true
}

// Distance returns the distance from the camera to its target.
func (c *Camera) Distance() float32 {
	return c.Position.Sub(c.Target).Len()
}

// =============================================================================
// FRAMING
// =============================================================================

const (
	framingDistanceFactor = 1.2
	framingLookFactor     = 0.3
)

// Framing places the camera relative to a normalized character.
type Framing struct {
	Distance    float32
	Position    mgl32.Vec3
	Target      mgl32.Vec3
	MinDistance float32
	MaxDistance float32
}

// FrameFor computes the framing for a character whose normalized extents are size.
func FrameFor(size mgl32.Vec3) Framing {
	d := max(size.X(), size.Y(), size.Z()) * framingDistanceFactor
	lookY := size.Y() * framingLookFactor
	return Framing{
		Distance:    d,
		Position:    mgl32.Vec3{d * 0.6, lookY + d*0.4, d * 0.7},
		Target:      mgl32.Vec3{0, lookY, 0},
		MinDistance: d * 0.2,
		MaxDistance: d * 2,
	}
}

// Apply moves the camera and constrains the controls.
func (f Framing) Apply(c *Camera, o *OrbitControls) {
	c.SetPosition(f.Position)
	c.SetTarget(f.Target)
	if o != nil {
		o.MinDistance = f.MinDistance
		o.MaxDistance = f.MaxDistance
		o.stop()
	}
}

// =============================================================================
// ORBIT CONTROLS
// =============================================================================

const polarEpsilon = 1e-3

// OrbitControls rotate and dolly the camera around its target. Input accumulates
// deltas; Update applies a damped fraction of them each frame.
type OrbitControls struct {
	camera *Camera

	DampingFactor float32
	RotateSpeed   float32 // radians per pixel
	ZoomSpeed     float32
	MinDistance   float32
	MaxDistance   float32

	deltaTheta float32
	deltaPhi   float32
	scale      float32
}

// NewOrbitControls creates damped controls for a camera
func NewOrbitControls(camera *Camera) *OrbitControls {
	return &OrbitControls{
		camera:        camera,
		DampingFactor: 0.05,
		RotateSpeed:   2 * math.Pi / 800,
		ZoomSpeed:     0.95,
		MinDistance:   0,
		MaxDistance:   float32(math.Inf(1)),
		scale:         1,
	}
}

// Rotate queues a drag of dx, dy pixels.
func (o *OrbitControls) Rotate(dx, dy float32) {
	o.deltaTheta -= dx * o.RotateSpeed
	o.deltaPhi -= dy * o.RotateSpeed
}

// Zoom queues a dolly; positive steps move towards the target.
func (o *OrbitControls) Zoom(steps float32) {
	if steps == 0 {
		return
	}
	o.scale *= float32(math.Pow(float64(o.ZoomSpeed), float64(steps)))
}

func (o *OrbitControls) stop() {
	o.deltaTheta, o.deltaPhi, o.scale = 0, 0, 1
}

// Update moves the camera by the damped share of pending input and enforces the
// distance limits. It reports whether the camera moved.
func (o *OrbitControls) Update() bool {
	c := o.camera
	offset := c.Position.Sub(c.Target)
	radius := offset.Len()
	if radius == 0 {
		return false
	}

	theta := math.Atan2(float64(offset.X()), float64(offset.Z()))
	phi := math.Acos(clampF64(float64(offset.Y()/radius), -1, 1))

	damping := o.DampingFactor
	if damping <= 0 || damping > 1 {
		damping = 1
	}

	theta += float64(o.deltaTheta * damping)
	phi += float64(o.deltaPhi * damping)
	phi = clampF64(phi, polarEpsilon, math.Pi-polarEpsilon)

	newRadius := radius * o.scale
	newRadius = max(o.MinDistance, min(o.MaxDistance, newRadius))

	o.deltaTheta *= 1 - damping
	o.deltaPhi *= 1 - damping
	o.scale = 1

	next := c.Target.Add(mgl32.Vec3{
		float32(math.Sin(phi) * math.Sin(theta)),
		float32(math.Cos(phi)),
		float32(math.Sin(phi) * math.Cos(theta)),
	}.Mul(newRadius))

	if next.ApproxEqualThreshold(c.Position, 1e-6) {
		return false
	}
	c.SetPosition(next)
	return true
}

func clampF64(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
