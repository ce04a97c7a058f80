package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// DefaultTargetSize is the largest extent a character is scaled to.
	DefaultTargetSize float32 = 3
	// MinDimension guards against scaling degenerate geometry.
	MinDimension float32 = 0.01
	// SinkFactor is the fraction of the height the character is lowered by, relative to its half height.
	SinkFactor float32 = 0.7
)

// Placement is the model transform that normalizes a character: centre it, scale
// it uniformly to the target size, then lower it so the framing favours the upper body.
type Placement struct {
	Scale  float32
	Center mgl32.Vec3 // original bounds centre
	Size   mgl32.Vec3 // bounds extents after scaling
	Lift   float32    // vertical offset applied after centring: h/2 - h*SinkFactor
}

// Normalize computes the placement for a character with the given rest-pose bounds.
// A non-positive targetSize selects DefaultTargetSize.
func Normalize(bounds Box, targetSize float32) Placement {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}

	center := bounds.Center()
	maxDim := bounds.MaxDimension()

	scale := float32(1)
	if maxDim > MinDimension {
		scale = targetSize / maxDim
	}

	// Recompute bounds with the scale applied.
	scaled := bounds.Transform(mgl32.Scale3D(scale, scale, scale))
	size := scaled.Size()
	h := size.Y()

	return Placement{
		Scale:  scale,
		Center: center,
		Size:   size,
		Lift:   h/2 - h*SinkFactor,
	}
}

// Centering returns the matrix that moves the bounds centre to the origin and scales.
func (p Placement) Centering() mgl32.Mat4 {
	c := p.Center.Mul(-p.Scale)
	return mgl32.Translate3D(c.X(), c.Y(), c.Z()).Mul4(mgl32.Scale3D(p.Scale, p.Scale, p.Scale))
}

// Matrix returns the full model matrix including the idle motion offsets: the
// character spins about the vertical axis through the origin and bobs vertically.
func (p Placement) Matrix(spin, bob float32) mgl32.Mat4 {
	return mgl32.Translate3D(0, p.Lift+bob, 0).
		Mul4(mgl32.HomogRotate3DY(spin)).
		Mul4(p.Centering())
}
