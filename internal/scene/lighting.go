// internal/scene/lighting.go
//
// Light definitions for the character scene
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// LightType defines the type of light source
type LightType int

const (
	LightTypeDirectional LightType = iota
	LightTypePoint
)

// Light represents a light source. Directional lights shine from Position towards the origin.
type Light struct {
	Type      LightType
	Position  mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
}

// Direction returns the normalized direction the light travels.
func (l Light) Direction() mgl32.Vec3 {
	if l.Position.Len() == 0 {
		return mgl32.Vec3{0, -1, 0}
	}
	return l.Position.Mul(-1).Normalize()
}

// LightingRig represents a collection of lights for a scene
type LightingRig struct {
	Lights           []Light
	AmbientColor     mgl32.Vec3
	AmbientIntensity float32
}

// MaxLights is the number of light slots the shaders provide.
const MaxLights = 4

// NewCharacterLighting returns the ambient plus key and fill rig the viewer uses.
func NewCharacterLighting() LightingRig {
	white := mgl32.Vec3{1, 1, 1}
	return LightingRig{
		AmbientColor:     white,
		AmbientIntensity: 0.8,
		Lights: []Light{
			// key
			{Type: LightTypeDirectional, Position: mgl32.Vec3{5, 10, 5}, Color: white, Intensity: 1.2},
			// fill
			{Type: LightTypeDirectional, Position: mgl32.Vec3{-5, 5, -5}, Color: white, Intensity: 0.6},
		},
	}
}

// Ambient returns the premultiplied ambient term.
func (r LightingRig) Ambient() mgl32.Vec3 {
	return r.AmbientColor.Mul(r.AmbientIntensity)
}
