package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Frame describes everything a surface needs to draw one frame.
type Frame struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	CameraPos  mgl32.Vec3
	Lighting   LightingRig
	ClearColor mgl32.Vec4

	// Character state; HasCharacter is false until a character is attached.
	HasCharacter bool
	Model        mgl32.Mat4   // placement including idle motion
	World        []mgl32.Mat4 // per node, relative to the character root
	Joints       [][]mgl32.Mat4
}

// BackgroundColor is the clear color used when no background image is available.
var BackgroundColor = mgl32.Vec4{0, 0, 0, 1}
