package renderer

import (
	"fmt"

	"github.com/normanking/posteravatar/internal/scene"
)

// SetLightUniforms uploads a lighting rig to a shader that declares uLights,
// uLightCount and uAmbient.
func SetLightUniforms(s *Shader, rig scene.LightingRig) {
	n := min(len(rig.Lights), scene.MaxLights)
	for i := 0; i < n; i++ {
		light := rig.Lights[i]
		prefix := fmt.Sprintf("uLights[%d].", i)
		s.SetInt(prefix+"type", int32(light.Type))
		s.SetVec3(prefix+"position", light.Position)
		s.SetVec3(prefix+"direction", light.Direction())
		s.SetVec3(prefix+"color", light.Color)
		s.SetFloat(prefix+"intensity", light.Intensity)
	}
	s.SetInt("uLightCount", int32(n))
	s.SetVec3("uAmbient", rig.Ambient())
}
