package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a translation-rotation-scale triple.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

// IdentityTransform returns the neutral transform.
func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix composes T * R * S.
func (t Transform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Translation.X(), t.Translation.Y(), t.Translation.Z()).
		Mul4(t.Rotation.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// Node is one element of a character's hierarchy.
type Node struct {
	Name     string
	Rest     Transform
	Fixed    *mgl32.Mat4 // set when the source gave a matrix; poses do not affect it
	Children []int
	Mesh     int // -1 when absent
	Skin     int // -1 when absent
}

// Graph is a forest of nodes addressed by index.
type Graph struct {
	Nodes []Node
	Roots []int
}

// Pose holds one local transform per node.
type Pose []Transform

// RestPose returns the graph's bind-time local transforms.
func (g *Graph) RestPose() Pose {
	p := make(Pose, len(g.Nodes))
	for i, n := range g.Nodes {
		p[i] = n.Rest
	}
	return p
}

// WorldMatrices evaluates every node's world matrix for pose p, reusing out when large enough.
func (g *Graph) WorldMatrices(p Pose, out []mgl32.Mat4) []mgl32.Mat4 {
	if cap(out) < len(g.Nodes) {
		out = make([]mgl32.Mat4, len(g.Nodes))
	}
	out = out[:len(g.Nodes)]
	for _, root := range g.Roots {
		g.walk(root, mgl32.Ident4(), p, out, 0)
	}
	return out
}

func (g *Graph) walk(idx int, parent mgl32.Mat4, p Pose, out []mgl32.Mat4, depth int) {
	// Malformed files can contain cycles.
	if idx < 0 || idx >= len(g.Nodes) || depth > len(g.Nodes) {
		return
	}
	n := &g.Nodes[idx]

	var local mgl32.Mat4
	switch {
	case n.Fixed != nil:
		local = *n.Fixed
	case idx < len(p):
		local = p[idx].Matrix()
	default:
		local = n.Rest.Matrix()
	}

	world := parent.Mul4(local)
	out[idx] = world
	for _, c := range n.Children {
		g.walk(c, world, p, out, depth+1)
	}
}

// SkinMatrices fills out with world(joint) * inverseBind for each joint.
func SkinMatrices(world []mgl32.Mat4, joints []int, inverseBind []mgl32.Mat4, out []mgl32.Mat4) []mgl32.Mat4 {
	if cap(out) < len(joints) {
		out = make([]mgl32.Mat4, len(joints))
	}
	out = out[:len(joints)]
	for i, j := range joints {
		m := mgl32.Ident4()
		if j >= 0 && j < len(world) {
			m = world[j]
		}
		if i < len(inverseBind) {
			m = m.Mul4(inverseBind[i])
		}
		out[i] = m
	}
	return out
}
