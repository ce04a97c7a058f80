package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"

	"github.com/normanking/posteravatar/internal/animation"
	"github.com/normanking/posteravatar/internal/scene"
)

// ErrNoScene is returned for documents without any renderable node.
var ErrNoScene = errors.New("document has no scene nodes")

// MaxJoints is the largest skin the renderer accepts.
const MaxJoints = 128

// Primitive is one drawable piece of a mesh.
type Primitive struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	TexCoords []mgl32.Vec2
	Joints    []mgl32.Vec4 // joint indices stored as floats
	Weights   []mgl32.Vec4
	Indices   []uint32
	BaseColor mgl32.Vec4
	Image     int // index into Character.Images, -1 when untextured
	Bounds    scene.Box
}

// Skinned reports whether the primitive carries joint influences.
func (p *Primitive) Skinned() bool {
	return len(p.Joints) == len(p.Positions) && len(p.Weights) == len(p.Positions) && len(p.Positions) > 0
}

// Mesh groups primitives.
type Mesh struct {
	Name       string
	Primitives []Primitive
}

// Skin binds a mesh to a set of joint nodes.
type Skin struct {
	Name        string
	Joints      []int
	InverseBind []mgl32.Mat4
}

// Image is an encoded texture image.
type Image struct {
	MimeType string
	Data     []byte
}

// Character is a decoded, renderer-independent character asset.
type Character struct {
	URL    string
	Graph  *scene.Graph
	Meshes []Mesh
	Skins  []Skin
	Images []Image
	Clips  []*animation.Clip
	Bounds scene.Box // rest pose, model space
}

// ClipNames lists clip names in asset order.
func (c *Character) ClipNames() []string {
	names := make([]string, len(c.Clips))
	for i, clip := range c.Clips {
		names[i] = clip.Name
	}
	return names
}

// VertexCount sums the vertices of every primitive.
func (c *Character) VertexCount() int {
	n := 0
	for _, m := range c.Meshes {
		for _, p := range m.Primitives {
			n += len(p.Positions)
		}
	}
	return n
}

// optIndex reads a glTF index field. The library models required indices as int and
// optional ones as *int.
func optIndex(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case *int:
		if x == nil {
			return 0, false
		}
		return *x, true
	case uint32:
		return int(x), true
	case *uint32:
		if x == nil {
			return 0, false
		}
		return int(*x), true
	}
	return 0, false
}

// FromDocument converts a decoded glTF document into a Character.
func FromDocument(doc *gltf.Document, url string) (*Character, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, ErrNoScene
	}

	ch := &Character{URL: url}

	images, err := readImages(doc)
	if err != nil {
		return nil, err
	}
	ch.Images = images

	ch.Graph = readGraph(doc)

	for i, m := range doc.Meshes {
		mesh, err := readMesh(doc, m)
		if err != nil {
			return nil, fmt.Errorf("mesh %d: %w", i, err)
		}
		ch.Meshes = append(ch.Meshes, mesh)
	}

	for i, s := range doc.Skins {
		skin, err := readSkin(doc, s)
		if err != nil {
			return nil, fmt.Errorf("skin %d: %w", i, err)
		}
		ch.Skins = append(ch.Skins, skin)
	}

	for i, a := range doc.Animations {
		clip, err := readClip(doc, a, i)
		if err != nil {
			return nil, fmt.Errorf("animation %d: %w", i, err)
		}
		ch.Clips = append(ch.Clips, clip)
	}

	ch.Bounds = ch.restBounds()
	return ch, nil
}

func readGraph(doc *gltf.Document) *scene.Graph {
	g := &scene.Graph{Nodes: make([]scene.Node, len(doc.Nodes))}

	for i, n := range doc.Nodes {
		node := scene.Node{Name: n.Name, Mesh: -1, Skin: -1, Rest: scene.IdentityTransform()}
		if idx, ok := optIndex(n.Mesh); ok {
			node.Mesh = idx
		}
		if idx, ok := optIndex(n.Skin); ok {
			node.Skin = idx
		}
		for _, c := range n.Children {
			if idx, ok := optIndex(c); ok {
				node.Children = append(node.Children, idx)
			}
		}

		m := n.MatrixOrDefault()
		var mat mgl32.Mat4
		for k := range mat {
			mat[k] = float32(m[k])
		}
		if mat != mgl32.Ident4() {
			node.Fixed = &mat
		} else {
			t := n.TranslationOrDefault()
			r := n.RotationOrDefault()
			s := n.ScaleOrDefault()
			node.Rest = scene.Transform{
				Translation: mgl32.Vec3{float32(t[0]), float32(t[1]), float32(t[2])},
				Rotation:    mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}},
				Scale:       mgl32.Vec3{float32(s[0]), float32(s[1]), float32(s[2])},
			}
		}
		g.Nodes[i] = node
	}

	// Roots come from the default scene, else every parentless node.
	sceneIdx := 0
	if idx, ok := optIndex(doc.Scene); ok {
		sceneIdx = idx
	}
	if sceneIdx >= 0 && sceneIdx < len(doc.Scenes) && len(doc.Scenes[sceneIdx].Nodes) > 0 {
		for _, r := range doc.Scenes[sceneIdx].Nodes {
			if idx, ok := optIndex(r); ok {
				g.Roots = append(g.Roots, idx)
			}
		}
		return g
	}

	hasParent := make([]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	for i, p := range hasParent {
		if !p {
			g.Roots = append(g.Roots, i)
		}
	}
	return g
}

func readMesh(doc *gltf.Document, m *gltf.Mesh) (Mesh, error) {
	mesh := Mesh{Name: m.Name}
	for i, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			continue
		}
		p, err := readPrimitive(doc, prim)
		if err != nil {
			return mesh, fmt.Errorf("primitive %d: %w", i, err)
		}
		mesh.Primitives = append(mesh.Primitives, p)
	}
	return mesh, nil
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (Primitive, error) {
	p := Primitive{BaseColor: mgl32.Vec4{1, 1, 1, 1}, Image: -1, Bounds: scene.EmptyBox()}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return p, fmt.Errorf("missing POSITION")
	}
	positions, err := readAccessorVec3(doc, int(posIdx))
	if err != nil {
		return p, fmt.Errorf("read positions: %w", err)
	}
	p.Positions = positions
	for _, v := range positions {
		p.Bounds = p.Bounds.ExtendPoint(v)
	}

	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		p.Normals, _ = readAccessorVec3(doc, int(idx))
	}
	if len(p.Normals) != len(positions) {
		p.Normals = make([]mgl32.Vec3, len(positions))
	}

	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		p.TexCoords, _ = readAccessorVec2(doc, int(idx))
	}
	if len(p.TexCoords) != len(positions) {
		p.TexCoords = make([]mgl32.Vec2, len(positions))
	}

	jIdx, hasJoints := prim.Attributes[gltf.JOINTS_0]
	wIdx, hasWeights := prim.Attributes[gltf.WEIGHTS_0]
	if hasJoints && hasWeights {
		joints, err := readAccessorVec4(doc, int(jIdx))
		if err != nil {
			return p, fmt.Errorf("read joints: %w", err)
		}
		weights, err := readAccessorVec4(doc, int(wIdx))
		if err != nil {
			return p, fmt.Errorf("read weights: %w", err)
		}
		p.Joints, p.Weights = joints, weights
	}

	if prim.Indices != nil {
		p.Indices, err = readAccessorIndices(doc, int(*prim.Indices))
		if err != nil {
			return p, fmt.Errorf("read indices: %w", err)
		}
	}

	if prim.Material != nil {
		material := doc.Materials[*prim.Material]
		if pbr := material.PBRMetallicRoughness; pbr != nil {
			if tex := pbr.BaseColorTexture; tex != nil {
				p.Image = textureImage(doc, int(tex.Index))
			}
		}
	}

	return p, nil
}

func textureImage(doc *gltf.Document, textureIdx int) int {
	if textureIdx < 0 || textureIdx >= len(doc.Textures) {
		return -1
	}
	texture := doc.Textures[textureIdx]
	if texture.Source == nil {
		return -1
	}
	return int(*texture.Source)
}

func readImages(doc *gltf.Document) ([]Image, error) {
	images := make([]Image, len(doc.Images))
	for i, img := range doc.Images {
		images[i].MimeType = img.MimeType
		switch {
		case img.BufferView != nil:
			bufferView := doc.BufferViews[*img.BufferView]
			data, err := getBufferData(doc.Buffers[bufferView.Buffer])
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			start, end := int(bufferView.ByteOffset), int(bufferView.ByteOffset)+int(bufferView.ByteLength)
			if end > len(data) {
				return nil, fmt.Errorf("image %d overruns its buffer", i)
			}
			images[i].Data = data[start:end]
		case strings.HasPrefix(img.URI, "data:"):
			data, err := decodeDataURI(img.URI)
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			images[i].Data = data
		}
		// External image files are left empty and render untextured.
	}
	return images, nil
}

func readSkin(doc *gltf.Document, s *gltf.Skin) (Skin, error) {
	skin := Skin{Name: s.Name}
	for _, j := range s.Joints {
		if idx, ok := optIndex(j); ok {
			skin.Joints = append(skin.Joints, idx)
		}
	}
	if len(skin.Joints) > MaxJoints {
		return skin, fmt.Errorf("%d joints exceeds the limit of %d", len(skin.Joints), MaxJoints)
	}

	if idx, ok := optIndex(s.InverseBindMatrices); ok {
		ibm, err := readAccessorMat4(doc, idx)
		if err != nil {
			return skin, fmt.Errorf("inverse bind matrices: %w", err)
		}
		skin.InverseBind = ibm
	} else {
		skin.InverseBind = make([]mgl32.Mat4, len(skin.Joints))
		for i := range skin.InverseBind {
			skin.InverseBind[i] = mgl32.Ident4()
		}
	}
	return skin, nil
}

func readClip(doc *gltf.Document, a *gltf.Animation, index int) (*animation.Clip, error) {
	var channels []animation.Channel

	for _, c := range a.Channels {
		node, ok := optIndex(c.Target.Node)
		if !ok {
			continue
		}

		var path animation.Path
		switch c.Target.Path {
		case gltf.TRSTranslation:
			path = animation.PathTranslation
		case gltf.TRSRotation:
			path = animation.PathRotation
		case gltf.TRSScale:
			path = animation.PathScale
		default:
			// morph weights are not animated
			continue
		}

		samplerIdx, ok := optIndex(c.Sampler)
		if !ok || samplerIdx < 0 || samplerIdx >= len(a.Samplers) {
			return nil, fmt.Errorf("channel references missing sampler")
		}
		sampler := a.Samplers[samplerIdx]

		inIdx, _ := optIndex(sampler.Input)
		outIdx, _ := optIndex(sampler.Output)

		times, _, err := readAccessor(doc, inIdx)
		if err != nil {
			return nil, fmt.Errorf("sampler input: %w", err)
		}
		values, _, err := readAccessor(doc, outIdx)
		if err != nil {
			return nil, fmt.Errorf("sampler output: %w", err)
		}

		interp := animation.InterpolationLinear
		switch sampler.Interpolation {
		case gltf.InterpolationStep:
			interp = animation.InterpolationStep
		case gltf.InterpolationCubicSpline:
			interp = animation.InterpolationCubicSpline
		}

		ch := animation.Channel{
			Node:          node,
			Path:          path,
			Interpolation: interp,
			Times:         times,
			Values:        values,
		}
		if !ch.Valid() {
			continue
		}
		channels = append(channels, ch)
	}

	name := a.Name
	if name == "" {
		name = fmt.Sprintf("animation_%d", index)
	}
	return animation.NewClip(name, index, channels), nil
}

// restBounds unions every primitive's bounds under its node's rest-pose world matrix.
func (c *Character) restBounds() scene.Box {
	world := c.Graph.WorldMatrices(c.Graph.RestPose(), nil)
	bounds := scene.EmptyBox()
	for i, n := range c.Graph.Nodes {
		if n.Mesh < 0 || n.Mesh >= len(c.Meshes) {
			continue
		}
		for _, p := range c.Meshes[n.Mesh].Primitives {
			bounds = bounds.Union(p.Bounds.Transform(world[i]))
		}
	}
	return bounds
}
