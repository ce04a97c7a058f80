package asset

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/posteravatar/internal/animation"
)

// testBuffer lays out: positions (36 bytes), uint16 indices (6 + 2 pad), times (8), translations (24).
func testBuffer() []byte {
	var buf bytes.Buffer
	f := func(vs ...float32) {
		for _, v := range vs {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
		}
	}
	f(-1, 0, -1, 1, 0, -1, 0, 2, 1)
	for _, i := range []uint16{0, 1, 2, 0} {
		_ = binary.Write(&buf, binary.LittleEndian, i)
	}
	f(0, 1)
	f(0, 0, 0, 0, 1, 0)
	return buf.Bytes()
}

func testDocumentJSON() string {
	data := testBuffer()
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [
    {"name": "root", "translation": [0, 1, 0], "children": [1]},
    {"name": "body", "mesh": 0}
  ],
  "meshes": [{"name": "body", "primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
  "animations": [
    {"name": "Wave", "channels": [{"sampler": 0, "target": {"node": 1, "path": "translation"}}], "samplers": [{"input": 2, "output": 3}]},
    {"name": "Idle_Loop", "channels": [{"sampler": 0, "target": {"node": 1, "path": "translation"}}], "samplers": [{"input": 2, "output": 3, "interpolation": "STEP"}]}
  ],
  "buffers": [{"byteLength": %d, "uri": %q}],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36},
    {"buffer": 0, "byteOffset": 36, "byteLength": 6},
    {"buffer": 0, "byteOffset": 44, "byteLength": 8},
    {"buffer": 0, "byteOffset": 52, "byteLength": 24}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3", "min": [-1, 0, -1], "max": [1, 2, 1]},
    {"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"},
    {"bufferView": 2, "componentType": 5126, "count": 2, "type": "SCALAR", "min": [0], "max": [1]},
    {"bufferView": 3, "componentType": 5126, "count": 2, "type": "VEC3"}
  ]
}`, len(data), uri)
}

func decodeTestDocument(t *testing.T) *gltf.Document {
	t.Helper()
	doc := new(gltf.Document)
	require.NoError(t, gltf.NewDecoder(bytes.NewReader([]byte(testDocumentJSON()))).Decode(doc))
	return doc
}

func assertTestCharacter(t *testing.T, ch *Character) {
	t.Helper()

	require.Len(t, ch.Graph.Nodes, 2)
	assert.Equal(t, []int{0}, ch.Graph.Roots)
	assert.Equal(t, 0, ch.Graph.Nodes[1].Mesh)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, ch.Graph.Nodes[0].Rest.Translation)

	require.Len(t, ch.Meshes, 1)
	require.Len(t, ch.Meshes[0].Primitives, 1)
	prim := ch.Meshes[0].Primitives[0]
	assert.Equal(t, []uint32{0, 1, 2}, prim.Indices)
	assert.Equal(t, mgl32.Vec3{0, 2, 1}, prim.Positions[2])
	assert.False(t, prim.Skinned())
	assert.Equal(t, -1, prim.Image)

	// mesh node sits under a root translated up by one
	assert.Equal(t, mgl32.Vec3{-1, 1, -1}, ch.Bounds.Min)
	assert.Equal(t, mgl32.Vec3{1, 3, 1}, ch.Bounds.Max)

	assert.Equal(t, []string{"Wave", "Idle_Loop"}, ch.ClipNames())
	require.Len(t, ch.Clips[0].Channels, 1)
	c := ch.Clips[0].Channels[0]
	assert.Equal(t, animation.PathTranslation, c.Path)
	assert.Equal(t, 1, c.Node)
	assert.Equal(t, []float32{0, 1}, c.Times)
	assert.Equal(t, float32(1), ch.Clips[0].Duration)
	assert.Equal(t, animation.InterpolationStep, ch.Clips[1].Channels[0].Interpolation)
	assert.Equal(t, 1, ch.Clips[1].Index)
}

func TestFromDocument(t *testing.T) {
	ch, err := FromDocument(decodeTestDocument(t), "mem://test")
	require.NoError(t, err)
	assertTestCharacter(t, ch)
}

func TestFromDocumentRejectsEmpty(t *testing.T) {
	_, err := FromDocument(&gltf.Document{}, "empty")
	assert.ErrorIs(t, err, ErrNoScene)
}

func TestLoadCharacterFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "character.gltf")
	require.NoError(t, os.WriteFile(path, []byte(testDocumentJSON()), 0644))

	loader := NewLoader(nil, zerolog.Nop())
	var last float64
	ch, err := loader.LoadCharacter(context.Background(), path, func(p float64) { last = p })
	require.NoError(t, err)
	assertTestCharacter(t, ch)
	assert.Equal(t, float64(100), last)
}

func TestLoadCharacterOverHTTPReportsProgress(t *testing.T) {
	body := []byte(testDocumentJSON())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var seen []float64
	loader := NewLoader(srv.Client(), zerolog.Nop())
	ch, err := loader.LoadCharacter(context.Background(), srv.URL+"/character.gltf", func(p float64) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	})
	require.NoError(t, err)
	assertTestCharacter(t, ch)

	require.NotEmpty(t, seen)
	assert.Equal(t, float64(0), seen[0])
	assert.Equal(t, float64(100), seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestLoadCharacterHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewLoader(srv.Client(), zerolog.Nop()).LoadCharacter(context.Background(), srv.URL+"/missing.glb", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLoadCharacterMissingFile(t *testing.T) {
	_, err := NewLoader(nil, zerolog.Nop()).LoadCharacter(context.Background(), filepath.Join(t.TempDir(), "nope.glb"), nil)
	assert.Error(t, err)
}

func TestLoadCharacterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader(nil, zerolog.Nop()).LoadCharacter(ctx, "whatever.glb", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadBackground(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(t.TempDir(), "bg.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	got, err := NewLoader(nil, zerolog.Nop()).LoadBackground(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Bounds().Dx())
	assert.Equal(t, 2, got.Bounds().Dy())

	_, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestReadComponentNormalization(t *testing.T) {
	assert.Equal(t, float32(1), readComponent([]byte{255}, gltf.ComponentUbyte, true))
	assert.Equal(t, float32(255), readComponent([]byte{255}, gltf.ComponentUbyte, false))
	assert.Equal(t, float32(-1), readComponent([]byte{0x80}, gltf.ComponentByte, true))
	assert.InDelta(t, 0.5, readComponent([]byte{0xff, 0x7f}, gltf.ComponentUshort, true), 0.01)
}

func TestDecodeDataURI(t *testing.T) {
	data, err := decodeDataURI("data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString([]byte("hi")))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)

	_, err = decodeDataURI("data:nocomma")
	assert.Error(t, err)
}
