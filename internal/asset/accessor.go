package asset

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

// ErrBufferNotLoaded is returned when a buffer's bytes were not resolved by the decoder.
var ErrBufferNotLoaded = errors.New("buffer data not loaded")

func componentSize(ct gltf.ComponentType) int {
	switch ct {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	default:
		return 4
	}
}

func componentCount(at gltf.AccessorType) int {
	switch at {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4, gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	default:
		return 1
	}
}

// readComponent decodes one component as float32, applying normalization for integer types.
func readComponent(data []byte, ct gltf.ComponentType, normalized bool) float32 {
	switch ct {
	case gltf.ComponentFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(data))
	case gltf.ComponentUbyte:
		v := float32(data[0])
		if normalized {
			return v / 255
		}
		return v
	case gltf.ComponentByte:
		v := float32(int8(data[0]))
		if normalized {
			return max(v/127, -1)
		}
		return v
	case gltf.ComponentUshort:
		v := float32(binary.LittleEndian.Uint16(data))
		if normalized {
			return v / 65535
		}
		return v
	case gltf.ComponentShort:
		v := float32(int16(binary.LittleEndian.Uint16(data)))
		if normalized {
			return max(v/32767, -1)
		}
		return v
	case gltf.ComponentUint:
		return float32(binary.LittleEndian.Uint32(data))
	}
	return 0
}

// readAccessor returns every element of an accessor as a flat float32 slice with
// componentCount values per element. Accessors without a buffer view read as zeros.
func readAccessor(doc *gltf.Document, accessorIdx int) ([]float32, int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, 0, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	width := componentCount(accessor.Type)
	count := int(accessor.Count)
	out := make([]float32, count*width)

	if accessor.BufferView == nil {
		return out, width, nil
	}

	bufferView := doc.BufferViews[*accessor.BufferView]
	data, err := getBufferData(doc.Buffers[bufferView.Buffer])
	if err != nil {
		return nil, 0, err
	}

	csize := componentSize(accessor.ComponentType)
	elemSize := csize * width
	stride := int(bufferView.ByteStride)
	if stride == 0 {
		stride = elemSize
	}

	offset := int(bufferView.ByteOffset) + int(accessor.ByteOffset)
	if count > 0 {
		last := offset + (count-1)*stride + elemSize
		if offset < 0 || last > len(data) {
			return nil, 0, fmt.Errorf("accessor %d overruns its buffer (%d > %d)", accessorIdx, last, len(data))
		}
	}

	for i := 0; i < count; i++ {
		base := offset + i*stride
		for c := 0; c < width; c++ {
			out[i*width+c] = readComponent(data[base+c*csize:], accessor.ComponentType, accessor.Normalized)
		}
	}
	return out, width, nil
}

func readAccessorVec3(doc *gltf.Document, accessorIdx int) ([]mgl32.Vec3, error) {
	flat, width, err := readAccessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	if width < 3 {
		return nil, fmt.Errorf("accessor %d is not a vec3", accessorIdx)
	}
	result := make([]mgl32.Vec3, len(flat)/width)
	for i := range result {
		copy(result[i][:], flat[i*width:i*width+3])
	}
	return result, nil
}

func readAccessorVec2(doc *gltf.Document, accessorIdx int) ([]mgl32.Vec2, error) {
	flat, width, err := readAccessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	if width < 2 {
		return nil, fmt.Errorf("accessor %d is not a vec2", accessorIdx)
	}
	result := make([]mgl32.Vec2, len(flat)/width)
	for i := range result {
		copy(result[i][:], flat[i*width:i*width+2])
	}
	return result, nil
}

func readAccessorVec4(doc *gltf.Document, accessorIdx int) ([]mgl32.Vec4, error) {
	flat, width, err := readAccessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	if width < 4 {
		return nil, fmt.Errorf("accessor %d is not a vec4", accessorIdx)
	}
	result := make([]mgl32.Vec4, len(flat)/width)
	for i := range result {
		copy(result[i][:], flat[i*width:i*width+4])
	}
	return result, nil
}

func readAccessorMat4(doc *gltf.Document, accessorIdx int) ([]mgl32.Mat4, error) {
	flat, width, err := readAccessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	if width != 16 {
		return nil, fmt.Errorf("accessor %d is not a mat4", accessorIdx)
	}
	result := make([]mgl32.Mat4, len(flat)/16)
	for i := range result {
		copy(result[i][:], flat[i*16:i*16+16])
	}
	return result, nil
}

func readAccessorIndices(doc *gltf.Document, accessorIdx int) ([]uint32, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.BufferView == nil {
		return nil, fmt.Errorf("index accessor %d has no buffer view", accessorIdx)
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	data, err := getBufferData(doc.Buffers[bufferView.Buffer])
	if err != nil {
		return nil, err
	}

	offset := int(bufferView.ByteOffset) + int(accessor.ByteOffset)
	count := int(accessor.Count)
	csize := componentSize(accessor.ComponentType)
	if offset < 0 || offset+count*csize > len(data) {
		return nil, fmt.Errorf("index accessor %d overruns its buffer", accessorIdx)
	}

	result := make([]uint32, count)
	switch accessor.ComponentType {
	case gltf.ComponentUbyte:
		for i := 0; i < count; i++ {
			result[i] = uint32(data[offset+i])
		}
	case gltf.ComponentUshort:
		for i := 0; i < count; i++ {
			result[i] = uint32(binary.LittleEndian.Uint16(data[offset+i*2:]))
		}
	case gltf.ComponentUint:
		for i := 0; i < count; i++ {
			result[i] = binary.LittleEndian.Uint32(data[offset+i*4:])
		}
	default:
		return nil, fmt.Errorf("index accessor %d has unsupported component type", accessorIdx)
	}
	return result, nil
}

// getBufferData returns the bytes of a buffer. GLB chunks and external files are
// resolved by the decoder; data URIs are decoded here when the decoder left them.
func getBufferData(buffer *gltf.Buffer) ([]byte, error) {
	if len(buffer.Data) > 0 {
		return buffer.Data, nil
	}
	if strings.HasPrefix(buffer.URI, "data:") {
		return decodeDataURI(buffer.URI)
	}
	return nil, fmt.Errorf("%w: %q", ErrBufferNotLoaded, buffer.URI)
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data uri")
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return []byte(uri[comma+1:]), nil
	}
	return base64.StdEncoding.DecodeString(uri[comma+1:])
}
