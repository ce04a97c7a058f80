package renderer

import (
	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/normanking/posteravatar/internal/asset"
)

// vertexFloats is position(3) normal(3) uv(2) joints(4) weights(4).
const vertexFloats = 16

// Mesh is one uploaded primitive.
type Mesh struct {
	VAO         uint32
	VBO         uint32
	EBO         uint32
	VertexCount int32
	IndexCount  int32
	HasIndices  bool
	Skinned     bool
}

// NewMesh uploads a decoded primitive to the GPU.
func NewMesh(p *asset.Primitive) *Mesh {
	m := &Mesh{
		VertexCount: int32(len(p.Positions)),
		IndexCount:  int32(len(p.Indices)),
		HasIndices:  len(p.Indices) > 0,
		Skinned:     p.Skinned(),
	}

	data := make([]float32, 0, len(p.Positions)*vertexFloats)
	for i, pos := range p.Positions {
		n := p.Normals[i]
		uv := p.TexCoords[i]
		data = append(data, pos[0], pos[1], pos[2], n[0], n[1], n[2], uv[0], uv[1])
		if m.Skinned {
			j, w := p.Joints[i], p.Weights[i]
			data = append(data, j[0], j[1], j[2], j[3], w[0], w[1], w[2], w[3])
		} else {
			data = append(data, 0, 0, 0, 0, 0, 0, 0, 0)
		}
	}

	m.upload(data, p.Indices)
	return m
}

func (m *Mesh) upload(vertexData []float32, indices []uint32) {
	gl.GenVertexArrays(1, &m.VAO)
	gl.GenBuffers(1, &m.VBO)

	gl.BindVertexArray(m.VAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.VBO)
	if len(vertexData) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, len(vertexData)*4, gl.Ptr(vertexData), gl.STATIC_DRAW)
	}

	stride := int32(vertexFloats * 4)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 3*4)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, stride, 6*4)
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointerWithOffset(3, 4, gl.FLOAT, false, stride, 8*4)
	gl.EnableVertexAttribArray(3)
	gl.VertexAttribPointerWithOffset(4, 4, gl.FLOAT, false, stride, 12*4)
	gl.EnableVertexAttribArray(4)

	if m.HasIndices {
		gl.GenBuffers(1, &m.EBO)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.EBO)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, gl.Ptr(indices), gl.STATIC_DRAW)
	}

	gl.BindVertexArray(0)
}

// Draw issues the draw call and returns the triangle count.
func (m *Mesh) Draw() int {
	gl.BindVertexArray(m.VAO)
	defer gl.BindVertexArray(0)
	if m.HasIndices {
		gl.DrawElements(gl.TRIANGLES, m.IndexCount, gl.UNSIGNED_INT, nil)
		return int(m.IndexCount / 3)
	}
	gl.DrawArrays(gl.TRIANGLES, 0, m.VertexCount)
	return int(m.VertexCount / 3)
}

// Delete frees the GPU buffers.
func (m *Mesh) Delete() {
	gl.DeleteVertexArrays(1, &m.VAO)
	gl.DeleteBuffers(1, &m.VBO)
	if m.HasIndices {
		gl.DeleteBuffers(1, &m.EBO)
	}
	m.VAO, m.VBO, m.EBO = 0, 0, 0
}
