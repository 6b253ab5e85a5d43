// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model describes scene data in the byte layout the device
// consumes and reports how much buffer space it needs.
package model

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/gpures/gfx"
)

// Vertex is a model vertex
type Vertex struct {
	Pos   glm.Vec3
	Color glm.Vec4
}

// Uniform defines a model-view-projection object
type Uniform struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
}

// Sizes of the device side layouts in bytes.
const (
	VertexSize  = uint64(unsafe.Sizeof(Vertex{}))
	UniformSize = uint64(unsafe.Sizeof(Uniform{}))
	IndexSize   = uint64(unsafe.Sizeof(uint16(0)))
)

// Bytes encodes the uniform in host byte order.
func (u Uniform) Bytes() []byte {
	return encode(u)
}

// NewUniform returns a camera looking at the origin from above, with the
// model rotated by angle radians around Z and the projection fitted to
// extent. The projection is flipped for a Y axis pointing down.
func NewUniform(extent gfx.Extent2D, angle float32) Uniform {
	aspect := float32(1)
	if !extent.Zero() {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	proj := glm.Perspective(glm.DegToRad(45), aspect, 0.1, 10)
	proj[5] *= -1
	return Uniform{
		Model:      glm.HomogRotate3DZ(angle),
		View:       glm.LookAtV(glm.Vec3{2, 2, 2}, glm.Vec3{}, glm.Vec3{0, 0, 1}),
		Projection: proj,
	}
}

// Mesh is indexed geometry.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint16
}

// Requirements are the buffer sizes a scene needs, with one uniform
// buffer per swapchain image.
type Requirements struct {
	SwapchainImages uint32
	VertexBytes     uint64
	IndexBytes      uint64
	UniformBytes    uint64
}

// Requirements returns what drawing m on a swapchain of images needs.
func (m Mesh) Requirements(images uint32) Requirements {
	return Requirements{
		SwapchainImages: images,
		VertexBytes:     uint64(len(m.Vertices)) * VertexSize,
		IndexBytes:      uint64(len(m.Indices)) * IndexSize,
		UniformBytes:    UniformSize,
	}
}

// VertexBytes encodes the vertices in host byte order.
func (m Mesh) VertexBytes() []byte {
	return encode(m.Vertices)
}

// IndexBytes encodes the indices in host byte order.
func (m Mesh) IndexBytes() []byte {
	return encode(m.Indices)
}

// Quad returns a unit square with a color per corner.
func Quad() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Pos: glm.Vec3{-0.5, -0.5, 0}, Color: glm.Vec4{1, 0, 0, 1}},
			{Pos: glm.Vec3{0.5, -0.5, 0}, Color: glm.Vec4{0, 1, 0, 1}},
			{Pos: glm.Vec3{0.5, 0.5, 0}, Color: glm.Vec4{0, 0, 1, 1}},
			{Pos: glm.Vec3{-0.5, 0.5, 0}, Color: glm.Vec4{1, 1, 1, 1}},
		},
		Indices: []uint16{0, 1, 2, 2, 3, 0},
	}
}

func encode(data interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, hostOrder(), data); err != nil {
		panic(err) // Only fixed size layouts are encoded
	}
	return buf.Bytes()
}

func hostOrder() binary.ByteOrder {
	probe := uint16(1)
	if *(*byte)(unsafe.Pointer(&probe)) == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
