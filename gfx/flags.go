// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"
	"strings"
)

// The numeric values of every flag and format below match the Vulkan
// enumerants, so implementations convert them with a plain cast.

// MemoryPropertyFlags describe a memory type.
type MemoryPropertyFlags uint32

// Memory property bits.
const (
	MemoryDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
	MemoryHostCached
	MemoryLazilyAllocated
)

// Has reports whether f contains every bit of o.
func (f MemoryPropertyFlags) Has(o MemoryPropertyFlags) bool {
	return f&o == o
}

var memoryPropertyNames = []string{
	"DEVICE_LOCAL",
	"HOST_VISIBLE",
	"HOST_COHERENT",
	"HOST_CACHED",
	"LAZILY_ALLOCATED",
}

func (f MemoryPropertyFlags) String() string {
	return flagString(uint32(f), memoryPropertyNames)
}

// HeapFlags describe a memory heap.
type HeapFlags uint32

// Heap bits.
const (
	HeapDeviceLocal HeapFlags = 1 << iota
	HeapMultiInstance
)

func (f HeapFlags) String() string {
	return flagString(uint32(f), []string{"DEVICE_LOCAL", "MULTI_INSTANCE"})
}

// BufferUsage is the set of ways a buffer may be used.
type BufferUsage uint32

// Buffer usage bits.
const (
	BufferTransferSrc BufferUsage = 1 << iota
	BufferTransferDst
	BufferUniformTexel
	BufferStorageTexel
	BufferUniform
	BufferStorage
	BufferIndex
	BufferVertex
)

func (u BufferUsage) String() string {
	return flagString(uint32(u), []string{
		"TRANSFER_SRC", "TRANSFER_DST", "UNIFORM_TEXEL", "STORAGE_TEXEL",
		"UNIFORM", "STORAGE", "INDEX", "VERTEX",
	})
}

// ImageUsage is the set of ways an image may be used.
type ImageUsage uint32

// Image usage bits.
const (
	ImageTransferSrc ImageUsage = 1 << iota
	ImageTransferDst
	ImageSampled
	ImageStorage
	ImageColorAttachment
	ImageDepthStencilAttachment
	ImageTransientAttachment
)

func (u ImageUsage) String() string {
	return flagString(uint32(u), []string{
		"TRANSFER_SRC", "TRANSFER_DST", "SAMPLED", "STORAGE",
		"COLOR_ATTACHMENT", "DEPTH_STENCIL_ATTACHMENT", "TRANSIENT_ATTACHMENT",
	})
}

// Aspect selects the planes of an image a view covers.
type Aspect uint32

// Aspect bits.
const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

// Format is a pixel format.
type Format uint32

// Formats used by the engine.
const (
	FormatUndefined      Format = 0
	FormatR8G8B8A8Unorm  Format = 37
	FormatB8G8R8A8Unorm  Format = 44
	FormatB8G8R8A8Srgb   Format = 50
	FormatD16Unorm       Format = 124
	FormatD32Sfloat      Format = 126
	FormatD24UnormS8Uint Format = 129
)

func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "UNDEFINED"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8_SRGB"
	case FormatD16Unorm:
		return "D16_UNORM"
	case FormatD32Sfloat:
		return "D32_SFLOAT"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	}
	return fmt.Sprintf("FORMAT(%d)", uint32(f))
}

// Depth reports whether the format has a depth component.
func (f Format) Depth() bool {
	return f == FormatD16Unorm || f == FormatD32Sfloat || f == FormatD24UnormS8Uint
}

func flagString(bits uint32, names []string) string {
	if bits == 0 {
		return "0"
	}
	var parts []string
	for i, name := range names {
		if bits&(1<<uint(i)) != 0 {
			parts = append(parts, name)
			bits &^= 1 << uint(i)
		}
	}
	if bits != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", bits))
	}
	return strings.Join(parts, "|")
}
