// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// BufferInfo describes a buffer to create.
type BufferInfo struct {
	Size    uint64
	Usage   BufferUsage
	Sharing Sharing
}

// ImageInfo describes a two dimensional, single level image to create.
type ImageInfo struct {
	Extent  Extent2D
	Format  Format
	Usage   ImageUsage
	Samples uint32
	Sharing Sharing
}

// ViewInfo describes a view over an image.
type ViewInfo struct {
	Image  Handle
	Format Format
	Aspect Aspect
}

// MemoryRequirements are reported by the device for a created resource.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64

	// TypeBits has bit i set when memory type i may back the resource.
	TypeBits uint32
}

// MemoryType is one entry of the device memory type table.
type MemoryType struct {
	Flags MemoryPropertyFlags
	Heap  uint32
}

// MemoryHeap is one entry of the device memory heap table.
type MemoryHeap struct {
	Size  uint64
	Flags HeapFlags
}

// MemoryProperties are the memory types and heaps of a physical device.
type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

// RenderPassInfo describes the fixed attachment layout that framebuffers
// are built against: a multisampled color target, a multisampled depth
// target and the single sampled presentable image it resolves into.
type RenderPassInfo struct {
	ColorFormat Format
	DepthFormat Format
	Samples     uint32
}

// FramebufferInfo describes a framebuffer. Attachments are image views.
type FramebufferInfo struct {
	RenderPass  Handle
	Attachments []Handle
	Extent      Extent2D
}

// SwapchainInfo describes the swap mechanism to create.
type SwapchainInfo struct {
	Extent    Extent2D
	MinImages uint32
	Format    Format
	Old       Handle
}

// Swapchain is a created swap mechanism. Images are owned by it.
type Swapchain struct {
	Handle Handle
	Images []Handle
	Format Format
	Extent Extent2D
}

// SurfaceCapabilities are the limits a surface puts on its swap mechanism.
type SurfaceCapabilities struct {
	MinImages uint32

	// MaxImages of 0 means there is no upper limit.
	MaxImages uint32

	// Current is the surface extent, or 0xFFFFFFFF in both
	// dimensions when the swap mechanism decides it.
	Current Extent2D
	Min     Extent2D
	Max     Extent2D
}

// CopyRegion is a buffer to buffer copy.
type CopyRegion struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// SubmitInfo is one batch of work submitted to a queue. Every wait
// semaphore gates the color attachment output stage.
type SubmitInfo struct {
	Commands []Handle
	Wait     []Handle
	Signal   []Handle
	Fence    Handle
}

// PresentInfo presents one swap image once the wait semaphores signal.
type PresentInfo struct {
	Swapchain Handle
	Image     uint32
	Wait      []Handle
}
