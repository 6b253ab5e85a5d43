// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"context"
	"errors"
)

// Errors reported by devices. Implementations wrap them with the
// failing call, callers classify with errors.Is.
var (
	// ErrSurfaceOutOfDate means the swap mechanism no longer matches the
	// surface and must be recreated before it can be used again.
	ErrSurfaceOutOfDate = errors.New("gfx: surface out of date")

	// ErrSurfaceSuboptimal means the operation succeeded but the swap
	// mechanism should be recreated.
	ErrSurfaceSuboptimal = errors.New("gfx: surface suboptimal")

	// ErrResourceCreation means the device rejected a creation call.
	ErrResourceCreation = errors.New("gfx: resource creation failed")

	// ErrUnknownHandle is returned for handles the device did not hand out.
	ErrUnknownHandle = errors.New("gfx: unknown handle")
)

// Resources creates and destroys buffers, images and the objects built on them.
type Resources interface {
	CreateBuffer(BufferInfo) (Handle, error)
	DestroyBuffer(Handle)
	BufferRequirements(Handle) MemoryRequirements

	CreateImage(ImageInfo) (Handle, error)
	DestroyImage(Handle)
	ImageRequirements(Handle) MemoryRequirements

	CreateView(ViewInfo) (Handle, error)
	DestroyView(Handle)

	CreateRenderPass(RenderPassInfo) (Handle, error)
	DestroyRenderPass(Handle)

	CreateFramebuffer(FramebufferInfo) (Handle, error)
	DestroyFramebuffer(Handle)
}

// Memory allocates device memory and binds it to resources.
type Memory interface {
	MemoryProperties() MemoryProperties

	AllocateMemory(size uint64, typeIndex uint32) (Handle, error)
	FreeMemory(Handle)

	BindBufferMemory(buffer, memory Handle, offset uint64) error
	BindImageMemory(image, memory Handle, offset uint64) error

	// MapMemory returns host access to size bytes starting at offset.
	// The slice is valid until UnmapMemory.
	MapMemory(memory Handle, offset, size uint64) ([]byte, error)
	UnmapMemory(Handle)
}

// Presentation manages the swap mechanism of the bound surface.
type Presentation interface {
	SurfaceFormat() (Format, error)
	SurfaceCapabilities() (SurfaceCapabilities, error)

	CreateSwapchain(SwapchainInfo) (Swapchain, error)
	DestroySwapchain(Handle)

	// AcquireNextImage returns the index of the next presentable image.
	// The semaphore is signaled once the image may be rendered to.
	// ErrSurfaceSuboptimal is returned together with a usable index.
	AcquireNextImage(swapchain, semaphore Handle) (uint32, error)
	Present(PresentInfo) error
}

// Sync creates host and device synchronization primitives.
type Sync interface {
	CreateFence(signaled bool) (Handle, error)
	DestroyFence(Handle)

	// WaitFence blocks until the fence is signaled or ctx is done.
	WaitFence(ctx context.Context, fence Handle) error
	ResetFence(Handle) error

	CreateSemaphore() (Handle, error)
	DestroySemaphore(Handle)
}

// Commands records and submits work.
type Commands interface {
	AllocateCommands(Queue) (Handle, error)
	FreeCommands(Handle)

	// RecordCopy replaces the contents of the command buffer
	// with the given buffer copies.
	RecordCopy(commands, src, dst Handle, regions []CopyRegion) error
	Submit(Queue, SubmitInfo) error
}

// Device is a logical device with its queues and bound surface.
type Device interface {
	Resources
	Memory
	Presentation
	Sync
	Commands

	Families() QueueFamilies

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error
}
