// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"context"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

// fencePoll bounds a single wait so that cancellation is noticed.
const fencePoll = uint64(10 * time.Millisecond)

// CreateFence implements gfx.Sync.
func (d *Device) CreateFence(signaled bool) (gfx.Handle, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := created("CreateFence", vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.fences, fence), nil
}

// DestroyFence implements gfx.Sync.
func (d *Device) DestroyFence(h gfx.Handle) {
	if fence, ok := remove(d, d.fences, h); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

// WaitFence implements gfx.Sync.
func (d *Device) WaitFence(ctx context.Context, h gfx.Handle) error {
	fence, err := lookup(d, d.fences, h)
	if err != nil {
		return err
	}
	fences := []vk.Fence{fence}
	for {
		switch res := vk.WaitForFences(d.device, 1, fences, vk.True, fencePoll); res {
		case vk.Success:
			return nil
		case vk.Timeout:
			if err := ctx.Err(); err != nil {
				return err
			}
		default:
			return check("WaitForFences", res)
		}
	}
}

// ResetFence implements gfx.Sync.
func (d *Device) ResetFence(h gfx.Handle) error {
	fence, err := lookup(d, d.fences, h)
	if err != nil {
		return err
	}
	return check("ResetFences", vk.ResetFences(d.device, 1, []vk.Fence{fence}))
}

// CreateSemaphore implements gfx.Sync.
func (d *Device) CreateSemaphore() (gfx.Handle, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if err := created("CreateSemaphore", vk.CreateSemaphore(d.device, &sci, nil, &sem)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.semaphores, sem), nil
}

// DestroySemaphore implements gfx.Sync.
func (d *Device) DestroySemaphore(h gfx.Handle) {
	if sem, ok := remove(d, d.semaphores, h); ok {
		vk.DestroySemaphore(d.device, sem, nil)
	}
}
