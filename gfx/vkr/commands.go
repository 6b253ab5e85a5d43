// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

func (d *Device) family(q gfx.Queue) uint32 {
	switch q {
	case gfx.TransferQueue:
		return d.families.Transfer
	case gfx.PresentQueue:
		return d.families.Present
	}
	return d.families.Graphics
}

// AllocateCommands implements gfx.Commands.
func (d *Device) AllocateCommands(q gfx.Queue) (gfx.Handle, error) {
	p := d.pools[d.family(q)]
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	p.mutex.Lock()
	res := vk.AllocateCommandBuffers(d.device, &cbai, buffers)
	p.mutex.Unlock()
	if err := created("AllocateCommandBuffers", res); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.commands, commandBuffer{buffer: buffers[0], pool: p}), nil
}

// FreeCommands implements gfx.Commands.
func (d *Device) FreeCommands(h gfx.Handle) {
	cb, ok := remove(d, d.commands, h)
	if !ok {
		return
	}
	cb.pool.mutex.Lock()
	vk.FreeCommandBuffers(d.device, cb.pool.pool, 1, []vk.CommandBuffer{cb.buffer})
	cb.pool.mutex.Unlock()
}

// record resets the command buffer and records into it whatever fill does.
func (d *Device) record(h gfx.Handle, fill func(vk.CommandBuffer)) error {
	cb, err := lookup(d, d.commands, h)
	if err != nil {
		return err
	}
	cb.pool.mutex.Lock()
	defer cb.pool.mutex.Unlock()

	if err := check("ResetCommandBuffer", vk.ResetCommandBuffer(cb.buffer, 0)); err != nil {
		return err
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("BeginCommandBuffer", vk.BeginCommandBuffer(cb.buffer, &cbbi)); err != nil {
		return err
	}
	fill(cb.buffer)
	return check("EndCommandBuffer", vk.EndCommandBuffer(cb.buffer))
}

// RecordCopy implements gfx.Commands.
func (d *Device) RecordCopy(commands, src, dst gfx.Handle, regions []gfx.CopyRegion) error {
	s, err := lookup(d, d.buffers, src)
	if err != nil {
		return err
	}
	t, err := lookup(d, d.buffers, dst)
	if err != nil {
		return err
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	return d.record(commands, func(cb vk.CommandBuffer) {
		vk.CmdCopyBuffer(cb, s, t, uint32(len(copies)), copies)
	})
}

// RecordClear records a render pass over the framebuffer that only
// clears its targets to color, leaving the resolved image presentable.
func (d *Device) RecordClear(commands, renderPass, framebuffer gfx.Handle, extent gfx.Extent2D, color [4]float32) error {
	rp, err := lookup(d, d.renderPasses, renderPass)
	if err != nil {
		return err
	}
	fb, err := lookup(d, d.framebuffers, framebuffer)
	if err != nil {
		return err
	}
	values := []vk.ClearValue{
		vk.NewClearValue(color[:]),
		vk.NewClearDepthStencil(1.0, 0),
	}
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		},
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}
	return d.record(commands, func(cb vk.CommandBuffer) {
		vk.CmdBeginRenderPass(cb, &rpbi, vk.SubpassContentsInline)
		vk.CmdEndRenderPass(cb)
	})
}

// Submit implements gfx.Commands.
func (d *Device) Submit(q gfx.Queue, info gfx.SubmitInfo) error {
	buffers := make([]vk.CommandBuffer, len(info.Commands))
	for i, h := range info.Commands {
		cb, err := lookup(d, d.commands, h)
		if err != nil {
			return fmt.Errorf("commands %d: %w", i, err)
		}
		buffers[i] = cb.buffer
	}
	wait, err := d.semaphoreList(info.Wait)
	if err != nil {
		return err
	}
	signal, err := d.semaphoreList(info.Signal)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(wait))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	fence := nullFence
	if info.Fence.Valid() {
		if fence, err = lookup(d, d.fences, info.Fence); err != nil {
			return err
		}
	}

	si := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	d.queueMutex.Lock()
	defer d.queueMutex.Unlock()
	return check("QueueSubmit", vk.QueueSubmit(d.queues[q], 1, []vk.SubmitInfo{si}, fence))
}
