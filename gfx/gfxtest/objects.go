// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"context"
	"fmt"

	"github.com/devblok/gpures/gfx"
)

const alignment = 256

// stamp sets the handle of the last recorded call. Must hold d.mu.
func (d *Device) stamp(h gfx.Handle) {
	d.calls[len(d.calls)-1].Handle = h
}

// CreateBuffer implements gfx.Device.
func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateBuffer, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	if info.Size == 0 {
		return gfx.NullHandle, fmt.Errorf("gfxtest %s: zero size: %w", OpCreateBuffer, gfx.ErrResourceCreation)
	}
	if info.Sharing.Mode == gfx.SharingConcurrent && len(info.Sharing.Families) < 2 {
		d.misuse("%s: concurrent sharing needs at least two families, got %v", OpCreateBuffer, info.Sharing.Families)
	}
	h := d.create(kindBuffer, gfx.NullHandle)
	d.objects[h].size = info.Size
	d.stamp(h)
	return h, nil
}

// DestroyBuffer implements gfx.Device.
func (d *Device) DestroyBuffer(h gfx.Handle) {
	d.destroy(OpDestroyBuffer, h, kindBuffer)
}

// BufferRequirements implements gfx.Device.
func (d *Device) BufferRequirements(h gfx.Handle) gfx.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.lookup("BufferRequirements", h, kindBuffer)
	if !ok {
		return gfx.MemoryRequirements{}
	}
	return gfx.MemoryRequirements{
		Size:      (o.size + alignment - 1) / alignment * alignment,
		Alignment: alignment,
		TypeBits:  d.typeBits,
	}
}

// CreateImage implements gfx.Device.
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateImage, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	if info.Extent.Zero() {
		d.misuse("%s: zero extent %s", OpCreateImage, info.Extent)
		return gfx.NullHandle, fmt.Errorf("gfxtest %s: zero extent: %w", OpCreateImage, gfx.ErrResourceCreation)
	}
	samples := uint64(info.Samples)
	if samples == 0 {
		samples = 1
	}
	h := d.create(kindImage, gfx.NullHandle)
	d.objects[h].size = uint64(info.Extent.Width) * uint64(info.Extent.Height) * 4 * samples
	d.stamp(h)
	return h, nil
}

// DestroyImage implements gfx.Device.
func (d *Device) DestroyImage(h gfx.Handle) {
	d.destroy(OpDestroyImage, h, kindImage)
}

// ImageRequirements implements gfx.Device.
func (d *Device) ImageRequirements(h gfx.Handle) gfx.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.lookup("ImageRequirements", h, kindImage)
	if !ok {
		return gfx.MemoryRequirements{}
	}
	return gfx.MemoryRequirements{
		Size:      (o.size + alignment - 1) / alignment * alignment,
		Alignment: alignment,
		TypeBits:  d.typeBits,
	}
}

// CreateView implements gfx.Device.
func (d *Device) CreateView(info gfx.ViewInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateView, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	if _, ok := d.lookup(OpCreateView, info.Image, kindImage, kindSwapImage); !ok {
		return gfx.NullHandle, fmt.Errorf("gfxtest %s: image %d: %w", OpCreateView, info.Image, gfx.ErrUnknownHandle)
	}
	h := d.create(kindView, info.Image)
	d.stamp(h)
	return h, nil
}

// DestroyView implements gfx.Device.
func (d *Device) DestroyView(h gfx.Handle) {
	d.destroy(OpDestroyView, h, kindView)
}

// CreateRenderPass implements gfx.Device.
func (d *Device) CreateRenderPass(info gfx.RenderPassInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateRenderPass, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	h := d.create(kindRenderPass, gfx.NullHandle)
	d.stamp(h)
	return h, nil
}

// DestroyRenderPass implements gfx.Device.
func (d *Device) DestroyRenderPass(h gfx.Handle) {
	d.destroy(OpDestroyRenderPass, h, kindRenderPass)
}

// CreateFramebuffer implements gfx.Device.
func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateFramebuffer, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	if _, ok := d.lookup(OpCreateFramebuffer, info.RenderPass, kindRenderPass); !ok {
		return gfx.NullHandle, fmt.Errorf("gfxtest %s: render pass %d: %w", OpCreateFramebuffer, info.RenderPass, gfx.ErrUnknownHandle)
	}
	for _, a := range info.Attachments {
		if _, ok := d.lookup(OpCreateFramebuffer, a, kindView); !ok {
			return gfx.NullHandle, fmt.Errorf("gfxtest %s: attachment %d: %w", OpCreateFramebuffer, a, gfx.ErrUnknownHandle)
		}
	}
	h := d.create(kindFramebuffer, info.RenderPass)
	d.objects[h].refs = append([]gfx.Handle(nil), info.Attachments...)
	d.stamp(h)
	return h, nil
}

// DestroyFramebuffer implements gfx.Device.
func (d *Device) DestroyFramebuffer(h gfx.Handle) {
	d.destroy(OpDestroyFramebuffer, h, kindFramebuffer)
}

// MemoryProperties implements gfx.Device.
func (d *Device) MemoryProperties() gfx.MemoryProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.properties
}

// AllocateMemory implements gfx.Device.
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpAllocateMemory, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	if int(typeIndex) >= len(d.properties.Types) {
		d.misuse("%s: memory type %d out of range", OpAllocateMemory, typeIndex)
		return gfx.NullHandle, fmt.Errorf("gfxtest %s: memory type %d: %w", OpAllocateMemory, typeIndex, gfx.ErrResourceCreation)
	}
	h := d.create(kindMemory, gfx.NullHandle)
	d.memory[h] = make([]byte, size)
	d.memTypes[h] = typeIndex
	d.stamp(h)
	return h, nil
}

// FreeMemory implements gfx.Device.
func (d *Device) FreeMemory(h gfx.Handle) {
	if !h.Valid() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: OpFreeMemory, Handle: h})
	d.counts[OpFreeMemory]++
	if _, ok := d.lookup(OpFreeMemory, h, kindMemory); !ok {
		return
	}
	for oh, o := range d.objects {
		if (o.kind == kindBuffer || o.kind == kindImage) && o.parent == h {
			d.misuse("%s: %d is still bound to %s %d", OpFreeMemory, h, o.kind, oh)
		}
	}
	delete(d.objects, h)
	delete(d.memory, h)
	delete(d.mapped, h)
}

func (d *Device) bind(op Op, resource, memory gfx.Handle, offset uint64, k kind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(op, resource, gfx.GraphicsQueue); err != nil {
		return err
	}
	o, ok := d.lookup(op, resource, k)
	if !ok {
		return fmt.Errorf("gfxtest %s: resource %d: %w", op, resource, gfx.ErrUnknownHandle)
	}
	if _, ok := d.lookup(op, memory, kindMemory); !ok {
		return fmt.Errorf("gfxtest %s: memory %d: %w", op, memory, gfx.ErrUnknownHandle)
	}
	if o.parent.Valid() {
		d.misuse("%s: %d is already bound", op, resource)
	}
	if offset+o.size > uint64(len(d.memory[memory])) {
		d.misuse("%s: %d does not fit memory %d at offset %d", op, resource, memory, offset)
	}
	o.parent = memory
	return nil
}

// BindBufferMemory implements gfx.Device.
func (d *Device) BindBufferMemory(buffer, memory gfx.Handle, offset uint64) error {
	return d.bind(OpBindBufferMemory, buffer, memory, offset, kindBuffer)
}

// BindImageMemory implements gfx.Device.
func (d *Device) BindImageMemory(image, memory gfx.Handle, offset uint64) error {
	return d.bind(OpBindImageMemory, image, memory, offset, kindImage)
}

// MapMemory implements gfx.Device.
func (d *Device) MapMemory(memory gfx.Handle, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpMapMemory, memory, gfx.GraphicsQueue); err != nil {
		return nil, err
	}
	if _, ok := d.lookup(OpMapMemory, memory, kindMemory); !ok {
		return nil, fmt.Errorf("gfxtest %s: memory %d: %w", OpMapMemory, memory, gfx.ErrUnknownHandle)
	}
	if d.mapped[memory] {
		d.misuse("%s: %d is already mapped", OpMapMemory, memory)
	}
	if t := d.properties.Types[d.memTypes[memory]]; !t.Flags.Has(gfx.MemoryHostVisible) {
		d.misuse("%s: %d is not host visible (%s)", OpMapMemory, memory, t.Flags)
	}
	buf := d.memory[memory]
	if offset+size > uint64(len(buf)) {
		return nil, fmt.Errorf("gfxtest %s: range %d+%d exceeds %d bytes", OpMapMemory, offset, size, len(buf))
	}
	d.mapped[memory] = true
	return buf[offset : offset+size : offset+size], nil
}

// UnmapMemory implements gfx.Device.
func (d *Device) UnmapMemory(memory gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: OpUnmapMemory, Handle: memory})
	d.counts[OpUnmapMemory]++
	if !d.mapped[memory] {
		d.misuse("%s: %d is not mapped", OpUnmapMemory, memory)
	}
	delete(d.mapped, memory)
}

// SurfaceFormat implements gfx.Device.
func (d *Device) SurfaceFormat() (gfx.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format, nil
}

// SurfaceCapabilities implements gfx.Device.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps, nil
}

// CreateSwapchain implements gfx.Device.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateSwapchain, gfx.NullHandle, gfx.PresentQueue); err != nil {
		return gfx.Swapchain{}, err
	}
	if info.Extent.Zero() {
		d.misuse("%s: zero extent %s", OpCreateSwapchain, info.Extent)
		return gfx.Swapchain{}, fmt.Errorf("gfxtest %s: zero extent: %w", OpCreateSwapchain, gfx.ErrResourceCreation)
	}
	if info.Old.Valid() {
		d.lookup(OpCreateSwapchain, info.Old, kindSwapchain)
	}
	h := d.create(kindSwapchain, gfx.NullHandle)
	d.stamp(h)

	count := gfx.ChooseImageCount(d.caps, info.MinImages)
	images := make([]gfx.Handle, count)
	for i := range images {
		images[i] = d.create(kindSwapImage, h)
	}
	d.images[h] = images
	return gfx.Swapchain{
		Handle: h,
		Images: append([]gfx.Handle(nil), images...),
		Format: info.Format,
		Extent: gfx.ChooseExtent(d.caps, info.Extent),
	}, nil
}

// DestroySwapchain implements gfx.Device.
func (d *Device) DestroySwapchain(h gfx.Handle) {
	if !h.Valid() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: OpDestroySwapchain, Handle: h, Queue: gfx.PresentQueue})
	d.counts[OpDestroySwapchain]++
	if _, ok := d.lookup(OpDestroySwapchain, h, kindSwapchain); !ok {
		return
	}
	for _, img := range d.images[h] {
		d.referenced(OpDestroySwapchain, img)
		delete(d.objects, img)
	}
	delete(d.images, h)
	delete(d.acquired, h)
	delete(d.objects, h)
}

// AcquireNextImage implements gfx.Device. Images are handed out round robin.
func (d *Device) AcquireNextImage(swapchain, semaphore gfx.Handle) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpAcquireNextImage, swapchain, gfx.PresentQueue); err != nil {
		return 0, err
	}
	if _, ok := d.lookup(OpAcquireNextImage, swapchain, kindSwapchain); !ok {
		return 0, fmt.Errorf("gfxtest %s: swapchain %d: %w", OpAcquireNextImage, swapchain, gfx.ErrUnknownHandle)
	}
	d.lookup(OpAcquireNextImage, semaphore, kindSemaphore)

	var err error
	if len(d.acquireErrs) > 0 {
		err = d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
	}
	if err != nil && err != gfx.ErrSurfaceSuboptimal {
		return 0, fmt.Errorf("gfxtest %s: %w", OpAcquireNextImage, err)
	}
	next := d.acquired[swapchain]
	d.acquired[swapchain] = next + 1
	idx := next % uint32(len(d.images[swapchain]))
	if err != nil {
		return idx, fmt.Errorf("gfxtest %s: %w", OpAcquireNextImage, err)
	}
	return idx, nil
}

// Present implements gfx.Device.
func (d *Device) Present(info gfx.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpPresent, info.Swapchain, gfx.PresentQueue); err != nil {
		return err
	}
	if _, ok := d.lookup(OpPresent, info.Swapchain, kindSwapchain); !ok {
		return fmt.Errorf("gfxtest %s: swapchain %d: %w", OpPresent, info.Swapchain, gfx.ErrUnknownHandle)
	}
	if int(info.Image) >= len(d.images[info.Swapchain]) {
		d.misuse("%s: image %d out of range", OpPresent, info.Image)
	}
	for _, s := range info.Wait {
		d.lookup(OpPresent, s, kindSemaphore)
	}
	if len(d.presentErrs) > 0 {
		err := d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
		if err != nil {
			return fmt.Errorf("gfxtest %s: %w", OpPresent, err)
		}
	}
	return nil
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence(signaled bool) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateFence, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	h := d.create(kindFence, gfx.NullHandle)
	f := &fence{done: make(chan struct{})}
	if signaled {
		f.signal()
	}
	d.fences[h] = f
	d.stamp(h)
	return h, nil
}

// DestroyFence implements gfx.Device.
func (d *Device) DestroyFence(h gfx.Handle) {
	d.destroy(OpDestroyFence, h, kindFence)
	d.mu.Lock()
	delete(d.fences, h)
	d.mu.Unlock()
}

// WaitFence implements gfx.Device.
func (d *Device) WaitFence(ctx context.Context, h gfx.Handle) error {
	d.mu.Lock()
	if err := d.call(OpWaitFence, h, gfx.GraphicsQueue); err != nil {
		d.mu.Unlock()
		return err
	}
	f, ok := d.fences[h]
	if !ok {
		d.misuse("%s: fence %d is not alive", OpWaitFence, h)
		d.mu.Unlock()
		return fmt.Errorf("gfxtest %s: fence %d: %w", OpWaitFence, h, gfx.ErrUnknownHandle)
	}
	done := f.done
	d.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetFence implements gfx.Device.
func (d *Device) ResetFence(h gfx.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpResetFence, h, gfx.GraphicsQueue); err != nil {
		return err
	}
	f, ok := d.fences[h]
	if !ok {
		d.misuse("%s: fence %d is not alive", OpResetFence, h)
		return fmt.Errorf("gfxtest %s: fence %d: %w", OpResetFence, h, gfx.ErrUnknownHandle)
	}
	if f.signaled {
		f.signaled = false
		f.done = make(chan struct{})
	}
	return nil
}

// CreateSemaphore implements gfx.Device.
func (d *Device) CreateSemaphore() (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpCreateSemaphore, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return gfx.NullHandle, err
	}
	h := d.create(kindSemaphore, gfx.NullHandle)
	d.stamp(h)
	return h, nil
}

// DestroySemaphore implements gfx.Device.
func (d *Device) DestroySemaphore(h gfx.Handle) {
	d.destroy(OpDestroySemaphore, h, kindSemaphore)
}

// AllocateCommands implements gfx.Device.
func (d *Device) AllocateCommands(q gfx.Queue) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpAllocateCommands, gfx.NullHandle, q); err != nil {
		return gfx.NullHandle, err
	}
	h := d.create(kindCommands, gfx.NullHandle)
	d.stamp(h)
	return h, nil
}

// FreeCommands implements gfx.Device.
func (d *Device) FreeCommands(h gfx.Handle) {
	d.destroy(OpFreeCommands, h, kindCommands)
}

// RecordCopy implements gfx.Device. The copy is performed immediately.
func (d *Device) RecordCopy(commands, src, dst gfx.Handle, regions []gfx.CopyRegion) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpRecordCopy, commands, gfx.TransferQueue); err != nil {
		return err
	}
	d.lookup(OpRecordCopy, commands, kindCommands)
	s, sok := d.lookup(OpRecordCopy, src, kindBuffer)
	t, tok := d.lookup(OpRecordCopy, dst, kindBuffer)
	if !sok || !tok {
		return fmt.Errorf("gfxtest %s: %w", OpRecordCopy, gfx.ErrUnknownHandle)
	}
	from, to := d.memory[s.parent], d.memory[t.parent]
	for _, r := range regions {
		if r.SrcOffset+r.Size > uint64(len(from)) || r.DstOffset+r.Size > uint64(len(to)) {
			d.misuse("%s: region %+v out of range", OpRecordCopy, r)
			continue
		}
		copy(to[r.DstOffset:r.DstOffset+r.Size], from[r.SrcOffset:r.SrcOffset+r.Size])
	}
	return nil
}

// Submit implements gfx.Device.
func (d *Device) Submit(q gfx.Queue, info gfx.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpSubmit, info.Fence, q); err != nil {
		return err
	}
	for _, c := range info.Commands {
		d.lookup(OpSubmit, c, kindCommands)
	}
	for _, s := range append(append([]gfx.Handle(nil), info.Wait...), info.Signal...) {
		d.lookup(OpSubmit, s, kindSemaphore)
	}
	if !info.Fence.Valid() {
		return nil
	}
	f, ok := d.fences[info.Fence]
	if !ok {
		d.misuse("%s: fence %d is not alive", OpSubmit, info.Fence)
		return fmt.Errorf("gfxtest %s: fence %d: %w", OpSubmit, info.Fence, gfx.ErrUnknownHandle)
	}
	if f.signaled {
		d.misuse("%s: fence %d submitted while signaled", OpSubmit, info.Fence)
	}
	if d.autoSignal {
		f.signal()
	} else {
		d.inflight = append(d.inflight, info.Fence)
	}
	return nil
}
