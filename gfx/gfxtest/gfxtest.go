// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Device that records every call
// it receives. Misuse that a real driver would reject or that would be a
// use-after-free on hardware is collected and reported by Err.
package gfxtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devblok/gpures/gfx"
)

// Op names a device call.
type Op string

// Recorded operations.
const (
	OpCreateBuffer       Op = "CreateBuffer"
	OpDestroyBuffer      Op = "DestroyBuffer"
	OpCreateImage        Op = "CreateImage"
	OpDestroyImage       Op = "DestroyImage"
	OpCreateView         Op = "CreateView"
	OpDestroyView        Op = "DestroyView"
	OpCreateRenderPass   Op = "CreateRenderPass"
	OpDestroyRenderPass  Op = "DestroyRenderPass"
	OpCreateFramebuffer  Op = "CreateFramebuffer"
	OpDestroyFramebuffer Op = "DestroyFramebuffer"
	OpAllocateMemory     Op = "AllocateMemory"
	OpFreeMemory         Op = "FreeMemory"
	OpBindBufferMemory   Op = "BindBufferMemory"
	OpBindImageMemory    Op = "BindImageMemory"
	OpMapMemory          Op = "MapMemory"
	OpUnmapMemory        Op = "UnmapMemory"
	OpCreateSwapchain    Op = "CreateSwapchain"
	OpDestroySwapchain   Op = "DestroySwapchain"
	OpAcquireNextImage   Op = "AcquireNextImage"
	OpPresent            Op = "Present"
	OpCreateFence        Op = "CreateFence"
	OpDestroyFence       Op = "DestroyFence"
	OpWaitFence          Op = "WaitFence"
	OpResetFence         Op = "ResetFence"
	OpCreateSemaphore    Op = "CreateSemaphore"
	OpDestroySemaphore   Op = "DestroySemaphore"
	OpAllocateCommands   Op = "AllocateCommands"
	OpFreeCommands       Op = "FreeCommands"
	OpRecordCopy         Op = "RecordCopy"
	OpSubmit             Op = "Submit"
	OpWaitIdle           Op = "WaitIdle"
)

// Creates reports whether the operation creates a device object or allocates memory.
func (o Op) Creates() bool {
	switch o {
	case OpCreateBuffer, OpCreateImage, OpCreateView, OpCreateRenderPass,
		OpCreateFramebuffer, OpAllocateMemory, OpCreateSwapchain,
		OpCreateFence, OpCreateSemaphore, OpAllocateCommands:
		return true
	}
	return false
}

// Call is one recorded device call.
type Call struct {
	Op     Op
	Handle gfx.Handle
	Queue  gfx.Queue
}

type kind int

const (
	kindBuffer kind = iota
	kindImage
	kindSwapImage
	kindView
	kindRenderPass
	kindFramebuffer
	kindMemory
	kindSwapchain
	kindFence
	kindSemaphore
	kindCommands
)

var kindNames = [...]string{
	"buffer", "image", "swapchain image", "view", "render pass", "framebuffer",
	"memory", "swapchain", "fence", "semaphore", "command buffer",
}

func (k kind) String() string {
	return kindNames[k]
}

type object struct {
	kind kind

	// parent is the image of a view, the swapchain of a swap image
	// and the bound memory of a buffer or image.
	parent gfx.Handle
	refs   []gfx.Handle
	size   uint64
}

type fence struct {
	signaled bool
	done     chan struct{}
}

func (f *fence) signal() {
	if !f.signaled {
		f.signaled = true
		close(f.done)
	}
}

// DefaultMemoryProperties returns a discrete GPU like memory layout.
func DefaultMemoryProperties() gfx.MemoryProperties {
	return gfx.MemoryProperties{
		Types: []gfx.MemoryType{
			{Flags: gfx.MemoryDeviceLocal, Heap: 0},
			{Flags: gfx.MemoryHostVisible | gfx.MemoryHostCoherent, Heap: 1},
			{Flags: gfx.MemoryDeviceLocal | gfx.MemoryHostVisible | gfx.MemoryHostCoherent, Heap: 0},
			{Flags: gfx.MemoryHostVisible | gfx.MemoryHostCoherent | gfx.MemoryHostCached, Heap: 1},
		},
		Heaps: []gfx.MemoryHeap{
			{Size: 256 << 20, Flags: gfx.HeapDeviceLocal},
			{Size: 1 << 30},
		},
	}
}

// Device is an instrumented in-memory gfx.Device. It is safe for
// concurrent use.
type Device struct {
	mu sync.Mutex

	next   gfx.Handle
	calls  []Call
	counts map[Op]int
	failAt map[Op]int
	errs   []error

	properties gfx.MemoryProperties
	typeBits   uint32
	families   gfx.QueueFamilies
	format     gfx.Format
	caps       gfx.SurfaceCapabilities
	autoSignal bool

	objects  map[gfx.Handle]*object
	memory   map[gfx.Handle][]byte
	memTypes map[gfx.Handle]uint32
	mapped   map[gfx.Handle]bool
	fences   map[gfx.Handle]*fence
	images   map[gfx.Handle][]gfx.Handle
	acquired map[gfx.Handle]uint32

	acquireErrs []error
	presentErrs []error

	// inflight are fences submitted while autoSignal is off.
	inflight []gfx.Handle
}

// New returns a device with DefaultMemoryProperties, a single queue
// family, three swap images and fences that signal on submission.
func New() *Device {
	return &Device{
		counts:     make(map[Op]int),
		failAt:     make(map[Op]int),
		properties: DefaultMemoryProperties(),
		typeBits:   0xFFFFFFFF,
		format:     gfx.FormatB8G8R8A8Srgb,
		caps: gfx.SurfaceCapabilities{
			MinImages: 3,
			MaxImages: 3,
			Current:   gfx.Extent2D{Width: 0xFFFFFFFF, Height: 0xFFFFFFFF},
			Min:       gfx.Extent2D{Width: 1, Height: 1},
			Max:       gfx.Extent2D{Width: 16384, Height: 16384},
		},
		autoSignal: true,
		objects:    make(map[gfx.Handle]*object),
		memory:     make(map[gfx.Handle][]byte),
		memTypes:   make(map[gfx.Handle]uint32),
		mapped:     make(map[gfx.Handle]bool),
		fences:     make(map[gfx.Handle]*fence),
		images:     make(map[gfx.Handle][]gfx.Handle),
		acquired:   make(map[gfx.Handle]uint32),
	}
}

// SetMemoryProperties replaces the memory type and heap tables.
func (d *Device) SetMemoryProperties(p gfx.MemoryProperties) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.properties = p
}

// SetTypeBits sets the memory type filter reported for every resource.
func (d *Device) SetTypeBits(bits uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typeBits = bits
}

// SetFamilies sets the queue family indices.
func (d *Device) SetFamilies(f gfx.QueueFamilies) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.families = f
}

// SetImageCount fixes the number of images every swapchain gets.
func (d *Device) SetImageCount(n uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps.MinImages = n
	d.caps.MaxImages = n
}

// SetFormat sets the surface format.
func (d *Device) SetFormat(f gfx.Format) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.format = f
}

// SetAutoSignal controls whether submitted fences signal immediately.
// When disabled fences signal through Signal, SignalAll and WaitIdle.
func (d *Device) SetAutoSignal(auto bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoSignal = auto
}

// FailAfter makes the call to op that follows skip more successful calls fail.
func (d *Device) FailAfter(op Op, skip int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAt[op] = d.counts[op] + skip + 1
}

// QueueAcquire queues a result for a coming AcquireNextImage call.
func (d *Device) QueueAcquire(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireErrs = append(d.acquireErrs, err)
}

// QueuePresent queues a result for a coming Present call.
func (d *Device) QueuePresent(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentErrs = append(d.presentErrs, err)
}

// Signal signals a fence as the device would on completing its work.
func (d *Device) Signal(h gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.fences[h]; ok {
		f.signal()
	}
}

// SignalAll signals every fence.
func (d *Device) SignalAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.fences {
		f.signal()
	}
}

// Signaled reports the state of a fence.
func (d *Device) Signaled(h gfx.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	return ok && f.signaled
}

// Calls returns the recorded calls in order.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Count returns how many times op was called.
func (d *Device) Count(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[op]
}

// Live returns the number of objects and allocations not yet destroyed.
// Swap images are owned by their swapchain and not counted.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.objects {
		if o.kind != kindSwapImage {
			n++
		}
	}
	return n
}

// MemoryType returns the type index an allocation was made from.
func (d *Device) MemoryType(memory gfx.Handle) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.memTypes[memory]
	return t, ok
}

// BoundMemory returns the memory a buffer or image is bound to.
func (d *Device) BoundMemory(resource gfx.Handle) gfx.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[resource]; ok {
		return o.parent
	}
	return gfx.NullHandle
}

// Contents returns a copy of an allocation.
func (d *Device) Contents(memory gfx.Handle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.memory[memory]...)
}

// Err returns every misuse observed so far.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Join(d.errs...)
}

// call records op and applies failure injection. Must hold d.mu.
func (d *Device) call(op Op, h gfx.Handle, q gfx.Queue) error {
	d.counts[op]++
	d.calls = append(d.calls, Call{Op: op, Handle: h, Queue: q})
	if at, ok := d.failAt[op]; ok && at == d.counts[op] {
		delete(d.failAt, op)
		return fmt.Errorf("gfxtest %s: %w", op, gfx.ErrResourceCreation)
	}
	return nil
}

func (d *Device) misuse(format string, args ...interface{}) {
	d.errs = append(d.errs, fmt.Errorf(format, args...))
}

func (d *Device) create(k kind, parent gfx.Handle) gfx.Handle {
	d.next++
	d.objects[d.next] = &object{kind: k, parent: parent}
	return d.next
}

// lookup fetches a live object of one of the given kinds, recording misuse otherwise.
func (d *Device) lookup(op Op, h gfx.Handle, kinds ...kind) (*object, bool) {
	o, ok := d.objects[h]
	if !ok {
		d.misuse("%s: handle %d is not alive", op, h)
		return nil, false
	}
	for _, k := range kinds {
		if o.kind == k {
			return o, true
		}
	}
	d.misuse("%s: handle %d is a %s", op, h, o.kind)
	return nil, false
}

// referenced reports live objects that still depend on h.
func (d *Device) referenced(op Op, h gfx.Handle) {
	for oh, o := range d.objects {
		if o.kind == kindView && o.parent == h {
			d.misuse("%s: %d still has view %d", op, h, oh)
		}
		if o.kind == kindFramebuffer {
			for _, r := range o.refs {
				if r == h {
					d.misuse("%s: %d is still attached to framebuffer %d", op, h, oh)
				}
			}
		}
	}
}

func (d *Device) destroy(op Op, h gfx.Handle, k kind) {
	if !h.Valid() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: op, Handle: h})
	d.counts[op]++
	if _, ok := d.lookup(op, h, k); !ok {
		return
	}
	d.referenced(op, h)
	delete(d.objects, h)
}

// Families implements gfx.Device.
func (d *Device) Families() gfx.QueueFamilies {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.families
}

// WaitIdle implements gfx.Device. Fences of all submitted work are signaled.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(OpWaitIdle, gfx.NullHandle, gfx.GraphicsQueue); err != nil {
		return err
	}
	for _, h := range d.inflight {
		if f, ok := d.fences[h]; ok {
			f.signal()
		}
	}
	d.inflight = nil
	return nil
}
