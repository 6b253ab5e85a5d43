// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

// DeviceConfiguration holds options for the logical device.
type DeviceConfiguration struct {
	// PhysicalDevice is the index into the instance's devices.
	PhysicalDevice int
	Extensions     []string
}

type image struct {
	image vk.Image

	// swap images belong to their swapchain and are never destroyed alone
	swap bool
}

type swapchain struct {
	swapchain vk.Swapchain
	images    []gfx.Handle
}

type pool struct {
	mutex sync.Mutex
	pool  vk.CommandPool
}

type commandBuffer struct {
	buffer vk.CommandBuffer
	pool   *pool
}

// Device implements gfx.Device on a Vulkan logical device.
// Objects are handed out as handles into per kind tables.
type Device struct {
	log      logrus.FieldLogger
	physical vk.PhysicalDevice
	device   vk.Device
	surface  vk.Surface
	families gfx.QueueFamilies
	queues   map[gfx.Queue]vk.Queue
	memory   gfx.MemoryProperties
	limits   vk.PhysicalDeviceLimits
	format   vk.SurfaceFormat

	// queues are externally synchronized, graphics and present may share one
	queueMutex sync.Mutex
	pools      map[uint32]*pool

	mutex        sync.Mutex
	last         gfx.Handle
	buffers      map[gfx.Handle]vk.Buffer
	images       map[gfx.Handle]image
	views        map[gfx.Handle]vk.ImageView
	renderPasses map[gfx.Handle]vk.RenderPass
	framebuffers map[gfx.Handle]vk.Framebuffer
	memories     map[gfx.Handle]vk.DeviceMemory
	swapchains   map[gfx.Handle]swapchain
	fences       map[gfx.Handle]vk.Fence
	semaphores   map[gfx.Handle]vk.Semaphore
	commands     map[gfx.Handle]commandBuffer
}

var _ gfx.Device = (*Device)(nil)

// NewDevice creates a logical device on one of the instance's physical
// devices, with queues for graphics, transfer and presentation to the
// instance surface and a command pool per queue family.
func NewDevice(inst *Instance, cfg DeviceConfiguration, logger logrus.FieldLogger) (*Device, error) {
	if cfg.PhysicalDevice < 0 || cfg.PhysicalDevice >= len(inst.devices) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoDevice, cfg.PhysicalDevice, len(inst.devices))
	}
	if inst.surface == nullSurface {
		return nil, fmt.Errorf("%w: instance has no surface", ErrNoDevice)
	}
	pd := inst.devices[cfg.PhysicalDevice]

	var numFamilies uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &numFamilies, nil)
	props := make([]vk.QueueFamilyProperties, numFamilies)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &numFamilies, props)
	for i := range props {
		props[i].Deref()
	}
	families, err := selectFamilies(props, func(family uint32) bool {
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, family, inst.surface, &supported)
		return supported == vk.True
	})
	if err != nil {
		return nil, err
	}

	unique := []uint32{families.Graphics}
	for _, f := range []uint32{families.Transfer, families.Present} {
		if !containsFamily(unique, f) {
			unique = append(unique, f)
		}
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(unique))
	for i, f := range unique {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}
	extensions := cstrings(cfg.Extensions)
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	var device vk.Device
	if err := check("CreateDevice", vk.CreateDevice(pd, &dci, nil, &device)); err != nil {
		return nil, err
	}

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	properties.Limits.Deref()

	d := &Device{
		log:          logger,
		physical:     pd,
		device:       device,
		surface:      inst.surface,
		families:     families,
		queues:       make(map[gfx.Queue]vk.Queue, 3),
		memory:       memoryProperties(pd),
		limits:       properties.Limits,
		pools:        make(map[uint32]*pool, len(unique)),
		buffers:      make(map[gfx.Handle]vk.Buffer),
		images:       make(map[gfx.Handle]image),
		views:        make(map[gfx.Handle]vk.ImageView),
		renderPasses: make(map[gfx.Handle]vk.RenderPass),
		framebuffers: make(map[gfx.Handle]vk.Framebuffer),
		memories:     make(map[gfx.Handle]vk.DeviceMemory),
		swapchains:   make(map[gfx.Handle]swapchain),
		fences:       make(map[gfx.Handle]vk.Fence),
		semaphores:   make(map[gfx.Handle]vk.Semaphore),
		commands:     make(map[gfx.Handle]commandBuffer),
	}
	for q, f := range map[gfx.Queue]uint32{
		gfx.GraphicsQueue: families.Graphics,
		gfx.TransferQueue: families.Transfer,
		gfx.PresentQueue:  families.Present,
	} {
		var queue vk.Queue
		vk.GetDeviceQueue(device, f, 0, &queue)
		d.queues[q] = queue
	}
	for _, f := range unique {
		cpci := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
			QueueFamilyIndex: f,
		}
		var cp vk.CommandPool
		if err := created("CreateCommandPool", vk.CreateCommandPool(device, &cpci, nil, &cp)); err != nil {
			d.Destroy()
			return nil, err
		}
		d.pools[f] = &pool{pool: cp}
	}

	logger.WithFields(logrus.Fields{
		"device":   vk.ToString(properties.DeviceName[:]),
		"graphics": families.Graphics,
		"transfer": families.Transfer,
		"present":  families.Present,
	}).Info("vulkan device created")
	return d, nil
}

func containsFamily(families []uint32, f uint32) bool {
	for _, v := range families {
		if v == f {
			return true
		}
	}
	return false
}

// Families returns the selected queue families.
func (d *Device) Families() gfx.QueueFamilies {
	return d.families
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	return check("DeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}

// MaxUsableSamples returns the highest sample count up to want that
// both color and depth attachments support.
func (d *Device) MaxUsableSamples(want uint32) uint32 {
	return usableSamples(d.limits.FramebufferColorSampleCounts&d.limits.FramebufferDepthSampleCounts, want)
}

// DepthFormat returns the first of the common depth formats usable as
// an optimally tiled depth attachment.
func (d *Device) DepthFormat() (gfx.Format, error) {
	for _, f := range []vk.Format{vk.FormatD32Sfloat, vk.FormatD24UnormS8Uint, vk.FormatD16Unorm} {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
			return gfx.Format(f), nil
		}
	}
	return gfx.FormatUndefined, fmt.Errorf("%w: no depth attachment format", ErrNoDevice)
}

// Destroy waits for the device to idle and destroys it. Objects still
// in the tables are reported and left to the driver.
func (d *Device) Destroy() {
	if d == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)
	d.mutex.Lock()
	leaked := len(d.buffers) + len(d.images) + len(d.views) + len(d.renderPasses) +
		len(d.framebuffers) + len(d.memories) + len(d.swapchains) + len(d.fences) +
		len(d.semaphores) + len(d.commands)
	d.mutex.Unlock()
	if leaked > 0 {
		d.log.WithField("objects", leaked).Warn("device destroyed with live objects")
	}
	for f, p := range d.pools {
		vk.DestroyCommandPool(d.device, p.pool, nil)
		delete(d.pools, f)
	}
	vk.DestroyDevice(d.device, nil)
}

// insert stores v under a new handle.
func insert[T any](d *Device, table map[gfx.Handle]T, v T) gfx.Handle {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.last++
	table[d.last] = v
	return d.last
}

// lookup returns the object behind h.
func lookup[T any](d *Device, table map[gfx.Handle]T, h gfx.Handle) (T, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	v, ok := table[h]
	if !ok {
		return v, fmt.Errorf("%w: %d", gfx.ErrUnknownHandle, h)
	}
	return v, nil
}

// remove takes the object behind h out of the table. The null
// handle and unknown handles report false.
func remove[T any](d *Device, table map[gfx.Handle]T, h gfx.Handle) (T, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	v, ok := table[h]
	if ok {
		delete(table, h)
	}
	return v, ok
}
