// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

// MemoryProperties implements gfx.Memory.
func (d *Device) MemoryProperties() gfx.MemoryProperties {
	return d.memory
}

// AllocateMemory implements gfx.Memory.
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gfx.Handle, error) {
	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	if err := created("AllocateMemory", vk.AllocateMemory(d.device, &mai, nil, &memory)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.memories, memory), nil
}

// FreeMemory implements gfx.Memory.
func (d *Device) FreeMemory(h gfx.Handle) {
	if memory, ok := remove(d, d.memories, h); ok {
		vk.FreeMemory(d.device, memory, nil)
	}
}

// BindBufferMemory implements gfx.Memory.
func (d *Device) BindBufferMemory(buffer, memory gfx.Handle, offset uint64) error {
	b, err := lookup(d, d.buffers, buffer)
	if err != nil {
		return err
	}
	m, err := lookup(d, d.memories, memory)
	if err != nil {
		return err
	}
	return created("BindBufferMemory", vk.BindBufferMemory(d.device, b, m, vk.DeviceSize(offset)))
}

// BindImageMemory implements gfx.Memory.
func (d *Device) BindImageMemory(img, memory gfx.Handle, offset uint64) error {
	i, err := lookup(d, d.images, img)
	if err != nil {
		return err
	}
	m, err := lookup(d, d.memories, memory)
	if err != nil {
		return err
	}
	return created("BindImageMemory", vk.BindImageMemory(d.device, i.image, m, vk.DeviceSize(offset)))
}

// MapMemory implements gfx.Memory.
func (d *Device) MapMemory(memory gfx.Handle, offset, size uint64) ([]byte, error) {
	m, err := lookup(d, d.memories, memory)
	if err != nil {
		return nil, err
	}
	var data unsafe.Pointer
	if err := check("MapMemory", vk.MapMemory(d.device, m, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(data), size), nil
}

// UnmapMemory implements gfx.Memory.
func (d *Device) UnmapMemory(memory gfx.Handle) {
	if m, err := lookup(d, d.memories, memory); err == nil {
		vk.UnmapMemory(d.device, m)
	}
}
