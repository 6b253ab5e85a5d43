// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package memory allocates device memory for buffers and images and binds
// it to them. Every resource gets a dedicated allocation bound at offset 0.
package memory

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/gpures/gfx"
)

// ErrNoSuitableMemoryType is returned when no memory type accepted by a
// resource has every requested property. It is not retried.
var ErrNoSuitableMemoryType = errors.New("memory: no suitable memory type")

// Device is the part of gfx.Device the allocator needs.
type Device interface {
	gfx.Resources
	gfx.Memory
}

// Allocation is a resource together with the memory backing it.
type Allocation struct {
	Resource gfx.Handle
	Memory   gfx.Handle

	// Size is the size of the allocation, which may exceed
	// the size the resource was created with.
	Size      uint64
	TypeIndex uint32
	Flags     gfx.MemoryPropertyFlags
}

// FindMemoryType returns the first memory type, in ascending index order,
// that typeBits accepts and whose flags are a superset of want.
func FindMemoryType(props gfx.MemoryProperties, typeBits uint32, want gfx.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < uint32(len(props.Types)) && idx < 32; idx++ {
		if typeBits&(1<<idx) != 0 && props.Types[idx].Flags.Has(want) {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: bits %032b, want %s", ErrNoSuitableMemoryType, typeBits, want)
}

// NewAllocator creates a new memory allocator. The memory properties of
// the device are read once.
func NewAllocator(dev Device, logger logrus.FieldLogger) *Allocator {
	return &Allocator{
		dev:        dev,
		properties: dev.MemoryProperties(),
		log:        logger,
	}
}

// Allocator is responsible returning usable
// memory for any resources that may need it.
type Allocator struct {
	dev        Device
	properties gfx.MemoryProperties
	log        logrus.FieldLogger
}

// Properties returns the memory types and heaps allocations are made from.
func (a *Allocator) Properties() gfx.MemoryProperties {
	return a.properties
}

// FindMemoryType selects a memory type on the device and logs the decision.
func (a *Allocator) FindMemoryType(typeBits uint32, want gfx.MemoryPropertyFlags) (uint32, error) {
	a.logProperties()
	idx, err := FindMemoryType(a.properties, typeBits, want)
	entry := a.log.WithFields(logrus.Fields{
		"type_bits": fmt.Sprintf("%032b", typeBits),
		"desired":   want.String(),
	})
	if err != nil {
		entry.Error("no memory type satisfies the request")
		return 0, err
	}
	entry.WithFields(logrus.Fields{
		"chosen": idx,
		"flags":  a.properties.Types[idx].Flags.String(),
	}).Debug("memory type selected")
	return idx, nil
}

func (a *Allocator) logProperties() {
	for i, t := range a.properties.Types {
		a.log.WithFields(logrus.Fields{
			"type":  i,
			"heap":  t.Heap,
			"flags": t.Flags.String(),
		}).Debug("memory type")
	}
	for i, h := range a.properties.Heaps {
		a.log.WithFields(logrus.Fields{
			"heap":  i,
			"size":  h.Size,
			"flags": h.Flags.String(),
		}).Debug("memory heap")
	}
}

// CreateBuffer creates a buffer and binds it to newly allocated memory
// with at least the requested properties. Nothing is left behind on failure.
func (a *Allocator) CreateBuffer(info gfx.BufferInfo, props gfx.MemoryPropertyFlags) (Allocation, error) {
	buffer, err := a.dev.CreateBuffer(info)
	if err != nil {
		return Allocation{}, err
	}
	alloc, err := a.back(a.dev.BufferRequirements(buffer), props, func(mem gfx.Handle) error {
		return a.dev.BindBufferMemory(buffer, mem, 0)
	})
	if err != nil {
		a.dev.DestroyBuffer(buffer)
		return Allocation{}, err
	}
	alloc.Resource = buffer
	return alloc, nil
}

// CreateImage creates an image and binds it to newly allocated memory
// with at least the requested properties. Nothing is left behind on failure.
func (a *Allocator) CreateImage(info gfx.ImageInfo, props gfx.MemoryPropertyFlags) (Allocation, error) {
	image, err := a.dev.CreateImage(info)
	if err != nil {
		return Allocation{}, err
	}
	alloc, err := a.back(a.dev.ImageRequirements(image), props, func(mem gfx.Handle) error {
		return a.dev.BindImageMemory(image, mem, 0)
	})
	if err != nil {
		a.dev.DestroyImage(image)
		return Allocation{}, err
	}
	alloc.Resource = image
	return alloc, nil
}

// back allocates memory for req and binds it, freeing the memory if binding fails.
func (a *Allocator) back(req gfx.MemoryRequirements, props gfx.MemoryPropertyFlags, bind func(gfx.Handle) error) (Allocation, error) {
	idx, err := a.FindMemoryType(req.TypeBits, props)
	if err != nil {
		return Allocation{}, err
	}
	mem, err := a.dev.AllocateMemory(req.Size, idx)
	if err != nil {
		return Allocation{}, err
	}
	if err := bind(mem); err != nil {
		a.dev.FreeMemory(mem)
		return Allocation{}, err
	}
	return Allocation{
		Memory:    mem,
		Size:      req.Size,
		TypeIndex: idx,
		Flags:     a.properties.Types[idx].Flags,
	}, nil
}

// FreeBuffer destroys the buffer and then frees its memory.
func (a *Allocator) FreeBuffer(alloc Allocation) {
	a.dev.DestroyBuffer(alloc.Resource)
	a.dev.FreeMemory(alloc.Memory)
}

// FreeImage destroys the image and then frees its memory.
func (a *Allocator) FreeImage(alloc Allocation) {
	a.dev.DestroyImage(alloc.Resource)
	a.dev.FreeMemory(alloc.Memory)
}

// Map returns host access to size bytes of a host visible allocation
// starting at offset. The bytes are valid until Unmap.
func (a *Allocator) Map(alloc Allocation, offset, size uint64) ([]byte, error) {
	if !alloc.Flags.Has(gfx.MemoryHostVisible) {
		return nil, fmt.Errorf("memory: map of %s memory", alloc.Flags)
	}
	return a.dev.MapMemory(alloc.Memory, offset, size)
}

// Unmap ends host access to an allocation.
func (a *Allocator) Unmap(alloc Allocation) {
	a.dev.UnmapMemory(alloc.Memory)
}
