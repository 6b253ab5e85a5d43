// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device contract that the resource engine is
// written against. Implementations translate it to a concrete API,
// package vkr does so for Vulkan and package gfxtest provides an
// instrumented in-memory device for tests.
package gfx

import (
	"fmt"
)

// Handle is an opaque reference to a device object. The zero value
// never refers to a live object.
type Handle uint64

// NullHandle is the handle of no object.
const NullHandle Handle = 0

// Valid reports whether the handle refers to an object.
func (h Handle) Valid() bool {
	return h != NullHandle
}

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Zero reports whether either dimension is zero. A zero extent is
// what a minimized window reports as its drawable size.
func (e Extent2D) Zero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Queue identifies which queue a piece of work is submitted to.
type Queue int

// Queues used by the engine.
const (
	GraphicsQueue Queue = iota
	TransferQueue
	PresentQueue
)

func (q Queue) String() string {
	switch q {
	case GraphicsQueue:
		return "graphics"
	case TransferQueue:
		return "transfer"
	case PresentQueue:
		return "present"
	}
	return fmt.Sprintf("queue(%d)", int(q))
}

// QueueFamilies holds the family indices selected on the physical device.
type QueueFamilies struct {
	Graphics uint32
	Transfer uint32
	Present  uint32
}

// Shared reports whether graphics and transfer work run on different
// families, in which case resources used by both must be shared.
func (f QueueFamilies) Shared() bool {
	return f.Graphics != f.Transfer
}

// SharingMode selects how a resource may be accessed across queue families.
type SharingMode int

// Sharing modes.
const (
	SharingExclusive SharingMode = iota
	SharingConcurrent
)

// Sharing is the queue family access of a buffer or image.
type Sharing struct {
	Mode     SharingMode
	Families []uint32
}

// Exclusive returns single-family sharing.
func Exclusive() Sharing {
	return Sharing{Mode: SharingExclusive}
}

// SharingFor derives the sharing for a resource that graphics and transfer
// work both touch. Differing families get concurrent access with the
// explicit [graphics, transfer] list, otherwise access is exclusive.
// Ownership transfer between families in exclusive mode is not performed.
func SharingFor(families QueueFamilies) Sharing {
	if !families.Shared() {
		return Exclusive()
	}
	return Sharing{
		Mode:     SharingConcurrent,
		Families: []uint32{families.Graphics, families.Transfer},
	}
}

func (s Sharing) String() string {
	if s.Mode == SharingConcurrent {
		return fmt.Sprintf("concurrent%v", s.Families)
	}
	return "exclusive"
}
