// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/gpures/gfx"
)

func TestSharingFor(t *testing.T) {
	c := qt.New(t)

	same := gfx.SharingFor(gfx.QueueFamilies{Graphics: 0, Transfer: 0, Present: 0})
	c.Assert(same.Mode, qt.Equals, gfx.SharingExclusive)
	c.Assert(same.Families, qt.HasLen, 0)

	split := gfx.SharingFor(gfx.QueueFamilies{Graphics: 0, Transfer: 2, Present: 0})
	c.Assert(split.Mode, qt.Equals, gfx.SharingConcurrent)
	c.Assert(split.Families, qt.DeepEquals, []uint32{0, 2})
	c.Assert(split.String(), qt.Equals, "concurrent[0 2]")
}

func TestFlagStrings(t *testing.T) {
	c := qt.New(t)

	c.Assert(gfx.MemoryPropertyFlags(0).String(), qt.Equals, "0")
	c.Assert((gfx.MemoryHostVisible | gfx.MemoryHostCoherent).String(), qt.Equals, "HOST_VISIBLE|HOST_COHERENT")
	c.Assert((gfx.BufferVertex | gfx.BufferTransferDst).String(), qt.Equals, "TRANSFER_DST|VERTEX")
	c.Assert(gfx.MemoryPropertyFlags(1<<10).String(), qt.Equals, "0x400")
	c.Assert(gfx.FormatD32Sfloat.String(), qt.Equals, "D32_SFLOAT")
	c.Assert(gfx.FormatD32Sfloat.Depth(), qt.IsTrue)
	c.Assert(gfx.FormatB8G8R8A8Srgb.Depth(), qt.IsFalse)
}

func TestMemoryPropertyHas(t *testing.T) {
	c := qt.New(t)

	f := gfx.MemoryDeviceLocal | gfx.MemoryHostVisible
	c.Assert(f.Has(gfx.MemoryDeviceLocal), qt.IsTrue)
	c.Assert(f.Has(0), qt.IsTrue)
	c.Assert(f.Has(gfx.MemoryHostVisible|gfx.MemoryHostCoherent), qt.IsFalse)
}

func TestExtentZero(t *testing.T) {
	c := qt.New(t)

	c.Assert(gfx.Extent2D{}.Zero(), qt.IsTrue)
	c.Assert(gfx.Extent2D{Width: 800}.Zero(), qt.IsTrue)
	c.Assert(gfx.Extent2D{Width: 800, Height: 600}.Zero(), qt.IsFalse)
	c.Assert(gfx.Extent2D{Width: 800, Height: 600}.String(), qt.Equals, "800x600")
}

func TestChooseExtent(t *testing.T) {
	c := qt.New(t)

	fixed := gfx.SurfaceCapabilities{Current: gfx.Extent2D{Width: 640, Height: 480}}
	c.Assert(gfx.ChooseExtent(fixed, gfx.Extent2D{Width: 800, Height: 600}), qt.Equals, gfx.Extent2D{Width: 640, Height: 480})

	free := gfx.SurfaceCapabilities{
		Current: gfx.Extent2D{Width: 0xFFFFFFFF, Height: 0xFFFFFFFF},
		Min:     gfx.Extent2D{Width: 1, Height: 1},
		Max:     gfx.Extent2D{Width: 1024, Height: 512},
	}
	c.Assert(gfx.ChooseExtent(free, gfx.Extent2D{Width: 800, Height: 600}), qt.Equals, gfx.Extent2D{Width: 800, Height: 512})
	c.Assert(gfx.ChooseExtent(free, gfx.Extent2D{}), qt.Equals, gfx.Extent2D{Width: 1, Height: 1})
}

func TestChooseImageCount(t *testing.T) {
	c := qt.New(t)

	c.Assert(gfx.ChooseImageCount(gfx.SurfaceCapabilities{MinImages: 2, MaxImages: 8}, 3), qt.Equals, uint32(3))
	c.Assert(gfx.ChooseImageCount(gfx.SurfaceCapabilities{MinImages: 4, MaxImages: 8}, 3), qt.Equals, uint32(4))
	c.Assert(gfx.ChooseImageCount(gfx.SurfaceCapabilities{MinImages: 2, MaxImages: 2}, 3), qt.Equals, uint32(2))
	c.Assert(gfx.ChooseImageCount(gfx.SurfaceCapabilities{MinImages: 2}, 16), qt.Equals, uint32(16))
}
