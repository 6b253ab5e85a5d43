// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package registry_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/gfx/gfxtest"
	"github.com/devblok/gpures/memory"
	"github.com/devblok/gpures/registry"
)

const hostMemory = gfx.MemoryHostVisible | gfx.MemoryHostCoherent

func newRegistry() (*gfxtest.Device, *registry.Registry) {
	dev := gfxtest.New()
	logger, _ := test.NewNullLogger()
	return dev, registry.New(dev, memory.NewAllocator(dev, logger), logger)
}

func depthInfo() gfx.ImageInfo {
	return gfx.ImageInfo{
		Extent:  gfx.Extent2D{Width: 800, Height: 600},
		Format:  gfx.FormatD32Sfloat,
		Usage:   gfx.ImageDepthStencilAttachment,
		Samples: 4,
	}
}

func TestGetMissing(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()

	_, err := reg.Get(registry.K(registry.Vertex, 1))
	c.Assert(err, qt.ErrorIs, registry.ErrRecordNotFound)
	c.Assert(reg.Has(registry.K(registry.Vertex, 1)), qt.IsFalse)
	c.Assert(dev.Calls(), qt.HasLen, 0)
}

func TestKeysAreCategoryScoped(t *testing.T) {
	c := qt.New(t)
	_, reg := newRegistry()

	v, err := reg.CreateBuffer(registry.K(registry.Vertex, 1), 64, gfx.BufferVertex, hostMemory, gfx.Exclusive())
	c.Assert(err, qt.IsNil)
	i, err := reg.CreateBuffer(registry.K(registry.Index, 1), 32, gfx.BufferIndex, hostMemory, gfx.Exclusive())
	c.Assert(err, qt.IsNil)
	c.Assert(v.Resource, qt.Not(qt.Equals), i.Resource)

	got, err := reg.Get(registry.K(registry.Index, 1))
	c.Assert(err, qt.IsNil)
	c.Assert(got.Size, qt.Equals, uint64(32))
	c.Assert(got.BufferUsage, qt.Equals, gfx.BufferIndex)
	c.Assert(reg.Count(registry.Vertex), qt.Equals, 1)
	c.Assert(reg.Len(), qt.Equals, 2)
}

func TestCreateExisting(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()
	key := registry.K(registry.Uniform, 3)

	_, err := reg.CreateBuffer(key, 64, gfx.BufferUniform, hostMemory, gfx.Exclusive())
	c.Assert(err, qt.IsNil)
	before := dev.Count(gfxtest.OpCreateBuffer)

	_, err = reg.CreateBuffer(key, 64, gfx.BufferUniform, hostMemory, gfx.Exclusive())
	c.Assert(err, qt.ErrorIs, registry.ErrRecordExists)
	c.Assert(dev.Count(gfxtest.OpCreateBuffer), qt.Equals, before)
}

func TestCategoryMismatch(t *testing.T) {
	c := qt.New(t)
	_, reg := newRegistry()

	_, err := reg.CreateBuffer(registry.K(registry.DepthImage, 0), 64, gfx.BufferVertex, hostMemory, gfx.Exclusive())
	c.Assert(err, qt.ErrorIs, registry.ErrCategoryMismatch)

	_, err = reg.CreateImage(registry.K(registry.SwapchainImage, 0), depthInfo(), gfx.AspectDepth, gfx.MemoryDeviceLocal)
	c.Assert(err, qt.ErrorIs, registry.ErrCategoryMismatch)

	_, err = reg.AdoptImage(registry.K(registry.DepthImage, 0), 1, gfx.FormatB8G8R8A8Srgb, gfx.Extent2D{Width: 1, Height: 1})
	c.Assert(err, qt.ErrorIs, registry.ErrCategoryMismatch)
}

func TestWrite(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()
	key := registry.K(registry.Staging, 0)

	rec, err := reg.CreateBuffer(key, 8, gfx.BufferTransferSrc, hostMemory, gfx.Exclusive())
	c.Assert(err, qt.IsNil)

	c.Assert(reg.Write(key, 2, []byte{1, 2, 3}), qt.IsNil)
	c.Assert(dev.Contents(rec.Memory)[:8], qt.DeepEquals, []byte{0, 0, 1, 2, 3, 0, 0, 0})
	c.Assert(dev.Count(gfxtest.OpMapMemory), qt.Equals, 1)
	c.Assert(dev.Count(gfxtest.OpUnmapMemory), qt.Equals, 1)

	c.Assert(reg.Write(key, 6, []byte{1, 2, 3}), qt.ErrorIs, registry.ErrOutOfRange)
	c.Assert(dev.Err(), qt.IsNil)
}

func TestWriteDeviceLocal(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()
	key := registry.K(registry.Vertex, 0)

	_, err := reg.CreateBuffer(key, 8, gfx.BufferVertex, gfx.MemoryDeviceLocal, gfx.Exclusive())
	c.Assert(err, qt.IsNil)
	c.Assert(reg.Write(key, 0, []byte{1}), qt.ErrorIs, registry.ErrNotHostVisible)
	c.Assert(dev.Count(gfxtest.OpMapMemory), qt.Equals, 0)
}

func TestAdoptedImagesStayWithSwapchain(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()

	sc, err := dev.CreateSwapchain(gfx.SwapchainInfo{
		Extent:    gfx.Extent2D{Width: 800, Height: 600},
		MinImages: 3,
		Format:    gfx.FormatB8G8R8A8Srgb,
	})
	c.Assert(err, qt.IsNil)
	for i, img := range sc.Images {
		_, err := reg.AdoptImage(registry.K(registry.SwapchainImage, uint32(i)), img, sc.Format, sc.Extent)
		c.Assert(err, qt.IsNil)
	}
	c.Assert(reg.IDs(registry.SwapchainImage), qt.DeepEquals, []uint32{0, 1, 2})

	reg.Release()
	c.Assert(dev.Count(gfxtest.OpDestroyView), qt.Equals, 3)
	c.Assert(dev.Count(gfxtest.OpDestroyImage), qt.Equals, 0)

	dev.DestroySwapchain(sc.Handle)
	c.Assert(dev.Live(), qt.Equals, 0)
	c.Assert(dev.Err(), qt.IsNil)
}

func TestFramebufferAttachments(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()

	_, err := reg.CreateFramebuffer(registry.K(registry.Framebuffer, 0), 1, []registry.Key{registry.K(registry.DepthImage, 0)}, gfx.Extent2D{Width: 1, Height: 1})
	c.Assert(err, qt.ErrorIs, registry.ErrRecordNotFound)

	_, err = reg.CreateBuffer(registry.K(registry.Vertex, 0), 16, gfx.BufferVertex, hostMemory, gfx.Exclusive())
	c.Assert(err, qt.IsNil)
	_, err = reg.CreateFramebuffer(registry.K(registry.Framebuffer, 0), 1, []registry.Key{registry.K(registry.Vertex, 0)}, gfx.Extent2D{Width: 1, Height: 1})
	c.Assert(err, qt.ErrorIs, registry.ErrCategoryMismatch)
	c.Assert(dev.Count(gfxtest.OpCreateFramebuffer), qt.Equals, 0)
}

func TestReleaseOrder(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()

	rp, err := dev.CreateRenderPass(gfx.RenderPassInfo{
		ColorFormat: gfx.FormatB8G8R8A8Srgb,
		DepthFormat: gfx.FormatD32Sfloat,
		Samples:     4,
	})
	c.Assert(err, qt.IsNil)

	depth := registry.K(registry.DepthImage, 0)
	ms := registry.K(registry.MultisampleImage, 0)
	_, err = reg.CreateImage(depth, depthInfo(), gfx.AspectDepth, gfx.MemoryDeviceLocal)
	c.Assert(err, qt.IsNil)
	info := depthInfo()
	info.Format = gfx.FormatB8G8R8A8Srgb
	info.Usage = gfx.ImageColorAttachment | gfx.ImageTransientAttachment
	_, err = reg.CreateImage(ms, info, gfx.AspectColor, gfx.MemoryDeviceLocal)
	c.Assert(err, qt.IsNil)
	_, err = reg.CreateFramebuffer(registry.K(registry.Framebuffer, 0), rp, []registry.Key{ms, depth}, info.Extent)
	c.Assert(err, qt.IsNil)
	_, err = reg.CreateBuffer(registry.K(registry.Storage, 9), 16, gfx.BufferStorage, gfx.MemoryDeviceLocal, gfx.Exclusive())
	c.Assert(err, qt.IsNil)

	reg.Release()
	dev.DestroyRenderPass(rp)

	c.Assert(reg.Len(), qt.Equals, 0)
	c.Assert(dev.Live(), qt.Equals, 0)
	c.Assert(dev.Err(), qt.IsNil)

	var destroyed []gfxtest.Op
	for _, call := range dev.Calls() {
		switch call.Op {
		case gfxtest.OpDestroyFramebuffer, gfxtest.OpDestroyImage, gfxtest.OpDestroyBuffer:
			destroyed = append(destroyed, call.Op)
		}
	}
	c.Assert(destroyed, qt.DeepEquals, []gfxtest.Op{
		gfxtest.OpDestroyFramebuffer,
		gfxtest.OpDestroyImage,
		gfxtest.OpDestroyImage,
		gfxtest.OpDestroyBuffer,
	})
}

func TestCreateImageRollsBack(t *testing.T) {
	c := qt.New(t)
	dev, reg := newRegistry()
	dev.FailAfter(gfxtest.OpCreateView, 0)

	_, err := reg.CreateImage(registry.K(registry.DepthImage, 0), depthInfo(), gfx.AspectDepth, gfx.MemoryDeviceLocal)
	c.Assert(err, qt.ErrorIs, gfx.ErrResourceCreation)
	c.Assert(reg.Len(), qt.Equals, 0)
	c.Assert(dev.Live(), qt.Equals, 0)
	c.Assert(dev.Err(), qt.IsNil)
}
