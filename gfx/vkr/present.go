// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

var errNoSurfaceFormat = errors.New("vkr: surface reports no formats")

// SurfaceFormat implements gfx.Presentation.
func (d *Device) SurfaceFormat() (gfx.Format, error) {
	var count uint32
	if err := check("GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil)); err != nil {
		return gfx.FormatUndefined, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := check("GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, formats)); err != nil {
		return gfx.FormatUndefined, err
	}
	for i := range formats {
		formats[i].Deref()
	}
	format, ok := chooseFormat(formats)
	if !ok {
		return gfx.FormatUndefined, errNoSurfaceFormat
	}
	d.mutex.Lock()
	d.format = format
	d.mutex.Unlock()
	return gfx.Format(format.Format), nil
}

func (d *Device) capabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check("GetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// SurfaceCapabilities implements gfx.Presentation.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	caps, err := d.capabilities()
	if err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	return surfaceLimits(caps), nil
}

func surfaceLimits(caps vk.SurfaceCapabilities) gfx.SurfaceCapabilities {
	return gfx.SurfaceCapabilities{
		MinImages: caps.MinImageCount,
		MaxImages: caps.MaxImageCount,
		Current:   gfx.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		Min:       gfx.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		Max:       gfx.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
	}
}

var compositeAlphaFlags = []vk.CompositeAlphaFlagBits{
	vk.CompositeAlphaOpaqueBit,
	vk.CompositeAlphaPreMultipliedBit,
	vk.CompositeAlphaPostMultipliedBit,
	vk.CompositeAlphaInheritBit,
}

// swapchainInfo fills the create info for info on a surface with the
// given capabilities. Extent and image count are kept within the
// surface limits; the extent actually used is returned.
func swapchainInfo(surface vk.Surface, caps vk.SurfaceCapabilities, colorSpace vk.ColorSpace, families gfx.QueueFamilies, info gfx.SwapchainInfo, old vk.Swapchain) (vk.SwapchainCreateInfo, gfx.Extent2D) {
	limits := surfaceLimits(caps)
	extent := gfx.ChooseExtent(limits, info.Extent)

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	mode, indices := vk.SharingModeExclusive, []uint32(nil)
	if families.Graphics != families.Present {
		mode, indices = vk.SharingModeConcurrent, []uint32{families.Graphics, families.Present}
	}
	return vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   gfx.ChooseImageCount(limits, info.MinImages),
		ImageFormat:     vk.Format(info.Format),
		ImageColorSpace: colorSpace,
		ImageExtent: vk.Extent2D{
			Width:  extent.Width,
			Height: extent.Height,
		},
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:          caps.CurrentTransform,
		CompositeAlpha:        compositeAlpha,
		PresentMode:           vk.PresentModeFifo,
		Clipped:               vk.True,
		ImageArrayLayers:      1,
		ImageSharingMode:      mode,
		QueueFamilyIndexCount: uint32(len(indices)),
		PQueueFamilyIndices:   indices,
		OldSwapchain:          old,
	}, extent
}

// CreateSwapchain implements gfx.Presentation. Swap images are added
// to the image table and go away with the swapchain.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	caps, err := d.capabilities()
	if err != nil {
		return gfx.Swapchain{}, err
	}

	old := nullSwapchain
	if info.Old.Valid() {
		sc, err := lookup(d, d.swapchains, info.Old)
		if err != nil {
			return gfx.Swapchain{}, err
		}
		old = sc.swapchain
	}

	d.mutex.Lock()
	colorSpace := d.format.ColorSpace
	d.mutex.Unlock()

	scci, extent := swapchainInfo(d.surface, caps, colorSpace, d.families, info, old)
	var sc vk.Swapchain
	if err := created("CreateSwapchain", vk.CreateSwapchain(d.device, &scci, nil, &sc)); err != nil {
		return gfx.Swapchain{}, err
	}

	var count uint32
	if err := check("GetSwapchainImages", vk.GetSwapchainImages(d.device, sc, &count, nil)); err != nil {
		vk.DestroySwapchain(d.device, sc, nil)
		return gfx.Swapchain{}, err
	}
	images := make([]vk.Image, count)
	if err := check("GetSwapchainImages", vk.GetSwapchainImages(d.device, sc, &count, images)); err != nil {
		vk.DestroySwapchain(d.device, sc, nil)
		return gfx.Swapchain{}, err
	}

	out := gfx.Swapchain{
		Format: info.Format,
		Extent: extent,
		Images: make([]gfx.Handle, len(images)),
	}
	for i, img := range images {
		out.Images[i] = insert(d, d.images, image{image: img, swap: true})
	}
	out.Handle = insert(d, d.swapchains, swapchain{swapchain: sc, images: out.Images})
	return out, nil
}

// DestroySwapchain implements gfx.Presentation.
func (d *Device) DestroySwapchain(h gfx.Handle) {
	sc, ok := remove(d, d.swapchains, h)
	if !ok {
		return
	}
	d.mutex.Lock()
	for _, img := range sc.images {
		delete(d.images, img)
	}
	d.mutex.Unlock()
	vk.DestroySwapchain(d.device, sc.swapchain, nil)
}

// AcquireNextImage implements gfx.Presentation.
func (d *Device) AcquireNextImage(swapchain, semaphore gfx.Handle) (uint32, error) {
	sc, err := lookup(d, d.swapchains, swapchain)
	if err != nil {
		return 0, err
	}
	sem, err := lookup(d, d.semaphores, semaphore)
	if err != nil {
		return 0, err
	}
	var index uint32
	res := vk.AcquireNextImage(d.device, sc.swapchain, vk.MaxUint64, sem, nullFence, &index)
	return index, presented("AcquireNextImage", res)
}

// Present implements gfx.Presentation.
func (d *Device) Present(info gfx.PresentInfo) error {
	sc, err := lookup(d, d.swapchains, info.Swapchain)
	if err != nil {
		return err
	}
	wait, err := d.semaphoreList(info.Wait)
	if err != nil {
		return err
	}
	pi := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{info.Image},
	}
	d.queueMutex.Lock()
	res := vk.QueuePresent(d.queues[gfx.PresentQueue], &pi)
	d.queueMutex.Unlock()
	return presented("QueuePresent", res)
}

func (d *Device) semaphoreList(handles []gfx.Handle) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(handles))
	for i, h := range handles {
		s, err := lookup(d, d.semaphores, h)
		if err != nil {
			return nil, fmt.Errorf("semaphore %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
