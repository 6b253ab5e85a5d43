// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

// CreateBuffer implements gfx.Resources.
func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Handle, error) {
	mode, families := sharing(info.Sharing)
	bci := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(info.Size),
		Usage:                 vk.BufferUsageFlags(info.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}
	var buffer vk.Buffer
	if err := created("CreateBuffer", vk.CreateBuffer(d.device, &bci, nil, &buffer)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.buffers, buffer), nil
}

// DestroyBuffer implements gfx.Resources.
func (d *Device) DestroyBuffer(h gfx.Handle) {
	if buffer, ok := remove(d, d.buffers, h); ok {
		vk.DestroyBuffer(d.device, buffer, nil)
	}
}

// BufferRequirements implements gfx.Resources.
func (d *Device) BufferRequirements(h gfx.Handle) gfx.MemoryRequirements {
	buffer, err := lookup(d, d.buffers, h)
	if err != nil {
		return gfx.MemoryRequirements{}
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	req.Deref()
	return requirements(req)
}

// CreateImage implements gfx.Resources.
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Handle, error) {
	mode, families := sharing(info.Sharing)
	samples := info.Samples
	if samples == 0 {
		samples = 1
	}
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:             1,
		ArrayLayers:           1,
		Samples:               vk.SampleCountFlagBits(samples),
		Tiling:                vk.ImageTilingOptimal,
		Usage:                 vk.ImageUsageFlags(info.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		InitialLayout:         vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := created("CreateImage", vk.CreateImage(d.device, &ici, nil, &img)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.images, image{image: img}), nil
}

// DestroyImage implements gfx.Resources. Swap images are left to
// their swapchain.
func (d *Device) DestroyImage(h gfx.Handle) {
	d.mutex.Lock()
	img, ok := d.images[h]
	if ok && !img.swap {
		delete(d.images, h)
	}
	d.mutex.Unlock()
	if ok && !img.swap {
		vk.DestroyImage(d.device, img.image, nil)
	}
}

// ImageRequirements implements gfx.Resources.
func (d *Device) ImageRequirements(h gfx.Handle) gfx.MemoryRequirements {
	img, err := lookup(d, d.images, h)
	if err != nil {
		return gfx.MemoryRequirements{}
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img.image, &req)
	req.Deref()
	return requirements(req)
}

func requirements(req vk.MemoryRequirements) gfx.MemoryRequirements {
	return gfx.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

// CreateView implements gfx.Resources.
func (d *Device) CreateView(info gfx.ViewInfo) (gfx.Handle, error) {
	img, err := lookup(d, d.images, info.Image)
	if err != nil {
		return gfx.NullHandle, err
	}
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := created("CreateImageView", vk.CreateImageView(d.device, &ivci, nil, &view)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.views, view), nil
}

// DestroyView implements gfx.Resources.
func (d *Device) DestroyView(h gfx.Handle) {
	if view, ok := remove(d, d.views, h); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

// CreateRenderPass implements gfx.Resources. The pass clears a
// multisampled color and depth target and resolves color into the
// presentable attachment.
func (d *Device) CreateRenderPass(info gfx.RenderPassInfo) (gfx.Handle, error) {
	samples := vk.SampleCountFlagBits(info.Samples)
	attachments := []vk.AttachmentDescription{
		{
			Format:         vk.Format(info.ColorFormat),
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		},
		{
			Format:         vk.Format(info.DepthFormat),
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
		{
			Format:         vk.Format(info.ColorFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
		PResolveAttachments: []vk.AttachmentReference{{
			Attachment: 2,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}
	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if err := created("CreateRenderPass", vk.CreateRenderPass(d.device, &rpci, nil, &rp)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.renderPasses, rp), nil
}

// DestroyRenderPass implements gfx.Resources.
func (d *Device) DestroyRenderPass(h gfx.Handle) {
	if rp, ok := remove(d, d.renderPasses, h); ok {
		vk.DestroyRenderPass(d.device, rp, nil)
	}
}

// CreateFramebuffer implements gfx.Resources.
func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Handle, error) {
	rp, err := lookup(d, d.renderPasses, info.RenderPass)
	if err != nil {
		return gfx.NullHandle, err
	}
	views := make([]vk.ImageView, len(info.Attachments))
	for i, h := range info.Attachments {
		if views[i], err = lookup(d, d.views, h); err != nil {
			return gfx.NullHandle, err
		}
	}
	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := created("CreateFramebuffer", vk.CreateFramebuffer(d.device, &fci, nil, &fb)); err != nil {
		return gfx.NullHandle, err
	}
	return insert(d, d.framebuffers, fb), nil
}

// DestroyFramebuffer implements gfx.Resources.
func (d *Device) DestroyFramebuffer(h gfx.Handle) {
	if fb, ok := remove(d, d.framebuffers, h); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}
