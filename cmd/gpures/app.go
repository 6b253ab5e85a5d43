// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/gpures/assets"
	"github.com/devblok/gpures/chain"
	"github.com/devblok/gpures/core"
	"github.com/devblok/gpures/frame"
	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/gfx/vkr"
	"github.com/devblok/gpures/memory"
	"github.com/devblok/gpures/model"
	"github.com/devblok/gpures/platform"
	"github.com/devblok/gpures/registry"
	"github.com/devblok/gpures/surface"
	"github.com/devblok/gpures/transfer"
)

// StaticResources holds what the demo falls back to without a bundle.
var StaticResources = packr.NewBox("./resources")

const (
	textureName  = "texture.png"
	textureSize  = 64
	maxSwapImage = 16
)

type app struct {
	log   log.FieldLogger
	ids   *core.IDs
	start time.Time

	instance *vkr.Instance
	device   *vkr.Device
	surface  *surface.Manager
	registry *registry.Registry
	chain    *chain.Chain
	frames   *frame.Scheduler
	uploader *transfer.Uploader

	mesh     model.Mesh
	uniforms uint32
}

// newApp brings up the device on window, builds the chain and uploads
// the scene. Whatever was created is released on failure.
func newApp(ctx context.Context, cfg core.Configuration, window platform.Window, logger log.FieldLogger) (a *app, err error) {
	a = &app{
		log:   logger,
		ids:   core.NewIDs(1),
		start: time.Now(),
		mesh:  model.Quad(),
	}
	defer func() {
		if err != nil {
			a.Release()
		}
	}()

	a.instance, err = vkr.NewInstance(vkr.DefaultApplicationInfo, window, vkr.InstanceConfiguration{
		Debug: cfg.Renderer.Debug,
	}, a.component("instance"))
	if err != nil {
		return a, err
	}
	a.device, err = vkr.NewDevice(a.instance, vkr.DeviceConfiguration{
		Extensions: cfg.Renderer.DeviceExtensions,
	}, a.component("device"))
	if err != nil {
		return a, err
	}

	samples := a.device.MaxUsableSamples(cfg.Renderer.Samples)
	if samples < 2 {
		return a, errors.New("device does not support multisampled attachments")
	}
	if samples != cfg.Renderer.Samples {
		logger.WithFields(log.Fields{
			"wanted": cfg.Renderer.Samples,
			"usable": samples,
		}).Warn("sample count lowered")
	}
	depth, err := a.device.DepthFormat()
	if err != nil {
		return a, err
	}

	a.surface = surface.NewManager(window, a.component("surface"))
	alloc := memory.NewAllocator(a.device, a.component("memory"))
	a.registry = registry.New(a.device, alloc, a.component("registry"))
	a.chain = chain.New(a.device, a.registry, a.surface, chain.Config{
		SwapchainSize:     cfg.Renderer.SwapchainSize,
		MaxFramesInFlight: cfg.Renderer.MaxFramesInFlight,
		DepthFormat:       depth,
		Samples:           samples,
		Scene: chain.SceneInfo{
			SwapchainImageBase: a.ids.Reserve(maxSwapImage),
			DepthImage:         a.ids.Next(),
			MultisampleImage:   a.ids.Next(),
			FramebufferBase:    a.ids.Reserve(maxSwapImage),
		},
	}, a.component("chain"))
	if err := a.chain.Build(ctx); err != nil {
		return a, err
	}

	a.frames, err = frame.NewScheduler(a.device, a.chain, a.surface, cfg.Renderer.MaxFramesInFlight, a.component("frame"))
	if err != nil {
		return a, err
	}
	a.uploader = transfer.New(a.device, a.registry, a.device.Families(), a.ids, cfg.Renderer.MaxTransfersInFlight, a.component("transfer"))
	a.uniforms = a.ids.Reserve(maxSwapImage)
	return a, a.upload(ctx, cfg.Assets.Bundle)
}

func (a *app) component(name string) log.FieldLogger {
	return core.Component(a.log, name, a.ids.Next())
}

// texture reads the texture from the bundle when there is one,
// otherwise from the static resources.
func (a *app) texture(bundle string) ([]byte, error) {
	if _, err := os.Stat(bundle); err == nil {
		b, err := assets.OpenFile(bundle)
		if err != nil {
			return nil, err
		}
		defer b.Close()
		a.log.WithFields(log.Fields{
			"bundle":  bundle,
			"version": b.Version(),
		}).Info("texture from bundle")
		return b.Read(textureName)
	}
	return StaticResources.Find(textureName)
}

func (a *app) upload(ctx context.Context, bundle string) error {
	raw, err := a.texture(bundle)
	if err != nil {
		return err
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode %s: %w", textureName, err)
	}
	pixels := model.Pixels(img, gfx.Extent2D{Width: textureSize, Height: textureSize})

	req := a.mesh.Requirements(a.chain.ImageCount())
	a.log.WithFields(log.Fields{
		"images":   req.SwapchainImages,
		"vertices": req.VertexBytes,
		"indices":  req.IndexBytes,
		"uniform":  req.UniformBytes,
	}).Info("scene requirements")

	uploads := []struct {
		category registry.Category
		usage    gfx.BufferUsage
		size     uint64
		data     []byte
	}{
		{registry.Vertex, gfx.BufferVertex, req.VertexBytes, a.mesh.VertexBytes()},
		{registry.Index, gfx.BufferIndex, req.IndexBytes, a.mesh.IndexBytes()},
		{registry.Storage, gfx.BufferStorage, uint64(len(pixels)), pixels},
	}
	for _, u := range uploads {
		if uint64(len(u.data)) != u.size {
			return fmt.Errorf("%s: encoded %d bytes, need %d", u.category, len(u.data), u.size)
		}
		rec, err := a.uploader.Upload(ctx, registry.K(u.category, a.ids.Next()), u.usage, u.data)
		if err != nil {
			return err
		}
		a.log.WithFields(log.Fields{
			"record": rec.Key.String(),
			"size":   rec.Size,
		}).Debug("uploaded")
	}
	return a.uploader.Flush(ctx)
}

// uniform returns the uniform record of a swapchain image, creating it
// the first time the image is drawn to.
func (a *app) uniform(image uint32) (registry.Key, error) {
	key := registry.K(registry.Uniform, a.uniforms+image)
	if a.registry.Has(key) {
		return key, nil
	}
	req := a.mesh.Requirements(a.chain.ImageCount())
	if image >= req.SwapchainImages || image >= maxSwapImage {
		return key, fmt.Errorf("uniform for image %d of %d", image, req.SwapchainImages)
	}
	_, err := a.registry.CreateBuffer(key, req.UniformBytes, gfx.BufferUniform,
		gfx.MemoryHostVisible|gfx.MemoryHostCoherent, gfx.Exclusive())
	return key, err
}

// Draw renders one frame.
func (a *app) Draw(ctx context.Context) error {
	f, err := a.frames.BeginFrame(ctx)
	if err != nil {
		return err
	}

	elapsed := float32(time.Since(a.start).Seconds())
	extent := a.chain.Extent()
	key, err := a.uniform(f.Image)
	if err != nil {
		return err
	}
	if err := a.registry.Write(key, 0, model.NewUniform(extent, elapsed).Bytes()); err != nil {
		return err
	}

	fb, err := a.chain.Framebuffer(f.Image)
	if err != nil {
		return err
	}
	pulse := float32(0.5 + 0.5*math.Sin(float64(elapsed)))
	if err := a.device.RecordClear(f.Sync.Commands, a.chain.RenderPass(), fb.Resource, extent, [4]float32{0.1, 0.2 * pulse, 0.4 * pulse, 1}); err != nil {
		return err
	}
	return a.frames.EndFrame(ctx, f)
}

// Release tears everything down in dependency order.
func (a *app) Release() {
	if a.device != nil {
		if err := a.device.WaitIdle(); err != nil {
			a.log.WithError(err).Error("wait idle")
		}
	}
	if a.frames != nil {
		a.frames.Release()
	}
	if a.uploader != nil {
		a.uploader.Release()
	}
	if a.chain != nil {
		a.chain.Release()
	}
	if a.registry != nil {
		a.registry.Release()
	}
	if a.surface != nil {
		a.surface.Close()
	}
	a.device.Destroy()
	a.instance.Destroy()
}
